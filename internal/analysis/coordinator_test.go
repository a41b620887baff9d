package analysis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelpay/monitor/internal/analysis"
	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/scoring"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// fakeRemote records the credentials it was called with and returns a fixed verdict.
type fakeRemote struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRemote) Score(_ context.Context, tx *domain.Transaction, credential string) *domain.AnalyzedTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, credential)
	return &domain.AnalyzedTransaction{
		Transaction:  *tx,
		RiskScore:    80,
		IsFraud:      true,
		Reasons:      []string{"remote says so"},
		AnalysisType: domain.AnalysisRemoteModel,
		AnalyzedAt:   time.Now().UTC(),
	}
}

func newCoordinator(credential string) (*analysis.Coordinator, *fakeRemote, *analysis.Settings, *scoring.Engine) {
	engine := scoring.New(scoring.NewTracker())
	remote := &fakeRemote{}
	settings := analysis.NewSettings(credential)
	return analysis.NewCoordinator(engine, remote, settings), remote, settings, engine
}

func tx(amount float64) *domain.Transaction {
	return &domain.Transaction{
		Amount:    amount,
		Merchant:  "Starbucks",
		Location:  "New York, US",
		Velocity:  0.1,
		Timestamp: time.Now().UTC(),
	}
}

// ─── Routing ──────────────────────────────────────────────────────────────────

func TestAnalyze_StreamIgnoresCredential(t *testing.T) {
	c, remote, _, engine := newCoordinator("AIza-key")

	got := c.Analyze(context.Background(), domain.OriginStream, tx(25))

	assert.Equal(t, domain.AnalysisHeuristic, got.AnalysisType)
	assert.Equal(t, domain.OriginStream, got.Origin)
	assert.Empty(t, remote.calls)
	assert.Equal(t, 1, engine.Tracker().Len())
}

func TestAnalyze_ManualWithCredential_UsesRemote(t *testing.T) {
	c, remote, _, engine := newCoordinator("AIza-key")

	got := c.Analyze(context.Background(), domain.OriginManual, tx(25))

	assert.Equal(t, domain.AnalysisRemoteModel, got.AnalysisType)
	assert.Equal(t, 80, got.RiskScore)
	assert.Equal(t, []string{"AIza-key"}, remote.calls)
	assert.Equal(t, 0, engine.Tracker().Len(), "a remote verdict does not feed the history")
}

func TestAnalyze_ManualWithoutCredential_UsesHeuristic(t *testing.T) {
	c, remote, _, _ := newCoordinator("")

	got := c.Analyze(context.Background(), domain.OriginManual, tx(25))

	assert.Equal(t, domain.AnalysisHeuristic, got.AnalysisType)
	assert.Equal(t, domain.OriginManual, got.Origin)
	assert.Empty(t, remote.calls)
}

func TestAnalyze_CredentialReadPerCall(t *testing.T) {
	c, remote, settings, _ := newCoordinator("")

	first := c.Analyze(context.Background(), domain.OriginManual, tx(10))
	settings.SetCredential("late-key")
	second := c.Analyze(context.Background(), domain.OriginManual, tx(10))
	settings.SetCredential("")
	third := c.Analyze(context.Background(), domain.OriginManual, tx(10))

	assert.Equal(t, domain.AnalysisHeuristic, first.AnalysisType)
	assert.Equal(t, domain.AnalysisRemoteModel, second.AnalysisType)
	assert.Equal(t, domain.AnalysisHeuristic, third.AnalysisType)
	assert.Equal(t, []string{"late-key"}, remote.calls)
}

func TestAnalyze_NilRemote_AlwaysHeuristic(t *testing.T) {
	engine := scoring.New(scoring.NewTracker())
	c := analysis.NewCoordinator(engine, nil, analysis.NewSettings("key"))

	got := c.Analyze(context.Background(), domain.OriginManual, tx(10))
	assert.Equal(t, domain.AnalysisHeuristic, got.AnalysisType)
}

// ─── Normalization ────────────────────────────────────────────────────────────

func TestAnalyze_AssignsUniqueIDs(t *testing.T) {
	c, _, _, _ := newCoordinator("")

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		got := c.Analyze(context.Background(), domain.OriginStream, tx(float64(10+i)))
		_, err := uuid.Parse(got.ID)
		require.NoError(t, err)
		assert.False(t, seen[got.ID], "duplicate id %s", got.ID)
		seen[got.ID] = true
	}
}

func TestAnalyze_StreamAndManualShareHistory(t *testing.T) {
	c, _, _, engine := newCoordinator("")

	for i := 0; i < 3; i++ {
		c.Analyze(context.Background(), domain.OriginStream, tx(50))
		c.Analyze(context.Background(), domain.OriginManual, tx(52))
	}
	assert.Equal(t, 6, engine.Tracker().Len())

	b := c.Baseline()
	assert.Equal(t, 6, b.Samples)
	assert.Equal(t, scoring.HistoryCapacity, b.Capacity)
	assert.InDelta(t, 51, b.Mean, 1e-9)
	assert.InDelta(t, 1, b.StdDev, 1e-9)
}

func TestAnalyze_ConcurrentOrigins(t *testing.T) {
	c, _, _, engine := newCoordinator("")

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				c.Analyze(context.Background(), domain.OriginStream, tx(20))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				c.Analyze(context.Background(), domain.OriginManual, tx(30))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, scoring.HistoryCapacity, engine.Tracker().Len())
}

// ─── Settings ─────────────────────────────────────────────────────────────────

func TestSettings_Configured(t *testing.T) {
	s := analysis.NewSettings("")
	assert.False(t, s.Configured())
	s.SetCredential("k")
	assert.True(t, s.Configured())
	assert.Equal(t, "k", s.Credential())
}
