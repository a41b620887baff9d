package scoring_test

import (
	"reflect"
	"testing"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/scoring"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

var fixedNow = time.Date(2026, 2, 25, 14, 0, 0, 0, time.UTC)

func newEngine(history ...float64) *scoring.Engine {
	return scoring.New(seeded(history...), scoring.WithClock(func() time.Time { return fixedNow }))
}

// baseTx returns a clean, low-risk transaction as a starting point.
func baseTx(amount float64) *domain.Transaction {
	return &domain.Transaction{
		Amount:    amount,
		Merchant:  "Amazon",
		Location:  "New York, US",
		Velocity:  0.1,
		Timestamp: fixedNow,
	}
}

// nearFifty is a low-variance baseline centred on 50.
var nearFifty = []float64{49, 50, 51, 50, 50}

// ─── Score bounds ─────────────────────────────────────────────────────────────

func TestScore_CleanTransaction_ZeroRisk(t *testing.T) {
	e := newEngine()
	got := e.Score(baseTx(40))

	if got.RiskScore != 0 || got.IsFraud {
		t.Errorf("expected score 0 / not fraud, got %d / %v", got.RiskScore, got.IsFraud)
	}
	if len(got.Reasons) != 0 {
		t.Errorf("expected no reasons, got %v", got.Reasons)
	}
	if got.Reasons == nil {
		t.Error("reasons should be an empty slice, not nil")
	}
}

func TestScore_ClampedTo100(t *testing.T) {
	e := newEngine(nearFifty...)
	tx := baseTx(5000)
	tx.Velocity = 0.95
	tx.IsForeignIP = true

	got := e.Score(tx)
	// 40 + 30 + 25 + 10 = 105
	if got.RiskScore != 100 {
		t.Errorf("expected score clamped to 100, got %d", got.RiskScore)
	}
	if len(got.Reasons) != 4 {
		t.Errorf("expected all four rules to fire, got %v", got.Reasons)
	}
}

// ─── Fraud boundary ───────────────────────────────────────────────────────────

func TestIsFraudScore_Boundary(t *testing.T) {
	cases := map[int]bool{0: false, 50: false, 51: true, 100: true}
	for score, want := range cases {
		if got := domain.IsFraudScore(score); got != want {
			t.Errorf("IsFraudScore(%d) = %v, want %v", score, got, want)
		}
	}
}

// ─── Rule ordering ────────────────────────────────────────────────────────────

func TestScore_ReasonsFollowRuleOrder(t *testing.T) {
	e := newEngine(nearFifty...)
	tx := baseTx(1000)
	tx.Velocity = 0.9
	tx.IsForeignIP = true

	got := e.Score(tx)
	want := []string{scoring.ReasonOutlier, scoring.ReasonVelocity, scoring.ReasonForeignIP}
	if !reflect.DeepEqual(got.Reasons, want) {
		t.Errorf("expected reasons %v, got %v", want, got.Reasons)
	}
	if got.RiskScore != 95 || !got.IsFraud {
		t.Errorf("expected 95 / fraud, got %d / %v", got.RiskScore, got.IsFraud)
	}
}

func TestRules_TableOrder(t *testing.T) {
	var reasons []string
	for _, r := range scoring.Rules() {
		reasons = append(reasons, r.Reason)
	}
	want := []string{"Statistical Outlier", "High Velocity", "Foreign IP", "High Value"}
	if !reflect.DeepEqual(reasons, want) {
		t.Errorf("expected rule order %v, got %v", want, reasons)
	}
}

// ─── Individual rules ─────────────────────────────────────────────────────────

func TestScore_VelocityThresholdIsExclusive(t *testing.T) {
	e := newEngine()
	tx := baseTx(40)
	tx.Velocity = 0.8
	if got := e.Score(tx); got.RiskScore != 0 {
		t.Errorf("velocity 0.8 should not trigger, got %v", got.Reasons)
	}
	tx.Velocity = 0.81
	if got := e.Score(tx); got.RiskScore != 30 {
		t.Errorf("velocity 0.81 should add 30, got %d", got.RiskScore)
	}
}

func TestScore_HighValueThresholdIsExclusive(t *testing.T) {
	e := newEngine()
	if got := e.Score(baseTx(4500)); got.RiskScore != 0 {
		t.Errorf("amount 4500 should not trigger, got %v", got.Reasons)
	}
	if got := e.Score(baseTx(4500.01)); got.RiskScore != 10 {
		t.Errorf("amount 4500.01 should add 10, got %d", got.RiskScore)
	}
}

func TestScore_NegativeOutlierAlsoFlagged(t *testing.T) {
	e := newEngine(1000, 1010, 990, 1005, 995)
	got := e.Score(baseTx(1))
	if !reflect.DeepEqual(got.Reasons, []string{scoring.ReasonOutlier}) {
		t.Errorf("expected a low outlier to be flagged, got %v", got.Reasons)
	}
}

// ─── History side effects ─────────────────────────────────────────────────────

func TestScore_AppendsToSharedHistory(t *testing.T) {
	tr := scoring.NewTracker()
	a := scoring.New(tr)
	b := scoring.New(tr)

	a.Score(baseTx(10))
	b.Score(baseTx(20))

	if tr.Len() != 2 {
		t.Errorf("expected both engines to feed one history, got %d samples", tr.Len())
	}
}

func TestScore_StampsProvenance(t *testing.T) {
	e := newEngine()
	tx := baseTx(75)
	got := e.Score(tx)

	if got.AnalysisType != domain.AnalysisHeuristic {
		t.Errorf("expected heuristic analysis type, got %s", got.AnalysisType)
	}
	if !got.AnalyzedAt.Equal(fixedNow) {
		t.Errorf("expected AnalyzedAt from the injected clock, got %v", got.AnalyzedAt)
	}
	if got.Transaction != *tx {
		t.Errorf("raw transaction fields must be carried over unchanged")
	}
}

// ─── End-to-end scenarios ─────────────────────────────────────────────────────

func TestScenario_OutlierAndHighValue_ExactlyFiftyIsNotFraud(t *testing.T) {
	e := newEngine()
	for _, amount := range nearFifty {
		e.Score(baseTx(amount))
	}

	got := e.Score(baseTx(5000))
	want := []string{scoring.ReasonOutlier, scoring.ReasonHighValue}
	if !reflect.DeepEqual(got.Reasons, want) {
		t.Fatalf("expected reasons %v, got %v", want, got.Reasons)
	}
	if got.RiskScore != 50 {
		t.Errorf("expected score 50, got %d", got.RiskScore)
	}
	if got.IsFraud {
		t.Error("a score of exactly 50 must not be fraud")
	}
}

func TestScenario_IdenticalBaseline_NoOutlierSignal(t *testing.T) {
	e := newEngine()
	for i := 0; i < 5; i++ {
		e.Score(baseTx(50))
	}

	// Five identical amounts have zero spread, so only the value rule fires.
	got := e.Score(baseTx(5000))
	if !reflect.DeepEqual(got.Reasons, []string{scoring.ReasonHighValue}) {
		t.Errorf("expected only High Value, got %v", got.Reasons)
	}
}

func TestScenario_VelocityAndForeignIP_EmptyHistory(t *testing.T) {
	e := newEngine()
	tx := baseTx(1000)
	tx.Velocity = 0.9
	tx.IsForeignIP = true

	got := e.Score(tx)
	if got.RiskScore != 55 {
		t.Errorf("expected 30 + 25 = 55, got %d", got.RiskScore)
	}
	if !got.IsFraud {
		t.Error("expected 55 to be fraud")
	}
}
