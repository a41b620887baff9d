// Package analysis routes each incoming transaction to a scoring tier.
//
// Stream traffic is always scored by the local heuristic engine. Manual
// submissions use the remote model whenever a credential is configured at the
// moment of the call; the remote adapter itself falls back to the heuristic.
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/metrics"
	"sentinelpay/monitor/internal/scoring"
	"sentinelpay/monitor/internal/traces"
)

// RemoteScorer scores a transaction with an external model.
type RemoteScorer interface {
	Score(ctx context.Context, tx *domain.Transaction, credential string) *domain.AnalyzedTransaction
}

// Coordinator chooses the scoring tier per origin.
type Coordinator struct {
	engine      *scoring.Engine
	remote      RemoteScorer
	credentials CredentialSource
	newID       func() string
}

// NewCoordinator wires the heuristic engine, the remote scorer and the credential source.
func NewCoordinator(engine *scoring.Engine, remote RemoteScorer, credentials CredentialSource) *Coordinator {
	return &Coordinator{
		engine:      engine,
		remote:      remote,
		credentials: credentials,
		newID:       uuid.NewString,
	}
}

// Analyze scores tx and stamps it with an ID and its origin. It never fails.
func (c *Coordinator) Analyze(ctx context.Context, origin domain.Origin, tx *domain.Transaction) *domain.AnalyzedTransaction {
	ctx, span := traces.StartSpan(ctx, "analysis.Analyze", traces.Origin(string(origin)), traces.Amount(tx.Amount))
	defer span.End()

	start := time.Now()
	var result *domain.AnalyzedTransaction
	if credential := c.credentialFor(origin); credential != "" {
		result = c.remote.Score(ctx, tx, credential)
	} else {
		result = c.engine.Score(tx)
		metrics.AnalysisDuration.WithLabelValues(string(domain.AnalysisHeuristic)).Observe(time.Since(start).Seconds())
	}

	result.ID = c.newID()
	result.Origin = origin

	span.SetAttributes(traces.AnalysisType(string(result.AnalysisType)), traces.RiskScore(result.RiskScore))
	metrics.AnalysesTotal.WithLabelValues(string(origin), string(result.AnalysisType)).Inc()
	if result.IsFraud {
		metrics.FraudVerdictsTotal.WithLabelValues(string(origin)).Inc()
	}
	metrics.BaselineSamples.Set(float64(c.engine.Tracker().Len()))
	return result
}

// Baseline describes the rolling history shared by every heuristic path.
func (c *Coordinator) Baseline() domain.BaselineStats {
	t := c.engine.Tracker()
	samples, mean, stdDev := t.Snapshot()
	return domain.BaselineStats{
		Samples:  len(samples),
		Capacity: t.Capacity(),
		Mean:     mean,
		StdDev:   stdDev,
	}
}

// credentialFor returns the credential to use for origin, or "" for the heuristic path.
func (c *Coordinator) credentialFor(origin domain.Origin) string {
	if origin != domain.OriginManual || c.credentials == nil || c.remote == nil {
		return ""
	}
	return c.credentials.Credential()
}
