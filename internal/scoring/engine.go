// Package scoring implements the local fraud risk scoring engine.
//
// Architecture:
//   The Engine combines a statistical signal from the shared Tracker (a
//   z-score of the amount against a rolling baseline) with independent rule
//   checks. Every call mutates the Tracker exactly once, so the baseline
//   follows every transaction the engine sees, whatever its origin.
//
// Scoring philosophy:
//   Each rule contributes a fixed, non-negative delta. Deltas are additive;
//   the total is clamped to 100. Rules are evaluated in a fixed order, which
//   is also the order of the reasons on the result.
//
// Rules implemented:
//   1. Statistical outlier: |z| above 2.5 against the rolling baseline
//   2. Velocity: caller-supplied burst signal above 0.8
//   3. Origin: transaction from a foreign or untrusted IP
//   4. Amount: absolute value above 4500
package scoring

import (
	"math"
	"time"

	"sentinelpay/monitor/internal/domain"
)

// Rule thresholds and deltas.
const (
	OutlierZScore   = 2.5
	HighVelocity    = 0.8
	HighValueAmount = 4500.0
	outlierPoints   = 40
	velocityPoints  = 30
	foreignIPPoints = 25
	highValuePoints = 10
)

// Reason labels, one per rule.
const (
	ReasonOutlier   = "Statistical Outlier"
	ReasonVelocity  = "High Velocity"
	ReasonForeignIP = "Foreign IP"
	ReasonHighValue = "High Value"
)

// Rule describes one heuristic check.
type Rule struct {
	Name        string `json:"name"`
	Reason      string `json:"reason"`
	Points      int    `json:"points"`
	Description string `json:"description"`

	match func(*ruleContext) bool
}

// ruleContext bundles the transaction with the statistical signal computed
// for it, so each rule reads the same values.
type ruleContext struct {
	tx     *domain.Transaction
	zScore float64
}

// rules is evaluated in order; that order determines Reasons ordering.
var rules = []Rule{
	{
		Name:        "statistical_outlier",
		Reason:      ReasonOutlier,
		Points:      outlierPoints,
		Description: "Amount deviates more than 2.5 standard deviations from the rolling baseline",
		match:       func(c *ruleContext) bool { return math.Abs(c.zScore) > OutlierZScore },
	},
	{
		Name:        "high_velocity",
		Reason:      ReasonVelocity,
		Points:      velocityPoints,
		Description: "Burst/frequency signal above 0.8",
		match:       func(c *ruleContext) bool { return c.tx.Velocity > HighVelocity },
	},
	{
		Name:        "foreign_ip",
		Reason:      ReasonForeignIP,
		Points:      foreignIPPoints,
		Description: "Transaction originated from a foreign or untrusted IP",
		match:       func(c *ruleContext) bool { return c.tx.IsForeignIP },
	},
	{
		Name:        "high_value",
		Reason:      ReasonHighValue,
		Points:      highValuePoints,
		Description: "Amount above 4500",
		match:       func(c *ruleContext) bool { return c.tx.Amount > HighValueAmount },
	},
}

// Rules returns the heuristic rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Engine is the heuristic risk scorer.
type Engine struct {
	tracker *Tracker
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to stamp AnalyzedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a scoring engine backed by the given tracker.
func New(t *Tracker, opts ...Option) *Engine {
	e := &Engine{
		tracker: t,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tracker returns the rolling statistics tracker shared by this engine.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Score analyzes a transaction. It always produces a result; the only side
// effect is appending the amount to the tracker's history.
func (e *Engine) Score(tx *domain.Transaction) *domain.AnalyzedTransaction {
	ctx := &ruleContext{
		tx:     tx,
		zScore: e.tracker.ObserveAndScore(tx.Amount),
	}

	total := 0
	reasons := []string{}
	for _, r := range rules {
		if r.match(ctx) {
			total += r.Points
			reasons = append(reasons, r.Reason)
		}
	}
	score := clamp(total, 0, domain.MaxRiskScore)

	return &domain.AnalyzedTransaction{
		Transaction:  *tx,
		RiskScore:    score,
		IsFraud:      domain.IsFraudScore(score),
		Reasons:      reasons,
		AnalysisType: domain.AnalysisHeuristic,
		AnalyzedAt:   e.now(),
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
