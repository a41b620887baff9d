// Package domain contains all core types used across the application.
// Keeping domain types in one place makes the fraud scoring rules easy to reason about.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ─── Constants ───────────────────────────────────────────────────────────────

// AnalysisType tags which scoring tier produced a verdict.
type AnalysisType string

const (
	AnalysisHeuristic   AnalysisType = "heuristic"    // local rule + statistics engine
	AnalysisRemoteModel AnalysisType = "remote_model" // external reasoning service
)

// Origin describes where a transaction entered the system. Routing between
// scoring tiers is decided by origin, never by content.
type Origin string

const (
	OriginStream Origin = "stream" // continuous background simulator
	OriginManual Origin = "manual" // interactive submission
)

// ─── Scoring thresholds ───────────────────────────────────────────────────────

// FraudThreshold is the score a transaction must exceed to be marked fraud.
// A score of exactly 50 is not fraud.
const FraudThreshold = 50

// MaxRiskScore is the upper clamp for every risk score.
const MaxRiskScore = 100

// DefaultManualVelocity is applied to manual submissions that do not carry a
// velocity signal of their own.
const DefaultManualVelocity = 0.1

// MaxAmount bounds accepted amounts. Squared deviations of larger values can
// overflow the rolling variance and silence the outlier rule.
const MaxAmount = 1e9

// FeedLimit caps the live feed length.
const FeedLimit = 50

// ─── Core domain types ────────────────────────────────────────────────────────

// Transaction is a raw payment event, the input to scoring.
type Transaction struct {
	Amount      float64   `json:"amount"` // currency units, > 0
	Merchant    string    `json:"merchant"`
	Location    string    `json:"location"`
	IsForeignIP bool      `json:"isForeignIp"`
	Velocity    float64   `json:"velocity"` // precomputed burst signal in [0,1]
	Timestamp   time.Time `json:"timestamp"`
}

// ErrInvalidTransaction is wrapped by every Validate failure.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Validate checks the fields scoring depends on. Every entry point (manual
// submission, admin seed, seed file) runs it before a transaction can reach
// the rolling history.
func (t *Transaction) Validate() error {
	switch {
	case math.IsNaN(t.Amount) || t.Amount <= 0:
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidTransaction)
	case t.Amount > MaxAmount:
		return fmt.Errorf("%w: amount must not exceed %.0f", ErrInvalidTransaction, MaxAmount)
	case strings.TrimSpace(t.Merchant) == "":
		return fmt.Errorf("%w: merchant is required", ErrInvalidTransaction)
	case math.IsNaN(t.Velocity) || t.Velocity < 0 || t.Velocity > 1:
		return fmt.Errorf("%w: velocity must be between 0 and 1", ErrInvalidTransaction)
	}
	return nil
}

// AnalyzedTransaction is a Transaction enriched with its fraud verdict.
// This is the canonical record persisted, broadcast and returned by the API.
type AnalyzedTransaction struct {
	Transaction
	ID           string       `json:"id"`
	Origin       Origin       `json:"origin"`
	RiskScore    int          `json:"riskScore"` // 0-100
	IsFraud      bool         `json:"isFraud"`
	Reasons      []string     `json:"reasons"`
	AnalysisType AnalysisType `json:"analysisType"`
	AnalyzedAt   time.Time    `json:"analyzedAt"`
	PersistedAt  time.Time    `json:"persistedAt,omitzero"` // assigned by the sink
}

// IsFraudScore reports whether a clamped score crosses the fraud threshold.
func IsFraudScore(score int) bool {
	return score > FraudThreshold
}

// ─── Webhooks ─────────────────────────────────────────────────────────────────

// WebhookConfig is a registered callback that receives real-time alerts
// when a transaction score reaches the threshold.
type WebhookConfig struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Threshold int       `json:"threshold"` // fire when score >= this value
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// WebhookPayload is the body sent to registered webhook URLs.
type WebhookPayload struct {
	Event       string              `json:"event"` // always "high_risk_transaction"
	TriggeredAt time.Time           `json:"triggered_at"`
	Transaction AnalyzedTransaction `json:"transaction"`
}

// ─── Reporting ────────────────────────────────────────────────────────────────

// FeedStats are the dashboard headline figures computed over the live feed.
type FeedStats struct {
	GeneratedAt    time.Time      `json:"generatedAt"`
	Total          int            `json:"total"`
	Fraud          int            `json:"fraud"`
	BlockedAmount  string         `json:"blockedAmount"` // decimal string, 2 places
	AvgRiskScore   float64        `json:"avgRiskScore"`
	ByAnalysisType map[string]int `json:"byAnalysisType"`
	ByOrigin       map[string]int `json:"byOrigin"`
	Reasons        []ReasonCount  `json:"reasons"`
	Baseline       BaselineStats  `json:"baseline"`
}

// ReasonCount is how often one rule fired within the feed window.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// BaselineStats describes the rolling history backing the z-score rule.
type BaselineStats struct {
	Samples  int     `json:"samples"`
	Capacity int     `json:"capacity"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stdDev"`
}
