// Package report computes dashboard figures over the live feed.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sentinelpay/monitor/internal/domain"
)

// Build summarises txs, the current live feed window. Blocked amount is the
// exact sum of fraud amounts, rounded to cents only at the end.
func Build(txs []*domain.AnalyzedTransaction, baseline domain.BaselineStats, now time.Time) domain.FeedStats {
	stats := domain.FeedStats{
		GeneratedAt:    now,
		Total:          len(txs),
		ByAnalysisType: map[string]int{},
		ByOrigin:       map[string]int{},
		Reasons:        []domain.ReasonCount{},
		Baseline:       baseline,
	}

	blocked := decimal.Zero
	reasonCounts := map[string]int{}
	var totalScore int

	for _, tx := range txs {
		totalScore += tx.RiskScore
		stats.ByAnalysisType[string(tx.AnalysisType)]++
		stats.ByOrigin[string(tx.Origin)]++
		for _, r := range tx.Reasons {
			reasonCounts[r]++
		}
		if tx.IsFraud {
			stats.Fraud++
			blocked = blocked.Add(decimal.NewFromFloat(tx.Amount))
		}
	}

	for reason, count := range reasonCounts {
		stats.Reasons = append(stats.Reasons, domain.ReasonCount{Reason: reason, Count: count})
	}
	// Most frequent first; ties by name for a stable order.
	sort.Slice(stats.Reasons, func(i, j int) bool {
		if stats.Reasons[i].Count != stats.Reasons[j].Count {
			return stats.Reasons[i].Count > stats.Reasons[j].Count
		}
		return stats.Reasons[i].Reason < stats.Reasons[j].Reason
	})

	if len(txs) > 0 {
		avg := decimal.NewFromInt(int64(totalScore)).Div(decimal.NewFromInt(int64(len(txs))))
		stats.AvgRiskScore = avg.Round(2).InexactFloat64()
	}
	stats.BlockedAmount = blocked.StringFixed(2)
	return stats
}
