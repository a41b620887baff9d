// Package pipeline carries a raw transaction through analysis, persistence
// and fan-out. Stream ticks and manual submissions share it.
package pipeline

import (
	"context"
	"fmt"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/metrics"
	"sentinelpay/monitor/internal/store"
)

// Analyzer produces a verdict for a transaction of a given origin.
type Analyzer interface {
	Analyze(ctx context.Context, origin domain.Origin, tx *domain.Transaction) *domain.AnalyzedTransaction
}

// Publisher receives every persisted verdict (live feed, dashboards).
type Publisher interface {
	BroadcastTransaction(tx *domain.AnalyzedTransaction)
}

// Notifier receives every persisted verdict for alerting.
type Notifier interface {
	NotifyAsync(tx *domain.AnalyzedTransaction)
}

// Pipeline wires analysis to the sink and the fan-out targets.
type Pipeline struct {
	analyzer  Analyzer
	sink      store.Sink
	publisher Publisher
	notifier  Notifier
}

// New creates a Pipeline. publisher and notifier may be nil.
func New(a Analyzer, sink store.Sink, publisher Publisher, notifier Notifier) *Pipeline {
	return &Pipeline{analyzer: a, sink: sink, publisher: publisher, notifier: notifier}
}

// Submit analyzes tx and persists the verdict. The verdict is always
// returned; a non-nil error means persistence failed, in which case nothing
// is published. The rolling history has been updated either way.
func (p *Pipeline) Submit(ctx context.Context, origin domain.Origin, tx *domain.Transaction) (*domain.AnalyzedTransaction, error) {
	result := p.analyzer.Analyze(ctx, origin, tx)

	if err := p.sink.Save(ctx, result); err != nil {
		metrics.PersistFailuresTotal.WithLabelValues(string(origin)).Inc()
		return result, fmt.Errorf("persist transaction %s: %w", result.ID, err)
	}

	if p.publisher != nil {
		p.publisher.BroadcastTransaction(result)
	}
	if p.notifier != nil {
		p.notifier.NotifyAsync(result)
	}
	return result, nil
}
