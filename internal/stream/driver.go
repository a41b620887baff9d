// Package stream runs the background transaction feed: on every tick a
// synthetic transaction is generated and pushed through the pipeline with
// stream origin.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/metrics"
)

// DefaultInterval is the tick period of the background feed.
const DefaultInterval = 1500 * time.Millisecond

// Source produces raw transactions.
type Source interface {
	Next() *domain.Transaction
}

// Submitter accepts a raw transaction for analysis and persistence.
type Submitter interface {
	Submit(ctx context.Context, origin domain.Origin, tx *domain.Transaction) (*domain.AnalyzedTransaction, error)
}

// StateFunc observes running-state changes.
type StateFunc func(running bool)

// Driver owns the ticker loop. At most one loop runs at a time.
type Driver struct {
	source   Source
	submit   Submitter
	interval time.Duration
	onState  StateFunc

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewDriver creates a stopped Driver. A non-positive interval uses DefaultInterval.
func NewDriver(source Source, submit Submitter, interval time.Duration, onState StateFunc) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{source: source, submit: submit, interval: interval, onState: onState}
}

// Start launches the loop. It returns false if the loop was already running.
// The loop also stops when ctx is cancelled.
func (d *Driver) Start(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		return false
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(ctx, d.stop, d.done)

	slog.Info("stream started", "interval", d.interval)
	metrics.StreamRunning.Set(1)
	if d.onState != nil {
		d.onState(true)
	}
	return true
}

// Stop halts the loop and waits for an in-flight tick to finish. No tick
// starts after Stop returns. It returns false if the loop was not running.
func (d *Driver) Stop() bool {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	<-done

	slog.Info("stream stopped")
	metrics.StreamRunning.Set(0)
	if d.onState != nil {
		d.onState(false)
	}
	return true
}

// Running reports whether the loop is active.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

// Interval returns the tick period.
func (d *Driver) Interval() time.Duration {
	return d.interval
}

func (d *Driver) loop(ctx context.Context, stop chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			d.detach(stop)
			return
		case <-ticker.C:
			// Stop may have raced the tick; it wins.
			select {
			case <-stop:
				return
			default:
			}
			d.tick(ctx)
		}
	}
}

// detach clears the running state when the loop exits on its own.
func (d *Driver) detach(stop chan struct{}) {
	d.mu.Lock()
	owned := d.stop == stop
	if owned {
		d.stop, d.done = nil, nil
	}
	d.mu.Unlock()

	if owned {
		metrics.StreamRunning.Set(0)
		if d.onState != nil {
			d.onState(false)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	tx := d.source.Next()
	// A tick that has started runs to completion even if Stop is called meanwhile.
	result, err := d.submit.Submit(context.WithoutCancel(ctx), domain.OriginStream, tx)
	if err != nil {
		slog.Error("stream: failed to persist transaction", "error", err)
		return
	}
	slog.Debug("stream: transaction analyzed",
		"transaction_id", result.ID,
		"amount", result.Amount,
		"risk_score", result.RiskScore,
		"is_fraud", result.IsFraud,
	)
}
