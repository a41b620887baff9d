package stream_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/stream"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

type countingSubmitter struct {
	mu      sync.Mutex
	origins []domain.Origin
	delay   time.Duration
	fail    bool
	active  atomic.Int32
	overlap atomic.Bool
}

func (c *countingSubmitter) Submit(_ context.Context, origin domain.Origin, tx *domain.Transaction) (*domain.AnalyzedTransaction, error) {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)

	time.Sleep(c.delay)
	c.mu.Lock()
	c.origins = append(c.origins, origin)
	c.mu.Unlock()
	if c.fail {
		return nil, errors.New("sink down")
	}
	return &domain.AnalyzedTransaction{Transaction: *tx, Origin: origin}, nil
}

func (c *countingSubmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.origins)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// ─── Simulator ────────────────────────────────────────────────────────────────

func TestSimulator_Shapes(t *testing.T) {
	sim := stream.NewSimulator(42)
	normal := map[string]bool{}
	for _, m := range stream.NormalMerchants {
		normal[m] = true
	}

	var anomalies int
	const n = 2000
	for i := 0; i < n; i++ {
		tx := sim.Next()
		if tx.IsForeignIP {
			anomalies++
			if tx.Amount < 1000 || tx.Amount > 6000 {
				t.Fatalf("anomaly amount out of range: %v", tx.Amount)
			}
			if tx.Merchant != "Unknown Vendor" || tx.Location != "Lagos, NG" || tx.Velocity != 0.9 {
				t.Fatalf("unexpected anomaly shape: %+v", tx)
			}
			continue
		}
		if tx.Amount < 10 || tx.Amount > 210 {
			t.Fatalf("normal amount out of range: %v", tx.Amount)
		}
		if !normal[tx.Merchant] || tx.Location != "New York, US" || tx.Velocity != 0.1 {
			t.Fatalf("unexpected normal shape: %+v", tx)
		}
	}

	// Roughly 10% anomalies.
	if anomalies < n/20 || anomalies > n/5 {
		t.Errorf("expected about %d anomalies, got %d", n/10, anomalies)
	}
}

func TestSimulator_DeterministicForSeed(t *testing.T) {
	a, b := stream.NewSimulator(7), stream.NewSimulator(7)
	for i := 0; i < 50; i++ {
		x, y := a.Next(), b.Next()
		if x.Amount != y.Amount || x.Merchant != y.Merchant {
			t.Fatalf("step %d diverged: %+v vs %+v", i, x, y)
		}
	}
}

// ─── Driver ───────────────────────────────────────────────────────────────────

func TestDriver_TicksWithStreamOrigin(t *testing.T) {
	sub := &countingSubmitter{}
	d := stream.NewDriver(stream.NewSimulator(1), sub, 10*time.Millisecond, nil)

	if !d.Start(context.Background()) {
		t.Fatal("expected Start to succeed")
	}
	defer d.Stop()

	waitFor(t, func() bool { return sub.count() >= 3 })

	sub.mu.Lock()
	defer sub.mu.Unlock()
	for _, o := range sub.origins {
		if o != domain.OriginStream {
			t.Errorf("expected stream origin, got %s", o)
		}
	}
}

func TestDriver_StartTwice_SingleLoop(t *testing.T) {
	var states []bool
	d := stream.NewDriver(stream.NewSimulator(1), &countingSubmitter{}, time.Hour, func(r bool) { states = append(states, r) })

	if !d.Start(context.Background()) {
		t.Fatal("first Start should succeed")
	}
	if d.Start(context.Background()) {
		t.Error("second Start should report already running")
	}
	if !d.Running() {
		t.Error("expected Running")
	}
	if !d.Stop() {
		t.Error("Stop should succeed")
	}
	if d.Stop() {
		t.Error("second Stop should report not running")
	}
	if d.Running() {
		t.Error("expected not Running")
	}
	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("expected state changes [true false], got %v", states)
	}
}

func TestDriver_StopWaitsForInFlightTick(t *testing.T) {
	sub := &countingSubmitter{delay: 50 * time.Millisecond}
	d := stream.NewDriver(stream.NewSimulator(1), sub, 5*time.Millisecond, nil)
	d.Start(context.Background())

	waitFor(t, func() bool { return sub.active.Load() == 1 })
	d.Stop()

	if sub.active.Load() != 0 {
		t.Error("Stop returned while a tick was still in flight")
	}
	after := sub.count()
	time.Sleep(30 * time.Millisecond)
	if sub.count() != after {
		t.Error("no tick may start after Stop returns")
	}
	if sub.overlap.Load() {
		t.Error("ticks must not overlap")
	}
}

func TestDriver_ContextCancelStopsLoop(t *testing.T) {
	sub := &countingSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	d := stream.NewDriver(stream.NewSimulator(1), sub, 5*time.Millisecond, nil)
	d.Start(ctx)
	waitFor(t, func() bool { return sub.count() >= 1 })

	cancel()
	waitFor(t, func() bool { return !d.Running() })
	n := sub.count()
	time.Sleep(30 * time.Millisecond)
	if sub.count() != n {
		t.Error("loop kept ticking after context cancellation")
	}
	d.Stop()
}

func TestDriver_SubmitFailureKeepsRunning(t *testing.T) {
	sub := &countingSubmitter{fail: true}
	d := stream.NewDriver(stream.NewSimulator(1), sub, 5*time.Millisecond, nil)
	d.Start(context.Background())
	defer d.Stop()

	waitFor(t, func() bool { return sub.count() >= 3 })
	if !d.Running() {
		t.Error("a persistence failure must not stop the stream")
	}
}

func TestDriver_DefaultInterval(t *testing.T) {
	d := stream.NewDriver(stream.NewSimulator(1), &countingSubmitter{}, 0, nil)
	if d.Interval() != stream.DefaultInterval {
		t.Errorf("expected %v, got %v", stream.DefaultInterval, d.Interval())
	}
}
