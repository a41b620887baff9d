package scoring

import (
	"math"
	"sync"
)

const (
	// HistoryCapacity bounds the rolling history of amounts.
	HistoryCapacity = 50

	// minSamples is the history length below which no z-score signal is produced.
	minSamples = 5
)

// Tracker maintains a bounded FIFO history of recent transaction amounts and
// scores new amounts against it. One Tracker is shared by every heuristic
// scoring call for the lifetime of the process, so every analyzed transaction
// moves the baseline for the next one.
type Tracker struct {
	mu       sync.Mutex
	samples  []float64
	capacity int
}

// NewTracker creates an empty tracker with the default capacity.
func NewTracker() *Tracker {
	return &Tracker{
		samples:  make([]float64, 0, HistoryCapacity),
		capacity: HistoryCapacity,
	}
}

// ObserveAndScore returns the z-score of amount against the history as it
// stood before the call, then appends amount, evicting the oldest sample once
// capacity is exceeded. The read and the append happen under one lock.
func (t *Tracker) ObserveAndScore(amount float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	z := zScore(t.samples, amount)

	t.samples = append(t.samples, amount)
	if len(t.samples) > t.capacity {
		// Shift in place so the backing array does not grow without bound.
		copy(t.samples, t.samples[1:])
		t.samples = t.samples[:t.capacity]
	}
	return z
}

// Len returns the current number of samples.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Capacity returns the maximum number of retained samples.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Snapshot returns a copy of the history with its mean and standard deviation.
func (t *Tracker) Snapshot() (samples []float64, mean, stdDev float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples = make([]float64, len(t.samples))
	copy(samples, t.samples)
	mean, stdDev = meanStdDev(samples)
	return samples, mean, stdDev
}

// zScore computes (amount-mean)/stdDev over the population history.
// Short histories and zero-variance histories carry no signal and yield 0.
func zScore(history []float64, amount float64) float64 {
	if len(history) < minSamples {
		return 0
	}
	mean, stdDev := meanStdDev(history)
	if stdDev == 0 {
		return 0
	}
	return (amount - mean) / stdDev
}

func meanStdDev(xs []float64) (mean, stdDev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	uniform := true
	for _, x := range xs {
		sum += x
		if x != xs[0] {
			uniform = false
		}
	}
	mean = sum / float64(len(xs))

	// Rounding in the sum can leave a tiny spread on identical samples.
	if uniform {
		return xs[0], 0
	}

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
