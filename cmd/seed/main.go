// Command seed generates a warm-up dataset for the monitor and writes it to
// data/seed.json. The server replays it as stream traffic on startup so the
// rolling baseline is populated before the first live transaction.
//
// Usage:
//
//	go run ./cmd/seed [-n 120] [-seed 42] [-out data/seed.json]
//
// The dataset is the simulator's own traffic mix, spread evenly over the last
// hour, followed by a short burst of suspicious foreign activity:
//   - ~90% everyday domestic purchases between $10 and $210
//   - ~10% large foreign purchases from an unknown vendor
//   - a closing burst of rapid, high-velocity foreign attempts
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/stream"
)

const window = time.Hour

func main() {
	n := flag.Int("n", 120, "number of simulated transactions")
	seed := flag.Uint64("seed", 42, "simulator seed (deterministic output)")
	out := flag.String("out", "data/seed.json", "output file")
	flag.Parse()

	if *n < 1 {
		fmt.Fprintln(os.Stderr, "-n must be positive")
		os.Exit(1)
	}

	base := time.Now().UTC().Add(-window).Truncate(time.Second)
	transactions := generateTraffic(stream.NewSimulator(*seed), *n, base)
	transactions = append(transactions, generateBurst(base.Add(window))...)

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(transactions); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d transactions → %s\n", len(transactions), *out)
}

// ─── Simulated traffic ────────────────────────────────────────────────────────

// generateTraffic draws n transactions from the simulator and re-stamps them
// evenly across the window so replay order matches a live feed.
func generateTraffic(sim *stream.Simulator, n int, base time.Time) []domain.Transaction {
	step := window / time.Duration(n+1)
	txns := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		tx := sim.Next()
		tx.Timestamp = base.Add(time.Duration(i) * step)
		txns = append(txns, *tx)
	}
	return txns
}

// ─── Closing burst ────────────────────────────────────────────────────────────

// generateBurst is five rapid attempts from a foreign location, the last one
// large enough to trip the high-value rule as well.
func generateBurst(at time.Time) []domain.Transaction {
	amounts := []float64{899.00, 1249.99, 1749.50, 2399.00, 4999.99}
	txns := make([]domain.Transaction, 0, len(amounts))
	for i, amount := range amounts {
		txns = append(txns, domain.Transaction{
			Amount:      amount,
			Merchant:    "Unknown Vendor",
			Location:    "Lagos, NG",
			IsForeignIP: true,
			Velocity:    0.95,
			Timestamp:   at.Add(-time.Duration(len(amounts)-i) * 10 * time.Second),
		})
	}
	return txns
}
