package stream

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"sentinelpay/monitor/internal/domain"
)

// Simulator shapes.
const (
	AnomalyRate = 0.1

	anomalyMerchant = "Unknown Vendor"
	anomalyLocation = "Lagos, NG"
	homeLocation    = "New York, US"

	anomalyVelocity = 0.9
	normalVelocity  = 0.1
)

// NormalMerchants are the everyday merchants used for normal traffic.
var NormalMerchants = []string{"Amazon", "Uber", "Starbucks", "Target", "Shell"}

// Simulator generates synthetic card traffic: mostly small domestic
// purchases with occasional large foreign bursts.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSimulator returns a deterministic simulator for the given seed.
func NewSimulator(seed uint64) *Simulator {
	return &Simulator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Next generates one raw transaction.
func (s *Simulator) Next() *domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < AnomalyRate {
		return &domain.Transaction{
			Amount:      cents(s.rng.Float64()*5000 + 1000),
			Merchant:    anomalyMerchant,
			Location:    anomalyLocation,
			IsForeignIP: true,
			Velocity:    anomalyVelocity,
			Timestamp:   s.now(),
		}
	}
	return &domain.Transaction{
		Amount:    cents(s.rng.Float64()*200 + 10),
		Merchant:  NormalMerchants[s.rng.IntN(len(NormalMerchants))],
		Location:  homeLocation,
		Velocity:  normalVelocity,
		Timestamp: s.now(),
	}
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
