package domain_test

import (
	"errors"
	"math"
	"testing"

	"sentinelpay/monitor/internal/domain"
)

func validTx() domain.Transaction {
	return domain.Transaction{Amount: 45, Merchant: "Amazon", Location: "New York, US", Velocity: 0.1}
}

func TestValidate_AcceptsBoundaries(t *testing.T) {
	cases := map[string]func(*domain.Transaction){
		"typical":       func(*domain.Transaction) {},
		"max amount":    func(tx *domain.Transaction) { tx.Amount = domain.MaxAmount },
		"zero velocity": func(tx *domain.Transaction) { tx.Velocity = 0 },
		"full velocity": func(tx *domain.Transaction) { tx.Velocity = 1 },
	}
	for name, mutate := range cases {
		tx := validTx()
		mutate(&tx)
		if err := tx.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*domain.Transaction){
		"zero amount":       func(tx *domain.Transaction) { tx.Amount = 0 },
		"negative amount":   func(tx *domain.Transaction) { tx.Amount = -1 },
		"nan amount":        func(tx *domain.Transaction) { tx.Amount = math.NaN() },
		"amount above max":  func(tx *domain.Transaction) { tx.Amount = domain.MaxAmount + 1 },
		"infinite amount":   func(tx *domain.Transaction) { tx.Amount = math.Inf(1) },
		"blank merchant":    func(tx *domain.Transaction) { tx.Merchant = "  " },
		"velocity above 1":  func(tx *domain.Transaction) { tx.Velocity = 1.01 },
		"negative velocity": func(tx *domain.Transaction) { tx.Velocity = -0.1 },
		"nan velocity":      func(tx *domain.Transaction) { tx.Velocity = math.NaN() },
	}
	for name, mutate := range cases {
		tx := validTx()
		mutate(&tx)
		err := tx.Validate()
		if !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("%s: expected ErrInvalidTransaction, got %v", name, err)
		}
	}
}
