// Package store persists analyzed transactions and serves the live feed.
//
// Three backends share one contract: MemoryStore (default, process lifetime),
// SQLiteStore (single-node file) and PostgresStore (shared database, goose
// migrations). RedisFeed mirrors the capped live feed for external readers.
package store

import (
	"context"
	"errors"
	"time"

	"sentinelpay/monitor/internal/domain"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound  = errors.New("transaction not found")
	ErrDuplicate = errors.New("transaction already exists")
)

// Sink receives every analyzed transaction. Save assigns PersistedAt.
type Sink interface {
	Save(ctx context.Context, tx *domain.AnalyzedTransaction) error
}

// Feed reads back persisted transactions, newest first.
type Feed interface {
	Recent(ctx context.Context, limit int) ([]*domain.AnalyzedTransaction, error)
	Get(ctx context.Context, id string) (*domain.AnalyzedTransaction, error)
}

// Repository is a full transaction backend.
type Repository interface {
	Sink
	Feed
	// Prune deletes transactions persisted before the cutoff and reports how many.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// clampLimit bounds a feed request to [1, domain.FeedLimit].
func clampLimit(limit int) int {
	if limit <= 0 || limit > domain.FeedLimit {
		return domain.FeedLimit
	}
	return limit
}

func clone(tx *domain.AnalyzedTransaction) *domain.AnalyzedTransaction {
	cp := *tx
	cp.Reasons = append([]string{}, tx.Reasons...)
	return &cp
}
