package store

import (
	"context"
	"log/slog"

	"sentinelpay/monitor/internal/domain"
)

// Mirrored wraps a primary Repository and copies every successful Save to
// secondary sinks. Mirror failures are logged and never fail the Save.
type Mirrored struct {
	Repository
	mirrors []Sink
}

// WithMirrors returns primary unchanged when no mirrors are given.
func WithMirrors(primary Repository, mirrors ...Sink) Repository {
	if len(mirrors) == 0 {
		return primary
	}
	return &Mirrored{Repository: primary, mirrors: mirrors}
}

// Save writes to the primary first, then to each mirror.
func (m *Mirrored) Save(ctx context.Context, tx *domain.AnalyzedTransaction) error {
	if err := m.Repository.Save(ctx, tx); err != nil {
		return err
	}
	for _, s := range m.mirrors {
		if err := s.Save(ctx, tx); err != nil {
			slog.WarnContext(ctx, "store: mirror write failed", "transaction_id", tx.ID, "error", err)
		}
	}
	return nil
}
