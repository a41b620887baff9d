package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sentinelpay/monitor/internal/domain"
)

// SQLiteStore persists analyzed transactions to a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the SQLite database and runs migrations.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the driver serializes on its own connection.
	db.SetMaxOpenConns(1)

	// WAL mode so feed reads do not block the stream writer.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite store opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analyzed_transactions (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			origin        TEXT NOT NULL,
			amount        REAL NOT NULL,
			merchant      TEXT NOT NULL,
			location      TEXT NOT NULL,
			is_foreign_ip INTEGER NOT NULL,
			velocity      REAL NOT NULL,
			tx_timestamp  INTEGER NOT NULL,
			risk_score    INTEGER NOT NULL,
			is_fraud      INTEGER NOT NULL,
			reasons       TEXT NOT NULL,
			analysis_type TEXT NOT NULL,
			analyzed_at   INTEGER NOT NULL,
			persisted_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyzed_persisted ON analyzed_transactions(persisted_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts tx and stamps PersistedAt.
func (s *SQLiteStore) Save(ctx context.Context, tx *domain.AnalyzedTransaction) error {
	if tx.PersistedAt.IsZero() {
		tx.PersistedAt = s.now()
	}
	reasons, err := json.Marshal(tx.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyzed_transactions (
			id, origin, amount, merchant, location, is_foreign_ip, velocity, tx_timestamp,
			risk_score, is_fraud, reasons, analysis_type, analyzed_at, persisted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Origin), tx.Amount, tx.Merchant, tx.Location, tx.IsForeignIP, tx.Velocity,
		tx.Timestamp.UnixNano(), tx.RiskScore, tx.IsFraud, string(reasons), string(tx.AnalysisType),
		tx.AnalyzedAt.UnixNano(), tx.PersistedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const sqliteColumns = `id, origin, amount, merchant, location, is_foreign_ip, velocity, tx_timestamp,
	risk_score, is_fraud, reasons, analysis_type, analyzed_at, persisted_at`

// Get retrieves a single transaction by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.AnalyzedTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM analyzed_transactions WHERE id = ?`, id)
	tx, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// Recent returns up to limit transactions, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*domain.AnalyzedTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM analyzed_transactions ORDER BY seq DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	out := []*domain.AnalyzedTransaction{}
	for rows.Next() {
		tx, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Prune deletes transactions persisted before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analyzed_transactions WHERE persisted_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(r rowScanner) (*domain.AnalyzedTransaction, error) {
	var (
		tx                          domain.AnalyzedTransaction
		origin, analysisType        string
		reasons                     string
		ts, analyzedAt, persistedAt int64
	)
	err := r.Scan(&tx.ID, &origin, &tx.Amount, &tx.Merchant, &tx.Location, &tx.IsForeignIP, &tx.Velocity,
		&ts, &tx.RiskScore, &tx.IsFraud, &reasons, &analysisType, &analyzedAt, &persistedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reasons), &tx.Reasons); err != nil {
		return nil, fmt.Errorf("decode reasons: %w", err)
	}
	if tx.Reasons == nil {
		tx.Reasons = []string{}
	}
	tx.Origin = domain.Origin(origin)
	tx.AnalysisType = domain.AnalysisType(analysisType)
	tx.Timestamp = time.Unix(0, ts).UTC()
	tx.AnalyzedAt = time.Unix(0, analyzedAt).UTC()
	tx.PersistedAt = time.Unix(0, persistedAt).UTC()
	return &tx, nil
}
