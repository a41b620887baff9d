package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"sentinelpay/monitor/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsDir is the directory inside the embedded filesystem holding goose migrations.
const MigrationsDir = "migrations"

// Migrations exposes the embedded goose migrations for cmd/migrate.
func Migrations() embed.FS {
	return migrationsFS
}

// Migrate applies every pending goose migration to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, MigrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// PostgresStore implements Repository using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and applies migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresFromDB wraps an existing, already-migrated connection pool.
func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save inserts tx; the database assigns PersistedAt, which is copied back onto tx.
func (p *PostgresStore) Save(ctx context.Context, tx *domain.AnalyzedTransaction) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO analyzed_transactions (
			id, origin, amount, merchant, location, is_foreign_ip, velocity, tx_timestamp,
			risk_score, is_fraud, reasons, analysis_type, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING persisted_at
	`, tx.ID, string(tx.Origin), tx.Amount, tx.Merchant, tx.Location, tx.IsForeignIP, tx.Velocity,
		tx.Timestamp, tx.RiskScore, tx.IsFraud, pq.Array(tx.Reasons), string(tx.AnalysisType), tx.AnalyzedAt,
	).Scan(&tx.PersistedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	tx.PersistedAt = tx.PersistedAt.UTC()
	return nil
}

const pgColumns = `id, origin, amount, merchant, location, is_foreign_ip, velocity, tx_timestamp,
	risk_score, is_fraud, reasons, analysis_type, analyzed_at, persisted_at`

// Get retrieves a single transaction by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*domain.AnalyzedTransaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+pgColumns+` FROM analyzed_transactions WHERE id = $1`, id)
	tx, err := scanPostgres(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// Recent returns up to limit transactions, newest first.
func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]*domain.AnalyzedTransaction, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+pgColumns+` FROM analyzed_transactions ORDER BY seq DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*domain.AnalyzedTransaction{}
	for rows.Next() {
		tx, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Prune deletes transactions persisted before the cutoff.
func (p *PostgresStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM analyzed_transactions WHERE persisted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func scanPostgres(r rowScanner) (*domain.AnalyzedTransaction, error) {
	var (
		tx                   domain.AnalyzedTransaction
		origin, analysisType string
		reasons              pq.StringArray
	)
	err := r.Scan(&tx.ID, &origin, &tx.Amount, &tx.Merchant, &tx.Location, &tx.IsForeignIP, &tx.Velocity,
		&tx.Timestamp, &tx.RiskScore, &tx.IsFraud, &reasons, &analysisType, &tx.AnalyzedAt, &tx.PersistedAt)
	if err != nil {
		return nil, err
	}
	tx.Reasons = []string(reasons)
	if tx.Reasons == nil {
		tx.Reasons = []string{}
	}
	tx.Origin = domain.Origin(origin)
	tx.AnalysisType = domain.AnalysisType(analysisType)
	tx.Timestamp = tx.Timestamp.UTC()
	tx.AnalyzedAt = tx.AnalyzedAt.UTC()
	tx.PersistedAt = tx.PersistedAt.UTC()
	return &tx, nil
}
