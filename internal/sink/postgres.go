package sink

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for case rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink upserts case rows keyed by URL. A batch is written in a single
// transaction.
type PostgresSink struct {
	pool  txPool
	table string
}

// NewPostgresSink creates a Postgres-backed sink using the provided config.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewPostgresSinkWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSinkWithPool constructs a sink from an existing pool (primarily for testing).
func NewPostgresSinkWithPool(pool txPool, table string) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cjeu_cases"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{pool: pool, table: table}, nil
}

// EnsureSchema creates the table when it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url        TEXT PRIMARY KEY,
	celex      TEXT NOT NULL,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresSink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Append upserts every record of the batch inside one transaction.
func (s *PostgresSink) Append(ctx context.Context, records []crawler.CaseRecord) (location string, err error) {
	if err := validate(records); err != nil {
		return "", err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, celex, content, source) VALUES ($1,$2,$3,$4)
ON CONFLICT (url) DO UPDATE SET
	celex = EXCLUDED.celex,
	content = EXCLUDED.content,
	source = EXCLUDED.source,
	updated_at = now()`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, rec := range records {
		if _, err = tx.Exec(ctx, query, rec.URL, rec.Identifier.String(), rec.Content, rec.Source); err != nil {
			return "", fmt.Errorf("upsert %s: %w", rec.Identifier, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit batch: %w", err)
	}
	return fmt.Sprintf("postgres://%s?rows=%d", s.table, len(records)), nil
}
