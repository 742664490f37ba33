// Package postgres implements a result store on Postgres, one JSONB row
// per job.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsworthy/news-agent/internal/news"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes aggregates into Postgres. Re-storing a job id overwrites the
// previous row, which keeps retried jobs idempotent.
type Store struct {
	pool  querier
	table string
}

var _ news.ResultStore = (*Store)(nil)

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table)
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "job_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Store upserts the aggregate row and returns a postgres:// reference.
func (s *Store) Store(ctx context.Context, jobID string, agg news.Aggregate) (string, error) {
	if jobID == "" {
		return "", news.Errorf(news.KindStorage, "job id is required")
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		return "", news.NewError(news.KindStorage, "encode aggregate", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (job_id, topic, generated_at, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (job_id) DO UPDATE SET
	topic = EXCLUDED.topic,
	generated_at = EXCLUDED.generated_at,
	payload = EXCLUDED.payload`, s.table)
	if _, err := s.pool.Exec(ctx, query, jobID, agg.Topic, agg.GeneratedAt, payload); err != nil {
		return "", news.NewError(news.KindStorage, "insert job result", err)
	}
	return fmt.Sprintf("postgres://%s/%s", s.table, jobID), nil
}

// Retrieve reads the aggregate row back.
func (s *Store) Retrieve(ctx context.Context, jobID string) (news.Aggregate, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE job_id = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return news.Aggregate{}, news.Errorf(news.KindNotFound, "no result for job %s", jobID)
		}
		return news.Aggregate{}, news.NewError(news.KindStorage, "select job result", err)
	}
	var agg news.Aggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return news.Aggregate{}, news.NewError(news.KindStorage, "decode job result", err)
	}
	return agg, nil
}
