package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ab_test_conversions (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    event_type TEXT NOT NULL DEFAULT 'conversion',
    event_value DOUBLE PRECISION,
    metadata JSONB,
    converted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ab_conversions_experiment ON ab_test_conversions(experiment_id);
`

// PostgresStore mirrors conversions into Postgres. The table is created on
// first write.
type PostgresStore struct {
	pool *pgxpool.Pool

	schemaMu    sync.Mutex
	schemaReady bool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ensureSchema retries on every call until the DDL succeeds once.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaReady {
		return nil
	}
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) SaveConversion(ctx context.Context, c experiment.Conversion) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	var metaArg *string
	if meta != nil {
		m := string(meta)
		metaArg = &m
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ab_test_conversions
		 (id, experiment_id, user_id, variant, event_type, event_value, metadata, converted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.ExperimentID, c.UserID, string(c.Variant), c.EventType, c.EventValue, metaArg, c.ConvertedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConversions(ctx context.Context, experimentID string) ([]experiment.Conversion, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, experiment_id, user_id, variant, event_type, event_value, metadata, converted_at
		 FROM ab_test_conversions WHERE experiment_id = $1 ORDER BY converted_at, id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var out []experiment.Conversion
	for rows.Next() {
		var c experiment.Conversion
		var variant string
		var meta []byte

		if err := rows.Scan(&c.ID, &c.ExperimentID, &c.UserID, &variant, &c.EventType, &c.EventValue, &meta, &c.ConvertedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		c.Variant = experiment.Variant(variant)
		if c.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

func (s *PostgresStore) CountConversions(ctx context.Context, experimentID string) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ab_test_conversions WHERE experiment_id = $1`, experimentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return n, nil
}
