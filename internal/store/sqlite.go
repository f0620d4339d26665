package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ab_test_conversions (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    event_type TEXT NOT NULL DEFAULT 'conversion',
    event_value REAL,
    metadata TEXT,
    converted_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ab_conversions_experiment ON ab_test_conversions(experiment_id);
CREATE INDEX IF NOT EXISTS idx_ab_conversions_experiment_variant ON ab_test_conversions(experiment_id, variant);
`

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Mirror writes arrive from many goroutines; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveConversion inserts a conversion. Re-saving an id is a no-op.
func (s *SQLiteStore) SaveConversion(ctx context.Context, c experiment.Conversion) error {
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ab_test_conversions
		 (id, experiment_id, user_id, variant, event_type, event_value, metadata, converted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExperimentID, c.UserID, string(c.Variant), c.EventType,
		nullableFloat(c.EventValue), nullableString(meta), c.ConvertedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListConversions(ctx context.Context, experimentID string) ([]experiment.Conversion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, user_id, variant, event_type, event_value, metadata, converted_at
		 FROM ab_test_conversions WHERE experiment_id = ? ORDER BY converted_at, id`,
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
		var value sql.NullFloat64
		var meta sql.NullString
		var convertedAt int64

		if err := rows.Scan(&c.ID, &c.ExperimentID, &c.UserID, &variant, &c.EventType, &value, &meta, &convertedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}

		c.Variant = experiment.Variant(variant)
		if value.Valid {
			v := value.Float64
			c.EventValue = &v
		}
		if meta.Valid {
			if c.Metadata, err = decodeMetadata([]byte(meta.String)); err != nil {
				return nil, err
			}
		}
		c.ConvertedAt = time.UnixMilli(convertedAt)

		out = append(out, c)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) CountConversions(ctx context.Context, experimentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ab_test_conversions WHERE experiment_id = ?`, experimentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return n, nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
