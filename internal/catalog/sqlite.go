package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pacelabs/pace-core/internal/config"
	"github.com/pacelabs/pace-core/internal/rate"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists recording metadata in a local SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// OpenSQLite initializes the metadata store according to config.
func OpenSQLite(ctx context.Context, cfg config.CatalogConfig, log *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS recordings (
    owner_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL,
    words_per_minute INTEGER NOT NULL,
    speech_speed TEXT NOT NULL,
    transcript TEXT,
    storage_uri TEXT NOT NULL,
    PRIMARY KEY(owner_id, id)
);
CREATE INDEX IF NOT EXISTS idx_recordings_owner_created ON recordings(owner_id, created_at DESC);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, duration_seconds, words_per_minute, speech_speed, transcript, storage_uri
		 FROM recordings WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Metadata
	for rows.Next() {
		var m Metadata
		var created string
		var speed string
		var transcript sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &created, &m.Duration, &m.WordsPerMinute, &speed, &transcript, &m.StorageURI); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			m.Timestamp = ts
		}
		m.SpeechSpeed = rate.Category(speed)
		m.Transcript = transcript.String
		records = append(records, m)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, ownerID string, m Metadata) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings(owner_id, id, name, created_at, duration_seconds, words_per_minute, speech_speed, transcript, storage_uri)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, m.ID, m.Name, ts.UTC().Format(time.RFC3339Nano), m.Duration,
		m.WordsPerMinute, string(m.SpeechSpeed), m.Transcript, m.StorageURI)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM recordings WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recording %s not found", id)
	}
	return nil
}
