package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultLimit caps Recent when the caller passes no usable limit.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

var ErrDisabled = errors.New("history is disabled")

// Record is one successful detection request.
type Record struct {
	ID               string         `json:"request_id"`
	CreatedAt        time.Time      `json:"created_at"`
	Source           string         `json:"source"`
	Total            int            `json:"total"`
	Counts           map[string]int `json:"counts"`
	ProcessingTimeMs float64        `json:"processing_time_ms"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
}

// Store persists detection records.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// SQLiteStore is a Store backed by a single-connection sqlite database.
type SQLiteStore struct {
	conn *sql.DB
	mu   sync.RWMutex
}

func Open(dbPath string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		counts TEXT NOT NULL DEFAULT '{}',
		processing_ms REAL NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_detections_created_at ON detections(created_at);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("nil history record")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	counts := rec.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO detections (id, created_at, source, total, counts, processing_ms, width, height)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, rec.Source, rec.Total, string(raw), rec.ProcessingTimeMs, rec.Width, rec.Height,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, created_at, source, total, counts, processing_ms, width, height
		 FROM detections ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec    Record
			counts string
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Source, &rec.Total, &counts,
			&rec.ProcessingTimeMs, &rec.Width, &rec.Height); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
			return nil, fmt.Errorf("decode counts for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
