package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// HistoryDB records the outcome of every request in SQLite
type HistoryDB struct {
	db *sql.DB
}

// Record is one row of the request history
type Record struct {
	RequestID   string    `json:"request_id"`
	Filename    string    `json:"filename"`
	SourceType  string    `json:"source_type"`
	Status      string    `json:"status"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Segments    int       `json:"segments"`
	Fallbacks   int       `json:"fallbacks"`
	Transcoded  bool      `json:"transcoded"`
	TextLength  int       `json:"text_length"`
	DurationMS  int64     `json:"duration_ms"`
	ArchiveURL  string    `json:"archive_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewHistoryDB opens (and if needed creates) the history database
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		source_type TEXT NOT NULL,
		status TEXT NOT NULL,
		failed_stage TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		segments INTEGER NOT NULL DEFAULT 0,
		fallbacks INTEGER NOT NULL DEFAULT 0,
		transcoded INTEGER NOT NULL DEFAULT 0,
		text_length INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		archive_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &HistoryDB{db: db}, nil
}

// SaveOutcome inserts the outcome of one request
func (h *HistoryDB) SaveOutcome(ctx context.Context, o *types.Outcome) error {
	query := `
	INSERT INTO requests (request_id, filename, source_type, status, failed_stage, error,
		segments, fallbacks, transcoded, text_length, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := o.ProcessedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := h.db.ExecContext(ctx, query,
		o.RequestID, o.Filename, o.SourceType, string(o.Status), o.FailedStage, o.Error,
		o.Segments, o.Fallbacks, o.Transcoded, len([]rune(o.Text)), o.Duration.Milliseconds(),
		createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save outcome %s: %w", o.RequestID, err)
	}
	return nil
}

// SetArchiveURL attaches the archive location to a recorded request
func (h *HistoryDB) SetArchiveURL(ctx context.Context, requestID, url string) error {
	res, err := h.db.ExecContext(ctx, `UPDATE requests SET archive_url = ? WHERE request_id = ?`, url, requestID)
	if err != nil {
		return fmt.Errorf("failed to set archive url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s not found", requestID)
	}
	return nil
}

const selectColumns = `request_id, filename, source_type, status, failed_stage, error,
	segments, fallbacks, transcoded, text_length, duration_ms, archive_url, created_at`

// GetOutcome retrieves one record by request ID
func (h *HistoryDB) GetOutcome(ctx context.Context, requestID string) (*Record, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM requests WHERE request_id = ?`, requestID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome %s: %w", requestID, err)
	}
	return rec, nil
}

// ListOutcomes returns the most recent records, newest first
func (h *HistoryDB) ListOutcomes(ctx context.Context, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM requests ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	err := s.Scan(&rec.RequestID, &rec.Filename, &rec.SourceType, &rec.Status, &rec.FailedStage, &rec.Error,
		&rec.Segments, &rec.Fallbacks, &rec.Transcoded, &rec.TextLength, &rec.DurationMS, &rec.ArchiveURL, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	return h.db.Close()
}
