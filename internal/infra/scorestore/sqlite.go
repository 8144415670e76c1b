package scorestore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/osa030/chopbox/internal/domain/score"
)

const sqliteTimeFormat = time.RFC3339Nano

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS scores (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	commit_id    TEXT    NOT NULL UNIQUE,
	session_id   TEXT    NOT NULL DEFAULT '',
	identity     TEXT    NOT NULL,
	score        INTEGER NOT NULL,
	committed_at TEXT    NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_rank ON scores (score DESC, id ASC)`,
}

// SQLiteSettings configures the SQLite backend.
type SQLiteSettings struct {
	Path          string `yaml:"path" mapstructure:"path" default:"scores.db" validate:"required"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms" default:"5000" validate:"gte=0"`
}

// SQLiteStore keeps one row per commit in a scores table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore decodes settings and opens the SQLite backend.
func NewSQLiteStore(ctx context.Context, settings map[string]any) (*SQLiteStore, error) {
	var cfg SQLiteSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid sqlite settings")
	}
	return OpenSQLite(ctx, cfg)
}

// OpenSQLite opens the database at cfg.Path and applies the schema.
func OpenSQLite(ctx context.Context, cfg SQLiteSettings) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		filepath.Clean(cfg.Path), cfg.BusyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable(err, "open sqlite db")
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(err, "ping sqlite db")
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "apply sqlite schema")
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Commit inserts rec; a repeated commit ID is ignored.
func (s *SQLiteStore) Commit(ctx context.Context, rec score.Record) error {
	commitID := rec.ID
	if commitID == "" {
		commitID = fmt.Sprintf("%s:%d", rec.SessionID, rec.CommittedAt.UnixNano())
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scores (commit_id, session_id, identity, score, committed_at) VALUES (?, ?, ?, ?, ?)`,
		commitID, rec.SessionID, rec.Identity, rec.Score, rec.CommittedAt.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return unavailable(err, "insert score")
	}
	return nil
}

// Top returns up to n entries.
func (s *SQLiteStore) Top(ctx context.Context, n int) ([]score.Entry, error) {
	if n <= 0 {
		return []score.Entry{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, score, committed_at FROM scores ORDER BY score DESC, id ASC LIMIT ?`, n)
	if err != nil {
		return nil, unavailable(err, "query leaderboard")
	}
	defer rows.Close()

	entries := make([]score.Entry, 0, n)
	for rows.Next() {
		var (
			e  score.Entry
			at string
		)
		if err := rows.Scan(&e.Identity, &e.Score, &at); err != nil {
			return nil, unavailable(err, "scan leaderboard row")
		}
		if t, err := time.Parse(sqliteTimeFormat, at); err == nil {
			e.CommittedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate leaderboard rows")
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Name returns the backend type name.
func (s *SQLiteStore) Name() string {
	return TypeSQLite
}
