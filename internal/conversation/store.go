// Package conversation owns the per-conversation turn log: identity
// derivation, windowed history reads, fire-and-forget appends and explicit
// resets, over a SQLite store.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// SQLiteStore implements types.TurnStore and types.QuotaStore on a single
// SQLite database. SQLite wants one writer, so the pool is pinned to one
// connection; per-conversation serialization follows from that.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore initializes the database at the given path, creating the
// directory and schema as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("turn store ready at %s", path)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, id);

	CREATE TABLE IF NOT EXISTS usage_quota (
		user_id TEXT NOT NULL,
		day TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day)
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadTurns returns up to limit most-recent turns in chronological order.
func (s *SQLiteStore) LoadTurns(ctx context.Context, conversationID string, limit int) ([]types.Turn, error) {
	if limit <= 0 {
		limit = 24
	}

	// Newest-first window, reversed afterwards so callers see chronology.
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM turns
		WHERE conversation_id = ? AND role IN ('user', 'assistant')
		ORDER BY id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []types.Turn
	for rows.Next() {
		var t types.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = types.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendTurn writes one immutable turn.
func (s *SQLiteStore) AppendTurn(ctx context.Context, conversationID string, role types.Role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`, conversationID, string(role), content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// DeleteTurns removes all turns for the conversation.
func (s *SQLiteStore) DeleteTurns(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}

// Consume records one use for the user on the given day and returns the
// running total. Implements types.QuotaStore.
func (s *SQLiteStore) Consume(ctx context.Context, userID string, day string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_quota (user_id, day, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1`, userID, day)
	if err != nil {
		return 0, fmt.Errorf("failed to record usage: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx, `
		SELECT count FROM usage_quota WHERE user_id = ? AND day = ?`, userID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return count, nil
}
