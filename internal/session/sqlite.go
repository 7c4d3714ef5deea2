package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sentellent/senti/internal/llm"
)

// SQLiteStore is a SQLite-backed session store. Turns survive process
// restarts; ordering is preserved by a per-table rowid sequence.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the session database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewSQLiteStoreWithDB creates a session store on an existing connection.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			user_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			images TEXT,
			tool_calls TEXT,
			tool_call_id TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES sessions(user_id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, seq);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append adds a turn to the user's session, creating the session row on
// first contact.
func (s *SQLiteStore) Append(ctx context.Context, userID string, turn Turn) error {
	now := time.Now().UTC()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (user_id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, userID, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	var images, toolCalls any
	if len(turn.Images) > 0 {
		encoded, err := json.Marshal(turn.Images)
		if err != nil {
			return fmt.Errorf("encode images: %w", err)
		}
		images = string(encoded)
	}
	if len(turn.ToolCalls) > 0 {
		encoded, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = string(encoded)
	}

	id, _ := uuid.NewV7()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, user_id, role, content, images, tool_calls, tool_call_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), userID, string(turn.Role), turn.Content, images, toolCalls,
		nullable(turn.ToolCallID), turn.Timestamp.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE user_id = ?
	`, now.Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}

// History returns the user's turns in insertion order.
func (s *SQLiteStore) History(ctx context.Context, userID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, images, tool_calls, tool_call_id, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var role, createdStr string
		var images, toolCalls, toolCallID sql.NullString

		if err := rows.Scan(&role, &t.Content, &images, &toolCalls, &toolCallID, &createdStr); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}

		t.Role = Role(role)
		if images.Valid {
			if err := json.Unmarshal([]byte(images.String), &t.Images); err != nil {
				return nil, fmt.Errorf("decode images: %w", err)
			}
		}
		if toolCalls.Valid {
			var calls []llm.ToolCall
			if err := json.Unmarshal([]byte(toolCalls.String), &calls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
			t.ToolCalls = calls
		}
		if toolCallID.Valid {
			t.ToolCallID = toolCallID.String
		}
		t.Timestamp, _ = time.Parse(time.RFC3339, createdStr)

		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Users returns the IDs of every user with a session, most recently
// active first.
func (s *SQLiteStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM sessions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
