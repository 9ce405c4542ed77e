package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ZanzyTHEbar/concrete-go"
)

// SQLite stores messages in an SQLite database.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens the database at path, creating parent directories, and
// applies pending migrations. WAL mode is enabled for concurrent reads.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, concrete.NewStoreError("open", fmt.Errorf("create db directory: %w", err))
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, concrete.NewStoreError("open", err)
	}
	if path == ":memory:" {
		// Every pooled connection would see its own empty database.
		conn.SetMaxOpenConns(1)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, concrete.NewStoreError("open", fmt.Errorf("enable WAL mode: %w", err))
	}
	s := &SQLite{conn: conn, path: path}
	if err := s.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

var migrations = []struct {
	version int
	sql     string
}{
	{1, `CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		operator_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`},
	{2, `CREATE INDEX IF NOT EXISTS idx_messages_operator ON messages(operator_id, created_at)`},
}

// Migrate applies all pending schema migrations.
func (s *SQLite) Migrate() error {
	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return concrete.NewStoreError("migrate", fmt.Errorf("create schema_version table: %w", err))
	}

	var current int
	if err := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return concrete.NewStoreError("migrate", fmt.Errorf("get schema version: %w", err))
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.conn.Begin()
		if err != nil {
			return concrete.NewStoreError("migrate", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return concrete.NewStoreError("migrate", fmt.Errorf("migration %d: %w", m.version, err))
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return concrete.NewStoreError("migrate", fmt.Errorf("record migration %d: %w", m.version, err))
		}
		if err := tx.Commit(); err != nil {
			return concrete.NewStoreError("migrate", err)
		}
	}
	return nil
}

// SaveMessage implements concrete.MessageStore. Saving an existing ID replaces it.
func (s *SQLite) SaveMessage(ctx context.Context, msg concrete.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx, `INSERT OR REPLACE INTO messages
		(id, type, content, prompt, project_id, operator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Type, string(msg.Content), msg.Prompt, msg.ProjectID, msg.OperatorID, msg.CreatedAt.UnixNano())
	if err != nil {
		return concrete.NewStoreError("save_message", err)
	}
	return nil
}

const selectMessage = `SELECT id, type, content, prompt, project_id, operator_id, created_at FROM messages`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (concrete.Message, error) {
	var (
		msg     concrete.Message
		content string
		created int64
	)
	if err := row.Scan(&msg.ID, &msg.Type, &content, &msg.Prompt, &msg.ProjectID, &msg.OperatorID, &created); err != nil {
		return concrete.Message{}, err
	}
	msg.Content = []byte(content)
	msg.CreatedAt = time.Unix(0, created).UTC()
	return msg, nil
}

// GetMessage returns the message with id.
func (s *SQLite) GetMessage(ctx context.Context, id string) (concrete.Message, error) {
	msg, err := scanMessage(s.conn.QueryRowContext(ctx, selectMessage+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return concrete.Message{}, ErrNotFound
	}
	if err != nil {
		return concrete.Message{}, concrete.NewStoreError("get_message", err)
	}
	return msg, nil
}

// ListMessages implements concrete.MessageStore.
func (s *SQLite) ListMessages(ctx context.Context, operatorID string) ([]concrete.Message, error) {
	rows, err := s.conn.QueryContext(ctx, selectMessage+" WHERE operator_id = ? ORDER BY created_at, id", operatorID)
	if err != nil {
		return nil, concrete.NewStoreError("list_messages", err)
	}
	defer rows.Close()

	var out []concrete.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, concrete.NewStoreError("list_messages", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, concrete.NewStoreError("list_messages", err)
	}
	return out, nil
}

// Path returns the database path.
func (s *SQLite) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLite) Close() error { return s.conn.Close() }
