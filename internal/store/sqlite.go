package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// SQLiteStore keeps sessions in a local SQLite file for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/pricechat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/pricechat.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer keeps GetOrCreate and Append serialized inside SQLite.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		metadata TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreate inserts the session row unless it exists, then loads it.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string) (*models.ChatSession, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_sessions (id, created_at, updated_at) VALUES (?, ?, ?)
	`, id, now, now)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, n == 1, nil
}

// Get loads a session with its messages in insertion order.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	return s.load(ctx, id)
}

func (s *SQLiteStore) load(ctx context.Context, id string) (*models.ChatSession, error) {
	sess := &models.ChatSession{ID: id, Messages: []models.Message{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, updated_at FROM chat_sessions WHERE id = ?
	`, id).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, type, metadata, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg      models.Message
			metadata sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.Type, &metadata, &msg.Timestamp); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := decodeMetadata(&msg, []byte(metadata.String)); err != nil {
				return nil, err
			}
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, rows.Err()
}

// Append inserts messages in one transaction and touches the session.
func (s *SQLiteStore) Append(ctx context.Context, id string, msgs ...models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return models.ErrSessionNotFound
	}

	for _, msg := range msgs {
		var metadata sql.NullString
		if msg.Data != nil {
			b, err := json.Marshal(msg.Data)
			if err != nil {
				return err
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, session_id, role, content, type, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, id, string(msg.Role), msg.Content, string(msg.Type), metadata, msg.Timestamp)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Delete removes the session; messages go with it through the foreign key cascade.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	return err
}

// PurgeIdle deletes sessions untouched for longer than ttl and reports how many went.
func (s *SQLiteStore) PurgeIdle(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
