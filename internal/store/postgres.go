package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
)

// PostgresStore persists sessions in the chat_sessions and chat_messages tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool shares a pool with other components.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetOrCreate inserts the session row unless it exists, then loads it.
func (s *PostgresStore) GetOrCreate(ctx context.Context, id string) (*models.ChatSession, bool, error) {
	defer observe(metrics.PostgresLatency, time.Now())

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return nil, false, err
	}

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, tag.RowsAffected() == 1, nil
}

// Get loads a session with its messages in insertion order.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	defer observe(metrics.PostgresLatency, time.Now())
	return s.load(ctx, id)
}

func (s *PostgresStore) load(ctx context.Context, id string) (*models.ChatSession, error) {
	sess := &models.ChatSession{ID: id, Messages: []models.Message{}}
	err := s.pool.QueryRow(ctx, `
		SELECT created_at, updated_at FROM chat_sessions WHERE id = $1
	`, id).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, type, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg      models.Message
			metadata []byte
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.Type, &metadata, &msg.Timestamp); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := decodeMetadata(&msg, metadata); err != nil {
				return nil, err
			}
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, rows.Err()
}

// Append inserts messages in one transaction and touches the session.
func (s *PostgresStore) Append(ctx context.Context, id string, msgs ...models.Message) error {
	defer observe(metrics.PostgresLatency, time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}

	for _, msg := range msgs {
		var metadata []byte
		if msg.Data != nil {
			if metadata, err = json.Marshal(msg.Data); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_messages (id, session_id, role, content, type, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, msg.ID, id, string(msg.Role), msg.Content, string(msg.Type), metadata, msg.Timestamp)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Delete removes the session; messages go with it through the foreign key cascade.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	defer observe(metrics.PostgresLatency, time.Now())

	_, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	return err
}

// decodeMetadata reuses the message decoder so payloads come back typed.
func decodeMetadata(msg *models.Message, metadata []byte) error {
	envelope, err := json.Marshal(struct {
		Type     models.ResponseType `json:"type"`
		Metadata json.RawMessage     `json:"metadata"`
	}{msg.Type, metadata})
	if err != nil {
		return err
	}
	var decoded models.Message
	if err := json.Unmarshal(envelope, &decoded); err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}
	msg.Data = decoded.Data
	return nil
}
