package store

import (
	"context"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// SessionStore persists chat sessions keyed by session id.
// MemoryStore, RedisStore and PostgresStore implement this interface.
type SessionStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// GetOrCreate returns the session, creating it when the id is unseen.
	// Concurrent first calls for one id create exactly one session; created
	// reports whether this call was the winner.
	GetOrCreate(ctx context.Context, id string) (session *models.ChatSession, created bool, err error)

	// Get returns models.ErrSessionNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.ChatSession, error)

	// Append adds messages in order to an existing session.
	Append(ctx context.Context, id string, msgs ...models.Message) error

	// Delete removes the session and its messages. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}
