package store

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// MemoryStore keeps sessions in process memory. It is the default when no Redis is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.ChatSession)}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// GetOrCreate returns a copy of the session, creating it if needed.
func (s *MemoryStore) GetOrCreate(ctx context.Context, id string) (*models.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return cloneSession(sess), false, nil
	}

	now := time.Now().UTC()
	sess := &models.ChatSession{
		ID:        id,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[id] = sess
	return cloneSession(sess), true, nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Append adds messages to the session.
func (s *MemoryStore) Append(ctx context.Context, id string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the session.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func cloneSession(sess *models.ChatSession) *models.ChatSession {
	out := *sess
	out.Messages = make([]models.Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return &out
}
