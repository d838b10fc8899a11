// Package chat is the façade the HTTP layer talks to: it validates a turn,
// serializes it per session and records both sides of it in the session store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/rag"
	"github.com/eldtechnologies/pricechat/internal/store"
)

// MaxMessageLength is the longest accepted message, in characters.
const MaxMessageLength = 500

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Answerer produces the assistant reply for a turn. *rag.Orchestrator implements it.
type Answerer interface {
	Answer(ctx context.Context, history []models.Message, message string) rag.Reply
}

// Response is the outcome of a turn.
type Response struct {
	SessionID string
	Message   models.Message
}

// Service runs chat turns.
type Service struct {
	store    store.SessionStore
	answerer Answerer
	locks    *sessionLocks
	logger   zerolog.Logger
}

// NewService creates a chat service.
func NewService(st store.SessionStore, answerer Answerer, logger zerolog.Logger) *Service {
	return &Service{
		store:    st,
		answerer: answerer,
		locks:    newSessionLocks(),
		logger:   logger,
	}
}

// ValidateSessionID returns a *models.ValidationError for malformed ids.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return models.NewValidationError("session_id", "must be 1-64 letters, digits, '-' or '_'")
	}
	return nil
}

// Send runs one turn. An empty session id starts a new session.
//
// Only validation fails with *models.ValidationError; backend trouble inside
// the pipeline becomes a degraded assistant message. Errors are otherwise
// session store failures.
func (s *Service) Send(ctx context.Context, sessionID, message string) (*Response, error) {
	// Length counts what the client sent, surrounding whitespace included.
	if n := utf8.RuneCountInString(message); n > MaxMessageLength {
		return nil, models.NewValidationError("message", fmt.Sprintf("must be at most %d characters, got %d", MaxMessageLength, n))
	}
	message = strings.TrimSpace(message)

	if sessionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sessionID = id.String()
	} else if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	start := time.Now()
	sess, created, err := s.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if created {
		metrics.SessionsCreated.Inc()
		s.logger.Debug().Str("session_id", sessionID).Msg("Session created")
	}
	history := sess.Messages

	if err := s.store.Append(ctx, sessionID, models.NewMessage(models.RoleUser, message, models.TypeText, nil)); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	reply := s.answerer.Answer(ctx, history, message)
	assistant := reply.Message()

	// The user saw the turn start, so its reply is recorded even if the caller went away.
	if err := s.store.Append(context.WithoutCancel(ctx), sessionID, assistant); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	metrics.ChatTurns.WithLabelValues(string(assistant.Type)).Inc()
	s.logger.Info().
		Str("session_id", sessionID).
		Str("type", string(assistant.Type)).
		Dur("duration", time.Since(start)).
		Msg("Chat turn completed")

	return &Response{SessionID: sessionID, Message: assistant}, nil
}

// History returns the session's messages in order, empty for unknown sessions.
func (s *Service) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	sess, err := s.store.Get(ctx, sessionID)
	switch {
	case err == nil:
		if sess.Messages == nil {
			return []models.Message{}, nil
		}
		return sess.Messages, nil
	case errors.Is(err, models.ErrSessionNotFound):
		return []models.Message{}, nil
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
}

// Reset deletes the session and its messages. Unknown sessions are not an error.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info().Str("session_id", sessionID).Msg("Session reset")
	return nil
}

// Welcome is the greeting shown at the top of a new or reset session.
func (s *Service) Welcome() string {
	return intent.Welcome
}
