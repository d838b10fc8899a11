package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
)

const defaultSessionTTL = 24 * time.Hour

// RedisStore keeps sessions in Redis: a hash for session metadata and a list of
// JSON-encoded messages. Both keys expire after the session TTL of inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the key for a session's metadata hash.
func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// sessionMessagesKey returns the key for a session's message list.
func sessionMessagesKey(id string) string {
	return fmt.Sprintf("session:%s:messages", id)
}

// GetOrCreate creates the session hash with HSETNX so only one caller wins.
func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (*models.ChatSession, bool, error) {
	defer observe(metrics.RedisLatency, time.Now())

	now := time.Now().UTC().Format(time.RFC3339Nano)
	key := sessionKey(id)

	created, err := s.client.HSetNX(ctx, key, "created_at", now).Result()
	if err != nil {
		return nil, false, err
	}
	if created {
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, key, "updated_at", now)
		pipe.Expire(ctx, key, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, false, err
		}
	}

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, created, nil
}

// Get loads the session and its messages.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	defer observe(metrics.RedisLatency, time.Now())
	return s.load(ctx, id)
}

func (s *RedisStore) load(ctx context.Context, id string) (*models.ChatSession, error) {
	pipe := s.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, sessionKey(id))
	msgsCmd := pipe.LRange(ctx, sessionMessagesKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, models.ErrSessionNotFound
	}

	sess := &models.ChatSession{
		ID:       id,
		Messages: make([]models.Message, 0, len(msgsCmd.Val())),
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, meta["updated_at"])

	for _, data := range msgsCmd.Val() {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return nil, fmt.Errorf("decode message in session %s: %w", id, err)
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, nil
}

// Append pushes messages to the session list and refreshes the TTL.
func (s *RedisStore) Append(ctx context.Context, id string, msgs ...models.Message) error {
	defer observe(metrics.RedisLatency, time.Now())

	key := sessionKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return models.ErrSessionNotFound
	}
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		values = append(values, string(data))
	}

	listKey := sessionMessagesKey(id)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, listKey, values...)
	pipe.HSet(ctx, key, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, s.ttl)
	pipe.Expire(ctx, listKey, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Delete removes both session keys.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	defer observe(metrics.RedisLatency, time.Now())
	return s.client.Del(ctx, sessionKey(id), sessionMessagesKey(id)).Err()
}
