// Package session provides the session-scoped Played-Animation Set: which sections have
// already shown their typewriter reveal for one visitor session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bbsfolio/api/internal/content"
)

// RedisStore keeps one hash per session. Every write slides the session TTL, so an idle
// session ends and its set is cleared by expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store from an existing Redis client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "played:",
		ttl:    ttl,
	}
}

// key generates the Redis key for a session id
func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Played returns the set for a session. An unknown or expired session has an empty set.
func (s *RedisStore) Played(ctx context.Context, sessionID string) (map[string]bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read played set: %w", err)
	}
	played := make(map[string]bool, len(fields))
	for key, value := range fields {
		played[key] = value == "1"
	}
	return played, nil
}

// MarkPlayed records that the section's animation completed in this session.
func (s *RedisStore) MarkPlayed(ctx context.Context, sessionID, sectionKey string) error {
	key := content.NormalizeKey(sectionKey)
	if key == "" {
		return fmt.Errorf("%w: key must be a single character", content.ErrInvalidSection)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(sessionID), key, "1")
		pipe.Expire(ctx, s.key(sessionID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark played: %w", err)
	}
	return nil
}

// End clears the session's set.
func (s *RedisStore) End(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
