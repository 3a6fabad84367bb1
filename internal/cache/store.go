package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

const conversationListPrefix = "conversations:user:%d"

// ConversationListKey is the versioned base key of a user's cached conversation list.
func ConversationListKey(userID uint) string {
	return fmt.Sprintf(conversationListPrefix, userID)
}

// Store is a JSON cache-aside layer over Redis. A nil Store or nil client disables caching.
//
// Keys are versioned: Invalidate bumps "<key>:version", so a value computed before an
// invalidation is written under a version nobody reads any more.
type Store struct {
	rdb  *redis.Client
	name string
}

// NewStore wraps rdb; name labels cache metrics.
func NewStore(rdb *redis.Client, name string) *Store {
	return &Store{rdb: rdb, name: name}
}

func (s *Store) enabled() bool {
	return s != nil && s.rdb != nil
}

func (s *Store) versionedKey(ctx context.Context, key string) (string, error) {
	version, err := s.rdb.Get(ctx, key+":version").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", key, version), nil
}

// Aside returns the cached value for key in dest, or runs fetch to fill dest and stores it.
// Redis failures degrade to calling fetch.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if !s.enabled() || ttl <= 0 {
		return fetch()
	}

	vkey, err := s.versionedKey(ctx, key)
	if err != nil {
		observability.Logger.WarnContext(ctx, "cache version lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		return fetch()
	}

	raw, err := s.rdb.Get(ctx, vkey).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			observability.CacheResults.WithLabelValues(s.name, "hit").Inc()
			return nil
		}
	case !errors.Is(err, redis.Nil):
		observability.Logger.WarnContext(ctx, "cache read failed", slog.String("key", vkey), slog.String("error", err.Error()))
	}
	observability.CacheResults.WithLabelValues(s.name, "miss").Inc()

	if err := fetch(); err != nil {
		return err
	}

	payload, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := s.rdb.Set(ctx, vkey, payload, ttl).Err(); err != nil {
		observability.Logger.WarnContext(ctx, "cache write failed", slog.String("key", vkey), slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate bumps the version of every key so cached values stop being served.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if !s.enabled() || len(keys) == 0 {
		return
	}
	pipe := s.rdb.Pipeline()
	for _, key := range keys {
		pipe.Incr(ctx, key+":version")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.Logger.WarnContext(ctx, "cache invalidation failed", slog.Int("keys", len(keys)), slog.String("error", err.Error()))
	}
}

// InvalidateConversations drops the cached conversation lists of the given users.
func (s *Store) InvalidateConversations(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, ConversationListKey(id))
	}
	s.Invalidate(ctx, keys...)
}
