package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

var errCorrupt = errors.New("corrupt game record")

// RedisStore keeps each session as a JSON document under chess:game:<id> and
// a per-player sorted set (score = creation time) for listing.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client. ttl 0 keeps records forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Create(ctx context.Context, g *domain.GameSession) (string, error) {
	if g == nil {
		return "", fmt.Errorf("nil game session")
	}
	cp := g.Clone()
	cp.ID = uuid.NewString()
	raw, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal game: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(cp.ID), raw, s.ttl)
	for _, p := range participants(cp) {
		key := idxPlayerKey(p)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(cp.CreatedAt.UnixMilli()), Member: cp.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: create game: %w", domain.ErrUnavailable, err)
	}
	return cp.ID, nil
}

func (s *RedisStore) Fetch(ctx context.Context, id string) (*domain.GameSession, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch game: %w", domain.ErrUnavailable, err)
	}
	var g domain.GameSession
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w %s: %v", errCorrupt, id, err)
	}
	return &g, nil
}

// Update applies patch inside WATCH/MULTI so readers see either the old or
// the new record, never a partial one.
func (s *RedisStore) Update(ctx context.Context, id string, patch domain.SessionPatch) error {
	key := gameKey(id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		var cur domain.GameSession
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("%w %s: %v", errCorrupt, id, err)
		}
		if cur.Version != patch.ExpectedVersion {
			return fmt.Errorf("%w: have version %d, expected %d", domain.ErrConflict, cur.Version, patch.ExpectedVersion)
		}
		newRaw, err := json.Marshal(patch.Apply(&cur))
		if err != nil {
			return fmt.Errorf("%w %s: %v", errCorrupt, id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newRaw, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %s", domain.ErrConflict, id)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return err
	case errors.Is(err, errCorrupt):
		return err
	default:
		return fmt.Errorf("%w: update game: %w", domain.ErrUnavailable, err)
	}
}

func (s *RedisStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.GameSession, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRevRange(ctx, idxPlayerKey(playerID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list games: %w", domain.ErrUnavailable, err)
	}
	out := make([]*domain.GameSession, 0, len(ids))
	for _, id := range ids {
		g, err := s.Fetch(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			// expired record, stale index entry
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func gameKey(id string) string         { return "chess:game:" + strings.TrimSpace(id) }
func idxPlayerKey(player string) string { return "chess:index:player:" + strings.TrimSpace(player) }

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional /<db>
// path and query options. rediss:// enables TLS.
func ParseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
