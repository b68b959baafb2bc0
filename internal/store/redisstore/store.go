// Package redisstore backs the conversation cache mirror, the per-user
// rate limiter and the feature-flag lookups with a single redis client.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowkan/process-ai/internal/process"
)

const (
	convTTL         = 24 * time.Hour
	rateLimitWindow = time.Minute
)

type Store struct {
	rdb          *redis.Client
	ratePerMin   int
	flagDefaults map[string]bool
}

func New(addr, password string, db, ratePerMin int) *Store {
	if ratePerMin <= 0 {
		ratePerMin = 30
	}
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ratePerMin:   ratePerMin,
		flagDefaults: make(map[string]bool),
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

// SetFlagDefault sets the fallback answer for a feature flag when redis
// has no opinion (or is unreachable).
func (s *Store) SetFlagDefault(flag string, enabled bool) {
	s.flagDefaults[flag] = enabled
}

func convKey(sessionID string) string { return "proc:conv:" + sessionID }

// SetConversation mirrors the persisted conversation for cheap reads.
func (s *Store) SetConversation(ctx context.Context, sessionID string, msgs []process.Message) error {
	b, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, convKey(sessionID), b, convTTL).Err()
}

func (s *Store) GetConversation(ctx context.Context, sessionID string) ([]process.Message, error) {
	b, err := s.rdb.Get(ctx, convKey(sessionID)).Bytes()
	if err != nil {
		return nil, err
	}
	var msgs []process.Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Allow implements a fixed-window counter per user. Redis trouble fails
// open: generation availability beats strict limiting.
func (s *Store) Allow(ctx context.Context, userID uint64) bool {
	window := time.Now().Unix() / int64(rateLimitWindow.Seconds())
	key := fmt.Sprintf("proc:rl:%d:%d", userID, window)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("rate limiter redis error user=%d err=%v", userID, err)
		return true
	}
	if n == 1 {
		s.rdb.Expire(ctx, key, rateLimitWindow)
	}
	return n <= int64(s.ratePerMin)
}

// IsEnabled checks membership of the user (or the "*" wildcard) in the
// flag's redis set, falling back to the configured default.
func (s *Store) IsEnabled(ctx context.Context, flag string, userID uint64) bool {
	key := "proc:ff:" + flag

	on, err := s.rdb.SIsMember(ctx, key, "*").Result()
	if err != nil {
		return s.flagDefaults[flag]
	}
	if on {
		return true
	}
	on, err = s.rdb.SIsMember(ctx, key, strconv.FormatUint(userID, 10)).Result()
	if err != nil {
		return s.flagDefaults[flag]
	}
	return on
}
