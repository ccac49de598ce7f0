// Package redis stores sessions in Redis so they survive restarts and can be
// shared across instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"journal/internal/domain"
)

const keyPrefix = "session:"

var _ domain.SessionRepository = (*SessionRepo)(nil)

// SessionRepo implements domain.SessionRepository on a Redis client. Entries
// carry a TTL equal to the remaining session lifetime.
type SessionRepo struct {
	client *goredis.Client
	clock  clock.PassiveClock
}

type sessionRecord struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Dial parses a redis:// URL, connects, and pings the server.
func Dial(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewSessionRepo wraps client. A nil clock selects the wall clock.
func NewSessionRepo(client *goredis.Client, clk clock.PassiveClock) *SessionRepo {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SessionRepo{client: client, clock: clk}
}

func buildKey(token string) string {
	return keyPrefix + token
}

// Create stores a session that Redis evicts at expiresAt.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	now := r.clock.Now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("session already expired at %s", expiresAt.Format(time.RFC3339))
	}

	data, err := json.Marshal(sessionRecord{UserID: userID, ExpiresAt: expiresAt.UTC(), CreatedAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.client.Set(ctx, buildKey(token), data, ttl).Err()
}

// GetByToken returns (nil, nil) when the key is absent or evicted.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, buildKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &domain.Session{
		Token:     token,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Delete removes a session. Missing keys are not an error.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, buildKey(token)).Err()
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}
