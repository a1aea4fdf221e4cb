// Package presence implements the (host, name) -> actor discovery registry
// spec §9 treats as an external collaborator: "which process currently owns
// this stream" is not something the stream actor or manager answer
// themselves, since a deployment may run more than one streamcored process
// (spec §9's multi-process Open Question, resolved here as "out of the
// actor's scope, solved by a shared registry instead").
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound indicates no owner is currently registered for the given key.
var ErrNotFound = errors.New("presence: not found")

// Config holds the Redis connection configuration for a Registry.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Registry is a thin Redis-backed presence table, generalizing the
// teacher-adjacent cache.RedisCache client shape (go-redis client, zerolog
// logger, context-bounded calls) from "cache get/set" to "stream ownership
// register/lookup/refresh/release."
type Registry struct {
	client *redis.Client
	log    zerolog.Logger
}

// New dials Redis and verifies connectivity with a bounded ping.
func New(cfg Config, log zerolog.Logger) (*Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to presence store")
	return &Registry{client: client, log: log}, nil
}

func presenceKey(host, name string) string {
	return fmt.Sprintf("streamcore:presence:%s:%s", host, name)
}

// Register claims ownership of (host, name) for owner, expiring after ttl
// unless refreshed. Fails if another owner already holds the key (spec §9:
// "only one process may own a given (host, name) at a time").
func (r *Registry) Register(ctx context.Context, host, name, owner string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, presenceKey(host, name), owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("presence: register %s/%s: %w", host, name, err)
	}
	if !ok {
		current, lookupErr := r.Lookup(ctx, host, name)
		if lookupErr == nil && current == owner {
			return nil // already ours, e.g. a retried call after a timeout
		}
		return fmt.Errorf("presence: %s/%s already owned by %q", host, name, current)
	}
	return nil
}

// Refresh extends the TTL on an existing registration this owner holds.
// It does not reclaim a key owned by someone else.
func (r *Registry) Refresh(ctx context.Context, host, name, owner string, ttl time.Duration) error {
	current, err := r.Lookup(ctx, host, name)
	if err != nil {
		return err
	}
	if current != owner {
		return fmt.Errorf("presence: %s/%s is owned by %q, not %q", host, name, current, owner)
	}
	if err := r.client.Expire(ctx, presenceKey(host, name), ttl).Err(); err != nil {
		return fmt.Errorf("presence: refresh %s/%s: %w", host, name, err)
	}
	return nil
}

// Lookup returns the current owner for (host, name), or ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, host, name string) (string, error) {
	owner, err := r.client.Get(ctx, presenceKey(host, name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("presence: lookup %s/%s: %w", host, name, err)
	}
	return owner, nil
}

// Release removes the registration for (host, name) if owner currently
// holds it. Tolerates a missing or already-released key.
func (r *Registry) Release(ctx context.Context, host, name, owner string) error {
	current, err := r.Lookup(ctx, host, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current != owner {
		return nil // someone else already took over; not ours to release
	}
	if err := r.client.Del(ctx, presenceKey(host, name)).Err(); err != nil {
		return fmt.Errorf("presence: release %s/%s: %w", host, name, err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (r *Registry) Close() error {
	return r.client.Close()
}
