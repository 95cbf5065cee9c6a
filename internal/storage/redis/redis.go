// Package redis stores per-user facility selections in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/clubos/internal/domain/scope"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}
	return client, nil
}

const selectionPrefix = "clubos:facility_selection:"

// DefaultSelectionTTL bounds how long an unused selection survives.
const DefaultSelectionTTL = 30 * 24 * time.Hour

// Compile-time check.
var _ scope.Selections = (*SelectionStore)(nil)

// SelectionStore remembers which facility a user picked last.
type SelectionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSelectionStore creates a SelectionStore. A non-positive ttl falls back
// to DefaultSelectionTTL.
func NewSelectionStore(client redis.Cmdable, ttl time.Duration) *SelectionStore {
	if ttl <= 0 {
		ttl = DefaultSelectionTTL
	}
	return &SelectionStore{client: client, ttl: ttl}
}

func selectionKey(userID string) string {
	return selectionPrefix + userID
}

// Get returns the user's selected facility, if any.
func (s *SelectionStore) Get(ctx context.Context, userID string) (string, bool, error) {
	v, err := s.client.Get(ctx, selectionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get facility selection")
	}
	return v, v != "", nil
}

// Set stores the selection and refreshes its TTL.
func (s *SelectionStore) Set(ctx context.Context, userID, facilityID string) error {
	if err := s.client.Set(ctx, selectionKey(userID), facilityID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set facility selection")
	}
	return nil
}

// Clear removes the selection. Clearing a missing key is not an error.
func (s *SelectionStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, selectionKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "clear facility selection")
	}
	return nil
}
