package redis

import (
	"context"
	"fmt"
	"time"

	"skillcall/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript deletes the presence key only while it still maps
// to the disconnecting connection, so a stale disconnect never clobbers a
// newer reconnect's presence.
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type PresenceRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewPresenceRepository(client *redis.Client, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{
		client: client,
		prefix: "skillcall:presence:",
		ttl:    ttl,
	}
}

func (r *PresenceRepository) key(userID domain.UserID) string {
	return r.prefix + string(userID)
}

func (r *PresenceRepository) MarkOnline(ctx context.Context, userID domain.UserID, connID string) error {
	if err := r.client.Set(ctx, r.key(userID), connID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *PresenceRepository) Refresh(ctx context.Context, userID domain.UserID) error {
	// EXPIRE only; the bound connection is untouched. A zero result means
	// the lease already lapsed, which the next heartbeat path handles.
	if err := r.client.Expire(ctx, r.key(userID), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

func (r *PresenceRepository) MarkOffline(ctx context.Context, userID domain.UserID, connID string) error {
	if err := compareAndDeleteScript.Run(ctx, r.client, []string{r.key(userID)}, connID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

func (r *PresenceRepository) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return n > 0, nil
}

func (r *PresenceRepository) Owner(ctx context.Context, userID domain.UserID) (string, error) {
	connID, err := r.client.Get(ctx, r.key(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get presence owner: %w", err)
	}
	return connID, nil
}
