package roomlock

import (
	"context"
	"fmt"
	"roombook/pkg/model"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (r *redisStore) TryAcquire(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, model.RoomLockID(roomID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire room lock: %w", err)
	}
	return ok, nil
}

func (r *redisStore) Release(ctx context.Context, roomID, owner string) error {
	n, err := r.client.Eval(ctx, releaseScript, []string{model.RoomLockID(roomID)}, owner).Int64()
	if err != nil {
		return fmt.Errorf("failed to release room lock: %w", err)
	}
	if n == 0 {
		return ErrNotOwned
	}
	return nil
}
