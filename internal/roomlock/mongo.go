package roomlock

import (
	"context"
	"fmt"
	"roombook/pkg/config"
	mongotx "roombook/pkg/db/mongo"
	"roombook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollectionName = "Room_locks"
)

// Store persists short-lived per-room advisory locks.
// TryAcquire reports false without error when another owner holds the lock.
type Store interface {
	TryAcquire(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, roomID, owner string) error
}

type mongoStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoStore(cfg *config.Config) Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoStore) TryAcquire(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := &model.RoomLock{
		ID:        model.RoomLockID(roomID),
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err == nil {
		return true, nil
	}
	if !mongotx.IsDuplicateKey(err) {
		return false, fmt.Errorf("failed to create room lock: %w", err)
	}

	// The TTL monitor only runs about once a minute, so clear an expired holder ourselves.
	res, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":        lock.ID,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to clear expired room lock: %w", err)
	}
	if res.DeletedCount == 0 {
		return false, nil
	}

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create room lock: %w", err)
	}
	return true, nil
}

func (r *mongoStore) Release(ctx context.Context, roomID, owner string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":   model.RoomLockID(roomID),
		"owner": owner,
	})
	if err != nil {
		return fmt.Errorf("failed to release room lock: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotOwned
	}
	return nil
}
