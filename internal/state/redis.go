package state

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"dip_bot/internal/models"
)

const redisKeyPrefix = "dipbot:state:"

// redisKV is the part of *redis.Client the store uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the state as a JSON string under one key. SET replaces the
// value atomically.
type RedisStore struct {
	rdb redisKV
	key string
	now Clock
}

func NewRedisStore(rdb redisKV, instrument string, now Clock) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{rdb: rdb, key: redisKeyPrefix + instrument, now: now}
}

func (r *RedisStore) Key() string { return r.key }

func (r *RedisStore) Load(ctx context.Context) (*models.PositionState, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.NewPositionState(r.now()), nil
		}
		return nil, errors.Wrapf(err, "redis get %s", r.key)
	}

	st, err := decode(b, r.now())
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", r.key)
	}
	return st, nil
}

func (r *RedisStore) Save(ctx context.Context, st *models.PositionState) error {
	b, err := encode(st)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	if err := r.rdb.Set(ctx, r.key, b, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", r.key)
	}
	return nil
}
