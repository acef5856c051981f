package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding the settings.
const DefaultRedisKey = "recorder:settings"

const maxUpdateRetries = 5

// RedisStore keeps settings in a Redis hash, one field per setting.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(addr, password string, db int, key string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: rdb, key: key}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Load(ctx context.Context) (Settings, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return FromFields(fields)
}

func (r *RedisStore) Save(ctx context.Context, s Settings) error {
	if err := r.client.HSet(ctx, r.key, hashValues(s)).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Update reads and writes the hash in a WATCH transaction so concurrent
// updates are not lost.
func (r *RedisStore) Update(ctx context.Context, fn func(*Settings)) (Settings, error) {
	var result Settings

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, r.key).Result()
		if err != nil {
			return err
		}
		s, err := FromFields(fields)
		if err != nil {
			return err
		}
		fn(&s)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, hashValues(s))
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Settings{}, fmt.Errorf("failed to update settings: %w", err)
	}
	return Settings{}, errors.New("failed to update settings: too many concurrent writers")
}

func hashValues(s Settings) map[string]interface{} {
	fields := s.Fields()
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return values
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
