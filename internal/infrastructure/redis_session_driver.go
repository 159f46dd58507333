package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"zia_backend/internal/entities"
)

const sessionKeyPrefix = "zia:session:"

// RedisSessionDriver stores sessions as JSON blobs with a TTL, so expiry is
// handled by redis instead of a sweep goroutine.
type RedisSessionDriver struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionDriver(redisURL string, ttl time.Duration) (*RedisSessionDriver, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisSessionDriver{client: client, ttl: ttl}, nil
}

func (d *RedisSessionDriver) key(id string) string {
	return sessionKeyPrefix + id
}

func (d *RedisSessionDriver) Load(ctx context.Context, id string) (*entities.Session, bool, error) {
	val, err := d.client.Get(ctx, d.key(id)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s entities.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (d *RedisSessionDriver) Save(ctx context.Context, s *entities.Session) error {
	val, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, d.key(s.ID), val, d.ttl).Err()
}

func (d *RedisSessionDriver) Delete(ctx context.Context, id string) error {
	return d.client.Del(ctx, d.key(id)).Err()
}

var _ SessionDriver = (*RedisSessionDriver)(nil)
