package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for a Redis-backed cache.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	UseTLS    bool
}

// RedisCache is a Cache backed by a shared Redis instance, for
// deployments where several agents serve the same wallet and should
// not each re-probe token support on every recommendation.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:     config.Address,
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, keyPrefix: config.KeyPrefix}, nil
}

func (r *RedisCache) key(k string) string {
	return r.keyPrefix + k
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("⚠️ Redis get %s failed: %v", key, err)
		return "", false
	}
	return value, true
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		log.Printf("⚠️ Redis set %s failed: %v", key, err)
	}
}

func (r *RedisCache) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		log.Printf("⚠️ Redis delete %s failed: %v", key, err)
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
