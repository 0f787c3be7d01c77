package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"seminar_standings/internal/common"
	"seminar_standings/internal/platform/config"
)

var RDB *redis.Client

func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx := context.Background()
	_, err := RDB.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	fmt.Println("Successfully connected to Redis!")
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		fmt.Println("Redis connection closed.")
	}
}

// releaseScript deletes a lock only if it still holds our value.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// AcquireLock takes a SET NX lock. The returned release is a no-op when the lock was not taken.
func AcquireLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (release func(), ok bool, err error) {
	value := uuid.NewString()
	ok, err = rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("lock %s: %v: %w", key, err, common.ErrServiceUnavailable)
	}
	if !ok {
		return func() {}, false, nil
	}
	return func() {
		// The caller's context may already be done; the release must still go out.
		deleted, err := releaseScript.Run(context.Background(), rdb, []string{key}, value).Result()
		if err != nil {
			log.Printf("ERROR: Failed to release lock %s: %v", key, err)
		} else if n, _ := deleted.(int64); n != 1 {
			log.Printf("WARN: Did not release lock %s; it might have expired or been taken by another.", key)
		}
	}, true, nil
}

// RedisTableCache stores compressed tables with a TTL and coordinates builders across processes.
type RedisTableCache struct {
	rdb *redis.Client
}

func NewRedisTableCache(rdb *redis.Client) *RedisTableCache {
	return &RedisTableCache{rdb: rdb}
}

func (c *RedisTableCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("RedisTableCache.Get %s: %w", key, err)
	}
	return payload, true, nil
}

func (c *RedisTableCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("RedisTableCache.Set %s: %w", key, err)
	}
	return nil
}

func (c *RedisTableCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("RedisTableCache.Delete: %w", err)
	}
	return nil
}

func (c *RedisTableCache) Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return AcquireLock(ctx, c.rdb, key+":building", ttl)
}
