/*
Copyright 2025 TutorWise Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/tutorwise/tutorsync/config"
	redis_db "github.com/tutorwise/tutorsync/internal/redis-db"
)

// Cache provides TTL-bounded key-value caching. The sync core uses it for
// notification dedup keys and the last-sync checkpoint, both of which must
// survive a client restart but may expire.
type Cache interface {
	// Set stores a value under key for the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get loads the value under key into data. A cache miss is not an
	// error; data is left untouched.
	Get(ctx context.Context, key string, data interface{}) error

	// Delete removes the key from the cache.
	Delete(ctx context.Context, key string) error
}

// RedisCache implements Cache on top of Redis with a small in-process
// TinyLFU tier in front of it.
type RedisCache struct {
	cache *cache.Cache
}

// localCacheSize bounds the in-process tier. The sync core caches a few
// hundred dedup keys at most, so this stays small.
const localCacheSize = 10000

// NewCache connects to the configured Redis instance and returns a cache
// backed by it.
func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	client, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", cfg.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	return NewWithClient(client.Client()), nil
}

// NewWithClient builds a cache around an existing Redis client. Tests use
// this with miniredis; the main wiring uses it to share the store's client.
func NewWithClient(client redis.UniversalClient) Cache {
	c := cache.New(&cache.Options{
		Redis:      client,
		LocalCache: cache.NewTinyLFU(localCacheSize, time.Minute),
	})
	return &RedisCache{cache: c}
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	err := r.cache.Get(ctx, key, &data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
