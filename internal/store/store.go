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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Store is a durable key-value store for queued actions and cached
// key-to-value data. Every operation is best-effort: failures are logged
// and reported as a "not persisted" / "not found" outcome, never as an
// error escaping the store boundary. Callers must stay correct when every
// write silently fails, since storage may be absent for the whole session.
type Store interface {
	// Put persists a JSON-encodable value under key. Returns false when the
	// value was not persisted.
	Put(ctx context.Context, key string, value interface{}) bool

	// PutWithTTL persists a value that expires after ttl. Reads past the
	// expiry observe an absent key.
	PutWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) bool

	// Get loads the value under key into dest. Returns false when the key
	// is absent, expired, or the read failed.
	Get(ctx context.Context, key string, dest interface{}) bool

	// Delete removes the key. Returns false when the delete did not take
	// effect durably.
	Delete(ctx context.Context, key string) bool

	// List returns the raw values of all keys matching prefix. Order is
	// unspecified; callers impose their own ordering.
	List(ctx context.Context, prefix string) [][]byte
}

// redisStore is the Redis-backed Store implementation.
type redisStore struct {
	client redis.UniversalClient
}

// New returns a Redis-backed store, or a no-op store when client is nil or
// unreachable. The no-op fallback keeps the system operating purely
// in-memory for the session at the cost of durability.
func New(client redis.UniversalClient) Store {
	if client == nil {
		logrus.Warn("durable store: no redis client, offline durability is disabled")
		return &noopStore{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Warnf("durable store: redis unreachable (%v), offline durability is disabled", err)
		return &noopStore{}
	}
	return &redisStore{client: client}
}

// NewNoop returns a store whose writes all report "not persisted". Used
// directly in tests and as the degraded fallback.
func NewNoop() Store {
	return &noopStore{}
}

func (s *redisStore) Put(ctx context.Context, key string, value interface{}) bool {
	return s.put(ctx, key, value, 0)
}

func (s *redisStore) PutWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	return s.put(ctx, key, value, ttl)
}

func (s *redisStore) put(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.Errorf("durable store: failed to encode %s: %v", key, err)
		return false
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.Errorf("durable store: failed to persist %s: %v", key, err)
		return false
	}
	return true
}

func (s *redisStore) Get(ctx context.Context, key string, dest interface{}) bool {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.Errorf("durable store: failed to read %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logrus.Errorf("durable store: failed to decode %s: %v", key, err)
		return false
	}
	return true
}

func (s *redisStore) Delete(ctx context.Context, key string) bool {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		logrus.Errorf("durable store: failed to delete %s: %v", key, err)
		return false
	}
	return true
}

func (s *redisStore) List(ctx context.Context, prefix string) [][]byte {
	var values [][]byte
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			// Key may have expired between scan and read.
			if !errors.Is(err, redis.Nil) {
				logrus.Errorf("durable store: failed to read %s during list: %v", iter.Val(), err)
			}
			continue
		}
		values = append(values, data)
	}
	if err := iter.Err(); err != nil {
		logrus.Errorf("durable store: scan failed for prefix %s: %v", prefix, err)
	}
	return values
}

// noopStore degrades every operation to a no-op.
type noopStore struct{}

func (s *noopStore) Put(_ context.Context, _ string, _ interface{}) bool {
	return false
}

func (s *noopStore) PutWithTTL(_ context.Context, _ string, _ interface{}, _ time.Duration) bool {
	return false
}

func (s *noopStore) Get(_ context.Context, _ string, _ interface{}) bool {
	return false
}

func (s *noopStore) Delete(_ context.Context, _ string) bool {
	return false
}

func (s *noopStore) List(_ context.Context, _ string) [][]byte {
	return nil
}
