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

// Package pubsub provides a small in-process observer bus with synchronous
// dispatch. Handlers run on the publisher's goroutine in subscription
// order, so the ordering of side effects relative to state changes is
// deterministic and testable.
package pubsub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives the payload published to a topic.
type Handler func(ctx context.Context, payload interface{})

// Bus routes published payloads to topic subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic. Handlers cannot be removed;
// subscribers live as long as the bus.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Publish delivers payload to every subscriber of topic, synchronously and
// in subscription order. A panicking handler is recovered and logged so one
// bad subscriber cannot take down the publisher.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logrus.Errorf("pubsub: handler for %s panicked: %v", topic, rec)
				}
			}()
			handler(ctx, payload)
		}()
	}
}

// SubscriberCount returns the number of handlers registered for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
