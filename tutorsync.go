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

// Package tutorsync is the optimistic update and offline synchronization
// core of the TutorWise client. User actions appear to succeed immediately
// in the message ledger, reconcile against the tutor backend, roll back on
// failure, and — when no network is available — queue durably for replay
// with bounded retry.
package tutorsync

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/tutorwise/tutorsync/config"
	"github.com/tutorwise/tutorsync/internal/cache"
	"github.com/tutorwise/tutorsync/internal/pubsub"
	redis_db "github.com/tutorwise/tutorsync/internal/redis-db"
	"github.com/tutorwise/tutorsync/internal/store"
	"github.com/tutorwise/tutorsync/model"
)

// TutorSync bundles the sync core: the message ledger, the retry engine,
// the offline syncer, and the notification bridge, wired over one bus.
type TutorSync struct {
	ledger *Ledger
	engine *Engine
	syncer *Syncer
	bridge *Bridge
	bus    *pubsub.Bus
}

// New builds the sync core from configuration. The remote service is
// injected so tests and alternative transports can substitute their own;
// pass the result of NewHTTPRemote for the standard wiring. Redis being
// unreachable is not fatal: the store degrades to a no-op and the cache and
// cleanup queue are skipped.
func New(remote RemoteService) (*TutorSync, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var (
		st          = store.NewNoop()
		ca          cache.Cache
		queueClient *asynq.Client
	)
	if cfg.Redis.Dns != "" {
		redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", cfg.Redis.Dns)})
		if err != nil {
			logrus.Warnf("redis unavailable (%v): running without offline durability", err)
		} else {
			st = store.New(redisClient.Client())
			ca = cache.NewWithClient(redisClient.Client())
			opts, err := redis_db.ParseRedisURL(cfg.Redis.Dns)
			if err == nil {
				queueClient = asynq.NewClient(asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
			}
		}
	}

	bus := pubsub.NewBus()
	ledger := NewLedger()
	syncer := NewSyncer(st, remote, ledger, bus, ca, queueClient)
	engine := NewEngine(ledger, remote, syncer, bus)
	bridge := NewBridge(bus, ca)

	ts := &TutorSync{
		ledger: ledger,
		engine: engine,
		syncer: syncer,
		bridge: bridge,
		bus:    bus,
	}

	if restored := syncer.Restore(context.Background()); restored > 0 {
		logrus.Infof("restored %d queued action(s) from durable store", restored)
	}
	return ts, nil
}

// SubmitMessage submits a user chat message to a channel, returning the
// optimistic entry immediately in whatever state the submission reached.
func (t *TutorSync) SubmitMessage(ctx context.Context, channel, content string) (*model.OptimisticEntry, error) {
	return t.engine.Submit(ctx, model.SubmitRequest{
		Channel: channel,
		Kind:    model.KindUser,
		Content: content,
	})
}

// RetryMessage re-attempts a failed message; a no-op when the entry has
// already been reconciled.
func (t *TutorSync) RetryMessage(ctx context.Context, channel, correlationID string) error {
	return t.engine.Retry(ctx, channel, correlationID)
}

// AbandonMessage rolls back a failed message.
func (t *TutorSync) AbandonMessage(channel, correlationID string) bool {
	return t.engine.Abandon(channel, correlationID)
}

// Messages returns the merged, ordered entry list for a channel.
func (t *TutorSync) Messages(channel string) []model.OptimisticEntry {
	return t.ledger.Merge(channel)
}

// QueueAction queues a non-chat action (progress, assessment, preferences)
// for durable delivery.
func (t *TutorSync) QueueAction(ctx context.Context, actionType string, payload map[string]interface{}) (*model.QueuedAction, error) {
	return t.syncer.Enqueue(ctx, actionType, payload)
}

// SetOnline feeds a connectivity signal from the environment.
func (t *TutorSync) SetOnline(ctx context.Context, online bool) {
	t.syncer.SetOnline(ctx, online)
}

// SyncStatus returns the current sync readout.
func (t *TutorSync) SyncStatus() model.SyncStatus {
	return t.syncer.Status()
}

// Start launches the syncer's periodic replay loop.
func (t *TutorSync) Start(ctx context.Context) {
	t.syncer.Start(ctx)
}

// Stop halts background work.
func (t *TutorSync) Stop() {
	t.syncer.Stop()
}

// Ledger exposes the message ledger.
func (t *TutorSync) Ledger() *Ledger {
	return t.ledger
}

// Syncer exposes the offline sync manager.
func (t *TutorSync) Syncer() *Syncer {
	return t.syncer
}

// Bus exposes the event bus for subscribers (UI, telemetry).
func (t *TutorSync) Bus() *pubsub.Bus {
	return t.bus
}
