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

package tutorsync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tutorwise/tutorsync/config"
	"github.com/tutorwise/tutorsync/internal/pubsub"
	"github.com/tutorwise/tutorsync/model"
)

// Engine drives a single optimistic submission through its lifecycle:
// pending on submit, confirmed on success, failed on error, with a bounded
// automatic fast-path retry and an explicit user-triggered retry path.
// Rollback ("abandon") removes a failed entry. All ledger mutations go
// through the Ledger's operations so state stays consistent no matter where
// the remote call fails.
type Engine struct {
	ledger *Ledger
	remote RemoteService
	syncer *Syncer
	bus    *pubsub.Bus

	fastRetries    uint64
	backoffInitial time.Duration

	// manualRetries counts user-triggered retry attempts across all
	// channels, as a diagnostic. Manual retries are deliberately unbounded;
	// only the offline queue enforces a budget.
	manualRetries atomic.Uint64
}

// NewEngine wires the engine to its collaborators. Fast-path retry count
// comes from configuration.
func NewEngine(ledger *Ledger, remote RemoteService, syncer *Syncer, bus *pubsub.Bus) *Engine {
	fastRetries := uint64(config.DEFAULT_FAST_PATH_RETRIES)
	if cfg, err := config.Fetch(); err == nil && cfg.Sync.FastPathRetries != nil {
		fastRetries = uint64(*cfg.Sync.FastPathRetries)
	}
	return &Engine{
		ledger:         ledger,
		remote:         remote,
		syncer:         syncer,
		bus:            bus,
		fastRetries:    fastRetries,
		backoffInitial: 500 * time.Millisecond,
	}
}

// Submit creates an optimistic entry for the request and attempts delivery.
// The returned entry reflects the final state of this call: confirmed on
// success, pending when the action was queued for offline replay, failed
// when delivery failed. The error reports whether the user-visible
// operation failed; ledger state is consistent either way.
func (e *Engine) Submit(ctx context.Context, req model.SubmitRequest) (*model.OptimisticEntry, error) {
	if err := req.ValidateSubmitRequest(); err != nil {
		return nil, err
	}

	entry := e.ledger.AddOptimistic(req)

	// Offline: skip the network entirely and queue for replay. The entry
	// stays pending until the syncer reconciles it.
	if e.syncer != nil && !e.syncer.IsOnline() {
		e.syncer.EnqueueMessage(ctx, entry)
		return entry, nil
	}

	resp, err := e.callWithBackoff(ctx, entry)
	if err != nil {
		e.ledger.UpdateStatus(entry.Channel, entry.CorrelationID, model.StatusFailed, err.Error())
		entry.Status = model.StatusFailed
		entry.LastError = err.Error()
		return entry, err
	}

	confirmed := e.confirm(ctx, entry, resp)
	return confirmed, nil
}

// Retry re-attempts delivery of a failed entry. Only valid when the entry
// is currently failed; a retry against an entry that was concurrently
// reconciled or removed is a silent no-op, since the original goal was
// already achieved. Manual retries are not bounded by an attempt budget.
func (e *Engine) Retry(ctx context.Context, channel, correlationID string) error {
	entry, ok := e.ledger.Get(channel, correlationID)
	if !ok {
		// Already reconciled or rolled back.
		return nil
	}
	if entry.Status != model.StatusFailed {
		return nil
	}
	if !e.ledger.MarkRetrying(channel, correlationID) {
		return nil
	}

	resp, err := e.callRemote(ctx, entry)
	if err != nil {
		e.manualRetries.Add(1)
		e.ledger.UpdateStatus(channel, correlationID, model.StatusFailed, err.Error())
		return err
	}

	e.confirm(ctx, entry, resp)
	return nil
}

// Abandon rolls back a failed entry, removing it from the ledger. Only
// failed entries can be abandoned; a pending entry still has an outcome on
// the way.
func (e *Engine) Abandon(channel, correlationID string) bool {
	entry, ok := e.ledger.Get(channel, correlationID)
	if !ok || entry.Status != model.StatusFailed {
		return false
	}
	return e.ledger.Remove(channel, correlationID)
}

// ManualRetryCount returns the number of failed manual retry attempts so
// far, for diagnostics.
func (e *Engine) ManualRetryCount() uint64 {
	return e.manualRetries.Load()
}

// confirm swaps the optimistic entry for its confirmed counterpart as a
// single ledger transition and publishes the confirmation. When the
// correlation id is already gone the swap is skipped, which is what keeps a
// late success from creating a duplicate entry.
func (e *Engine) confirm(ctx context.Context, entry *model.OptimisticEntry, resp *RemoteResponse) *model.OptimisticEntry {
	confirmed := &model.OptimisticEntry{
		EntryID:  resp.ID,
		Kind:     entry.Kind,
		Content:  entry.Content,
		MetaData: entry.MetaData,
	}
	if confirmed.EntryID == "" {
		confirmed.EntryID = entry.EntryID
	}

	if !e.ledger.Confirm(entry.Channel, entry.CorrelationID, confirmed) {
		logrus.Debugf("entry %s already reconciled, skipping confirmation", entry.CorrelationID)
		merged, ok := e.ledger.Get(entry.Channel, entry.CorrelationID)
		if ok {
			return merged
		}
		return entry
	}

	// The tutor's reply rides along on chat confirmations.
	if resp.Content != "" {
		e.ledger.AddConfirmed(entry.Channel, &model.OptimisticEntry{
			EntryID:   resp.ID + "_reply",
			Kind:      model.KindSystem,
			Content:   resp.Content,
			CreatedAt: time.Now(),
		})
	}

	result, _ := e.lookupByID(entry.Channel, confirmed.EntryID)
	if e.bus != nil {
		e.bus.Publish(ctx, TopicEntryConfirmed, result)
	}
	return result
}

// lookupByID finds a confirmed entry copy by its entry id.
func (e *Engine) lookupByID(channel, entryID string) (*model.OptimisticEntry, bool) {
	for _, entry := range e.ledger.Merge(channel) {
		if entry.EntryID == entryID {
			clone := entry
			return &clone, true
		}
	}
	return nil, false
}

// callWithBackoff wraps the remote call in a bounded exponential backoff.
// Non-retryable failures abort immediately; retryable ones are retried up
// to the configured fast-path budget before the entry is marked failed and
// left for user-driven retry.
func (e *Engine) callWithBackoff(ctx context.Context, entry *model.OptimisticEntry) (*RemoteResponse, error) {
	var resp *RemoteResponse

	operation := func() error {
		var err error
		resp, err = e.callRemote(ctx, entry)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.backoffInitial
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, e.fastRetries), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// callRemote performs one delivery attempt for the entry.
func (e *Engine) callRemote(ctx context.Context, entry *model.OptimisticEntry) (*RemoteResponse, error) {
	return e.remote.SendChat(ctx, messagePayload(entry))
}

// messagePayload is the wire payload for a chat entry. The correlation id
// doubles as the client-supplied idempotency key the server dedups on.
func messagePayload(entry *model.OptimisticEntry) map[string]interface{} {
	payload := map[string]interface{}{
		"client_id": entry.CorrelationID,
		"channel":   entry.Channel,
		"kind":      entry.Kind,
		"content":   entry.Content,
	}
	if entry.MetaData != nil {
		payload["meta_data"] = entry.MetaData
	}
	return payload
}
