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
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/tutorwise/tutorsync/config"
	"github.com/tutorwise/tutorsync/internal/cache"
	"github.com/tutorwise/tutorsync/internal/notification"
	"github.com/tutorwise/tutorsync/internal/pubsub"
	"github.com/tutorwise/tutorsync/internal/store"
	"github.com/tutorwise/tutorsync/model"
)

const (
	// actionKeyPrefix namespaces queued actions in the durable store.
	actionKeyPrefix = "tutorsync:actions:"

	// lastSyncCacheKey holds the last successful sync checkpoint.
	lastSyncCacheKey = "tutorsync:last_sync"

	// maxSyncErrors bounds the error readout; older errors are dropped.
	maxSyncErrors = 20
)

// Syncer owns connectivity state and the durable offline action queue. It
// replays queued actions when connectivity returns, enforces a per-action
// retry budget, and prunes processed or expired entries.
//
// The in-memory queue is authoritative; the durable store mirrors it so a
// crash cannot lose actions. When the store is degraded the queue still
// works for the session.
type Syncer struct {
	store  store.Store
	remote RemoteService
	ledger *Ledger
	bus    *pubsub.Bus
	cache  cache.Cache

	// queueClient schedules deferred cleanup of synced actions. Optional;
	// without it cleanup falls back to an in-process timer.
	queueClient *asynq.Client

	mu           sync.Mutex
	actions      map[string]*model.QueuedAction
	sequence     uint64
	online       bool
	syncing      bool
	lastReplay   time.Time
	lastSyncTime *time.Time
	syncErrors   []string

	maxAttempts   int
	maxActionAge  time.Duration
	cleanupWindow time.Duration
	cleanupQueue  string
	minReplayGap  time.Duration
	replayEvery   time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSyncer builds a syncer around the given collaborators. The ledger may
// be nil when no optimistic reconciliation is wanted; the asynq client may
// be nil when no worker process runs.
func NewSyncer(st store.Store, remote RemoteService, ledger *Ledger, bus *pubsub.Bus, c cache.Cache, queueClient *asynq.Client) *Syncer {
	s := &Syncer{
		store:         st,
		remote:        remote,
		ledger:        ledger,
		bus:           bus,
		cache:         c,
		queueClient:   queueClient,
		actions:       make(map[string]*model.QueuedAction),
		online:        true,
		maxAttempts:   config.DEFAULT_MAX_ATTEMPTS,
		maxActionAge:  config.DEFAULT_MAX_ACTION_AGE_SEC * time.Second,
		cleanupWindow: config.DEFAULT_CLEANUP_WINDOW_SEC * time.Second,
		cleanupQueue:  config.DEFAULT_CLEANUP_QUEUE,
		minReplayGap:  config.DEFAULT_MIN_REPLAY_GAP_SEC * time.Second,
		replayEvery:   config.DEFAULT_REPLAY_INTERVAL_SEC * time.Second,
		stop:          make(chan struct{}),
	}

	if cfg, err := config.Fetch(); err == nil {
		s.maxAttempts = cfg.Sync.MaxAttempts
		s.maxActionAge = time.Duration(cfg.Sync.MaxActionAgeSec) * time.Second
		s.cleanupWindow = time.Duration(cfg.Sync.CleanupWindowSec) * time.Second
		s.cleanupQueue = cfg.Sync.CleanupQueue
		s.replayEvery = time.Duration(cfg.Sync.ReplayIntervalSec) * time.Second
		if cfg.Sync.MinReplayGapSec != nil {
			s.minReplayGap = time.Duration(*cfg.Sync.MinReplayGapSec) * time.Second
		}
	}
	return s
}

// IsOnline reports the current connectivity state.
func (s *Syncer) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline feeds a connectivity signal from the environment. Transitions
// are edge-triggered: an offline-to-online transition runs one replay pass;
// repeated signals with the same value do nothing, so a flapping connection
// cannot stack replay passes (the isSyncing guard absorbs any that race
// through).
func (s *Syncer) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(ctx, TopicConnectivityChanged, online)
	}
	if online {
		s.ReplayAll(ctx)
	}
}

// Enqueue persists an action for replay. The durable write happens before
// any delivery attempt so a crash cannot lose the action. When currently
// online, one immediate delivery attempt is made.
func (s *Syncer) Enqueue(ctx context.Context, actionType string, payload map[string]interface{}) (*model.QueuedAction, error) {
	s.mu.Lock()
	s.sequence++
	action := model.NewQueuedAction(actionType, payload, s.sequence)
	action.MaxAttempts = s.maxAttempts
	s.mu.Unlock()

	if err := action.ValidateQueuedAction(); err != nil {
		return nil, err
	}

	// Durable first; a failed write degrades to session-only queueing.
	if !s.store.Put(ctx, actionKey(action.ActionID), action) {
		logrus.Warnf("queued action %s not persisted, held in memory only", action.ActionID)
	}

	s.mu.Lock()
	s.actions[action.ActionID] = action
	online := s.online
	s.mu.Unlock()

	if online {
		s.deliver(ctx, action)
	}

	clone := *action
	return &clone, nil
}

// EnqueueMessage queues a chat entry for offline replay. The syncer
// reconciles the ledger entry itself when the action eventually syncs.
func (s *Syncer) EnqueueMessage(ctx context.Context, entry *model.OptimisticEntry) {
	if _, err := s.Enqueue(ctx, model.ActionSendMessage, messagePayload(entry)); err != nil {
		logrus.Errorf("failed to queue message %s: %v", entry.CorrelationID, err)
	}
}

// ReplayAll attempts delivery of every non-synced queued action, oldest
// first. A pass already in progress makes this call a no-op, as does a call
// within the minimum replay gap of the previous pass.
func (s *Syncer) ReplayAll(ctx context.Context) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return
	}
	if s.minReplayGap > 0 && time.Since(s.lastReplay) < s.minReplayGap {
		s.mu.Unlock()
		return
	}
	s.syncing = true
	s.lastReplay = time.Now()
	pending := s.sortedPendingLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	for _, action := range pending {
		if s.maxActionAge > 0 && time.Since(action.EnqueuedAt) > s.maxActionAge {
			logrus.Warnf("pruning stale queued action %s (%s), enqueued %s", action.ActionID, action.Type, action.EnqueuedAt.Format(time.RFC3339))
			s.removeAction(ctx, action.ActionID)
			continue
		}
		s.deliver(ctx, action)
	}
}

// Start launches the periodic replay fallback, which catches actions whose
// enqueue-time delivery failed silently without a connectivity transition.
// Stop ends it.
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.replayEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.IsOnline() {
					s.ReplayAll(ctx)
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic replay loop.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Restore reloads the queue from the durable store, typically at startup
// after a crash or restart. Synced leftovers are dropped; pending actions
// rejoin the in-memory queue with their attempt counts intact.
func (s *Syncer) Restore(ctx context.Context) int {
	restored := 0
	for _, raw := range s.store.List(ctx, actionKeyPrefix) {
		action, err := model.QueuedActionFromJSON(raw)
		if err != nil {
			logrus.Errorf("dropping unreadable queued action: %v", err)
			continue
		}
		if action.Synced {
			s.store.Delete(ctx, actionKey(action.ActionID))
			continue
		}
		s.mu.Lock()
		s.actions[action.ActionID] = action
		if action.Sequence >= s.sequence {
			s.sequence = action.Sequence + 1
		}
		s.mu.Unlock()
		restored++
	}

	if s.cache != nil {
		var checkpoint time.Time
		if err := s.cache.Get(ctx, lastSyncCacheKey, &checkpoint); err == nil && !checkpoint.IsZero() {
			s.mu.Lock()
			s.lastSyncTime = &checkpoint
			s.mu.Unlock()
		}
	}
	return restored
}

// Status computes the sync readout on demand. Terminal failure messages are
// reported once: reading them clears them.
func (s *Syncer) Status() model.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, action := range s.actions {
		if !action.Synced {
			pending++
		}
	}

	drained := s.syncErrors
	s.syncErrors = nil

	return model.SyncStatus{
		LastSyncTime:   s.lastSyncTime,
		PendingActions: pending,
		IsOnline:       s.online,
		IsSyncing:      s.syncing,
		SyncErrors:     drained,
	}
}

// HandleCleanup is the asynq task handler that purges a synced action once
// its cleanup window elapses. Registered by the worker process.
func (s *Syncer) HandleCleanup(ctx context.Context, task *asynq.Task) error {
	var actionID string
	if err := json.Unmarshal(task.Payload(), &actionID); err != nil {
		logrus.Errorf("unreadable cleanup task payload: %v", err)
		return err
	}
	s.removeAction(ctx, actionID)
	return nil
}

// deliver makes one delivery attempt for the action and applies the
// outcome: synced on success, an incremented attempt count on retryable
// failure, and terminal removal once the budget is exhausted or the failure
// is not retryable.
func (s *Syncer) deliver(ctx context.Context, action *model.QueuedAction) {
	s.mu.Lock()
	if action.Synced {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	resp, err := s.dispatch(ctx, action)
	if err == nil {
		s.markSynced(ctx, action, resp)
		return
	}

	s.mu.Lock()
	action.Attempts++
	action.LastError = err.Error()
	exhausted := action.Exhausted()
	s.mu.Unlock()

	if !IsRetryable(err) || exhausted {
		reason := fmt.Sprintf("action %s (%s) failed permanently after %d attempt(s): %v", action.ActionID, action.Type, action.Attempts, err)
		s.recordTerminalFailure(ctx, action.ActionID, reason)
		return
	}

	// Still within budget: persist the attempt count for the next pass.
	s.store.Put(ctx, actionKey(action.ActionID), action)
	logrus.Infof("queued action %s (%s) attempt %d/%d failed: %v", action.ActionID, action.Type, action.Attempts, action.MaxAttempts, err)
}

// dispatch routes the action to its remote operation.
func (s *Syncer) dispatch(ctx context.Context, action *model.QueuedAction) (*RemoteResponse, error) {
	switch action.Type {
	case model.ActionSendMessage:
		return s.remote.SendChat(ctx, action.Payload)
	case model.ActionUpdateProgress:
		return s.remote.UpdateProgress(ctx, action.Payload)
	case model.ActionSubmitAssessment:
		return s.remote.SubmitAssessment(ctx, action.Payload)
	case model.ActionUpdatePreferences:
		return s.remote.UpdatePreferences(ctx, action.Payload)
	default:
		return nil, &RemoteError{Op: action.Type, Retryable: false, Err: fmt.Errorf("unknown action type %q", action.Type)}
	}
}

// markSynced records a successful delivery, reconciles the ledger for chat
// actions, advances the sync checkpoint, and schedules cleanup.
func (s *Syncer) markSynced(ctx context.Context, action *model.QueuedAction, resp *RemoteResponse) {
	now := time.Now()

	s.mu.Lock()
	action.Synced = true
	action.LastError = ""
	s.lastSyncTime = &now
	s.mu.Unlock()

	s.store.Put(ctx, actionKey(action.ActionID), action)

	if s.ledger != nil && action.Type == model.ActionSendMessage {
		s.reconcileMessage(action, resp)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, lastSyncCacheKey, now, 30*24*time.Hour); err != nil {
			logrus.Errorf("failed to store sync checkpoint: %v", err)
		}
	}

	s.scheduleCleanup(ctx, action.ActionID)
	logrus.Infof("queued action %s (%s) synced", action.ActionID, action.Type)
}

// reconcileMessage swaps the pending chat entry for its confirmed
// counterpart after an offline-queued message finally syncs.
func (s *Syncer) reconcileMessage(action *model.QueuedAction, resp *RemoteResponse) {
	channel, _ := action.Payload["channel"].(string)
	correlationID, _ := action.Payload["client_id"].(string)
	if channel == "" || correlationID == "" {
		return
	}

	content, _ := action.Payload["content"].(string)
	kind, _ := action.Payload["kind"].(string)
	confirmed := &model.OptimisticEntry{
		EntryID: resp.ID,
		Kind:    kind,
		Content: content,
	}
	s.ledger.Confirm(channel, correlationID, confirmed)

	if resp.Content != "" {
		s.ledger.AddConfirmed(channel, &model.OptimisticEntry{
			EntryID:   resp.ID + "_reply",
			Kind:      model.KindSystem,
			Content:   resp.Content,
			CreatedAt: time.Now(),
		})
	}
}

// recordTerminalFailure drops the action permanently and surfaces the
// failure once through the status readout, the bus, and the error
// notifier.
func (s *Syncer) recordTerminalFailure(ctx context.Context, actionID, reason string) {
	s.removeAction(ctx, actionID)

	s.mu.Lock()
	s.syncErrors = append(s.syncErrors, reason)
	if len(s.syncErrors) > maxSyncErrors {
		s.syncErrors = s.syncErrors[len(s.syncErrors)-maxSyncErrors:]
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(ctx, TopicSyncFailed, reason)
	}
	notification.NotifyError(fmt.Errorf("%s", reason))
}

// removeAction drops the action from the in-memory queue and the durable
// store.
func (s *Syncer) removeAction(ctx context.Context, actionID string) {
	s.mu.Lock()
	delete(s.actions, actionID)
	s.mu.Unlock()
	s.store.Delete(ctx, actionKey(actionID))
}

// scheduleCleanup arranges for a synced action to be purged after the
// cleanup window. With a worker available the purge is a durable asynq
// task; otherwise an in-process timer covers the common case.
func (s *Syncer) scheduleCleanup(ctx context.Context, actionID string) {
	if s.queueClient == nil {
		time.AfterFunc(s.cleanupWindow, func() {
			s.removeAction(context.Background(), actionID)
		})
		return
	}

	payload, err := json.Marshal(actionID)
	if err != nil {
		logrus.Errorf("failed to encode cleanup task for %s: %v", actionID, err)
		return
	}
	task := asynq.NewTask(s.cleanupQueue, payload,
		asynq.TaskID(actionID),
		asynq.Queue(s.cleanupQueue),
		asynq.ProcessIn(s.cleanupWindow),
	)
	if _, err := s.queueClient.EnqueueContext(ctx, task); err != nil {
		logrus.Errorf("failed to schedule cleanup for %s: %v", actionID, err)
	}
}

// sortedPendingLocked snapshots the non-synced actions ordered by
// (enqueuedAt, sequence). FIFO holds within an action type; no ordering is
// promised across types. Caller holds s.mu.
func (s *Syncer) sortedPendingLocked() []*model.QueuedAction {
	pending := make([]*model.QueuedAction, 0, len(s.actions))
	for _, action := range s.actions {
		if !action.Synced {
			pending = append(pending, action)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].EnqueuedAt.Equal(pending[j].EnqueuedAt) {
			return pending[i].Sequence < pending[j].Sequence
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})
	return pending
}

func actionKey(actionID string) string {
	return actionKeyPrefix + actionID
}
