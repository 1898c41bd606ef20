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
	"sort"
	"sync"
	"time"

	"github.com/tutorwise/tutorsync/model"
)

// maxChannelHistory caps how many confirmed entries a channel retains.
// Oldest confirmed entries are dropped past this point so an abandoned tab
// cannot leak unbounded memory.
const maxChannelHistory = 500

// Ledger is the in-memory per-channel message ledger. It merges confirmed
// entries and in-flight optimistic entries into one deterministically
// ordered list per channel.
//
// The ledger is the single owner of its entries: the retry engine and the
// syncer mutate entries only through these methods, never directly, so
// readers always observe consistent snapshots. All methods execute without
// suspension, which is what keeps check-and-mutate sequences race free.
type Ledger struct {
	mu       sync.Mutex
	channels map[string][]*model.OptimisticEntry
	sequence map[string]uint64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		channels: make(map[string][]*model.OptimisticEntry),
		sequence: make(map[string]uint64),
	}
}

// AddOptimistic creates a pending entry for the request, assigns ids,
// timestamp and the channel sequence number, and returns a copy of the
// stored entry. The caller sees the entry before any network call resolves.
func (l *Ledger) AddOptimistic(req model.SubmitRequest) *model.OptimisticEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence[req.Channel]++
	kind := req.Kind
	if kind == "" {
		kind = model.KindUser
	}
	entry := &model.OptimisticEntry{
		EntryID:       model.GenerateUUIDWithSuffix("msg"),
		CorrelationID: model.GenerateUUIDWithSuffix("tmp"),
		Channel:       req.Channel,
		Kind:          kind,
		Content:       req.Content,
		MetaData:      req.MetaData,
		CreatedAt:     time.Now(),
		Sequence:      l.sequence[req.Channel],
		Status:        model.StatusPending,
	}
	l.channels[req.Channel] = append(l.channels[req.Channel], entry)
	l.capHistory(req.Channel)

	clone := *entry
	return &clone
}

// AddConfirmed appends a server-originated confirmed entry (e.g. a tutor
// reply pushed without a matching optimistic entry). Entries already known
// by id are ignored so duplicate delivery is harmless.
func (l *Ledger) AddConfirmed(channel string, entry *model.OptimisticEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.channels[channel] {
		if existing.EntryID == entry.EntryID {
			return
		}
	}

	l.sequence[channel]++
	clone := *entry
	clone.Channel = channel
	clone.CorrelationID = ""
	clone.Status = model.StatusConfirmed
	clone.Retrying = false
	clone.LastError = ""
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.Sequence = l.sequence[channel]
	l.channels[channel] = append(l.channels[channel], &clone)
	l.capHistory(channel)
}

// Confirm atomically replaces the optimistic entry identified by
// correlationID with its confirmed counterpart, preserving the original
// position in the merge order. The swap is a single state transition: no
// reader can observe both the optimistic and confirmed copy. Returns false
// when the correlation id is unknown (already reconciled or rolled back),
// in which case nothing is added — the retry path relies on that to avoid
// creating duplicates.
func (l *Ledger) Confirm(channel, correlationID string, confirmed *model.OptimisticEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.channels[channel] {
		if existing.CorrelationID != correlationID {
			continue
		}
		clone := *confirmed
		clone.Channel = channel
		clone.CorrelationID = ""
		clone.Status = model.StatusConfirmed
		clone.Retrying = false
		clone.LastError = ""
		// Keep the submission position: ordering follows the optimistic
		// entry, not the (possibly later) confirmation time.
		clone.CreatedAt = existing.CreatedAt
		clone.Sequence = existing.Sequence
		if clone.EntryID == "" {
			clone.EntryID = existing.EntryID
		}
		l.channels[channel][i] = &clone
		return true
	}
	return false
}

// UpdateStatus transitions the optimistic entry identified by correlationID
// to the given status. An unknown correlation id is a no-op: the entry was
// already reconciled and the original goal achieved. Returns whether an
// entry was updated.
func (l *Ledger) UpdateStatus(channel, correlationID string, status model.EntryStatus, lastError string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.channels[channel] {
		if entry.CorrelationID != correlationID {
			continue
		}
		entry.Status = status
		entry.Retrying = false
		if status == model.StatusFailed {
			entry.LastError = lastError
		} else {
			entry.LastError = ""
		}
		return true
	}
	return false
}

// MarkRetrying moves a failed entry back to pending with the retrying flag
// set, for an explicit user-triggered retry. Only valid from the failed
// state; anything else is a no-op.
func (l *Ledger) MarkRetrying(channel, correlationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.channels[channel] {
		if entry.CorrelationID != correlationID {
			continue
		}
		if entry.Status != model.StatusFailed {
			return false
		}
		entry.Status = model.StatusPending
		entry.Retrying = true
		return true
	}
	return false
}

// Remove drops the optimistic entry identified by correlationID, rolling it
// back. Unknown correlation ids are a no-op. Returns whether an entry was
// removed.
func (l *Ledger) Remove(channel, correlationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.channels[channel]
	for i, entry := range entries {
		if entry.CorrelationID != correlationID {
			continue
		}
		l.channels[channel] = append(entries[:i], entries[i+1:]...)
		return true
	}
	return false
}

// Get returns a copy of the optimistic entry identified by correlationID.
func (l *Ledger) Get(channel, correlationID string) (*model.OptimisticEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.channels[channel] {
		if entry.CorrelationID == correlationID {
			clone := *entry
			return &clone, true
		}
	}
	return nil, false
}

// Merge returns the channel's confirmed and optimistic entries as one list
// ordered by (createdAt, sequence). This is the only list the presentation
// layer reads. The returned entries are copies; mutating them does not
// affect the ledger.
func (l *Ledger) Merge(channel string) []model.OptimisticEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.channels[channel]
	merged := make([]model.OptimisticEntry, 0, len(entries))
	for _, entry := range entries {
		merged = append(merged, *entry)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Before(&merged[j])
	})
	return merged
}

// Counts returns the number of pending and failed entries in the channel.
func (l *Ledger) Counts(channel string) (pending, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.channels[channel] {
		switch entry.Status {
		case model.StatusPending:
			pending++
		case model.StatusFailed:
			failed++
		}
	}
	return pending, failed
}

// capHistory drops the oldest confirmed entries once the channel exceeds
// its cap. Pending and failed entries are never dropped. Caller holds l.mu.
func (l *Ledger) capHistory(channel string) {
	entries := l.channels[channel]
	overflow := len(entries) - maxChannelHistory
	if overflow <= 0 {
		return
	}
	kept := make([]*model.OptimisticEntry, 0, len(entries))
	for _, entry := range entries {
		if overflow > 0 && entry.Status == model.StatusConfirmed {
			overflow--
			continue
		}
		kept = append(kept, entry)
	}
	l.channels[channel] = kept
}
