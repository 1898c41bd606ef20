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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tutorwise/tutorsync/model"
)

func TestAddOptimisticReturnsPendingEntry(t *testing.T) {
	ledger := NewLedger()

	entry := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Kind: model.KindUser, Content: "hello"})

	assert.True(t, strings.HasPrefix(entry.EntryID, "msg_"))
	assert.True(t, strings.HasPrefix(entry.CorrelationID, "tmp_"))
	assert.Equal(t, model.StatusPending, entry.Status)
	assert.Equal(t, "hello", entry.Content)
	assert.False(t, entry.CreatedAt.IsZero())

	merged := ledger.Merge("home")
	assert.Len(t, merged, 1)
	assert.Equal(t, entry.CorrelationID, merged[0].CorrelationID)
}

func TestMergeIsScopedToChannel(t *testing.T) {
	ledger := NewLedger()
	ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "a"})
	ledger.AddOptimistic(model.SubmitRequest{Channel: "practice", Content: "b"})

	assert.Len(t, ledger.Merge("home"), 1)
	assert.Len(t, ledger.Merge("practice"), 1)
	assert.Empty(t, ledger.Merge("review"))
}

func TestConfirmSwapsAtomically(t *testing.T) {
	ledger := NewLedger()
	entry := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "hello"})

	ok := ledger.Confirm("home", entry.CorrelationID, &model.OptimisticEntry{
		EntryID: "r1",
		Kind:    model.KindUser,
		Content: "hello",
	})
	assert.True(t, ok)

	merged := ledger.Merge("home")
	assert.Len(t, merged, 1)
	assert.Equal(t, "r1", merged[0].EntryID)
	assert.Equal(t, model.StatusConfirmed, merged[0].Status)
	// A confirmed record carries no correlation id.
	assert.Empty(t, merged[0].CorrelationID)
	// Merge order follows the original submission position.
	assert.Equal(t, entry.CreatedAt, merged[0].CreatedAt)
	assert.Equal(t, entry.Sequence, merged[0].Sequence)
}

func TestConfirmUnknownCorrelationIsNoop(t *testing.T) {
	ledger := NewLedger()
	ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "hello"})

	ok := ledger.Confirm("home", "tmp_gone", &model.OptimisticEntry{EntryID: "r9", Content: "late"})
	assert.False(t, ok)
	// Nothing was added: a late confirmation must not duplicate.
	assert.Len(t, ledger.Merge("home"), 1)
}

func TestOrderingStableWhenConfirmationsArriveOutOfOrder(t *testing.T) {
	ledger := NewLedger()
	a := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "first"})
	b := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "second"})

	// b's remote call resolves before a's.
	assert.True(t, ledger.Confirm("home", b.CorrelationID, &model.OptimisticEntry{EntryID: "r2", Content: "second"}))
	assert.True(t, ledger.Confirm("home", a.CorrelationID, &model.OptimisticEntry{EntryID: "r1", Content: "first"}))

	merged := ledger.Merge("home")
	assert.Len(t, merged, 2)
	assert.Equal(t, "first", merged[0].Content)
	assert.Equal(t, "second", merged[1].Content)
}

func TestSequenceBreaksTimestampTies(t *testing.T) {
	ledger := NewLedger()
	// Submitted back-to-back, likely within the same clock tick.
	for i := 0; i < 10; i++ {
		ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: fmt.Sprintf("m%d", i)})
	}

	merged := ledger.Merge("home")
	for i, entry := range merged {
		assert.Equal(t, fmt.Sprintf("m%d", i), entry.Content)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	ledger := NewLedger()
	entry := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "hello"})

	assert.True(t, ledger.UpdateStatus("home", entry.CorrelationID, model.StatusFailed, "network down"))

	merged := ledger.Merge("home")
	assert.Equal(t, model.StatusFailed, merged[0].Status)
	assert.Equal(t, "network down", merged[0].LastError)

	// Back to pending clears the error.
	assert.True(t, ledger.UpdateStatus("home", entry.CorrelationID, model.StatusPending, ""))
	merged = ledger.Merge("home")
	assert.Equal(t, model.StatusPending, merged[0].Status)
	assert.Empty(t, merged[0].LastError)
}

func TestUpdateStatusUnknownCorrelationIsNoop(t *testing.T) {
	ledger := NewLedger()
	assert.False(t, ledger.UpdateStatus("home", "tmp_gone", model.StatusFailed, "x"))
	// Twice, still a no-op.
	assert.False(t, ledger.UpdateStatus("home", "tmp_gone", model.StatusFailed, "x"))
	assert.Empty(t, ledger.Merge("home"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	ledger := NewLedger()
	entry := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "hello"})

	assert.True(t, ledger.Remove("home", entry.CorrelationID))
	assert.False(t, ledger.Remove("home", entry.CorrelationID))
	assert.Empty(t, ledger.Merge("home"))
}

func TestMarkRetryingOnlyFromFailed(t *testing.T) {
	ledger := NewLedger()
	entry := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "hello"})

	// Pending entries cannot enter the retrying state.
	assert.False(t, ledger.MarkRetrying("home", entry.CorrelationID))

	ledger.UpdateStatus("home", entry.CorrelationID, model.StatusFailed, "boom")
	assert.True(t, ledger.MarkRetrying("home", entry.CorrelationID))

	merged := ledger.Merge("home")
	assert.Equal(t, model.StatusPending, merged[0].Status)
	assert.True(t, merged[0].Retrying)
}

func TestCounts(t *testing.T) {
	ledger := NewLedger()
	a := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "a"})
	ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "b"})
	c := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "c"})

	ledger.UpdateStatus("home", a.CorrelationID, model.StatusFailed, "boom")
	ledger.Confirm("home", c.CorrelationID, &model.OptimisticEntry{EntryID: "r1", Content: "c"})

	pending, failed := ledger.Counts("home")
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, failed)
}

func TestAddConfirmedIgnoresDuplicates(t *testing.T) {
	ledger := NewLedger()
	reply := &model.OptimisticEntry{EntryID: "r1", Kind: model.KindSystem, Content: "hi", CreatedAt: time.Now()}

	ledger.AddConfirmed("home", reply)
	ledger.AddConfirmed("home", reply)

	assert.Len(t, ledger.Merge("home"), 1)
}

func TestHistoryCapDropsOldestConfirmed(t *testing.T) {
	ledger := NewLedger()
	pendingEntry := ledger.AddOptimistic(model.SubmitRequest{Channel: "home", Content: "keep me"})

	for i := 0; i < maxChannelHistory+50; i++ {
		ledger.AddConfirmed("home", &model.OptimisticEntry{
			EntryID:   fmt.Sprintf("r%d", i),
			Content:   fmt.Sprintf("c%d", i),
			CreatedAt: time.Now(),
		})
	}

	merged := ledger.Merge("home")
	assert.LessOrEqual(t, len(merged), maxChannelHistory)

	// The pending entry survives the cap.
	_, found := ledger.Get("home", pendingEntry.CorrelationID)
	assert.True(t, found)
}
