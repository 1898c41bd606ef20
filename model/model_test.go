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

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("msg")
	assert.True(t, strings.HasPrefix(id, "msg_"))

	other := GenerateUUIDWithSuffix("msg")
	assert.NotEqual(t, id, other)
}

func TestEntryOrdering(t *testing.T) {
	now := time.Now()
	a := &OptimisticEntry{CreatedAt: now, Sequence: 1}
	b := &OptimisticEntry{CreatedAt: now, Sequence: 2}
	c := &OptimisticEntry{CreatedAt: now.Add(time.Millisecond), Sequence: 0}

	// Same timestamp falls back to the sequence tiebreaker.
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))

	// A later timestamp wins regardless of sequence.
	assert.True(t, b.Before(c))
}

func TestValidateSubmitRequest(t *testing.T) {
	req := &SubmitRequest{Channel: "home", Kind: KindUser, Content: "hello"}
	assert.NoError(t, req.ValidateSubmitRequest())

	req = &SubmitRequest{Kind: KindUser, Content: "hello"}
	assert.Error(t, req.ValidateSubmitRequest())

	req = &SubmitRequest{Channel: "home", Kind: "bot", Content: "hello"}
	assert.Error(t, req.ValidateSubmitRequest())
}

func TestQueuedActionDefaults(t *testing.T) {
	action := NewQueuedAction(ActionSendMessage, map[string]interface{}{"content": "hi"}, 1)
	assert.True(t, strings.HasPrefix(action.ActionID, "act_"))
	assert.Equal(t, DefaultMaxAttempts, action.MaxAttempts)
	assert.False(t, action.EnqueuedAt.IsZero())
	assert.NoError(t, action.ValidateQueuedAction())
}

func TestQueuedActionForwardMigration(t *testing.T) {
	// A record written by an older schema: no max_attempts, no sequence, and
	// an unknown field that must be ignored rather than rejected.
	raw := []byte(`{"id":"act_1","type":"update-progress","payload":{"lesson_id":"l1"},"enqueued_at":"2025-01-02T10:00:00Z","legacy_field":true}`)

	action, err := QueuedActionFromJSON(raw)
	assert.NoError(t, err)
	assert.Equal(t, "act_1", action.ActionID)
	assert.Equal(t, DefaultMaxAttempts, action.MaxAttempts)
	assert.Equal(t, uint64(0), action.Sequence)
	assert.False(t, action.Synced)
}

func TestQueuedActionExhausted(t *testing.T) {
	action := NewQueuedAction(ActionSubmitAssessment, map[string]interface{}{"score": 80}, 1)
	assert.False(t, action.Exhausted())

	action.Attempts = action.MaxAttempts
	assert.True(t, action.Exhausted())
}

func TestValidateQueuedActionRejectsUnknownType(t *testing.T) {
	action := NewQueuedAction("drop-tables", map[string]interface{}{"x": 1}, 1)
	assert.Error(t, action.ValidateQueuedAction())
}
