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
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Queued action types. Each maps to one remote operation.
const (
	ActionSendMessage       = "send-message"
	ActionUpdateProgress    = "update-progress"
	ActionSubmitAssessment  = "submit-assessment"
	ActionUpdatePreferences = "update-preferences"
)

// DefaultMaxAttempts is the replay budget applied when an action type does
// not override it.
const DefaultMaxAttempts = 3

// QueuedAction is a durably persisted action awaiting replay against the
// remote service. The JSON layout is the persisted schema; unknown fields
// are ignored and missing fields default on load so the durable store can
// outlive code upgrades.
type QueuedAction struct {
	ActionID    string                 `json:"id"`
	Type        string                 `json:"type"`
	Payload     map[string]interface{} `json:"payload"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
	Sequence    uint64                 `json:"sequence"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	Synced      bool                   `json:"synced"`
	LastError   string                 `json:"last_error,omitempty"`
}

// NewQueuedAction creates a queued action with a generated id and the
// default retry budget for its type.
func NewQueuedAction(actionType string, payload map[string]interface{}, sequence uint64) *QueuedAction {
	action := &QueuedAction{
		ActionID:   GenerateUUIDWithSuffix("act"),
		Type:       actionType,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		Sequence:   sequence,
	}
	action.ApplyDefaults()
	return action
}

// ApplyDefaults fills zero-valued fields with their defaults. It runs both
// at creation and after loading a persisted record written by an older
// schema version.
func (a *QueuedAction) ApplyDefaults() {
	if a.ActionID == "" {
		a.ActionID = GenerateUUIDWithSuffix("act")
	}
	if a.MaxAttempts <= 0 {
		a.MaxAttempts = DefaultMaxAttempts
	}
	if a.EnqueuedAt.IsZero() {
		a.EnqueuedAt = time.Now()
	}
}

// Exhausted reports whether the action has consumed its full retry budget.
func (a *QueuedAction) Exhausted() bool {
	return a.Attempts >= a.MaxAttempts
}

// ValidateQueuedAction checks that the action is replayable: a known type
// and a payload to replay with.
func (a *QueuedAction) ValidateQueuedAction() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ActionID, validation.Required),
		validation.Field(&a.Type, validation.Required,
			validation.In(ActionSendMessage, ActionUpdateProgress, ActionSubmitAssessment, ActionUpdatePreferences)),
		validation.Field(&a.Payload, validation.Required),
	)
}

func (a *QueuedAction) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// QueuedActionFromJSON decodes a persisted action record, applying defaults
// for fields missing from older schema versions.
func QueuedActionFromJSON(data []byte) (*QueuedAction, error) {
	var action QueuedAction
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, err
	}
	action.ApplyDefaults()
	return &action, nil
}

// SyncStatus is a read-only projection of the offline queue for status
// displays. It is computed on demand, never stored.
type SyncStatus struct {
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	PendingActions int        `json:"pending_actions"`
	IsOnline       bool       `json:"is_online"`
	IsSyncing      bool       `json:"is_syncing"`
	SyncErrors     []string   `json:"sync_errors"`
}
