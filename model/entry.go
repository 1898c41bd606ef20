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

// EntryStatus represents the lifecycle state of an optimistic ledger entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusConfirmed EntryStatus = "confirmed"
	StatusFailed    EntryStatus = "failed"
)

// Entry kinds. User entries originate from user actions; system entries are
// authored by the tutor backend.
const (
	KindUser   = "user"
	KindSystem = "system"
)

// OptimisticEntry is a single record in the message ledger. While unconfirmed
// it carries a correlation id; once confirmed the correlation id is cleared
// and the entry is a plain confirmed record. Exactly one of
// {CorrelationID set, Status == confirmed} holds at any time.
type OptimisticEntry struct {
	EntryID       string                 `json:"id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Channel       string                 `json:"channel"`
	Kind          string                 `json:"kind"`
	Content       string                 `json:"content"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	Sequence      uint64                 `json:"sequence"`
	Status        EntryStatus            `json:"status"`
	LastError     string                 `json:"last_error,omitempty"`
	Retrying      bool                   `json:"retrying,omitempty"`
}

// IsConfirmed reports whether the entry has been reconciled with the remote
// system.
func (entry *OptimisticEntry) IsConfirmed() bool {
	return entry.Status == StatusConfirmed
}

// Before reports whether the entry orders ahead of other within a channel.
// Ordering is by creation time with the per-channel sequence number as a
// tiebreaker, since millisecond timestamps alone are ambiguous under rapid
// submission.
func (entry *OptimisticEntry) Before(other *OptimisticEntry) bool {
	if entry.CreatedAt.Equal(other.CreatedAt) {
		return entry.Sequence < other.Sequence
	}
	return entry.CreatedAt.Before(other.CreatedAt)
}

func (entry *OptimisticEntry) ToJSON() ([]byte, error) {
	return json.Marshal(entry)
}

// SubmitRequest is the caller-facing shape of an optimistic submission.
type SubmitRequest struct {
	Channel  string                 `json:"channel"`
	Kind     string                 `json:"kind"`
	Content  string                 `json:"content"`
	MetaData map[string]interface{} `json:"meta_data,omitempty"`
}

// ValidateSubmitRequest checks that a submission carries the fields the
// ledger needs before any entry is created for it.
func (r *SubmitRequest) ValidateSubmitRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Channel, validation.Required),
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.Kind, validation.In(KindUser, KindSystem)),
	)
}
