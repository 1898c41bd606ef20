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
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/tutorwise/tutorsync/config"
	"github.com/tutorwise/tutorsync/request"
)

// RemoteResponse is the confirmed result of a remote operation. ID is the
// server-assigned identifier for the created or updated resource; Content
// carries the tutor's reply for chat operations.
type RemoteResponse struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// RemoteError classifies a failed remote call. Retryable failures
// (transport errors, 5xx) consume retry budget; non-retryable failures
// (4xx, unknown operations) go straight to terminal failure so a
// permanently invalid payload cannot waste replay attempts.
type RemoteError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err should consume retry budget. Errors that
// are not RemoteError default to retryable, since an unclassified failure
// is more likely transient than a rejected payload.
func IsRetryable(err error) bool {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Retryable
	}
	return true
}

// RemoteService is the remote API surface the sync core replays against.
// Every operation must be idempotent-safe under at-least-once delivery; the
// payload carries a client-supplied id the server can dedup on.
type RemoteService interface {
	SendChat(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
	UpdateProgress(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
	SubmitAssessment(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
	UpdatePreferences(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
}

// httpRemote implements RemoteService against the configured tutor backend
// endpoints.
type httpRemote struct {
	client *http.Client
}

// NewHTTPRemote builds the HTTP-backed RemoteService from configuration.
func NewHTTPRemote() (RemoteService, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &httpRemote{
		client: request.NewClient(time.Duration(cfg.Remote.TimeoutSec) * time.Second),
	}, nil
}

func (r *httpRemote) SendChat(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	return r.post(ctx, "send-chat", func(cfg *config.Configuration) string { return cfg.Remote.ChatUrl }, payload)
}

func (r *httpRemote) UpdateProgress(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	return r.post(ctx, "update-progress", func(cfg *config.Configuration) string { return cfg.Remote.ProgressUrl }, payload)
}

func (r *httpRemote) SubmitAssessment(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	return r.post(ctx, "submit-assessment", func(cfg *config.Configuration) string { return cfg.Remote.AssessmentUrl }, payload)
}

func (r *httpRemote) UpdatePreferences(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	return r.post(ctx, "update-preferences", func(cfg *config.Configuration) string { return cfg.Remote.PreferencesUrl }, payload)
}

// post sends the payload as JSON and maps the outcome onto RemoteError
// classifications: transport failures and 5xx responses are retryable, 4xx
// responses are not.
func (r *httpRemote) post(ctx context.Context, op string, url func(*config.Configuration) string, payload map[string]interface{}) (*RemoteResponse, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, &RemoteError{Op: op, Retryable: true, Err: err}
	}

	endpoint := url(cfg)
	if endpoint == "" {
		return nil, &RemoteError{Op: op, Retryable: false, Err: errors.New("no endpoint configured")}
	}

	body, err := request.ToJsonReq(payload)
	if err != nil {
		return nil, &RemoteError{Op: op, Retryable: false, Err: errors.Wrap(err, "encoding payload")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &RemoteError{Op: op, Retryable: false, Err: err}
	}
	for key, value := range cfg.Remote.Headers {
		req.Header.Set(key, value)
	}

	var response RemoteResponse
	resp, err := request.Call(r.client, req, &response)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			// Decode failures on error responses classify by status below.
			return nil, classifyStatus(op, resp.StatusCode, err)
		}
		return nil, &RemoteError{Op: op, Retryable: true, Err: errors.Wrap(err, "remote call failed")}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(op, resp.StatusCode, errors.New("request rejected"))
	}
	return &response, nil
}

func classifyStatus(op string, status int, err error) *RemoteError {
	return &RemoteError{
		Op:         op,
		StatusCode: status,
		Retryable:  status >= 500,
		Err:        err,
	}
}
