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

import "context"

// MockRemote is a RemoteService whose behavior is set per test through
// function fields. Unset operations succeed with an empty response.
type MockRemote struct {
	MockSendChat          func(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
	MockUpdateProgress    func(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
	MockSubmitAssessment  func(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
	MockUpdatePreferences func(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error)
}

func (m *MockRemote) SendChat(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	if m.MockSendChat != nil {
		return m.MockSendChat(ctx, payload)
	}
	return &RemoteResponse{}, nil
}

func (m *MockRemote) UpdateProgress(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	if m.MockUpdateProgress != nil {
		return m.MockUpdateProgress(ctx, payload)
	}
	return &RemoteResponse{}, nil
}

func (m *MockRemote) SubmitAssessment(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	if m.MockSubmitAssessment != nil {
		return m.MockSubmitAssessment(ctx, payload)
	}
	return &RemoteResponse{}, nil
}

func (m *MockRemote) UpdatePreferences(ctx context.Context, payload map[string]interface{}) (*RemoteResponse, error) {
	if m.MockUpdatePreferences != nil {
		return m.MockUpdatePreferences(ctx, payload)
	}
	return &RemoteResponse{}, nil
}
