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
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorwise/tutorsync/config"
)

func mockRemoteConfig() {
	config.MockConfig(&config.Configuration{Remote: config.RemoteConfig{
		ChatUrl:        "http://tutor.example.com/chat",
		ProgressUrl:    "http://tutor.example.com/progress",
		AssessmentUrl:  "http://tutor.example.com/assessments",
		PreferencesUrl: "http://tutor.example.com/preferences",
		Headers:        map[string]string{"X-Api-Key": "test-key"},
	}})
}

func TestSendChatDecodesResponse(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockRemoteConfig()

	httpmock.RegisterResponder("POST", "http://tutor.example.com/chat",
		httpmock.NewStringResponder(200, `{"id": "srv_1", "content": "Let's look at that together."}`))

	remote, err := NewHTTPRemote()
	require.NoError(t, err)

	resp, err := remote.SendChat(context.Background(), map[string]interface{}{"content": "I'm stuck on fractions"})
	require.NoError(t, err)
	assert.Equal(t, "srv_1", resp.ID)
	assert.Equal(t, "Let's look at that together.", resp.Content)
}

func TestPostSendsConfiguredHeaders(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockRemoteConfig()

	var apiKey, contentType string
	httpmock.RegisterResponder("POST", "http://tutor.example.com/progress",
		func(req *http.Request) (*http.Response, error) {
			apiKey = req.Header.Get("X-Api-Key")
			contentType = req.Header.Get("Content-Type")
			return httpmock.NewStringResponse(200, `{"id": "p1"}`), nil
		})

	remote, err := NewHTTPRemote()
	require.NoError(t, err)

	_, err = remote.UpdateProgress(context.Background(), map[string]interface{}{"lesson_id": "l1"})
	require.NoError(t, err)
	assert.Equal(t, "test-key", apiKey)
	assert.Equal(t, "application/json", contentType)
}

func TestServerErrorIsRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockRemoteConfig()

	httpmock.RegisterResponder("POST", "http://tutor.example.com/chat",
		httpmock.NewStringResponder(503, `{"error": "overloaded"}`))

	remote, err := NewHTTPRemote()
	require.NoError(t, err)

	_, err = remote.SendChat(context.Background(), map[string]interface{}{"content": "hi"})
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 503, remoteErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestClientErrorIsNotRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockRemoteConfig()

	httpmock.RegisterResponder("POST", "http://tutor.example.com/assessments",
		httpmock.NewStringResponder(422, `{"error": "answers malformed"}`))

	remote, err := NewHTTPRemote()
	require.NoError(t, err)

	_, err = remote.SubmitAssessment(context.Background(), map[string]interface{}{"assessment_id": "a1"})
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 422, remoteErr.StatusCode)
	assert.False(t, IsRetryable(err))
}

func TestTransportFailureIsRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockRemoteConfig()

	httpmock.RegisterResponder("POST", "http://tutor.example.com/preferences",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	remote, err := NewHTTPRemote()
	require.NoError(t, err)

	_, err = remote.UpdatePreferences(context.Background(), map[string]interface{}{"theme": "dark"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestMissingEndpointIsNotRetryable(t *testing.T) {
	config.MockConfig(&config.Configuration{Remote: config.RemoteConfig{
		ChatUrl: "http://tutor.example.com/chat",
		// no progress endpoint
	}})

	remote, err := NewHTTPRemote()
	require.NoError(t, err)

	_, err = remote.UpdateProgress(context.Background(), map[string]interface{}{"lesson_id": "l1"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestIsRetryableDefaultsToTrueForUnknownErrors(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("something odd")))
}
