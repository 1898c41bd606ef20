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

package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{}
	err := cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.ProjectName != "TutorWise Sync" {
		t.Errorf("Expected default project name, got %q", cnf.ProjectName)
	}
	if cnf.Sync.ReplayIntervalSec != DEFAULT_REPLAY_INTERVAL_SEC {
		t.Errorf("Expected default replay interval %d, got %d", DEFAULT_REPLAY_INTERVAL_SEC, cnf.Sync.ReplayIntervalSec)
	}
	if cnf.Sync.MaxAttempts != DEFAULT_MAX_ATTEMPTS {
		t.Errorf("Expected default max attempts %d, got %d", DEFAULT_MAX_ATTEMPTS, cnf.Sync.MaxAttempts)
	}
	if cnf.Sync.CleanupQueue != DEFAULT_CLEANUP_QUEUE {
		t.Errorf("Expected default cleanup queue %q, got %q", DEFAULT_CLEANUP_QUEUE, cnf.Sync.CleanupQueue)
	}
	if cnf.Sync.FastPathRetries == nil || *cnf.Sync.FastPathRetries != DEFAULT_FAST_PATH_RETRIES {
		t.Errorf("Expected default fast path retries %d, got %v", DEFAULT_FAST_PATH_RETRIES, cnf.Sync.FastPathRetries)
	}
	if cnf.Remote.TimeoutSec != DEFAULT_REMOTE_TIMEOUT_SEC {
		t.Errorf("Expected default remote timeout %d, got %d", DEFAULT_REMOTE_TIMEOUT_SEC, cnf.Remote.TimeoutSec)
	}
}

func TestValidateKeepsExplicitZero(t *testing.T) {
	zero := 0
	cnf := Configuration{
		Sync: SyncConfig{FastPathRetries: &zero, MinReplayGapSec: &zero},
	}
	err := cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if *cnf.Sync.FastPathRetries != 0 {
		t.Errorf("Expected explicit zero fast path retries to survive, got %d", *cnf.Sync.FastPathRetries)
	}
	if *cnf.Sync.MinReplayGapSec != 0 {
		t.Errorf("Expected explicit zero replay gap to survive, got %d", *cnf.Sync.MinReplayGapSec)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "tutorsync.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	cnf := Configuration{
		ProjectName: "Test Tutor",
		Redis:       RedisConfig{Dns: "localhost:6379"},
		Remote: RemoteConfig{
			ChatUrl: "http://localhost:5001/api/v1/chat",
		},
		Sync: SyncConfig{MaxAttempts: 5},
	}
	if err := json.NewEncoder(tmpFile).Encode(&cnf); err != nil {
		t.Fatalf("Unable to write temporary config: %v", err)
	}

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	loaded, err := Fetch()
	if err != nil {
		t.Fatalf("Expected config to be fetchable, got %v", err)
	}
	if loaded.ProjectName != "Test Tutor" {
		t.Errorf("Expected project name to load from file, got %q", loaded.ProjectName)
	}
	if loaded.Sync.MaxAttempts != 5 {
		t.Errorf("Expected max attempts from file, got %d", loaded.Sync.MaxAttempts)
	}
	if loaded.Sync.ReplayIntervalSec != DEFAULT_REPLAY_INTERVAL_SEC {
		t.Errorf("Expected replay interval default, got %d", loaded.Sync.ReplayIntervalSec)
	}
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "Mock"})
	cnf, err := Fetch()
	if err != nil {
		t.Fatalf("Expected mock config to be fetchable, got %v", err)
	}
	if cnf.ProjectName != "Mock" {
		t.Errorf("Expected mock project name, got %q", cnf.ProjectName)
	}
	if cnf.Sync.MaxAttempts != DEFAULT_MAX_ATTEMPTS {
		t.Errorf("Expected mock config to be defaulted, got %d", cnf.Sync.MaxAttempts)
	}
}
