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
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_REPLAY_INTERVAL_SEC = 30
	DEFAULT_MAX_ATTEMPTS        = 3
	DEFAULT_CLEANUP_WINDOW_SEC  = 60
	DEFAULT_MAX_ACTION_AGE_SEC  = 604800 // 7 days
	DEFAULT_FAST_PATH_RETRIES   = 2
	DEFAULT_MIN_REPLAY_GAP_SEC  = 2
	DEFAULT_CLEANUP_QUEUE       = "sync:cleanup"
	DEFAULT_REMOTE_TIMEOUT_SEC  = 15
)

var ConfigStore atomic.Value

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"TUTORSYNC_REDIS_DNS"`
}

// RemoteConfig holds the endpoints of the tutor backend the sync core
// replays actions against.
type RemoteConfig struct {
	ChatUrl        string            `json:"chat_url" envconfig:"TUTORSYNC_REMOTE_CHAT_URL"`
	ProgressUrl    string            `json:"progress_url" envconfig:"TUTORSYNC_REMOTE_PROGRESS_URL"`
	AssessmentUrl  string            `json:"assessment_url" envconfig:"TUTORSYNC_REMOTE_ASSESSMENT_URL"`
	PreferencesUrl string            `json:"preferences_url" envconfig:"TUTORSYNC_REMOTE_PREFERENCES_URL"`
	TimeoutSec     int               `json:"timeout_sec" envconfig:"TUTORSYNC_REMOTE_TIMEOUT_SEC"`
	Headers        map[string]string `json:"headers"`
}

// SyncConfig tunes the offline queue and the retry engine.
type SyncConfig struct {
	ReplayIntervalSec int    `json:"replay_interval_sec" envconfig:"TUTORSYNC_SYNC_REPLAY_INTERVAL_SEC"`
	MaxAttempts       int    `json:"max_attempts" envconfig:"TUTORSYNC_SYNC_MAX_ATTEMPTS"`
	CleanupWindowSec  int    `json:"cleanup_window_sec" envconfig:"TUTORSYNC_SYNC_CLEANUP_WINDOW_SEC"`
	MaxActionAgeSec   int    `json:"max_action_age_sec" envconfig:"TUTORSYNC_SYNC_MAX_ACTION_AGE_SEC"`
	FastPathRetries   *int   `json:"fast_path_retries" envconfig:"TUTORSYNC_SYNC_FAST_PATH_RETRIES"`
	MinReplayGapSec   *int   `json:"min_replay_gap_sec" envconfig:"TUTORSYNC_SYNC_MIN_REPLAY_GAP_SEC"`
	CleanupQueue      string `json:"cleanup_queue" envconfig:"TUTORSYNC_SYNC_CLEANUP_QUEUE"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string       `json:"project_name" envconfig:"TUTORSYNC_PROJECT_NAME"`
	Redis        RedisConfig  `json:"redis"`
	Remote       RemoteConfig `json:"remote"`
	Sync         SyncConfig   `json:"sync"`
	Notification Notification `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("tutorsync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called tutorsync.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "TutorWise Sync"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Redis is optional: without it the durable store degrades to a no-op
	// and queued actions survive only for the session.
	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Offline durability is disabled for this session.")
	}

	if cnf.Remote.ChatUrl == "" {
		log.Println("Warning: Remote chat URL is empty. Chat submissions will fail until it is configured.")
	}
	if cnf.Remote.TimeoutSec <= 0 {
		cnf.Remote.TimeoutSec = DEFAULT_REMOTE_TIMEOUT_SEC
	}

	if cnf.Sync.ReplayIntervalSec <= 0 {
		cnf.Sync.ReplayIntervalSec = DEFAULT_REPLAY_INTERVAL_SEC
	}
	if cnf.Sync.MaxAttempts <= 0 {
		cnf.Sync.MaxAttempts = DEFAULT_MAX_ATTEMPTS
	}
	if cnf.Sync.CleanupWindowSec <= 0 {
		cnf.Sync.CleanupWindowSec = DEFAULT_CLEANUP_WINDOW_SEC
	}
	if cnf.Sync.MaxActionAgeSec <= 0 {
		cnf.Sync.MaxActionAgeSec = DEFAULT_MAX_ACTION_AGE_SEC
	}
	// Pointer fields so an explicit zero survives defaulting.
	if cnf.Sync.FastPathRetries == nil {
		defaultRetries := DEFAULT_FAST_PATH_RETRIES
		cnf.Sync.FastPathRetries = &defaultRetries
	}
	if cnf.Sync.MinReplayGapSec == nil {
		defaultGap := DEFAULT_MIN_REPLAY_GAP_SEC
		cnf.Sync.MinReplayGapSec = &defaultGap
	}
	if cnf.Sync.CleanupQueue == "" {
		cnf.Sync.CleanupQueue = DEFAULT_CLEANUP_QUEUE
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
