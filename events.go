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

// Bus topics published by the sync core. Payload types are noted per topic.
const (
	// TopicConnectivityChanged carries a bool: true when the client came
	// online, false when it went offline.
	TopicConnectivityChanged = "connectivity.changed"

	// TopicEntryConfirmed carries the confirmed *model.OptimisticEntry.
	TopicEntryConfirmed = "entry.confirmed"

	// TopicProgressUpdated carries a model.ProgressUpdate snapshot.
	TopicProgressUpdated = "progress.updated"

	// TopicAchievementUnlocked carries a model.Achievement.
	TopicAchievementUnlocked = "achievement.unlocked"

	// TopicNotificationCreated carries the model.NotificationEvent the
	// bridge derived.
	TopicNotificationCreated = "notification.created"

	// TopicSyncFailed carries the terminal failure message for a queued
	// action that exhausted its retry budget.
	TopicSyncFailed = "sync.failed"
)
