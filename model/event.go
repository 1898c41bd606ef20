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

import "time"

// Notification kinds emitted by the reconciliation bridge.
const (
	NotificationLessonCompleted = "lesson.completed"
	NotificationMilestone       = "progress.milestone"
	NotificationStreak          = "streak.multiple"
	NotificationSkillMastered   = "skill.mastered"
	NotificationAchievement     = "achievement.unlocked"
)

// NotificationEvent is the derived event the bridge emits when a confirmed
// state transition qualifies. These tuples are the only externally visible
// side effect of the bridge.
type NotificationEvent struct {
	EventID   string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Channel   string                 `json:"channel"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ProgressUpdate is a confirmed progress state the bridge observes. It is a
// snapshot, not a delta; the bridge derives deltas by tracking which facts
// it has already reacted to.
type ProgressUpdate struct {
	LessonID        string  `json:"lesson_id"`
	LessonTitle     string  `json:"lesson_title"`
	LessonCompleted bool    `json:"lesson_completed"`
	OverallPercent  float64 `json:"overall_percent"`
	StreakDays      int     `json:"streak_days"`
	SkillID         string  `json:"skill_id,omitempty"`
	SkillName       string  `json:"skill_name,omitempty"`
	SkillMastered   bool    `json:"skill_mastered"`
}

// Achievement is a confirmed achievement unlock observed by the bridge.
type Achievement struct {
	AchievementID string `json:"id"`
	Title         string `json:"title"`
}
