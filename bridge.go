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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tutorwise/tutorsync/internal/cache"
	"github.com/tutorwise/tutorsync/internal/pubsub"
	"github.com/tutorwise/tutorsync/model"
)

// notificationChannel is where derived notifications surface in the UI.
const notificationChannel = "notifications"

// progressMilestones are the overall-completion percentages that earn a
// notification when first crossed.
var progressMilestones = []int{25, 50, 75, 100}

// dedupTTL bounds how long emitted-fact keys are remembered across
// restarts.
const dedupTTL = 30 * 24 * time.Hour

// Bridge listens to confirmed state changes and emits derived notification
// events. It owns no state of its own beyond the record of which facts it
// has already reacted to, which is what makes it idempotent under duplicate
// delivery of the same underlying state.
type Bridge struct {
	bus   *pubsub.Bus
	cache cache.Cache

	mu      sync.Mutex
	emitted map[string]bool
}

// NewBridge creates a bridge and subscribes it to the progress and
// achievement topics. The cache persists dedup keys across restarts; when
// it is nil or degraded the in-memory record still guards the session.
func NewBridge(bus *pubsub.Bus, c cache.Cache) *Bridge {
	b := &Bridge{
		bus:     bus,
		cache:   c,
		emitted: make(map[string]bool),
	}
	bus.Subscribe(TopicProgressUpdated, b.onProgress)
	bus.Subscribe(TopicAchievementUnlocked, b.onAchievement)
	return b
}

// onProgress derives notifications from a confirmed progress snapshot.
func (b *Bridge) onProgress(ctx context.Context, payload interface{}) {
	progress, ok := payload.(model.ProgressUpdate)
	if !ok {
		logrus.Errorf("bridge: unexpected payload on %s: %T", TopicProgressUpdated, payload)
		return
	}

	if progress.LessonCompleted && progress.LessonID != "" {
		b.emit(ctx, model.NotificationLessonCompleted,
			fmt.Sprintf("lesson_completed:%s", progress.LessonID),
			fmt.Sprintf("Nice work! You completed %q.", progress.LessonTitle),
			map[string]interface{}{"lesson_id": progress.LessonID},
		)
	}

	for _, milestone := range progressMilestones {
		if progress.OverallPercent >= float64(milestone) {
			b.emit(ctx, model.NotificationMilestone,
				fmt.Sprintf("milestone:%d", milestone),
				fmt.Sprintf("You're %d%% of the way through your learning path!", milestone),
				map[string]interface{}{"percent": milestone},
			)
		}
	}

	if progress.StreakDays > 0 && progress.StreakDays%7 == 0 {
		b.emit(ctx, model.NotificationStreak,
			fmt.Sprintf("streak:%d", progress.StreakDays),
			fmt.Sprintf("%d-day streak! Keep it going.", progress.StreakDays),
			map[string]interface{}{"streak_days": progress.StreakDays},
		)
	}

	if progress.SkillMastered && progress.SkillID != "" {
		b.emit(ctx, model.NotificationSkillMastered,
			fmt.Sprintf("skill_mastered:%s", progress.SkillID),
			fmt.Sprintf("You mastered %s!", progress.SkillName),
			map[string]interface{}{"skill_id": progress.SkillID},
		)
	}
}

// onAchievement derives a notification from a confirmed achievement
// unlock.
func (b *Bridge) onAchievement(ctx context.Context, payload interface{}) {
	achievement, ok := payload.(model.Achievement)
	if !ok {
		logrus.Errorf("bridge: unexpected payload on %s: %T", TopicAchievementUnlocked, payload)
		return
	}

	b.emit(ctx, model.NotificationAchievement,
		fmt.Sprintf("achievement:%s", achievement.AchievementID),
		fmt.Sprintf("Achievement unlocked: %s", achievement.Title),
		map[string]interface{}{"achievement_id": achievement.AchievementID},
	)
}

// emit publishes a notification event unless the triggering fact has
// already been reacted to. The fact key, not the message, is what dedup is
// keyed on.
func (b *Bridge) emit(ctx context.Context, kind, factKey, message string, data map[string]interface{}) {
	if b.seen(ctx, factKey) {
		return
	}

	event := model.NotificationEvent{
		EventID:   model.GenerateUUIDWithSuffix("ntf"),
		Kind:      kind,
		Channel:   notificationChannel,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}
	b.bus.Publish(ctx, TopicNotificationCreated, event)
}

// seen checks and records the fact key, in memory and, when available, in
// the cache so a restart does not re-emit old notifications.
func (b *Bridge) seen(ctx context.Context, factKey string) bool {
	b.mu.Lock()
	if b.emitted[factKey] {
		b.mu.Unlock()
		return true
	}
	b.emitted[factKey] = true
	b.mu.Unlock()

	if b.cache == nil {
		return false
	}

	cacheKey := "tutorsync:bridge:" + factKey
	var marker bool
	if err := b.cache.Get(ctx, cacheKey, &marker); err == nil && marker {
		return true
	}
	if err := b.cache.Set(ctx, cacheKey, true, dedupTTL); err != nil {
		logrus.Errorf("bridge: failed to persist dedup key %s: %v", factKey, err)
	}
	return false
}
