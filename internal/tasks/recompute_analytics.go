package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/inkvault/comictrack/internal/reading"
)

// RecomputeAnalyticsTask rebuilds the derived session statistics of one
// progress record from its session log.
type RecomputeAnalyticsTask struct {
	UserID  uint `json:"user_id"`
	ComicID uint `json:"comic_id"`
}

// Config returns the queue configuration for analytics recompute tasks.
func (t RecomputeAnalyticsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "recompute_analytics",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// RecomputeAnalyticsProcessor creates a processor function for
// RecomputeAnalyticsTask.
func RecomputeAnalyticsProcessor(aggregator *reading.Aggregator) backlite.QueueProcessor[RecomputeAnalyticsTask] {
	return func(ctx context.Context, task RecomputeAnalyticsTask) error {
		if aggregator == nil {
			return fmt.Errorf("aggregator not configured")
		}

		rec, err := aggregator.Recompute(task.UserID, task.ComicID)
		if err != nil {
			return fmt.Errorf("recompute analytics user=%d comic=%d: %w", task.UserID, task.ComicID, err)
		}
		if rec == nil {
			log.Printf("[TASK] No progress record for user=%d comic=%d, nothing to recompute", task.UserID, task.ComicID)
			return nil
		}

		log.Printf("[TASK] Recomputed analytics for user=%d comic=%d: %d sessions, %d minutes",
			task.UserID, task.ComicID, rec.TotalReadingSessions, rec.ReadingTimeMinutes)
		return nil
	}
}

// NewRecomputeAnalyticsQueue creates a backlite queue for analytics
// recompute tasks.
func NewRecomputeAnalyticsQueue(aggregator *reading.Aggregator) backlite.Queue {
	return backlite.NewQueue(RecomputeAnalyticsProcessor(aggregator))
}

// EnqueueRecompute schedules an analytics rebuild for one record.
func (c *Client) EnqueueRecompute(userID, comicID uint) error {
	_, err := c.Add(RecomputeAnalyticsTask{UserID: userID, ComicID: comicID}).Save()
	return err
}
