package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/inkvault/comictrack/internal/reading"
)

// CloseStaleSessionsTask force-ends reading sessions that have been active
// longer than MaxAge, for clients that disappeared without sending end.
// Enqueued on a schedule by the maintenance cron.
type CloseStaleSessionsTask struct {
	MaxAge time.Duration `json:"max_age"`
}

// Config returns the queue configuration for the stale-session sweeper.
func (t CloseStaleSessionsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "close_stale_sessions",
		MaxAttempts: 2,
		Backoff:     time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CloseStaleSessionsProcessor creates a processor function for
// CloseStaleSessionsTask.
func CloseStaleSessionsProcessor(manager *reading.SessionManager) backlite.QueueProcessor[CloseStaleSessionsTask] {
	return func(ctx context.Context, task CloseStaleSessionsTask) error {
		if manager == nil {
			return fmt.Errorf("session manager not configured")
		}

		closed, err := manager.CloseStale(task.MaxAge)
		if err != nil {
			return fmt.Errorf("close stale sessions: %w", err)
		}
		if closed > 0 {
			log.Printf("[TASK] Closed %d stale reading sessions (max age %s)", closed, task.MaxAge)
		}
		return nil
	}
}

// NewCloseStaleSessionsQueue creates a backlite queue for the stale-session
// sweeper.
func NewCloseStaleSessionsQueue(manager *reading.SessionManager) backlite.Queue {
	return backlite.NewQueue(CloseStaleSessionsProcessor(manager))
}
