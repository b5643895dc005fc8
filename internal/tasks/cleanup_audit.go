package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/inkvault/comictrack/internal/audit"
)

// CleanupAuditTask removes audit files older than the retention period.
type CleanupAuditTask struct {
	Retention time.Duration `json:"retention"`
}

// Config returns the queue configuration for audit cleanup tasks.
func (t CleanupAuditTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_audit",
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

// CleanupAuditProcessor creates a processor function for CleanupAuditTask.
func CleanupAuditProcessor(auditor *audit.Auditor) backlite.QueueProcessor[CleanupAuditTask] {
	return func(ctx context.Context, task CleanupAuditTask) error {
		if auditor == nil {
			return fmt.Errorf("auditor not configured")
		}

		removed, err := auditor.Cleanup(task.Retention)
		if err != nil {
			return fmt.Errorf("cleanup audit files: %w", err)
		}
		if removed > 0 {
			log.Printf("[TASK] Removed %d audit files older than %s", removed, task.Retention)
		}
		return nil
	}
}

// NewCleanupAuditQueue creates a backlite queue for audit cleanup tasks.
func NewCleanupAuditQueue(auditor *audit.Auditor) backlite.Queue {
	return backlite.NewQueue(CleanupAuditProcessor(auditor))
}
