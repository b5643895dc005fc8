// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inkvault/comictrack/internal/tasks"
)

// MaintenanceScheduler periodically enqueues background maintenance work:
// the stale-session sweep that closes sessions abandoned by disconnected
// clients, and the audit retention cleanup.
type MaintenanceScheduler struct {
	taskClient     *tasks.Client
	schedule       string
	staleAfter     time.Duration
	auditRetention time.Duration

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewMaintenanceScheduler creates a scheduler that enqueues maintenance
// tasks on the given cron schedule. auditRetention of zero disables the
// audit cleanup job.
func NewMaintenanceScheduler(taskClient *tasks.Client, schedule string, staleAfter, auditRetention time.Duration) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		taskClient:     taskClient,
		schedule:       schedule,
		staleAfter:     staleAfter,
		auditRetention: auditRetention,
		cron:           cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runMaintenance()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Maintenance scheduler: started with schedule '%s' (stale cutoff %s)", s.schedule, s.staleAfter)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Maintenance scheduler: stopped")
}

// RunNow triggers an immediate maintenance pass.
func (s *MaintenanceScheduler) RunNow() {
	go s.runMaintenance()
}

// IsRunning returns whether the scheduler is active.
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRunTime returns when the next maintenance pass will be enqueued.
func (s *MaintenanceScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	return &next
}

func (s *MaintenanceScheduler) runMaintenance() {
	sweep := tasks.CloseStaleSessionsTask{MaxAge: s.staleAfter}
	if _, err := s.taskClient.Add(sweep).Save(); err != nil {
		log.Printf("Maintenance scheduler: failed to enqueue session sweep: %v", err)
	}

	if s.auditRetention > 0 {
		cleanup := tasks.CleanupAuditTask{Retention: s.auditRetention}
		if _, err := s.taskClient.Add(cleanup).Save(); err != nil {
			log.Printf("Maintenance scheduler: failed to enqueue audit cleanup: %v", err)
		}
	}
}
