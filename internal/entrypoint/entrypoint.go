package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/audit"
	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/config"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/database/bookmarks"
	"github.com/inkvault/comictrack/internal/database/library"
	"github.com/inkvault/comictrack/internal/database/preferences"
	"github.com/inkvault/comictrack/internal/database/progress"
	http_controllers "github.com/inkvault/comictrack/internal/http"
	"github.com/inkvault/comictrack/internal/reading"
	"github.com/inkvault/comictrack/internal/scheduler"
	"github.com/inkvault/comictrack/internal/syncer"
	"github.com/inkvault/comictrack/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting ComicTrack v%s", version)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	clk := clock.System()

	// Repositories over the shared gorm handle
	progressRepo := progress.NewRepository(db.DB, clk)
	libraryRepo := library.NewRepository(db.DB, clk)
	bookmarkRepo := bookmarks.NewRepository(db.DB, clk, progressRepo)
	preferenceRepo := preferences.NewRepository(db.DB, clk)

	// Domain services
	sessionManager := reading.NewSessionManager(progressRepo, nil, clk)
	aggregator := reading.NewAggregator(progressRepo, clk)
	statsService := reading.NewStatisticsService(progressRepo, libraryRepo, bookmarkRepo)
	reconciler := syncer.NewReconciler(progressRepo, libraryRepo, bookmarkRepo, preferenceRepo, clk)

	// Create auditor for saving incoming sync batches
	var auditor *audit.Auditor
	var auditRetention time.Duration
	if cfg.Audit.Enabled {
		auditor = audit.NewAuditor(cfg.Audit.Dir)
		auditRetention = time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var maintScheduler *scheduler.MaintenanceScheduler
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		// Register task queues
		taskClient.Register(
			tasks.NewRecomputeAnalyticsQueue(aggregator),
			tasks.NewCloseStaleSessionsQueue(sessionManager),
			tasks.NewCleanupAuditQueue(auditor),
		)

		// Start task workers in background
		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		// Schedule the periodic stale-session sweep and audit cleanup
		maintScheduler = scheduler.NewMaintenanceScheduler(taskClient, cfg.Sessions.SweepSchedule, cfg.Sessions.StaleCutoff, auditRetention)
		if err := maintScheduler.Start(taskCtx); err != nil {
			log.Fatalf("Failed to start maintenance scheduler: %v", err)
		}
	}

	// Build router configuration with all dependencies
	routerCfg := http_controllers.RouterConfig{
		Sessions:   sessionManager,
		Progress:   progressRepo,
		Bookmarks:  bookmarkRepo,
		Library:    libraryRepo,
		Sync:       reconciler,
		Statistics: statsService,
		UserData:   db,
		Version:    version,
	}
	if auditor != nil {
		routerCfg.Auditor = auditor
	}
	if taskClient != nil {
		routerCfg.Recompute = taskClient
	}

	router := http_controllers.NewRouter(routerCfg)

	// Shutdown callback for graceful cleanup
	onShutdown := func(ctx context.Context) {
		if maintScheduler != nil {
			maintScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
