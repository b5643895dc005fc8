package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/inkvault/comictrack/internal/audit"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/database/bookmarks"
	"github.com/inkvault/comictrack/internal/database/library"
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/http"
	"github.com/inkvault/comictrack/internal/reading"
	"github.com/inkvault/comictrack/internal/syncer"
	"github.com/inkvault/comictrack/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// ProgressStore implementations
var _ http.ProgressStore = (*progress.Repository)(nil)

// BookmarkStore implementations
var _ http.BookmarkStore = (*bookmarks.Repository)(nil)

// LibraryStore implementations
var _ http.LibraryStore = (*library.Repository)(nil)

// UserDataStore implementations
var _ http.UserDataStore = (*database.Database)(nil)

// ProgressAggregateWriter implementations
var _ bookmarks.ProgressAggregateWriter = (*progress.Repository)(nil)

// =============================================================================
// Domain Services
// =============================================================================

// SessionStore implementations
var _ http.SessionStore = (*reading.SessionManager)(nil)

// SyncService implementations
var _ http.SyncService = (*syncer.Reconciler)(nil)

// StatisticsStore implementations
var _ http.StatisticsStore = (*reading.StatisticsService)(nil)

// BatchAuditor implementations
var _ http.BatchAuditor = (*audit.Auditor)(nil)

// RecomputeQueue implementations
var _ http.RecomputeQueue = (*tasks.Client)(nil)
