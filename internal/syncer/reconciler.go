// Package syncer reconciles per-device change batches against server state.
//
// Conflict rules, per entity kind:
//
//   - Library entries: strict last-write-wins on the client timestamp.
//   - Progress: last-write-wins for every field except current_page, which
//     always takes the maximum of both sides.
//   - Bookmarks: plain upsert by (comic, page), then aggregate invalidation.
//   - Preferences: key-by-key merge when the client timestamp is newer.
//
// A row the server creates lazily while applying a batch carries no prior
// write, so the delta that caused the creation always applies even though
// its client timestamp predates the creation stamp.
//
// A discarded delta is an expected merge outcome, observable only through
// the applied counts, never an error.
package syncer

import (
	"time"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/database/bookmarks"
	"github.com/inkvault/comictrack/internal/database/library"
	"github.com/inkvault/comictrack/internal/database/preferences"
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/entities"
)

// LibraryDelta is one client-reported library entry change.
type LibraryDelta struct {
	ComicID              uint      `json:"comic_id" binding:"required"`
	AccessType           *string   `json:"access_type,omitempty"`
	IsFavorite           *bool     `json:"is_favorite,omitempty"`
	Rating               *int      `json:"rating,omitempty"`
	Review               *string   `json:"review,omitempty"`
	TotalReadingTime     *int      `json:"total_reading_time,omitempty"`
	CompletionPercentage *float64  `json:"completion_percentage,omitempty"`
	UpdatedAt            time.Time `json:"updated_at" binding:"required"`
}

// ProgressDelta is one client-reported progress change.
type ProgressDelta struct {
	ComicID     uint      `json:"comic_id" binding:"required"`
	CurrentPage int       `json:"current_page"`
	TotalPages  *int      `json:"total_pages,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" binding:"required"`
}

// BookmarkDelta is one client-reported bookmark upsert.
type BookmarkDelta struct {
	ComicID    uint      `json:"comic_id" binding:"required"`
	PageNumber int       `json:"page_number"`
	Note       string    `json:"note,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PreferenceDelta is the client's reading preference map.
type PreferenceDelta struct {
	Preferences map[string]string `json:"preferences"`
	UpdatedAt   time.Time         `json:"updated_at" binding:"required"`
}

// Batch is one device's locally buffered changes. LastSyncAt selects which
// server rows are echoed back for catch-up; it never gates which incoming
// rows are applied.
type Batch struct {
	DeviceID    string           `json:"device_id" binding:"required"`
	LastSyncAt  *time.Time       `json:"last_sync_at,omitempty"`
	Library     []LibraryDelta   `json:"library"`
	Progress    []ProgressDelta  `json:"progress"`
	Bookmarks   []BookmarkDelta  `json:"bookmarks"`
	Preferences *PreferenceDelta `json:"preferences,omitempty"`
}

// Result summarizes one reconciliation: applied counts per category, the new
// sync token, and the server rows the client is behind on.
type Result struct {
	LibraryUpdates    int    `json:"library_updates"`
	ProgressUpdates   int    `json:"progress_updates"`
	BookmarkUpdates   int    `json:"bookmark_updates"`
	PreferenceUpdates int    `json:"preference_updates"`
	SyncToken         string `json:"sync_token"`

	ServerLibrary   []entities.LibraryEntry   `json:"server_library,omitempty"`
	ServerProgress  []entities.ProgressRecord `json:"server_progress,omitempty"`
	ServerBookmarks []entities.Bookmark       `json:"server_bookmarks,omitempty"`
}

// Reconciler applies device batches with deterministic conflict resolution.
type Reconciler struct {
	progress    *progress.Repository
	library     *library.Repository
	bookmarks   *bookmarks.Repository
	preferences *preferences.Repository
	clock       clock.Clock
}

// NewReconciler creates a new sync reconciler.
func NewReconciler(p *progress.Repository, l *library.Repository, b *bookmarks.Repository, pr *preferences.Repository, clk clock.Clock) *Reconciler {
	return &Reconciler{progress: p, library: l, bookmarks: b, preferences: pr, clock: clk}
}

// Reconcile merges a device batch into server state and returns the summary.
// Losing deltas are skipped silently; a storage conflict that survives the
// retry budget aborts the request so the client can resend the whole batch.
func (r *Reconciler) Reconcile(userID uint, batch Batch) (*Result, error) {
	result := &Result{}

	for _, delta := range batch.Library {
		applied, err := r.library.MergeDelta(userID, toLibraryDelta(delta))
		if err != nil {
			return nil, err
		}
		if applied {
			result.LibraryUpdates++
		}
	}

	for _, delta := range batch.Progress {
		applied, err := r.progress.MergeDelta(userID, delta.ComicID, delta.CurrentPage, delta.TotalPages, delta.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if applied {
			result.ProgressUpdates++
		}
	}

	for _, delta := range batch.Bookmarks {
		applied, err := r.upsertBookmark(userID, delta)
		if err != nil {
			return nil, err
		}
		if applied {
			result.BookmarkUpdates++
		}
	}

	if batch.Preferences != nil {
		applied, err := r.preferences.Merge(userID, batch.Preferences.Preferences, batch.Preferences.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if applied {
			result.PreferenceUpdates++
		}
	}

	if batch.LastSyncAt != nil {
		if err := r.collectServerState(userID, *batch.LastSyncAt, result); err != nil {
			return nil, err
		}
	}

	result.SyncToken = GenerateSyncToken(batch.DeviceID, r.clock.Now())
	return result, nil
}

// NeedsSync reports whether any library, progress, bookmark, or preference
// row for the user changed strictly after the given time. Cheap pre-check so
// clients can skip full sync calls.
func (r *Reconciler) NeedsSync(userID uint, since time.Time) (bool, error) {
	checks := []func(uint, time.Time) (bool, error){
		r.library.HasUpdatesSince,
		r.progress.HasUpdatesSince,
		r.bookmarks.HasUpdatesSince,
		r.preferences.HasUpdatesSince,
	}
	for _, check := range checks {
		updated, err := check(userID, since)
		if err != nil {
			return false, err
		}
		if updated {
			return true, nil
		}
	}
	return false, nil
}

// upsertBookmark applies one bookmark delta. Re-sending an identical
// bookmark is a no-op so a replayed batch counts zero updates.
func (r *Reconciler) upsertBookmark(userID uint, delta BookmarkDelta) (bool, error) {
	existing, err := r.bookmarks.GetForPage(userID, delta.ComicID, delta.PageNumber)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Note == delta.Note {
		return false, nil
	}
	if _, err := r.bookmarks.Upsert(userID, delta.ComicID, delta.PageNumber, delta.Note); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) collectServerState(userID uint, since time.Time, result *Result) error {
	var err error
	if result.ServerLibrary, err = r.library.UpdatedSince(userID, since); err != nil {
		return err
	}
	if result.ServerProgress, err = r.progress.UpdatedSince(userID, since); err != nil {
		return err
	}
	result.ServerBookmarks, err = r.bookmarks.UpdatedSince(userID, since)
	return err
}

func toLibraryDelta(delta LibraryDelta) library.Delta {
	out := library.Delta{
		ComicID:              delta.ComicID,
		IsFavorite:           delta.IsFavorite,
		Rating:               delta.Rating,
		Review:               delta.Review,
		TotalReadingTime:     delta.TotalReadingTime,
		CompletionPercentage: delta.CompletionPercentage,
		UpdatedAt:            delta.UpdatedAt,
	}
	if delta.AccessType != nil {
		switch access := entities.AccessType(*delta.AccessType); access {
		case entities.AccessTypeFree, entities.AccessTypePurchased, entities.AccessTypeSubscription:
			out.AccessType = &access
		}
	}
	return out
}
