// Package progress provides database operations for reading progress records
// and their append-only session logs.
//
// All read-modify-write sequences on a ProgressRecord go through an explicit
// compare-and-set on the version column so that two devices updating the same
// (user, comic) record cannot silently lose each other's writes.
//
// # Usage
//
//	repo := progress.NewRepository(db, clock.System())
//	rec, err := repo.UpdateProgress(userID, comicID, 42, nil)
package progress

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/entities"
)

// Repository handles all progress record database operations.
type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewRepository creates a new progress repository.
func NewRepository(db *gorm.DB, clk clock.Clock) *Repository {
	return &Repository{db: db, clock: clk}
}

// Transaction runs fn against a repository bound to a database transaction.
// The whole logical operation commits or none of it does.
func (r *Repository) Transaction(fn func(txRepo *Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, clock: r.clock})
	})
}

// Get returns the progress record for (user, comic), or nil if none exists.
func (r *Repository) Get(userID, comicID uint) (*entities.ProgressRecord, error) {
	var rec entities.ProgressRecord
	err := r.db.Where("user_id = ? AND comic_id = ?", userID, comicID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetOrCreate returns the progress record for (user, comic), creating it
// lazily on first interaction. totalPages seeds the page count for new
// records only; pass 0 when unknown.
func (r *Repository) GetOrCreate(userID, comicID uint, totalPages int) (*entities.ProgressRecord, error) {
	rec, _, err := r.getOrCreate(userID, comicID, totalPages)
	return rec, err
}

// getOrCreate additionally reports whether this call created the row, so
// merge paths can tell a real prior write from a lazy creation stamp.
func (r *Repository) getOrCreate(userID, comicID uint, totalPages int) (*entities.ProgressRecord, bool, error) {
	rec, err := r.Get(userID, comicID)
	if err != nil {
		return nil, false, err
	}
	if rec != nil {
		return rec, false, nil
	}

	rec = &entities.ProgressRecord{
		UserID:             userID,
		ComicID:            comicID,
		TotalPages:         max(0, totalPages),
		ReadingPreferences: entities.JSONMap{},
	}
	if err := r.db.Create(rec).Error; err != nil {
		// A concurrent creator may have won the unique-index race.
		if existing, getErr := r.Get(userID, comicID); getErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

// ApplyPageUpdate applies a page-position change to the record in memory:
// clamping, percentage derivation, and one-shot completion. This is the
// single completion path shared by direct progress updates, session end, and
// the sync reconciler.
func ApplyPageUpdate(rec *entities.ProgressRecord, currentPage int, totalPages *int, now time.Time) {
	if currentPage < 0 {
		currentPage = 0
	}
	rec.CurrentPage = currentPage
	if totalPages != nil && *totalPages >= 0 {
		rec.TotalPages = *totalPages
	}

	if rec.TotalPages > 0 {
		pct := float64(rec.CurrentPage) / float64(rec.TotalPages) * 100
		rec.ProgressPercentage = clampPercentage(pct)
		rec.IsCompleted = rec.CurrentPage >= rec.TotalPages
		if rec.IsCompleted && rec.CompletedAt == nil {
			completedAt := now
			rec.CompletedAt = &completedAt
		}
	}

	lastRead := now
	rec.LastReadAt = &lastRead
}

// UpdateProgress is the direct progress-update path, independent of sessions.
func (r *Repository) UpdateProgress(userID, comicID uint, currentPage int, totalPages *int) (*entities.ProgressRecord, error) {
	return r.updateWithRetry(userID, comicID, func(rec *entities.ProgressRecord) {
		ApplyPageUpdate(rec, currentPage, totalPages, r.clock.Now())
	})
}

// MergePreferences merges the given keys into the record's per-comic reading
// preferences. Existing unrelated keys are preserved.
func (r *Repository) MergePreferences(userID, comicID uint, prefs map[string]string) (*entities.ProgressRecord, error) {
	return r.updateWithRetry(userID, comicID, func(rec *entities.ProgressRecord) {
		if rec.ReadingPreferences == nil {
			rec.ReadingPreferences = entities.JSONMap{}
		}
		for k, v := range prefs {
			rec.ReadingPreferences[k] = v
		}
	})
}

// SetBookmarkAggregates overwrites the bookmark materialized-view fields.
// Only the bookmarks repository should call this.
func (r *Repository) SetBookmarkAggregates(userID, comicID uint, count int, lastBookmarkAt *time.Time) error {
	rec, err := r.Get(userID, comicID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Nothing to invalidate until the record exists.
		return nil
	}
	return r.db.Model(&entities.ProgressRecord{}).
		Where("id = ?", rec.ID).
		UpdateColumns(map[string]any{
			"bookmark_count":   count,
			"is_bookmarked":    count > 0,
			"last_bookmark_at": lastBookmarkAt,
			"updated_at":       r.clock.Now(),
		}).Error
}

// MergeDelta applies one client-reported progress delta. Every field follows
// last-write-wins on the client timestamp except current_page, which always
// takes the maximum of both sides so a lagging device can never roll a
// reader backward. A record lazily created by this call has no prior write to
// defend, so the delta always wins there regardless of its timestamp.
// Returns whether the stored row changed.
func (r *Repository) MergeDelta(userID, comicID uint, currentPage int, totalPages *int, clientUpdatedAt time.Time) (bool, error) {
	applied := false
	_, err := r.mergeWithRetry(userID, comicID, func(rec *entities.ProgressRecord, created bool) bool {
		newer := created || clientUpdatedAt.After(rec.UpdatedAt)
		page := max(rec.CurrentPage, max(0, currentPage))

		applied = newer || page != rec.CurrentPage
		if !applied {
			return false
		}

		total := (*int)(nil)
		if newer && totalPages != nil {
			total = totalPages
		}
		ApplyPageUpdate(rec, page, total, r.clock.Now())
		if newer {
			// Store the client ordering hint so replaying the same batch
			// compares equal instead of strictly newer.
			rec.UpdatedAt = clientUpdatedAt
		} else {
			rec.UpdatedAt = r.clock.Now()
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// HasUpdatesSince reports whether any progress record for the user was
// updated strictly after the given time.
func (r *Repository) HasUpdatesSince(userID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&entities.ProgressRecord{}).
		Where("user_id = ? AND updated_at > ?", userID, since).
		Count(&count).Error
	return count > 0, err
}

// UpdatedSince returns the user's progress records updated strictly after
// the given time, for sync catch-up responses.
func (r *Repository) UpdatedSince(userID uint, since time.Time) ([]entities.ProgressRecord, error) {
	var recs []entities.ProgressRecord
	err := r.db.Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").Find(&recs).Error
	return recs, err
}

// --- Session log ---

// ActiveSession returns the record's active session, or nil if none.
func (r *Repository) ActiveSession(recordID uint) (*entities.ReadingSession, error) {
	var s entities.ReadingSession
	err := r.db.Where("progress_record_id = ? AND is_active = ?", recordID, true).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession appends a session to the log.
func (r *Repository) CreateSession(s *entities.ReadingSession) error {
	return r.db.Create(s).Error
}

// SaveSession persists changes to an existing session row.
func (r *Repository) SaveSession(s *entities.ReadingSession) error {
	return r.db.Save(s).Error
}

// EndedSessions returns all sessions with ended_at set, oldest first. This is
// the authoritative input of the analytics aggregator.
func (r *Repository) EndedSessions(recordID uint) ([]entities.ReadingSession, error) {
	var sessions []entities.ReadingSession
	err := r.db.Where("progress_record_id = ? AND ended_at IS NOT NULL", recordID).
		Order("started_at ASC").Find(&sessions).Error
	return sessions, err
}

// ListSessions returns a page of the session log, newest first.
func (r *Repository) ListSessions(recordID uint, limit, offset int) ([]entities.ReadingSession, int64, error) {
	var total int64
	if err := r.db.Model(&entities.ReadingSession{}).
		Where("progress_record_id = ?", recordID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.Where("progress_record_id = ?", recordID).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var sessions []entities.ReadingSession
	err := query.Find(&sessions).Error
	return sessions, total, err
}

// StaleActiveSessions returns active sessions started before the cutoff,
// together with their owning records, for the maintenance sweeper.
func (r *Repository) StaleActiveSessions(before time.Time) ([]entities.ReadingSession, error) {
	var sessions []entities.ReadingSession
	err := r.db.Where("is_active = ? AND started_at < ?", true, before).
		Find(&sessions).Error
	return sessions, err
}

// GetByID returns a progress record by primary key.
func (r *Repository) GetByID(id uint) (*entities.ProgressRecord, error) {
	var rec entities.ProgressRecord
	if err := r.db.First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountForUser returns the number of progress records and how many of them
// are completed, for the statistics endpoints.
func (r *Repository) CountForUser(userID uint) (total int64, completed int64, err error) {
	err = r.db.Model(&entities.ProgressRecord{}).Where("user_id = ?", userID).Count(&total).Error
	if err != nil {
		return
	}
	err = r.db.Model(&entities.ProgressRecord{}).
		Where("user_id = ? AND is_completed = ?", userID, true).
		Count(&completed).Error
	return
}

// TotalsForUser sums reading minutes and ended-session counts across all of
// the user's progress records, for the statistics endpoints.
func (r *Repository) TotalsForUser(userID uint) (readingMinutes int64, sessions int64, err error) {
	row := r.db.Model(&entities.ProgressRecord{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(reading_time_minutes), 0), COALESCE(SUM(total_reading_sessions), 0)").
		Row()
	err = row.Scan(&readingMinutes, &sessions)
	return
}

// SaveRecordCAS persists the record guarded by the version column. Returns
// false when a concurrent writer got there first; callers retry with a fresh
// read. The caller is responsible for setting UpdatedAt.
func (r *Repository) SaveRecordCAS(rec *entities.ProgressRecord) (bool, error) {
	prev := rec.Version
	rec.Version++
	res := r.db.Model(&entities.ProgressRecord{}).
		Where("id = ? AND version = ?", rec.ID, prev).
		UpdateColumns(recordColumns(rec))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// updateWithRetry re-reads, mutates, and CAS-saves until it wins or the
// retry budget runs out.
func (r *Repository) updateWithRetry(userID, comicID uint, mutate func(rec *entities.ProgressRecord)) (*entities.ProgressRecord, error) {
	return r.mergeWithRetry(userID, comicID, func(rec *entities.ProgressRecord, _ bool) bool {
		rec.UpdatedAt = r.clock.Now()
		mutate(rec)
		return true
	})
}

// mergeWithRetry is updateWithRetry with an abortable mutator: returning
// false skips the write entirely, leaving the stored row untouched. The
// mutator is responsible for setting UpdatedAt when it commits and is told
// whether the row was created by this call.
func (r *Repository) mergeWithRetry(userID, comicID uint, mutate func(rec *entities.ProgressRecord, created bool) bool) (*entities.ProgressRecord, error) {
	for attempt := 0; attempt < database.MaxCASRetries; attempt++ {
		rec, created, err := r.getOrCreate(userID, comicID, 0)
		if err != nil {
			return nil, err
		}
		if !mutate(rec, created) {
			return rec, nil
		}
		ok, err := r.SaveRecordCAS(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	return nil, database.ErrConflict
}

func recordColumns(rec *entities.ProgressRecord) map[string]any {
	return map[string]any{
		"current_page":                   rec.CurrentPage,
		"total_pages":                    rec.TotalPages,
		"progress_percentage":            rec.ProgressPercentage,
		"is_completed":                   rec.IsCompleted,
		"completed_at":                   rec.CompletedAt,
		"first_read_at":                  rec.FirstReadAt,
		"last_read_at":                   rec.LastReadAt,
		"total_reading_sessions":         rec.TotalReadingSessions,
		"reading_time_minutes":           rec.ReadingTimeMinutes,
		"total_time_paused_minutes":      rec.TotalTimePausedMinutes,
		"average_session_duration":       rec.AverageSessionDuration,
		"pages_per_session_avg":          rec.PagesPerSessionAvg,
		"reading_speed_pages_per_minute": rec.ReadingSpeedPagesPerMin,
		"reading_preferences":            rec.ReadingPreferences,
		"version":                        rec.Version,
		"updated_at":                     rec.UpdatedAt,
	}
}

func clampPercentage(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
