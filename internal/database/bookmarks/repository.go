// Package bookmarks provides database operations for per-page bookmarks and
// keeps the bookmark aggregates on the progress record in step with the
// bookmark table.
//
// The aggregates (bookmark_count, is_bookmarked, last_bookmark_at) are a
// materialized view: SyncWithProgress is their single write path and must run
// after every add or remove.
package bookmarks

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/entities"
)

// ProgressAggregateWriter is the slice of the progress repository the
// bookmark view invalidation needs.
type ProgressAggregateWriter interface {
	SetBookmarkAggregates(userID, comicID uint, count int, lastBookmarkAt *time.Time) error
}

// Repository handles all bookmark database operations.
type Repository struct {
	db       *gorm.DB
	clock    clock.Clock
	progress ProgressAggregateWriter
}

// NewRepository creates a new bookmark repository.
func NewRepository(db *gorm.DB, clk clock.Clock, progress ProgressAggregateWriter) *Repository {
	return &Repository{db: db, clock: clk, progress: progress}
}

// Upsert inserts a bookmark or, when the page is already bookmarked for this
// user and comic, replaces its note. Negative page numbers clamp to 0.
func (r *Repository) Upsert(userID, comicID uint, page int, note string) (*entities.Bookmark, error) {
	if page < 0 {
		page = 0
	}

	now := r.clock.Now()
	bookmark := entities.Bookmark{
		UserID:     userID,
		ComicID:    comicID,
		PageNumber: page,
		Note:       note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "comic_id"}, {Name: "page_number"}},
		DoUpdates: clause.Assignments(map[string]any{
			"note":       note,
			"updated_at": now,
		}),
	}).Create(&bookmark).Error
	if err != nil {
		return nil, err
	}

	if err := r.SyncWithProgress(userID, comicID); err != nil {
		return nil, err
	}
	return r.GetForPage(userID, comicID, page)
}

// Remove deletes the bookmark for a page. Returns whether a row was deleted.
func (r *Repository) Remove(userID, comicID uint, page int) (bool, error) {
	res := r.db.Where("user_id = ? AND comic_id = ? AND page_number = ?", userID, comicID, page).
		Delete(&entities.Bookmark{})
	if res.Error != nil {
		return false, res.Error
	}
	if err := r.SyncWithProgress(userID, comicID); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// ExistsForPage reports whether the page is bookmarked.
func (r *Repository) ExistsForPage(userID, comicID uint, page int) (bool, error) {
	var count int64
	err := r.db.Model(&entities.Bookmark{}).
		Where("user_id = ? AND comic_id = ? AND page_number = ?", userID, comicID, page).
		Count(&count).Error
	return count > 0, err
}

// CountForComic returns the number of bookmarks for (user, comic).
func (r *Repository) CountForComic(userID, comicID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Bookmark{}).
		Where("user_id = ? AND comic_id = ?", userID, comicID).
		Count(&count).Error
	return count, err
}

// CountForUser returns the user's total bookmark count across comics.
func (r *Repository) CountForUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Bookmark{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ListForComic returns the bookmarks for (user, comic) in page order.
func (r *Repository) ListForComic(userID, comicID uint) ([]entities.Bookmark, error) {
	var bookmarks []entities.Bookmark
	err := r.db.Where("user_id = ? AND comic_id = ?", userID, comicID).
		Order("page_number ASC").Find(&bookmarks).Error
	return bookmarks, err
}

// SyncWithProgress recomputes the bookmark aggregates on the progress record
// from the bookmark table: count, flag, and the newest updated_at (null when
// the last bookmark is gone).
func (r *Repository) SyncWithProgress(userID, comicID uint) error {
	count, err := r.CountForComic(userID, comicID)
	if err != nil {
		return err
	}

	var lastBookmarkAt *time.Time
	if count > 0 {
		var newest entities.Bookmark
		err := r.db.Where("user_id = ? AND comic_id = ?", userID, comicID).
			Order("updated_at DESC").First(&newest).Error
		if err != nil {
			return err
		}
		lastBookmarkAt = &newest.UpdatedAt
	}

	return r.progress.SetBookmarkAggregates(userID, comicID, int(count), lastBookmarkAt)
}

// HasUpdatesSince reports whether any bookmark for the user was updated
// strictly after the given time.
func (r *Repository) HasUpdatesSince(userID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&entities.Bookmark{}).
		Where("user_id = ? AND updated_at > ?", userID, since).
		Count(&count).Error
	return count > 0, err
}

// UpdatedSince returns the user's bookmarks updated strictly after the given
// time, for sync catch-up responses.
func (r *Repository) UpdatedSince(userID uint, since time.Time) ([]entities.Bookmark, error) {
	var bookmarks []entities.Bookmark
	err := r.db.Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").Find(&bookmarks).Error
	return bookmarks, err
}

// GetForPage returns the bookmark for a page, or nil if the page is not
// bookmarked.
func (r *Repository) GetForPage(userID, comicID uint, page int) (*entities.Bookmark, error) {
	var bookmark entities.Bookmark
	err := r.db.Where("user_id = ? AND comic_id = ? AND page_number = ?", userID, comicID, page).
		First(&bookmark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bookmark, nil
}
