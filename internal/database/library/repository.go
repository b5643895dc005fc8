// Package library provides database operations for per-user library entries:
// access grants, favorites, ratings, reviews, and the coarse reading-time
// counter kept alongside the session-level aggregates.
//
// Writes are guarded by the same version compare-and-set discipline as the
// progress repository.
package library

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/entities"
)

// ErrInvalidRating rejects explicit rating writes outside [1,5]. There is no
// safe default to clamp to, so this is a hard validation error.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Repository handles all library entry database operations.
type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewRepository creates a new library repository.
func NewRepository(db *gorm.DB, clk clock.Clock) *Repository {
	return &Repository{db: db, clock: clk}
}

// Get returns the library entry for (user, comic), or nil if none exists.
func (r *Repository) Get(userID, comicID uint) (*entities.LibraryEntry, error) {
	var entry entities.LibraryEntry
	err := r.db.Where("user_id = ? AND comic_id = ?", userID, comicID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetOrCreate returns the library entry for (user, comic), creating a free
// entry lazily on first interaction.
func (r *Repository) GetOrCreate(userID, comicID uint) (*entities.LibraryEntry, error) {
	entry, _, err := r.getOrCreate(userID, comicID)
	return entry, err
}

// getOrCreate additionally reports whether this call created the row, so
// merge paths can tell a real prior write from a lazy creation stamp.
func (r *Repository) getOrCreate(userID, comicID uint) (*entities.LibraryEntry, bool, error) {
	entry, err := r.Get(userID, comicID)
	if err != nil {
		return nil, false, err
	}
	if entry != nil {
		return entry, false, nil
	}

	token, err := generateSyncToken()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate sync token: %w", err)
	}

	entry = &entities.LibraryEntry{
		UserID:          userID,
		ComicID:         comicID,
		AccessType:      entities.AccessTypeFree,
		DeviceSyncToken: token,
	}
	if err := r.db.Create(entry).Error; err != nil {
		if existing, getErr := r.Get(userID, comicID); getErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return entry, true, nil
}

// ListForUser returns all library entries for a user, most recently
// accessed first.
func (r *Repository) ListForUser(userID uint) ([]entities.LibraryEntry, error) {
	var entries []entities.LibraryEntry
	err := r.db.Where("user_id = ?", userID).
		Order("last_accessed_at DESC").Find(&entries).Error
	return entries, err
}

// SetRating sets the rating and optional review. Rating must be in [1,5].
func (r *Repository) SetRating(userID, comicID uint, rating int, review *string) (*entities.LibraryEntry, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	return r.updateWithRetry(userID, comicID, func(entry *entities.LibraryEntry) {
		value := rating
		entry.Rating = &value
		if review != nil {
			entry.Review = *review
		}
	})
}

// SetFavorite toggles the favorite flag.
func (r *Repository) SetFavorite(userID, comicID uint, favorite bool) (*entities.LibraryEntry, error) {
	return r.updateWithRetry(userID, comicID, func(entry *entities.LibraryEntry) {
		entry.IsFavorite = favorite
	})
}

// GrantAccess records an access grant written by the payments collaborator.
// The price and expiry are stored as given; billing correctness lives
// upstream.
func (r *Repository) GrantAccess(userID, comicID uint, accessType entities.AccessType, price float64, expiresAt *time.Time) (*entities.LibraryEntry, error) {
	return r.updateWithRetry(userID, comicID, func(entry *entities.LibraryEntry) {
		entry.AccessType = accessType
		entry.PurchasePrice = price
		entry.AccessExpiresAt = expiresAt
		if accessType == entities.AccessTypePurchased && entry.PurchasedAt == nil {
			now := r.clock.Now()
			entry.PurchasedAt = &now
		}
	})
}

// AddReadingTime adds seconds to the coarse reading-time counter and stamps
// last_accessed_at.
func (r *Repository) AddReadingTime(userID, comicID uint, seconds int) (*entities.LibraryEntry, error) {
	return r.updateWithRetry(userID, comicID, func(entry *entities.LibraryEntry) {
		if seconds > 0 {
			entry.TotalReadingTime += seconds
		}
		now := r.clock.Now()
		entry.LastAccessedAt = &now
	})
}

// SetCompletionPercentage stores the clamped completion percentage.
func (r *Repository) SetCompletionPercentage(userID, comicID uint, pct float64) (*entities.LibraryEntry, error) {
	return r.updateWithRetry(userID, comicID, func(entry *entities.LibraryEntry) {
		entry.CompletionPercentage = clampPercentage(pct)
	})
}

// RegenerateSyncToken replaces the device sync token on demand.
func (r *Repository) RegenerateSyncToken(userID, comicID uint) (*entities.LibraryEntry, error) {
	token, err := generateSyncToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate sync token: %w", err)
	}
	return r.updateWithRetry(userID, comicID, func(entry *entities.LibraryEntry) {
		entry.DeviceSyncToken = token
	})
}

// Delta is one client-reported library change applied by MergeDelta.
type Delta struct {
	ComicID              uint
	AccessType           *entities.AccessType
	IsFavorite           *bool
	Rating               *int
	Review               *string
	TotalReadingTime     *int
	CompletionPercentage *float64
	UpdatedAt            time.Time
}

// MergeDelta applies a client delta under strict last-write-wins: the entry
// is overwritten only when the client timestamp is strictly newer than the
// stored row; otherwise the delta is discarded silently. A row lazily created
// by this call has no prior write to defend, so the delta always applies
// there regardless of its timestamp. Returns whether the delta was applied.
// Out-of-range ratings in a sync batch are dropped rather than failing the
// whole batch.
func (r *Repository) MergeDelta(userID uint, delta Delta) (bool, error) {
	applied := false
	_, err := r.mergeWithRetry(userID, delta.ComicID, func(entry *entities.LibraryEntry, created bool) bool {
		if !created && !delta.UpdatedAt.After(entry.UpdatedAt) {
			applied = false
			return false
		}
		applied = true

		if delta.AccessType != nil {
			entry.AccessType = *delta.AccessType
		}
		if delta.IsFavorite != nil {
			entry.IsFavorite = *delta.IsFavorite
		}
		if delta.Rating != nil && *delta.Rating >= 1 && *delta.Rating <= 5 {
			value := *delta.Rating
			entry.Rating = &value
		}
		if delta.Review != nil {
			entry.Review = *delta.Review
		}
		if delta.TotalReadingTime != nil && *delta.TotalReadingTime >= 0 {
			entry.TotalReadingTime = *delta.TotalReadingTime
		}
		if delta.CompletionPercentage != nil {
			entry.CompletionPercentage = clampPercentage(*delta.CompletionPercentage)
		}
		entry.UpdatedAt = delta.UpdatedAt
		return true
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// HasUpdatesSince reports whether any library entry for the user was updated
// strictly after the given time.
func (r *Repository) HasUpdatesSince(userID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&entities.LibraryEntry{}).
		Where("user_id = ? AND updated_at > ?", userID, since).
		Count(&count).Error
	return count > 0, err
}

// UpdatedSince returns the user's library entries updated strictly after the
// given time, for sync catch-up responses.
func (r *Repository) UpdatedSince(userID uint, since time.Time) ([]entities.LibraryEntry, error) {
	var entries []entities.LibraryEntry
	err := r.db.Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").Find(&entries).Error
	return entries, err
}

// CountForUser returns the user's library size and favorite count.
func (r *Repository) CountForUser(userID uint) (total int64, favorites int64, err error) {
	err = r.db.Model(&entities.LibraryEntry{}).Where("user_id = ?", userID).Count(&total).Error
	if err != nil {
		return
	}
	err = r.db.Model(&entities.LibraryEntry{}).
		Where("user_id = ? AND is_favorite = ?", userID, true).
		Count(&favorites).Error
	return
}

func (r *Repository) updateWithRetry(userID, comicID uint, mutate func(entry *entities.LibraryEntry)) (*entities.LibraryEntry, error) {
	return r.mergeWithRetry(userID, comicID, func(entry *entities.LibraryEntry, _ bool) bool {
		entry.UpdatedAt = r.clock.Now()
		mutate(entry)
		return true
	})
}

func (r *Repository) mergeWithRetry(userID, comicID uint, mutate func(entry *entities.LibraryEntry, created bool) bool) (*entities.LibraryEntry, error) {
	for attempt := 0; attempt < database.MaxCASRetries; attempt++ {
		entry, created, err := r.getOrCreate(userID, comicID)
		if err != nil {
			return nil, err
		}
		if !mutate(entry, created) {
			return entry, nil
		}
		prev := entry.Version
		entry.Version++
		res := r.db.Model(&entities.LibraryEntry{}).
			Where("id = ? AND version = ?", entry.ID, prev).
			UpdateColumns(entryColumns(entry))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return entry, nil
		}
	}
	return nil, database.ErrConflict
}

func entryColumns(entry *entities.LibraryEntry) map[string]any {
	return map[string]any{
		"access_type":           entry.AccessType,
		"purchase_price":        entry.PurchasePrice,
		"purchased_at":          entry.PurchasedAt,
		"access_expires_at":     entry.AccessExpiresAt,
		"is_favorite":           entry.IsFavorite,
		"rating":                entry.Rating,
		"review":                entry.Review,
		"total_reading_time":    entry.TotalReadingTime,
		"completion_percentage": entry.CompletionPercentage,
		"last_accessed_at":      entry.LastAccessedAt,
		"device_sync_token":     entry.DeviceSyncToken,
		"version":               entry.Version,
		"updated_at":            entry.UpdatedAt,
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

func generateSyncToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
