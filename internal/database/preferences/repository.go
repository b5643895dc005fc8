// Package preferences stores the single per-user reading preference map
// merged key-by-key by the sync reconciler.
package preferences

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/entities"
)

// Repository handles user preference database operations.
type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewRepository creates a new preferences repository.
func NewRepository(db *gorm.DB, clk clock.Clock) *Repository {
	return &Repository{db: db, clock: clk}
}

// Get returns the user's preference row, or nil if none exists.
func (r *Repository) Get(userID uint) (*entities.UserPreference, error) {
	var pref entities.UserPreference
	err := r.db.Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// GetOrCreate returns the user's preference row, creating an empty one when
// missing.
func (r *Repository) GetOrCreate(userID uint) (*entities.UserPreference, error) {
	pref, _, err := r.getOrCreate(userID)
	return pref, err
}

// getOrCreate additionally reports whether this call created the row, so
// Merge can tell a real prior write from a lazy creation stamp.
func (r *Repository) getOrCreate(userID uint) (*entities.UserPreference, bool, error) {
	pref, err := r.Get(userID)
	if err != nil {
		return nil, false, err
	}
	if pref != nil {
		return pref, false, nil
	}

	pref = &entities.UserPreference{
		UserID:      userID,
		Preferences: entities.JSONMap{},
	}
	if err := r.db.Create(pref).Error; err != nil {
		if existing, getErr := r.Get(userID); getErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return pref, true, nil
}

// Merge applies a client preference map under last-write-wins: when the
// client timestamp is strictly newer than the stored row, incoming keys
// overwrite matching stored keys and unrelated keys are preserved; otherwise
// the map is discarded. A row lazily created by this call has no prior write
// to defend, so the first map always applies regardless of its timestamp.
// Returns whether the merge was applied.
func (r *Repository) Merge(userID uint, incoming map[string]string, clientUpdatedAt time.Time) (bool, error) {
	pref, created, err := r.getOrCreate(userID)
	if err != nil {
		return false, err
	}
	if !created && !clientUpdatedAt.After(pref.UpdatedAt) {
		return false, nil
	}

	if pref.Preferences == nil {
		pref.Preferences = entities.JSONMap{}
	}
	for k, v := range incoming {
		pref.Preferences[k] = v
	}

	err = r.db.Model(&entities.UserPreference{}).
		Where("id = ?", pref.ID).
		UpdateColumns(map[string]any{
			"preferences": pref.Preferences,
			"updated_at":  clientUpdatedAt,
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasUpdatesSince reports whether the user's preferences were updated
// strictly after the given time.
func (r *Repository) HasUpdatesSince(userID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&entities.UserPreference{}).
		Where("user_id = ? AND updated_at > ?", userID, since).
		Count(&count).Error
	return count > 0, err
}
