package entities

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type AccessType string

const (
	AccessTypeFree         AccessType = "free"
	AccessTypePurchased    AccessType = "purchased"
	AccessTypeSubscription AccessType = "subscription"
)

// JSONMap stores a free-form string map as a JSON text column.
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported type for JSONMap")
	}
}

// ProgressRecord is the per-user, per-comic reading state.
//
// The bookmark aggregate fields (BookmarkCount, IsBookmarked, LastBookmarkAt)
// are a materialized view over the bookmarks table; the bookmarks repository
// is their only writer. The analytics fields are derived from the session log
// and recomputed by the aggregator. Version backs optimistic compare-and-set.
type ProgressRecord struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	UserID  uint `gorm:"uniqueIndex:idx_progress_user_comic" json:"user_id"`
	ComicID uint `gorm:"uniqueIndex:idx_progress_user_comic" json:"comic_id"`

	CurrentPage        int     `json:"current_page"`
	TotalPages         int     `json:"total_pages"`
	ProgressPercentage float64 `json:"progress_percentage"`

	IsCompleted bool       `gorm:"default:false" json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FirstReadAt *time.Time `json:"first_read_at,omitempty"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`

	TotalReadingSessions    int     `json:"total_reading_sessions"`
	ReadingTimeMinutes      int     `json:"reading_time_minutes"`
	TotalTimePausedMinutes  int     `json:"total_time_paused_minutes"`
	AverageSessionDuration  float64 `json:"average_session_duration"`
	PagesPerSessionAvg      float64 `json:"pages_per_session_avg"`
	ReadingSpeedPagesPerMin float64 `gorm:"column:reading_speed_pages_per_minute" json:"reading_speed_pages_per_minute"`

	BookmarkCount  int        `json:"bookmark_count"`
	IsBookmarked   bool       `gorm:"default:false" json:"is_bookmarked"`
	LastBookmarkAt *time.Time `json:"last_bookmark_at,omitempty"`

	ReadingPreferences JSONMap `gorm:"type:text" json:"reading_preferences"`

	Sessions []ReadingSession `gorm:"foreignKey:ProgressRecordID" json:"reading_sessions,omitempty"`

	Version   int64     `gorm:"default:0" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReadingSession is one bounded interval of active reading. Sessions live in
// their own append-only table keyed by (progress_record_id, uuid) so that the
// log stays queryable and a concurrent append never rewrites the whole record.
type ReadingSession struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	UUID             string `gorm:"uniqueIndex;size:36" json:"uuid"`
	ProgressRecordID uint   `gorm:"index" json:"progress_record_id"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	StartPage int        `json:"start_page"`
	EndPage   *int       `json:"end_page,omitempty"`

	PagesRead             int  `json:"pages_read"`
	DurationMinutes       int  `json:"duration_minutes"`
	PausedDurationMinutes int  `json:"paused_duration_minutes"`
	IsActive              bool `gorm:"index;default:false" json:"is_active"`

	Metadata JSONMap `gorm:"type:text" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bookmark is a per-page annotation, logically unique per
// (user, comic, page). Re-bookmarking a page replaces the note.
type Bookmark struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	UserID     uint   `gorm:"uniqueIndex:idx_bookmark_user_comic_page" json:"user_id"`
	ComicID    uint   `gorm:"uniqueIndex:idx_bookmark_user_comic_page" json:"comic_id"`
	PageNumber int    `gorm:"uniqueIndex:idx_bookmark_user_comic_page" json:"page_number"`
	Note       string `gorm:"type:text" json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LibraryEntry is the per-user, per-comic ownership and review record.
// TotalReadingTime is a coarser, second-granularity counter that predates
// session-level tracking and is kept separate from the progress aggregates.
type LibraryEntry struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	UserID  uint `gorm:"uniqueIndex:idx_library_user_comic" json:"user_id"`
	ComicID uint `gorm:"uniqueIndex:idx_library_user_comic" json:"comic_id"`

	AccessType      AccessType `gorm:"size:20;default:'free'" json:"access_type"`
	PurchasePrice   float64    `json:"purchase_price,omitempty"`
	PurchasedAt     *time.Time `json:"purchased_at,omitempty"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`

	IsFavorite bool   `gorm:"default:false" json:"is_favorite"`
	Rating     *int   `json:"rating,omitempty"`
	Review     string `gorm:"type:text" json:"review,omitempty"`

	TotalReadingTime     int        `json:"total_reading_time"`
	CompletionPercentage float64    `json:"completion_percentage"`
	LastAccessedAt       *time.Time `json:"last_accessed_at,omitempty"`

	DeviceSyncToken string `gorm:"size:64" json:"device_sync_token,omitempty"`

	Version   int64     `gorm:"default:0" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPreference holds the single per-user reading preference map merged
// key-by-key during sync.
type UserPreference struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	UserID      uint    `gorm:"uniqueIndex" json:"user_id"`
	Preferences JSONMap `gorm:"type:text" json:"preferences"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}

func (ReadingSession) TableName() string {
	return "reading_sessions"
}

func (Bookmark) TableName() string {
	return "bookmarks"
}

func (LibraryEntry) TableName() string {
	return "library_entries"
}

func (UserPreference) TableName() string {
	return "user_preferences"
}
