package reading

import (
	"github.com/inkvault/comictrack/internal/database/bookmarks"
	"github.com/inkvault/comictrack/internal/database/library"
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/entities"
)

// ComicStatistics is the per-comic read-only aggregation consumed by the
// achievement and dashboard subsystems. Its shape is a stable contract.
type ComicStatistics struct {
	Progress  *entities.ProgressRecord `json:"progress,omitempty"`
	Library   *entities.LibraryEntry   `json:"library,omitempty"`
	Bookmarks int64                    `json:"bookmarks"`
}

// UserStatistics is the per-user read-only aggregation consumed by the
// achievement and dashboard subsystems. Its shape is a stable contract.
type UserStatistics struct {
	ComicsTracked      int64 `json:"comics_tracked"`
	ComicsCompleted    int64 `json:"comics_completed"`
	LibrarySize        int64 `json:"library_size"`
	Favorites          int64 `json:"favorites"`
	Bookmarks          int64 `json:"bookmarks"`
	ReadingTimeMinutes int64 `json:"reading_time_minutes"`
	TotalSessions      int64 `json:"total_sessions"`
}

// StatisticsService aggregates over progress, library, and bookmark state.
type StatisticsService struct {
	progress  *progress.Repository
	library   *library.Repository
	bookmarks *bookmarks.Repository
}

// NewStatisticsService creates a new statistics service.
func NewStatisticsService(p *progress.Repository, l *library.Repository, b *bookmarks.Repository) *StatisticsService {
	return &StatisticsService{progress: p, library: l, bookmarks: b}
}

// GetReadingStatistics returns the per-comic statistics for (user, comic).
func (s *StatisticsService) GetReadingStatistics(userID, comicID uint) (*ComicStatistics, error) {
	rec, err := s.progress.Get(userID, comicID)
	if err != nil {
		return nil, err
	}
	entry, err := s.library.Get(userID, comicID)
	if err != nil {
		return nil, err
	}
	count, err := s.bookmarks.CountForComic(userID, comicID)
	if err != nil {
		return nil, err
	}
	return &ComicStatistics{Progress: rec, Library: entry, Bookmarks: count}, nil
}

// GetUserReadingStatistics returns the cross-comic statistics for a user.
func (s *StatisticsService) GetUserReadingStatistics(userID uint) (*UserStatistics, error) {
	tracked, completed, err := s.progress.CountForUser(userID)
	if err != nil {
		return nil, err
	}
	librarySize, favorites, err := s.library.CountForUser(userID)
	if err != nil {
		return nil, err
	}
	bookmarkCount, err := s.bookmarks.CountForUser(userID)
	if err != nil {
		return nil, err
	}
	minutes, sessions, err := s.progress.TotalsForUser(userID)
	if err != nil {
		return nil, err
	}

	return &UserStatistics{
		ComicsTracked:      tracked,
		ComicsCompleted:    completed,
		LibrarySize:        librarySize,
		Favorites:          favorites,
		Bookmarks:          bookmarkCount,
		ReadingTimeMinutes: minutes,
		TotalSessions:      sessions,
	}, nil
}
