// Package reading implements the reading-session state machine and the
// session-log analytics derived from it.
package reading

import (
	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/entities"
)

// Analytics holds the derived statistics of one session log. It is a pure
// function of the ended sessions and never a source of truth, so recomputing
// it from scratch is always safe.
type Analytics struct {
	TotalSessions              int     `json:"total_sessions"`
	ReadingTimeMinutes         int     `json:"reading_time_minutes"`
	TotalTimePausedMinutes     int     `json:"total_time_paused_minutes"`
	AverageSessionDuration     float64 `json:"average_session_duration"`
	PagesPerSessionAvg         float64 `json:"pages_per_session_avg"`
	ReadingSpeedPagesPerMinute float64 `json:"reading_speed_pages_per_minute"`
}

// Aggregate derives analytics from a session log. Sessions without ended_at
// are ignored.
func Aggregate(sessions []entities.ReadingSession) Analytics {
	var a Analytics
	var totalPages int

	for _, s := range sessions {
		if s.EndedAt == nil {
			continue
		}
		a.TotalSessions++
		a.ReadingTimeMinutes += s.DurationMinutes
		a.TotalTimePausedMinutes += s.PausedDurationMinutes
		totalPages += s.PagesRead
	}

	if a.TotalSessions > 0 {
		a.AverageSessionDuration = float64(a.ReadingTimeMinutes) / float64(a.TotalSessions)
		a.PagesPerSessionAvg = float64(totalPages) / float64(a.TotalSessions)
	}
	if a.ReadingTimeMinutes > 0 {
		a.ReadingSpeedPagesPerMinute = float64(totalPages) / float64(a.ReadingTimeMinutes)
	}
	return a
}

func applyAnalytics(rec *entities.ProgressRecord, a Analytics) {
	rec.TotalReadingSessions = a.TotalSessions
	rec.ReadingTimeMinutes = a.ReadingTimeMinutes
	rec.TotalTimePausedMinutes = a.TotalTimePausedMinutes
	rec.AverageSessionDuration = a.AverageSessionDuration
	rec.PagesPerSessionAvg = a.PagesPerSessionAvg
	rec.ReadingSpeedPagesPerMin = a.ReadingSpeedPagesPerMinute
}

// Aggregator recomputes a record's analytics fields from its session log.
type Aggregator struct {
	repo  *progress.Repository
	clock clock.Clock
}

// NewAggregator creates a new analytics aggregator.
func NewAggregator(repo *progress.Repository, clk clock.Clock) *Aggregator {
	return &Aggregator{repo: repo, clock: clk}
}

// Recompute reloads the session log and rewrites the record's derived
// fields. Safe to call at any time and from the task queue.
func (ag *Aggregator) Recompute(userID, comicID uint) (*entities.ProgressRecord, error) {
	for attempt := 0; attempt < database.MaxCASRetries; attempt++ {
		rec, err := ag.repo.Get(userID, comicID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}

		sessions, err := ag.repo.EndedSessions(rec.ID)
		if err != nil {
			return nil, err
		}

		applyAnalytics(rec, Aggregate(sessions))
		rec.UpdatedAt = ag.clock.Now()

		ok, err := ag.repo.SaveRecordCAS(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	return nil, database.ErrConflict
}
