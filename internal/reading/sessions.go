package reading

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/entities"
)

// ComicCatalog is the read-only slice of the comic catalog the session
// manager consumes: page counts used to default total_pages on lazily
// created records.
type ComicCatalog interface {
	PageCount(comicID uint) (int, error)
}

// SessionManager drives the reading-session state machine:
// Idle -> Active (Start), Active -> Active (Pause), Active -> Idle (End).
// Calls that violate the machine are silent no-ops so flaky clients can
// retry any of them safely.
type SessionManager struct {
	repo    *progress.Repository
	catalog ComicCatalog
	clock   clock.Clock
}

// NewSessionManager creates a new session manager. catalog may be nil when
// no comic catalog is wired; total_pages then defaults to 0 until a client
// reports it.
func NewSessionManager(repo *progress.Repository, catalog ComicCatalog, clk clock.Clock) *SessionManager {
	return &SessionManager{repo: repo, catalog: catalog, clock: clk}
}

// Start opens a reading session. If the record already has an active session
// it is returned unchanged, so duplicate start calls never fork the log.
// Sets first_read_at on the record's first ever session.
func (m *SessionManager) Start(userID, comicID uint, metadata map[string]string) (*entities.ProgressRecord, *entities.ReadingSession, error) {
	totalPages := 0
	if m.catalog != nil {
		if pages, err := m.catalog.PageCount(comicID); err == nil && pages > 0 {
			totalPages = pages
		}
	}

	var rec *entities.ProgressRecord
	var session *entities.ReadingSession

	err := m.withRetry(func(tx *progress.Repository) error {
		r, err := tx.GetOrCreate(userID, comicID, totalPages)
		if err != nil {
			return err
		}

		active, err := tx.ActiveSession(r.ID)
		if err != nil {
			return err
		}
		if active != nil {
			rec, session = r, active
			return nil
		}

		now := m.clock.Now()
		s := &entities.ReadingSession{
			UUID:             uuid.NewString(),
			ProgressRecordID: r.ID,
			StartedAt:        now,
			StartPage:        r.CurrentPage,
			IsActive:         true,
			Metadata:         metadata,
		}
		if s.Metadata == nil {
			s.Metadata = entities.JSONMap{}
		}
		if err := tx.CreateSession(s); err != nil {
			return err
		}

		if r.FirstReadAt == nil {
			firstRead := now
			r.FirstReadAt = &firstRead
			r.UpdatedAt = now
			ok, err := tx.SaveRecordCAS(r)
			if err != nil {
				return err
			}
			if !ok {
				return database.ErrConflict
			}
		}

		rec, session = r, s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, session, nil
}

// Pause adds minutes to the active session's paused time. Without an active
// session this is a no-op; negative minutes clamp to 0.
func (m *SessionManager) Pause(userID, comicID uint, minutes int) (*entities.ProgressRecord, error) {
	if minutes < 0 {
		minutes = 0
	}

	var rec *entities.ProgressRecord
	err := m.withRetry(func(tx *progress.Repository) error {
		r, err := tx.Get(userID, comicID)
		if err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		rec = r

		active, err := tx.ActiveSession(r.ID)
		if err != nil {
			return err
		}
		if active == nil || minutes == 0 {
			return nil
		}

		active.PausedDurationMinutes += minutes
		return tx.SaveSession(active)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// End closes the active session at endPage, folds the result into the
// progress record, and recomputes the session analytics, all in one
// transaction. Without an active session it is a no-op returning the
// current record.
func (m *SessionManager) End(userID, comicID uint, endPage int, metadata map[string]string) (*entities.ProgressRecord, error) {
	var rec *entities.ProgressRecord
	err := m.withRetry(func(tx *progress.Repository) error {
		r, err := tx.Get(userID, comicID)
		if err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		rec = r

		active, err := tx.ActiveSession(r.ID)
		if err != nil {
			return err
		}
		if active == nil {
			return nil
		}

		updated, err := m.endSession(tx, r, active, endPage, metadata)
		if err != nil {
			return err
		}
		rec = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CurrentSession returns the active session for (user, comic), or nil.
func (m *SessionManager) CurrentSession(userID, comicID uint) (*entities.ReadingSession, error) {
	rec, err := m.repo.Get(userID, comicID)
	if err != nil || rec == nil {
		return nil, err
	}
	return m.repo.ActiveSession(rec.ID)
}

// HasActiveSession reports whether (user, comic) has an active session.
func (m *SessionManager) HasActiveSession(userID, comicID uint) (bool, error) {
	s, err := m.CurrentSession(userID, comicID)
	return s != nil, err
}

// CloseStale force-ends sessions that have been active longer than maxAge,
// ending them at their start page so no page progress is invented. Returns
// the number of sessions closed.
func (m *SessionManager) CloseStale(maxAge time.Duration) (int, error) {
	cutoff := m.clock.Now().Add(-maxAge)
	stale, err := m.repo.StaleActiveSessions(cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range stale {
		s := stale[i]
		err := m.withRetry(func(tx *progress.Repository) error {
			rec, err := tx.GetByID(s.ProgressRecordID)
			if err != nil {
				return err
			}
			active, err := tx.ActiveSession(rec.ID)
			if err != nil {
				return err
			}
			if active == nil || active.UUID != s.UUID {
				return nil
			}
			_, err = m.endSession(tx, rec, active, active.StartPage, nil)
			return err
		})
		if err != nil {
			log.Printf("Failed to close stale session %s: %v", s.UUID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

// endSession closes the session and updates the record inside the caller's
// transaction. Duration is wall time minus paused time, floored at 0;
// pages_read is floored at 0.
func (m *SessionManager) endSession(tx *progress.Repository, rec *entities.ProgressRecord, s *entities.ReadingSession, endPage int, metadata map[string]string) (*entities.ProgressRecord, error) {
	now := m.clock.Now()
	if endPage < 0 {
		endPage = 0
	}

	wallMinutes := int(now.Sub(s.StartedAt).Minutes())
	duration := wallMinutes - s.PausedDurationMinutes
	if duration < 0 {
		duration = 0
	}

	endedAt := now
	finalPage := endPage
	s.EndedAt = &endedAt
	s.EndPage = &finalPage
	s.PagesRead = max(0, endPage-s.StartPage)
	s.DurationMinutes = duration
	s.IsActive = false
	if s.Metadata == nil {
		s.Metadata = entities.JSONMap{}
	}
	for k, v := range metadata {
		s.Metadata[k] = v
	}
	if err := tx.SaveSession(s); err != nil {
		return nil, err
	}

	progress.ApplyPageUpdate(rec, endPage, nil, now)

	sessions, err := tx.EndedSessions(rec.ID)
	if err != nil {
		return nil, err
	}
	applyAnalytics(rec, Aggregate(sessions))

	rec.UpdatedAt = now
	ok, err := tx.SaveRecordCAS(rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, database.ErrConflict
	}
	return rec, nil
}

// withRetry reruns the transactional body when it loses the version race, up
// to the shared retry budget. Other errors propagate immediately.
func (m *SessionManager) withRetry(fn func(tx *progress.Repository) error) error {
	var err error
	for attempt := 0; attempt < database.MaxCASRetries; attempt++ {
		err = m.repo.Transaction(fn)
		if !errors.Is(err, database.ErrConflict) {
			return err
		}
	}
	return err
}
