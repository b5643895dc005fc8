package progress

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *clock.Fake, func()) {
	dbPath := "./test_progress_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&entities.ProgressRecord{},
		&entities.ReadingSession{},
	)
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	repo := NewRepository(db, clk)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, clk, cleanup
}

func intPtr(v int) *int {
	return &v
}

func TestRepository_GetOrCreate_New(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.GetOrCreate(1, 10, 100)

	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, uint(1), rec.UserID)
	assert.Equal(t, uint(10), rec.ComicID)
	assert.Equal(t, 100, rec.TotalPages)
	assert.Equal(t, 0, rec.CurrentPage)
	assert.False(t, rec.IsCompleted)
}

func TestRepository_GetOrCreate_Existing(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec1, err := repo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	// Second call must not reset the page count seed
	rec2, err := repo.GetOrCreate(1, 10, 50)
	require.NoError(t, err)
	assert.Equal(t, rec1.ID, rec2.ID)
	assert.Equal(t, 100, rec2.TotalPages)
}

func TestRepository_Get_Missing(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.Get(1, 999)

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepository_UpdateProgress_Percentage(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.UpdateProgress(1, 10, 25, intPtr(100))

	require.NoError(t, err)
	assert.Equal(t, 25, rec.CurrentPage)
	assert.Equal(t, 100, rec.TotalPages)
	assert.InDelta(t, 25.0, rec.ProgressPercentage, 0.001)
	assert.False(t, rec.IsCompleted)
	assert.NotNil(t, rec.LastReadAt)
}

func TestRepository_UpdateProgress_Completion(t *testing.T) {
	repo, clk, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.UpdateProgress(1, 10, 100, intPtr(100))

	require.NoError(t, err)
	assert.True(t, rec.IsCompleted)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(clk.Now()))
	assert.InDelta(t, 100.0, rec.ProgressPercentage, 0.001)
}

func TestRepository_UpdateProgress_CompletedAtIsOneShot(t *testing.T) {
	repo, clk, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.UpdateProgress(1, 10, 100, intPtr(100))
	require.NoError(t, err)
	firstCompletion := *rec.CompletedAt

	// Re-reading earlier pages drops the completed flag but keeps the
	// original completion timestamp
	clk.Advance(time.Hour)
	rec, err = repo.UpdateProgress(1, 10, 40, nil)
	require.NoError(t, err)
	assert.False(t, rec.IsCompleted)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(firstCompletion))

	// Completing again keeps the first timestamp too
	rec, err = repo.UpdateProgress(1, 10, 100, nil)
	require.NoError(t, err)
	assert.True(t, rec.IsCompleted)
	assert.True(t, rec.CompletedAt.Equal(firstCompletion))
}

func TestRepository_UpdateProgress_ClampsNegativePage(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.UpdateProgress(1, 10, -5, intPtr(100))

	require.NoError(t, err)
	assert.Equal(t, 0, rec.CurrentPage)
	assert.InDelta(t, 0.0, rec.ProgressPercentage, 0.001)
}

func TestRepository_UpdateProgress_PageBeyondTotal(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.UpdateProgress(1, 10, 150, intPtr(100))

	require.NoError(t, err)
	assert.Equal(t, 150, rec.CurrentPage)
	assert.InDelta(t, 100.0, rec.ProgressPercentage, 0.001)
	assert.True(t, rec.IsCompleted)
}

func TestRepository_UpdateProgress_UnknownTotalPages(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.UpdateProgress(1, 10, 42, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, rec.CurrentPage)
	assert.Equal(t, 0, rec.TotalPages)
	assert.InDelta(t, 0.0, rec.ProgressPercentage, 0.001)
	assert.False(t, rec.IsCompleted)
}

func TestRepository_MergePreferences_PreservesUnrelatedKeys(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.MergePreferences(1, 10, map[string]string{"zoom": "fit-width", "mode": "single"})
	require.NoError(t, err)

	rec, err := repo.MergePreferences(1, 10, map[string]string{"mode": "double"})
	require.NoError(t, err)

	assert.Equal(t, "fit-width", rec.ReadingPreferences["zoom"])
	assert.Equal(t, "double", rec.ReadingPreferences["mode"])
}

func TestRepository_MergeDelta_NewerClientWins(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).Truncate(time.Second)
	applied, err := repo.MergeDelta(1, 10, 30, intPtr(100), future)

	require.NoError(t, err)
	assert.True(t, applied)

	rec, err := repo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 30, rec.CurrentPage)
}

func TestRepository_MergeDelta_PageNeverRegresses(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().Add(time.Hour).Truncate(time.Second)

	// Device A reports page 80 at T
	applied, err := repo.MergeDelta(1, 10, 80, intPtr(100), base)
	require.NoError(t, err)
	assert.True(t, applied)

	// Device B reports page 60 at T+1m: newer timestamp wins the metadata,
	// but the page keeps the maximum
	applied, err = repo.MergeDelta(1, 10, 60, intPtr(100), base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, applied)

	rec, err := repo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 80, rec.CurrentPage)
}

func TestRepository_MergeDelta_StaleLowerPageDiscarded(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().Add(time.Hour).Truncate(time.Second)

	applied, err := repo.MergeDelta(1, 10, 80, intPtr(100), base)
	require.NoError(t, err)
	assert.True(t, applied)

	// Older timestamp and no page advance: nothing to do
	applied, err = repo.MergeDelta(1, 10, 50, intPtr(100), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, applied)

	rec, err := repo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 80, rec.CurrentPage)
}

func TestRepository_MergeDelta_ReplayIsIdempotent(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	ts := time.Now().Add(time.Hour).Truncate(time.Second)

	applied, err := repo.MergeDelta(1, 10, 30, intPtr(100), ts)
	require.NoError(t, err)
	assert.True(t, applied)

	// Replaying the identical delta compares equal, not newer
	applied, err = repo.MergeDelta(1, 10, 30, intPtr(100), ts)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRepository_MergeDelta_FirstSyncCreatesRecordWithPastTimestamp(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	// First delta for a comic the server has never seen: the lazily created
	// record must take the client's total_pages even though the client clock
	// is behind the creation stamp.
	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	applied, err := repo.MergeDelta(1, 10, 33, intPtr(100), ts)
	require.NoError(t, err)
	assert.True(t, applied)

	rec, err := repo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 33, rec.CurrentPage)
	assert.Equal(t, 100, rec.TotalPages)
	assert.InDelta(t, 33.0, rec.ProgressPercentage, 0.001)

	// Retrying the same batch is still a no-op
	applied, err = repo.MergeDelta(1, 10, 33, intPtr(100), ts)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRepository_SaveRecordCAS_DetectsConcurrentWrite(t *testing.T) {
	repo, clk, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	// Two readers load the same version
	first := *rec
	second := *rec

	first.CurrentPage = 5
	first.UpdatedAt = clk.Now()
	ok, err := repo.SaveRecordCAS(&first)
	require.NoError(t, err)
	assert.True(t, ok)

	second.CurrentPage = 9
	second.UpdatedAt = clk.Now()
	ok, err = repo.SaveRecordCAS(&second)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.CurrentPage)
}

func TestRepository_SessionLog(t *testing.T) {
	repo, clk, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	s := &entities.ReadingSession{
		UUID:             "session-1",
		ProgressRecordID: rec.ID,
		StartedAt:        clk.Now(),
		StartPage:        0,
		IsActive:         true,
		Metadata:         entities.JSONMap{},
	}
	require.NoError(t, repo.CreateSession(s))

	active, err := repo.ActiveSession(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "session-1", active.UUID)

	ended := clk.Now().Add(30 * time.Minute)
	endPage := 20
	active.EndedAt = &ended
	active.EndPage = &endPage
	active.PagesRead = 20
	active.DurationMinutes = 30
	active.IsActive = false
	require.NoError(t, repo.SaveSession(active))

	none, err := repo.ActiveSession(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	sessions, err := repo.EndedSessions(rec.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 30, sessions[0].DurationMinutes)
}

func TestRepository_ListSessions_Pagination(t *testing.T) {
	repo, clk, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s := &entities.ReadingSession{
			UUID:             "s-" + string(rune('a'+i)),
			ProgressRecordID: rec.ID,
			StartedAt:        clk.Now().Add(time.Duration(i) * time.Hour),
			Metadata:         entities.JSONMap{},
		}
		require.NoError(t, repo.CreateSession(s))
	}

	sessions, total, err := repo.ListSessions(rec.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, sessions, 2)
	// Newest first
	assert.Equal(t, "s-e", sessions[0].UUID)

	sessions, _, err = repo.ListSessions(rec.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-a", sessions[0].UUID)
}

func TestRepository_StaleActiveSessions(t *testing.T) {
	repo, clk, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := repo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	old := &entities.ReadingSession{
		UUID:             "old",
		ProgressRecordID: rec.ID,
		StartedAt:        clk.Now().Add(-10 * time.Hour),
		IsActive:         true,
		Metadata:         entities.JSONMap{},
	}
	fresh := &entities.ReadingSession{
		UUID:             "fresh",
		ProgressRecordID: rec.ID,
		StartedAt:        clk.Now().Add(-time.Hour),
		IsActive:         true,
		Metadata:         entities.JSONMap{},
	}
	require.NoError(t, repo.CreateSession(old))
	require.NoError(t, repo.CreateSession(fresh))

	stale, err := repo.StaleActiveSessions(clk.Now().Add(-8 * time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].UUID)
}

func TestRepository_CountAndTotalsForUser(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.UpdateProgress(1, 10, 100, intPtr(100))
	require.NoError(t, err)
	_, err = repo.UpdateProgress(1, 11, 5, intPtr(100))
	require.NoError(t, err)
	_, err = repo.UpdateProgress(2, 10, 50, intPtr(100))
	require.NoError(t, err)

	total, completed, err := repo.CountForUser(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), completed)
}
