package bookmarks

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
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *progress.Repository, *clock.Fake, func()) {
	dbPath := "./test_bookmarks_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&entities.ProgressRecord{},
		&entities.ReadingSession{},
		&entities.Bookmark{},
	)
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	progressRepo := progress.NewRepository(db, clk)
	repo := NewRepository(db, clk, progressRepo)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, progressRepo, clk, cleanup
}

func TestRepository_Upsert_New(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	bookmark, err := repo.Upsert(1, 10, 42, "the reveal")

	require.NoError(t, err)
	assert.NotZero(t, bookmark.ID)
	assert.Equal(t, 42, bookmark.PageNumber)
	assert.Equal(t, "the reveal", bookmark.Note)
}

func TestRepository_Upsert_SamePageReplacesNote(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	first, err := repo.Upsert(1, 10, 42, "draft note")
	require.NoError(t, err)

	second, err := repo.Upsert(1, 10, 42, "final note")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "final note", second.Note)

	count, err := repo.CountForComic(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_Upsert_ClampsNegativePage(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	bookmark, err := repo.Upsert(1, 10, -3, "")

	require.NoError(t, err)
	assert.Equal(t, 0, bookmark.PageNumber)
}

func TestRepository_Upsert_SamePageDifferentComics(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.Upsert(1, 10, 42, "")
	require.NoError(t, err)
	_, err = repo.Upsert(1, 11, 42, "")
	require.NoError(t, err)

	count, err := repo.CountForUser(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRepository_Remove(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.Upsert(1, 10, 42, "")
	require.NoError(t, err)

	removed, err := repo.Remove(1, 10, 42)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(1, 10, 42)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepository_UpsertUpdatesProgressAggregates(t *testing.T) {
	repo, progressRepo, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := progressRepo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	_, err = repo.Upsert(1, 10, 5, "")
	require.NoError(t, err)
	_, err = repo.Upsert(1, 10, 9, "")
	require.NoError(t, err)

	rec, err := progressRepo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.BookmarkCount)
	assert.True(t, rec.IsBookmarked)
	assert.NotNil(t, rec.LastBookmarkAt)
}

func TestRepository_RemoveLastBookmarkResetsAggregates(t *testing.T) {
	repo, progressRepo, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := progressRepo.GetOrCreate(1, 10, 100)
	require.NoError(t, err)

	_, err = repo.Upsert(1, 10, 5, "")
	require.NoError(t, err)

	removed, err := repo.Remove(1, 10, 5)
	require.NoError(t, err)
	assert.True(t, removed)

	rec, err := progressRepo.Get(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.BookmarkCount)
	assert.False(t, rec.IsBookmarked)
	assert.Nil(t, rec.LastBookmarkAt)
}

func TestRepository_UpsertWithoutProgressRecord(t *testing.T) {
	repo, progressRepo, _, cleanup := setupTestDB(t)
	defer cleanup()

	// Bookmarking a comic that was never opened must not fail or create a
	// progress record
	_, err := repo.Upsert(1, 10, 5, "")
	require.NoError(t, err)

	rec, err := progressRepo.Get(1, 10)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepository_ListForComic_PageOrder(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	for _, page := range []int{30, 5, 12} {
		_, err := repo.Upsert(1, 10, page, "")
		require.NoError(t, err)
	}

	bookmarks, err := repo.ListForComic(1, 10)
	require.NoError(t, err)
	require.Len(t, bookmarks, 3)
	assert.Equal(t, 5, bookmarks[0].PageNumber)
	assert.Equal(t, 12, bookmarks[1].PageNumber)
	assert.Equal(t, 30, bookmarks[2].PageNumber)
}

func TestRepository_ExistsForPage(t *testing.T) {
	repo, _, _, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.Upsert(1, 10, 42, "")
	require.NoError(t, err)

	exists, err := repo.ExistsForPage(1, 10, 42)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForPage(1, 10, 43)
	require.NoError(t, err)
	assert.False(t, exists)
}
