package database

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkvault/comictrack/internal/entities"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	dbPath := "./test_database_" + t.Name() + ".db"

	db, err := NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func TestDeleteUserData_CascadesAllTables(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	rec := &entities.ProgressRecord{UserID: 1, ComicID: 10, CurrentPage: 5, ReadingPreferences: entities.JSONMap{}}
	require.NoError(t, db.DB.Create(rec).Error)
	session := &entities.ReadingSession{UUID: "s-1", ProgressRecordID: rec.ID, Metadata: entities.JSONMap{}}
	require.NoError(t, db.DB.Create(session).Error)
	require.NoError(t, db.DB.Create(&entities.Bookmark{UserID: 1, ComicID: 10, PageNumber: 3}).Error)
	require.NoError(t, db.DB.Create(&entities.LibraryEntry{UserID: 1, ComicID: 10}).Error)
	require.NoError(t, db.DB.Create(&entities.UserPreference{UserID: 1, Preferences: entities.JSONMap{}}).Error)

	// Another user's data must survive
	otherRec := &entities.ProgressRecord{UserID: 2, ComicID: 10, ReadingPreferences: entities.JSONMap{}}
	require.NoError(t, db.DB.Create(otherRec).Error)
	require.NoError(t, db.DB.Create(&entities.Bookmark{UserID: 2, ComicID: 10, PageNumber: 7}).Error)

	require.NoError(t, db.DeleteUserData(1))

	var count int64
	db.DB.Model(&entities.ProgressRecord{}).Where("user_id = ?", 1).Count(&count)
	assert.Zero(t, count)
	db.DB.Model(&entities.ReadingSession{}).Where("progress_record_id = ?", rec.ID).Count(&count)
	assert.Zero(t, count)
	db.DB.Model(&entities.Bookmark{}).Where("user_id = ?", 1).Count(&count)
	assert.Zero(t, count)
	db.DB.Model(&entities.LibraryEntry{}).Where("user_id = ?", 1).Count(&count)
	assert.Zero(t, count)
	db.DB.Model(&entities.UserPreference{}).Where("user_id = ?", 1).Count(&count)
	assert.Zero(t, count)

	db.DB.Model(&entities.ProgressRecord{}).Where("user_id = ?", 2).Count(&count)
	assert.Equal(t, int64(1), count)
	db.DB.Model(&entities.Bookmark{}).Where("user_id = ?", 2).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDeleteUserData_NoRowsIsFine(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NoError(t, db.DeleteUserData(42))
}
