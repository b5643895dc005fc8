package database

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inkvault/comictrack/internal/entities"
)

// ErrConflict is returned when an optimistic compare-and-set write loses to a
// concurrent writer more times than the retry budget allows. It is the only
// storage outcome callers should surface as a retriable server error.
var ErrConflict = errors.New("concurrent update conflict, retry")

// MaxCASRetries bounds optimistic-locking retries for one logical operation.
const MaxCASRetries = 3

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.ProgressRecord{},
		&entities.ReadingSession{},
		&entities.Bookmark{},
		&entities.LibraryEntry{},
		&entities.UserPreference{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DeleteUserData removes every row owned by the user in one transaction:
// progress records with their session logs, bookmarks, library entries, and
// preferences. Used by the account-deletion cascade.
func (d *Database) DeleteUserData(userID uint) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		var recordIDs []uint
		if err := tx.Model(&entities.ProgressRecord{}).
			Where("user_id = ?", userID).
			Pluck("id", &recordIDs).Error; err != nil {
			return err
		}
		if len(recordIDs) > 0 {
			if err := tx.Where("progress_record_id IN ?", recordIDs).
				Delete(&entities.ReadingSession{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&entities.ProgressRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&entities.Bookmark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&entities.LibraryEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&entities.UserPreference{}).Error
	})
}
