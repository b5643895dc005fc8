// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - ProgressStore: Progress record reads and writes (internal/http/progress.go)
//   - BookmarkStore: Bookmark management (internal/http/bookmarks.go)
//   - LibraryStore: Ownership and rating management (internal/http/library.go)
//   - UserDataStore: Account data deletion (internal/http/users.go)
//   - ProgressAggregateWriter: Derived bookmark fields on progress records
//     (internal/database/bookmarks/repository.go)
//
// ## Domain Service Interfaces
//
//   - SessionStore: Reading session state machine (internal/http/sessions.go)
//   - SyncService: Multi-device batch reconciliation (internal/http/sync.go)
//   - StatisticsStore: Reading statistics aggregation (internal/http/stats.go)
//   - BatchAuditor: Sync batch persistence for debugging (internal/http/sync.go)
//   - ComicCatalog: Page counts from the comic catalog (internal/reading/sessions.go)
//
// # Adding a New Database Domain
//
// To add a new data domain:
//
//  1. Create sub-package: internal/database/<domain>/
//
//  2. Define repository:
//
//     type Repository struct { db *gorm.DB }
//
//     func NewRepository(db *gorm.DB, clk clock.Clock) *Repository
//
//  3. Declare the store interface next to the controller that consumes it,
//     in internal/http/
//
//  4. Add compile-time check in checks.go:
//
//     var _ http.SomeStore = (*Repository)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces
