package http

import (
	"github.com/gin-gonic/gin"
)

// RouterConfig carries all dependencies required by the HTTP controllers.
type RouterConfig struct {
	Sessions   SessionStore
	Progress   ProgressStore
	Bookmarks  BookmarkStore
	Library    LibraryStore
	Sync       SyncService
	Statistics StatisticsStore
	UserData   UserDataStore
	Auditor    BatchAuditor
	Recompute  RecomputeQueue
	Version    string
}

// NewRouter builds the gin engine with all API routes registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	healthController := NewHealthController(cfg.Version)
	sessionController := NewSessionController(cfg.Sessions)
	progressController := NewProgressController(cfg.Progress)
	bookmarkController := NewBookmarkController(cfg.Bookmarks)
	libraryController := NewLibraryController(cfg.Library)
	syncController := NewSyncController(cfg.Sync, cfg.Auditor)
	statsController := NewStatsController(cfg.Statistics, cfg.Recompute)
	userController := NewUserController(cfg.UserData)

	api := router.Group("/api")
	{
		api.GET("/health", healthController.Health)

		api.POST("/sessions/start", sessionController.StartSession)
		api.POST("/sessions/pause", sessionController.PauseSession)
		api.POST("/sessions/end", sessionController.EndSession)
		api.GET("/sessions/current", sessionController.GetCurrentSession)

		api.POST("/progress", progressController.UpdateProgress)
		api.GET("/progress", progressController.GetProgress)
		api.PUT("/progress/preferences", progressController.MergePreferences)
		api.GET("/progress/sessions", progressController.ListSessions)

		api.POST("/bookmarks", bookmarkController.UpsertBookmark)
		api.DELETE("/bookmarks", bookmarkController.RemoveBookmark)
		api.GET("/bookmarks", bookmarkController.ListBookmarks)

		api.GET("/library", libraryController.ListLibrary)
		api.PUT("/library/rating", libraryController.SetRating)
		api.PUT("/library/favorite", libraryController.SetFavorite)
		api.POST("/library/access", libraryController.GrantAccess)
		api.POST("/library/token", libraryController.RegenerateToken)

		api.POST("/sync", syncController.Sync)
		api.GET("/sync/check", syncController.CheckSync)

		api.GET("/stats/comic", statsController.GetComicStats)
		api.GET("/stats/user", statsController.GetUserStats)
		api.POST("/stats/recompute", statsController.RecomputeStats)

		api.DELETE("/users/:id/data", userController.DeleteUserData)
	}

	return router
}
