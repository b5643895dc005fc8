package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/reading"
)

// StatisticsStore defines the read-only aggregations consumed by the
// achievement and dashboard subsystems. Implemented by
// reading.StatisticsService.
type StatisticsStore interface {
	GetReadingStatistics(userID, comicID uint) (*reading.ComicStatistics, error)
	GetUserReadingStatistics(userID uint) (*reading.UserStatistics, error)
}

// RecomputeQueue enqueues background analytics rebuilds. Implemented by
// tasks.Client. May be nil when the task queue is disabled.
type RecomputeQueue interface {
	EnqueueRecompute(userID, comicID uint) error
}

type StatsController struct {
	store StatisticsStore
	queue RecomputeQueue
}

func NewStatsController(store StatisticsStore, queue RecomputeQueue) *StatsController {
	return &StatsController{store: store, queue: queue}
}

// GetComicStats returns the per-comic reading statistics.
// GET /api/stats/comic?user_id=&comic_id=
func (sc *StatsController) GetComicStats(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}
	comicID, ok := parseQueryID(c, "comic_id")
	if !ok {
		return
	}

	stats, err := sc.store.GetReadingStatistics(userID, comicID)
	if err != nil {
		respondInternalError(c, err, "get comic stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetUserStats returns the cross-comic reading statistics for a user.
// GET /api/stats/user?user_id=
func (sc *StatsController) GetUserStats(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}

	stats, err := sc.store.GetUserReadingStatistics(userID)
	if err != nil {
		respondInternalError(c, err, "get user stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

type recomputeRequest struct {
	UserID  uint `json:"user_id" binding:"required"`
	ComicID uint `json:"comic_id" binding:"required"`
}

// RecomputeStats enqueues a background rebuild of one record's derived
// session statistics from its session log. Operator tooling for repairing
// records after manual data fixes.
// POST /api/stats/recompute
func (sc *StatsController) RecomputeStats(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if sc.queue == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "task queue disabled"})
		return
	}

	if err := sc.queue.EnqueueRecompute(req.UserID, req.ComicID); err != nil {
		respondInternalError(c, err, "enqueue recompute")
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Message: "recompute scheduled"})
}
