package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/entities"
)

// ProgressStore defines the progress-tracking operations the progress
// endpoints need. Implemented by the progress repository.
type ProgressStore interface {
	Get(userID, comicID uint) (*entities.ProgressRecord, error)
	UpdateProgress(userID, comicID uint, currentPage int, totalPages *int) (*entities.ProgressRecord, error)
	MergePreferences(userID, comicID uint, prefs map[string]string) (*entities.ProgressRecord, error)
	ListSessions(recordID uint, limit, offset int) ([]entities.ReadingSession, int64, error)
}

type ProgressController struct {
	store ProgressStore
}

func NewProgressController(store ProgressStore) *ProgressController {
	return &ProgressController{store: store}
}

type updateProgressRequest struct {
	UserID      uint `json:"user_id" binding:"required"`
	ComicID     uint `json:"comic_id" binding:"required"`
	CurrentPage int  `json:"current_page"`
	TotalPages  *int `json:"total_pages,omitempty"`
}

type mergePreferencesRequest struct {
	UserID      uint              `json:"user_id" binding:"required"`
	ComicID     uint              `json:"comic_id" binding:"required"`
	Preferences map[string]string `json:"preferences" binding:"required"`
}

// UpdateProgress is the direct progress-update path, independent of
// sessions. Negative pages clamp to 0.
// POST /api/progress
func (pc *ProgressController) UpdateProgress(c *gin.Context) {
	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := pc.store.UpdateProgress(req.UserID, req.ComicID, req.CurrentPage, req.TotalPages)
	if err != nil {
		respondStorageError(c, err, "update progress")
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": rec})
}

// GetProgress returns the progress record for (user, comic).
// GET /api/progress?user_id=&comic_id=
func (pc *ProgressController) GetProgress(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}
	comicID, ok := parseQueryID(c, "comic_id")
	if !ok {
		return
	}

	rec, err := pc.store.Get(userID, comicID)
	if err != nil {
		respondInternalError(c, err, "get progress")
		return
	}
	if rec == nil {
		respondNotFound(c, "progress record")
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": rec})
}

// MergePreferences merges keys into the per-comic reading preferences,
// preserving unrelated stored keys.
// PUT /api/progress/preferences
func (pc *ProgressController) MergePreferences(c *gin.Context) {
	var req mergePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := pc.store.MergePreferences(req.UserID, req.ComicID, req.Preferences)
	if err != nil {
		respondStorageError(c, err, "merge preferences")
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": rec})
}

// ListSessions returns a page of the comic's session log, newest first.
// GET /api/progress/sessions?user_id=&comic_id=&limit=&offset=
func (pc *ProgressController) ListSessions(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}
	comicID, ok := parseQueryID(c, "comic_id")
	if !ok {
		return
	}

	rec, err := pc.store.Get(userID, comicID)
	if err != nil {
		respondInternalError(c, err, "list sessions")
		return
	}
	if rec == nil {
		respondNotFound(c, "progress record")
		return
	}

	limit := 50
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	sessions, total, err := pc.store.ListSessions(rec.ID, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}
