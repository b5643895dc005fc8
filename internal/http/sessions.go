package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/entities"
)

// SessionStore defines the reading-session operations the session endpoints
// need. Implemented by reading.SessionManager.
type SessionStore interface {
	Start(userID, comicID uint, metadata map[string]string) (*entities.ProgressRecord, *entities.ReadingSession, error)
	Pause(userID, comicID uint, minutes int) (*entities.ProgressRecord, error)
	End(userID, comicID uint, endPage int, metadata map[string]string) (*entities.ProgressRecord, error)
	CurrentSession(userID, comicID uint) (*entities.ReadingSession, error)
}

type SessionController struct {
	sessions SessionStore
}

func NewSessionController(sessions SessionStore) *SessionController {
	return &SessionController{sessions: sessions}
}

type startSessionRequest struct {
	UserID   uint              `json:"user_id" binding:"required"`
	ComicID  uint              `json:"comic_id" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

type pauseSessionRequest struct {
	UserID  uint `json:"user_id" binding:"required"`
	ComicID uint `json:"comic_id" binding:"required"`
	Minutes int  `json:"minutes"`
}

type endSessionRequest struct {
	UserID   uint              `json:"user_id" binding:"required"`
	ComicID  uint              `json:"comic_id" binding:"required"`
	EndPage  int               `json:"end_page"`
	Metadata map[string]string `json:"metadata"`
}

// StartSession opens a reading session; duplicate starts return the
// existing session unchanged.
// POST /api/sessions/start
func (sc *SessionController) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, session, err := sc.sessions.Start(req.UserID, req.ComicID, req.Metadata)
	if err != nil {
		respondStorageError(c, err, "start session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": rec, "session": session})
}

// PauseSession adds paused minutes to the active session. A pause with no
// active session is a no-op, not an error, so client retries stay safe.
// POST /api/sessions/pause
func (sc *SessionController) PauseSession(c *gin.Context) {
	var req pauseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := sc.sessions.Pause(req.UserID, req.ComicID, req.Minutes)
	if err != nil {
		respondStorageError(c, err, "pause session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": rec})
}

// EndSession closes the active session and folds it into the progress
// record. Ending with no active session is a no-op.
// POST /api/sessions/end
func (sc *SessionController) EndSession(c *gin.Context) {
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := sc.sessions.End(req.UserID, req.ComicID, req.EndPage, req.Metadata)
	if err != nil {
		respondStorageError(c, err, "end session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": rec})
}

// GetCurrentSession returns the active session, or null when idle.
// GET /api/sessions/current?user_id=&comic_id=
func (sc *SessionController) GetCurrentSession(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}
	comicID, ok := parseQueryID(c, "comic_id")
	if !ok {
		return
	}

	session, err := sc.sessions.CurrentSession(userID, comicID)
	if err != nil {
		respondInternalError(c, err, "get current session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session, "active": session != nil})
}
