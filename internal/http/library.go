package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/database/library"
	"github.com/inkvault/comictrack/internal/entities"
)

// LibraryStore defines the library operations the library endpoints need.
// Implemented by the library repository.
type LibraryStore interface {
	ListForUser(userID uint) ([]entities.LibraryEntry, error)
	SetRating(userID, comicID uint, rating int, review *string) (*entities.LibraryEntry, error)
	SetFavorite(userID, comicID uint, favorite bool) (*entities.LibraryEntry, error)
	GrantAccess(userID, comicID uint, accessType entities.AccessType, price float64, expiresAt *time.Time) (*entities.LibraryEntry, error)
	RegenerateSyncToken(userID, comicID uint) (*entities.LibraryEntry, error)
}

type LibraryController struct {
	store LibraryStore
}

func NewLibraryController(store LibraryStore) *LibraryController {
	return &LibraryController{store: store}
}

type setRatingRequest struct {
	UserID  uint    `json:"user_id" binding:"required"`
	ComicID uint    `json:"comic_id" binding:"required"`
	Rating  int     `json:"rating" binding:"required"`
	Review  *string `json:"review,omitempty"`
}

type setFavoriteRequest struct {
	UserID   uint `json:"user_id" binding:"required"`
	ComicID  uint `json:"comic_id" binding:"required"`
	Favorite bool `json:"favorite"`
}

type grantAccessRequest struct {
	UserID     uint       `json:"user_id" binding:"required"`
	ComicID    uint       `json:"comic_id" binding:"required"`
	AccessType string     `json:"access_type" binding:"required"`
	Price      float64    `json:"price"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type regenerateTokenRequest struct {
	UserID  uint `json:"user_id" binding:"required"`
	ComicID uint `json:"comic_id" binding:"required"`
}

// ListLibrary returns the user's library, most recently accessed first.
// GET /api/library?user_id=
func (lc *LibraryController) ListLibrary(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}

	entries, err := lc.store.ListForUser(userID)
	if err != nil {
		respondInternalError(c, err, "list library")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}

// SetRating sets the rating and optional review. Ratings outside [1,5] are
// rejected; there is no safe default to clamp to.
// PUT /api/library/rating
func (lc *LibraryController) SetRating(c *gin.Context) {
	var req setRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	entry, err := lc.store.SetRating(req.UserID, req.ComicID, req.Rating, req.Review)
	if err != nil {
		if errors.Is(err, library.ErrInvalidRating) {
			respondBadRequest(c, err.Error())
			return
		}
		respondStorageError(c, err, "set rating")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// SetFavorite toggles the favorite flag.
// PUT /api/library/favorite
func (lc *LibraryController) SetFavorite(c *gin.Context) {
	var req setFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	entry, err := lc.store.SetFavorite(req.UserID, req.ComicID, req.Favorite)
	if err != nil {
		respondStorageError(c, err, "set favorite")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// GrantAccess records an access grant from the payments collaborator.
// POST /api/library/access
func (lc *LibraryController) GrantAccess(c *gin.Context) {
	var req grantAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	accessType := entities.AccessType(req.AccessType)
	switch accessType {
	case entities.AccessTypeFree, entities.AccessTypePurchased, entities.AccessTypeSubscription:
	default:
		respondBadRequest(c, "invalid access_type")
		return
	}

	entry, err := lc.store.GrantAccess(req.UserID, req.ComicID, accessType, req.Price, req.ExpiresAt)
	if err != nil {
		respondStorageError(c, err, "grant access")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// RegenerateToken replaces the entry's device sync token.
// POST /api/library/token
func (lc *LibraryController) RegenerateToken(c *gin.Context) {
	var req regenerateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	entry, err := lc.store.RegenerateSyncToken(req.UserID, req.ComicID)
	if err != nil {
		respondStorageError(c, err, "regenerate sync token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}
