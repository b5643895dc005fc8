package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/entities"
)

// BookmarkStore defines the bookmark operations the bookmark endpoints need.
// Implemented by the bookmarks repository.
type BookmarkStore interface {
	Upsert(userID, comicID uint, page int, note string) (*entities.Bookmark, error)
	Remove(userID, comicID uint, page int) (bool, error)
	ListForComic(userID, comicID uint) ([]entities.Bookmark, error)
	CountForComic(userID, comicID uint) (int64, error)
}

type BookmarkController struct {
	store BookmarkStore
}

func NewBookmarkController(store BookmarkStore) *BookmarkController {
	return &BookmarkController{store: store}
}

type upsertBookmarkRequest struct {
	UserID     uint   `json:"user_id" binding:"required"`
	ComicID    uint   `json:"comic_id" binding:"required"`
	PageNumber int    `json:"page_number"`
	Note       string `json:"note"`
}

type removeBookmarkRequest struct {
	UserID     uint `json:"user_id" binding:"required"`
	ComicID    uint `json:"comic_id" binding:"required"`
	PageNumber int  `json:"page_number"`
}

// UpsertBookmark adds a bookmark or replaces the note of an existing one.
// POST /api/bookmarks
func (bc *BookmarkController) UpsertBookmark(c *gin.Context) {
	var req upsertBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	bookmark, err := bc.store.Upsert(req.UserID, req.ComicID, req.PageNumber, req.Note)
	if err != nil {
		respondStorageError(c, err, "upsert bookmark")
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookmark": bookmark})
}

// RemoveBookmark deletes the bookmark for a page if present.
// DELETE /api/bookmarks
func (bc *BookmarkController) RemoveBookmark(c *gin.Context) {
	var req removeBookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	deleted, err := bc.store.Remove(req.UserID, req.ComicID, req.PageNumber)
	if err != nil {
		respondStorageError(c, err, "remove bookmark")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ListBookmarks returns the comic's bookmarks in page order.
// GET /api/bookmarks?user_id=&comic_id=
func (bc *BookmarkController) ListBookmarks(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}
	comicID, ok := parseQueryID(c, "comic_id")
	if !ok {
		return
	}

	bookmarks, err := bc.store.ListForComic(userID, comicID)
	if err != nil {
		respondInternalError(c, err, "list bookmarks")
		return
	}
	count, err := bc.store.CountForComic(userID, comicID)
	if err != nil {
		respondInternalError(c, err, "list bookmarks")
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookmarks": bookmarks, "total": count})
}
