package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkvault/comictrack/internal/syncer"
)

// SyncService defines the reconciliation operations the sync endpoints need.
// Implemented by syncer.Reconciler.
type SyncService interface {
	Reconcile(userID uint, batch syncer.Batch) (*syncer.Result, error)
	NeedsSync(userID uint, since time.Time) (bool, error)
}

// BatchAuditor persists incoming batches for later inspection. Implemented
// by audit.Auditor. May be nil when auditing is disabled.
type BatchAuditor interface {
	SaveJSONAsync(data any)
}

type SyncController struct {
	service SyncService
	auditor BatchAuditor
}

func NewSyncController(service SyncService, auditor BatchAuditor) *SyncController {
	return &SyncController{service: service, auditor: auditor}
}

type syncRequest struct {
	UserID uint `json:"user_id" binding:"required"`
	syncer.Batch
}

// Sync applies a device batch and returns applied counts, the new sync
// token, and the server rows the client is behind on. Deltas that lose a
// conflict are simply absent from the counts, never errors.
// POST /api/sync
func (sc *SyncController) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if sc.auditor != nil {
		sc.auditor.SaveJSONAsync(req)
	}

	result, err := sc.service.Reconcile(req.UserID, req.Batch)
	if err != nil {
		respondStorageError(c, err, "sync")
		return
	}

	c.JSON(http.StatusOK, result)
}

// CheckSync is the cheap pre-check that lets a client skip a full sync.
// GET /api/sync/check?user_id=&since=
func (sc *SyncController) CheckSync(c *gin.Context) {
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}

	sinceStr := c.Query("since")
	if sinceStr == "" {
		respondBadRequest(c, "since is required")
		return
	}
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		respondBadRequest(c, "since must be RFC3339")
		return
	}

	needed, err := sc.service.NeedsSync(userID, since)
	if err != nil {
		respondInternalError(c, err, "check sync")
		return
	}

	c.JSON(http.StatusOK, gin.H{"needs_sync": needed})
}
