package rest

import (
	"errors"
	"net/http"
	"strings"

	apiws "github.com/fitroom/fitroom-client/api/ws"
	mw "github.com/fitroom/fitroom-client/middleware"
	"github.com/fitroom/fitroom-client/model"
	"github.com/fitroom/fitroom-client/syncer"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// EdgesHandler serves the relationship-edge collection. Writes go
// through the same merge function the clients use, so the backend can
// never accept a state a client would have rejected — a replayed stale
// upsert loses to what is already stored.
type EdgesHandler struct {
	db  *gorm.DB
	hub *apiws.Hub
}

// NewEdgesHandler creates a new EdgesHandler.
func NewEdgesHandler(db *gorm.DB, hub *apiws.Hub) *EdgesHandler {
	return &EdgesHandler{db: db, hub: hub}
}

// List handles GET /api/edges: every edge touching the caller, both
// directions.
func (h *EdgesHandler) List(c *gin.Context) {
	uid := mw.GetUserID(c)

	var items []model.RelationshipEdge
	if err := h.db.Where("owner_id = ? OR other_id = ?", uid, uid).
		Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type edgesUpsertRequest struct {
	Items []model.RelationshipEdge `json:"items" binding:"required"`
}

// Upsert handles POST /api/edges/upsert. Each incoming edge is merged
// against the stored row; replays are idempotent.
func (h *EdgesHandler) Upsert(c *gin.Context) {
	uid := mw.GetUserID(c)

	var req edgesUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted := 0
	err := h.db.Transaction(func(tx *gorm.DB) error {
		for _, in := range req.Items {
			if in.OwnerID != uid && in.OtherID != uid {
				continue // not the caller's edge
			}
			var existing model.RelationshipEdge
			err := tx.Where("owner_id = ? AND other_id = ?", in.OwnerID, in.OtherID).
				First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&in).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				merged := syncer.ResolveEdge(existing, in)
				if merged == existing {
					continue // stale replay, nothing to store
				}
				if err := tx.Model(&model.RelationshipEdge{}).
					Where("owner_id = ? AND other_id = ?", in.OwnerID, in.OtherID).
					Updates(map[string]any{
						"status":        merged.Status,
						"updated_at_ms": merged.UpdatedAtMs,
					}).Error; err != nil {
					return err
				}
				in = merged
			}
			accepted++
			h.fanout("update", in)
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

type deleteRequest struct {
	Keys []string `json:"keys" binding:"required"`
}

// Delete handles POST /api/edges/delete. Keys are "owner|other"; keys
// not touching the caller or already gone are skipped, so replays are
// safe.
func (h *EdgesHandler) Delete(c *gin.Context) {
	uid := mw.GetUserID(c)

	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted := 0
	for _, key := range req.Keys {
		owner, other, ok := splitEdgeKey(key)
		if !ok || (owner != uid && other != uid) {
			continue
		}
		res := h.db.Where("owner_id = ? AND other_id = ?", owner, other).
			Delete(&model.RelationshipEdge{})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if res.RowsAffected > 0 {
			deleted++
			h.fanout("delete", model.RelationshipEdge{OwnerID: owner, OtherID: other})
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// fanout notifies both people an edge touches.
func (h *EdgesHandler) fanout(kind string, e model.RelationshipEdge) {
	broadcastRow(h.hub, e.OwnerID, "edges", kind, e)
	broadcastRow(h.hub, e.OtherID, "edges", kind, e)
}

func splitEdgeKey(key string) (owner, other string, ok bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
