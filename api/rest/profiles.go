package rest

import (
	"errors"
	"net/http"

	apiws "github.com/fitroom/fitroom-client/api/ws"
	mw "github.com/fitroom/fitroom-client/middleware"
	"github.com/fitroom/fitroom-client/model"
	"github.com/fitroom/fitroom-client/syncer"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProfilesHandler serves the fitness-profile collection: the caller's
// own row plus the rows of everyone they are friends with.
type ProfilesHandler struct {
	db  *gorm.DB
	hub *apiws.Hub
}

// NewProfilesHandler creates a new ProfilesHandler.
func NewProfilesHandler(db *gorm.DB, hub *apiws.Hub) *ProfilesHandler {
	return &ProfilesHandler{db: db, hub: hub}
}

// List handles GET /api/profile.
func (h *ProfilesHandler) List(c *gin.Context) {
	uid := mw.GetUserID(c)

	var friendIDs []string
	if err := h.db.Model(&model.RelationshipEdge{}).
		Where("owner_id = ? AND status = ?", uid, model.EdgeFriends).
		Pluck("other_id", &friendIDs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ids := append(friendIDs, uid)
	var items []model.FitnessProfile
	if err := h.db.Where("user_id IN ?", ids).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type profilesUpsertRequest struct {
	Items []model.FitnessProfile `json:"items" binding:"required"`
}

// Upsert handles POST /api/profile/upsert. Only the caller's own row is
// writable; anything else in the batch is skipped.
func (h *ProfilesHandler) Upsert(c *gin.Context) {
	uid := mw.GetUserID(c)

	var req profilesUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted := 0
	for _, in := range req.Items {
		if in.UserID != uid {
			continue
		}
		var existing model.FitnessProfile
		err := h.db.Where("user_id = ?", uid).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := h.db.Create(&in).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		default:
			merged := syncer.ResolveProfile(existing, in)
			if merged == existing {
				continue
			}
			if err := h.db.Save(&merged).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			in = merged
		}
		accepted++
		h.fanout("update", in)
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

// Delete handles POST /api/profile/delete. Profiles are never deleted
// through sync; accepted for protocol symmetry, keys are ignored.
func (h *ProfilesHandler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": 0})
}

// fanout notifies the owner and every friend watching this profile.
func (h *ProfilesHandler) fanout(kind string, p model.FitnessProfile) {
	broadcastRow(h.hub, p.UserID, "profile", kind, p)

	var friendIDs []string
	if err := h.db.Model(&model.RelationshipEdge{}).
		Where("other_id = ? AND status = ?", p.UserID, model.EdgeFriends).
		Pluck("owner_id", &friendIDs).Error; err != nil {
		return
	}
	for _, fid := range friendIDs {
		broadcastRow(h.hub, fid, "profile", kind, p)
	}
}
