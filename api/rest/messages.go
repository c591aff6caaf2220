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

// MessagesHandler serves the direct-message collection.
type MessagesHandler struct {
	db  *gorm.DB
	hub *apiws.Hub
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(db *gorm.DB, hub *apiws.Hub) *MessagesHandler {
	return &MessagesHandler{db: db, hub: hub}
}

// List handles GET /api/messages: every message the caller sent or
// received.
func (h *MessagesHandler) List(c *gin.Context) {
	uid := mw.GetUserID(c)

	var items []model.DirectMessage
	if err := h.db.Where("sender_id = ? OR recipient_id = ?", uid, uid).
		Order("sent_at_ms ASC").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type messagesUpsertRequest struct {
	Items []model.DirectMessage `json:"items" binding:"required"`
}

// Upsert handles POST /api/messages/upsert. The sender creates, either
// party may update the read marker; merge is last-writer-wins.
func (h *MessagesHandler) Upsert(c *gin.Context) {
	uid := mw.GetUserID(c)

	var req messagesUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted := 0
	for _, in := range req.Items {
		if in.SenderID != uid && in.RecipientID != uid {
			continue
		}
		var existing model.DirectMessage
		err := h.db.Where("id = ?", in.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if in.SenderID != uid {
				continue // only the sender may create a message
			}
			if err := h.db.Create(&in).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		default:
			merged := syncer.ResolveMessage(existing, in)
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

// Delete handles POST /api/messages/delete. Only a message's sender may
// delete it.
func (h *MessagesHandler) Delete(c *gin.Context) {
	uid := mw.GetUserID(c)

	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted := 0
	for _, id := range req.Keys {
		var existing model.DirectMessage
		err := h.db.Where("id = ? AND sender_id = ?", id, uid).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if err := h.db.Delete(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		deleted++
		h.fanout("delete", existing)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *MessagesHandler) fanout(kind string, m model.DirectMessage) {
	broadcastRow(h.hub, m.SenderID, "messages", kind, m)
	if m.RecipientID != m.SenderID {
		broadcastRow(h.hub, m.RecipientID, "messages", kind, m)
	}
}
