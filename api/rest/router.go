package rest

import (
	"net/http"

	apiws "github.com/fitroom/fitroom-client/api/ws"
	"github.com/fitroom/fitroom-client/config"
	mw "github.com/fitroom/fitroom-client/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BuildRouter assembles the reference backend: auth, the three
// collection endpoints the sync engines talk to, the realtime hub, and
// a debug surface.
func BuildRouter(cfg *config.Config, db *gorm.DB, hub *apiws.Hub, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mw.RequestID())
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.Recovery(logger))
	if cfg.Security.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(cfg.Security))
	}

	authH := NewAuthHandler(db, cfg.Security)
	r.POST("/api/auth/register", authH.Register)
	r.POST("/api/auth/login", authH.Login)

	api := r.Group("/api", mw.Auth(cfg.Security))
	{
		edges := NewEdgesHandler(db, hub)
		api.GET("/edges", edges.List)
		api.POST("/edges/upsert", edges.Upsert)
		api.POST("/edges/delete", edges.Delete)

		profiles := NewProfilesHandler(db, hub)
		api.GET("/profile", profiles.List)
		api.POST("/profile/upsert", profiles.Upsert)
		api.POST("/profile/delete", profiles.Delete)

		messages := NewMessagesHandler(db, hub)
		api.GET("/messages", messages.List)
		api.POST("/messages/upsert", messages.Upsert)
		api.POST("/messages/delete", messages.Delete)
	}

	r.GET("/rt", hub.Handle)

	debug := r.Group("/debug", mw.RestrictIPs(cfg.Security.DebugIPs))
	debug.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Stats())
	})

	return r
}
