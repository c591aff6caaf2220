package main

import (
	"fmt"
	"log"
	"os"

	apirest "github.com/fitroom/fitroom-client/api/rest"
	apiws "github.com/fitroom/fitroom-client/api/ws"
	"github.com/fitroom/fitroom-client/config"
	dbadapter "github.com/fitroom/fitroom-client/db"
	"github.com/fitroom/fitroom-client/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// main runs the reference backend the client library syncs against:
// REST collection endpoints plus the realtime hub. The client side is
// consumed as a library; see the client package.
func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	var logErr error
	if cfg.Client.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
		gin.SetMode(gin.ReleaseMode)
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret must be set")
	}

	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrateServer(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	hub := apiws.NewHub(cfg.Security, logger)
	router := apirest.BuildRouter(cfg, db, hub, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("backend listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
