package integration

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apirest "github.com/fitroom/fitroom-client/api/rest"
	apiws "github.com/fitroom/fitroom-client/api/ws"
	"github.com/fitroom/fitroom-client/client"
	"github.com/fitroom/fitroom-client/config"
	dbadapter "github.com/fitroom/fitroom-client/db"
	"github.com/fitroom/fitroom-client/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "integration-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// startBackend runs the reference backend on an ephemeral port.
func startBackend(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{Mode: dbadapter.ModeMemory})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrateServer(db))

	cfg := &config.Config{
		Security: config.SecurityConfig{JWTSecret: testSecret, JWTTTLH: time.Hour},
	}
	hub := apiws.NewHub(cfg.Security, zap.NewNop())
	srv := httptest.NewServer(apirest.BuildRouter(cfg, db, hub, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

// newApp builds a full client against the backend, realtime over a real
// WebSocket connection.
func newApp(t *testing.T, backendURL string) *client.App {
	t.Helper()
	cfg := &config.Config{
		Client: config.ClientConfig{RemoteURL: backendURL},
		Sync: config.SyncConfig{
			RequestTimeout: 5 * time.Second,
		},
		Presence: config.PresenceConfig{
			HeartbeatInterval: time.Hour, // tests drive state explicitly
			StalenessWindow:   time.Minute,
		},
		Transport: config.TransportConfig{
			Mode:     "ws",
			WSURL:    "ws" + strings.TrimPrefix(backendURL, "http") + "/rt",
			EventBuf: 64,
		},
		Database: config.DatabaseConfig{Mode: dbadapter.ModeMemory},
		Security: config.SecurityConfig{JWTSecret: testSecret},
	}
	app, err := client.New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}
