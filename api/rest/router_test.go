package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitroom/fitroom-client/api/rest"
	apiws "github.com/fitroom/fitroom-client/api/ws"
	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/config"
	"github.com/fitroom/fitroom-client/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.SetupTestServerDB(t)
	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret: testutil.TestSecret,
			JWTTTLH:   time.Hour,
		},
	}
	hub := apiws.NewHub(cfg.Security, zap.NewNop())
	return rest.BuildRouter(cfg, db, hub, zap.NewNop())
}

func bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, testutil.TestSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
