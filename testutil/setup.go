package testutil

import (
	"testing"
	"time"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/config"
	dbadapter "github.com/fitroom/fitroom-client/db"
	"github.com/fitroom/fitroom-client/localstore"
	"github.com/fitroom/fitroom-client/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JWT secret shared by the test helpers.
const TestSecret = "test-secret"

// SetupTestDB creates an in-memory client DB and runs the client
// migrations. It requires no external services and is safe to use in
// parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrateClient(db), "SetupTestDB: AutoMigrateClient")
	return db
}

// SetupTestServerDB creates an in-memory DB with the reference backend
// schema.
func SetupTestServerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestServerDB: Open")
	require.NoError(t, model.AutoMigrateServer(db), "SetupTestServerDB: AutoMigrateServer")
	return db
}

// SetupTestStore creates a snapshot store over an in-memory client DB.
func SetupTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	return localstore.New(SetupTestDB(t), zap.NewNop())
}

// SignedInSession returns a session already authenticated as userID.
func SignedInSession(t *testing.T, userID string) *auth.Session {
	t.Helper()
	token, err := auth.GenerateToken(userID, TestSecret, time.Hour)
	require.NoError(t, err, "SignedInSession: GenerateToken")
	s := auth.NewSession(zap.NewNop())
	require.NoError(t, s.SignIn(token, TestSecret), "SignedInSession: SignIn")
	return s
}
