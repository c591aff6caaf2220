package history_test

import (
	"testing"
	"time"

	"github.com/fitroom/fitroom-client/history"
	"github.com/fitroom/fitroom-client/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorder_FlushOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := history.New(db, zap.NewNop())

	r.Record(history.Entry{Collection: "edges", Op: "pull", Outcome: "success", Items: 4, Duration: 120 * time.Millisecond})
	r.Record(history.Entry{Collection: "edges", Op: "push", Outcome: "error", Error: "boom", Items: 1})
	r.Stop()

	entries, err := r.Recent("edges", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "push", entries[0].Op)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, "pull", entries[1].Op)
	assert.Equal(t, 120, entries[1].DurationMs)
}

func TestRecorder_RecentScopedToCollection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := history.New(db, zap.NewNop())

	r.Record(history.Entry{Collection: "edges", Op: "pull", Outcome: "success"})
	r.Record(history.Entry{Collection: "profile", Op: "pull", Outcome: "success"})
	r.Stop()

	entries, err := r.Recent("profile", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "profile", entries[0].Collection)
}
