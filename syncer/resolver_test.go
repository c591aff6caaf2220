package syncer

import (
	"testing"

	"github.com/fitroom/fitroom-client/model"
	"github.com/stretchr/testify/assert"
)

func edge(status model.EdgeStatus, ts int64) model.RelationshipEdge {
	return model.RelationshipEdge{
		OwnerID:     "alice",
		OtherID:     "bob",
		Status:      status,
		UpdatedAtMs: ts,
	}
}

func TestResolveEdge_HigherPriorityWins(t *testing.T) {
	// friends beats requested even with an older timestamp
	local := edge(model.EdgeRequested, 100)
	remote := edge(model.EdgeFriends, 200)
	assert.Equal(t, model.EdgeFriends, ResolveEdge(local, remote).Status)

	// and the other way around
	assert.Equal(t, model.EdgeFriends, ResolveEdge(remote, local).Status)
}

func TestResolveEdge_BlockedBeatsEverything(t *testing.T) {
	blocked := edge(model.EdgeBlocked, 50)
	for _, other := range []model.RelationshipEdge{
		edge(model.EdgeFriends, 999),
		edge(model.EdgeRequested, 999),
		edge(model.EdgePending, 999),
		edge(model.EdgeNone, 999),
	} {
		assert.Equal(t, model.EdgeBlocked, ResolveEdge(blocked, other).Status,
			"blocked vs %s", other.Status)
		assert.Equal(t, model.EdgeBlocked, ResolveEdge(other, blocked).Status,
			"%s vs blocked", other.Status)
	}
}

func TestResolveEdge_EqualPriorityNewerWins(t *testing.T) {
	older := edge(model.EdgeRequested, 100)
	newer := edge(model.EdgePending, 200) // same priority tier

	assert.Equal(t, newer, ResolveEdge(older, newer))
	assert.Equal(t, newer, ResolveEdge(newer, older))
}

func TestResolveEdge_FullTieRemoteWins(t *testing.T) {
	local := edge(model.EdgeFriends, 100)
	remote := edge(model.EdgeFriends, 100)
	remote.OtherID = "carol" // distinguishable payload, same ordering keys

	assert.Equal(t, remote, ResolveEdge(local, remote))
}

func TestResolveEdge_UnknownStatusLowestPriority(t *testing.T) {
	weird := edge(model.EdgeStatus("corrupted"), 999)
	known := edge(model.EdgePending, 1)
	assert.Equal(t, known, ResolveEdge(weird, known))
	assert.Equal(t, known, ResolveEdge(known, weird))
}

func TestResolveEdge_Idempotent(t *testing.T) {
	cases := []struct{ local, remote model.RelationshipEdge }{
		{edge(model.EdgeRequested, 100), edge(model.EdgeFriends, 50)},
		{edge(model.EdgeBlocked, 10), edge(model.EdgeFriends, 999)},
		{edge(model.EdgeFriends, 300), edge(model.EdgeFriends, 300)},
		{edge(model.EdgeNone, 5), edge(model.EdgePending, 5)},
	}
	for _, c := range cases {
		once := ResolveEdge(c.local, c.remote)
		assert.Equal(t, once, ResolveEdge(once, c.remote))
		assert.Equal(t, once, ResolveEdge(c.local, once))
	}
}

func TestResolveProfile_LastWriterWins(t *testing.T) {
	local := model.FitnessProfile{UserID: "u1", XP: 10, UpdatedAtMs: 200}
	remote := model.FitnessProfile{UserID: "u1", XP: 5, UpdatedAtMs: 100}
	assert.Equal(t, local, ResolveProfile(local, remote))

	remote.UpdatedAtMs = 200 // tie goes to remote
	assert.Equal(t, remote, ResolveProfile(local, remote))
}

func TestResolveMessage_ReadMarkerRace(t *testing.T) {
	sent := model.DirectMessage{ID: "m1", Body: "yo", SentAtMs: 100, UpdatedAtMs: 100}
	read := sent
	read.ReadAtMs = 150
	read.UpdatedAtMs = 150

	assert.Equal(t, read, ResolveMessage(sent, read))
	assert.Equal(t, read, ResolveMessage(read, sent))
}
