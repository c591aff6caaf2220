package syncer

import (
	"errors"
	"time"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/model"
	"go.uber.org/zap"
)

var (
	ErrAlreadyFriends   = errors.New("syncer: already friends")
	ErrBlocked          = errors.New("syncer: relationship is blocked")
	ErrNoPendingRequest = errors.New("syncer: no pending request")
	ErrSelfRelationship = errors.New("syncer: cannot relate to self")
)

// FriendGraph exposes relationship actions over the edges engine. The
// local collection holds every edge touching the signed-in user, both
// directions, so an action can keep the two edges of a pair causally
// consistent inside one optimistic write. On the user's own edge,
// "requested" means an outgoing request and "pending" an incoming one.
type FriendGraph struct {
	engine  *Engine[model.RelationshipEdge]
	session *auth.Session
	logger  *zap.Logger
	nowMs   func() int64
}

// NewFriendGraph wraps the edges engine with relationship actions.
func NewFriendGraph(engine *Engine[model.RelationshipEdge], session *auth.Session, logger *zap.Logger) *FriendGraph {
	return &FriendGraph{
		engine:  engine,
		session: session,
		logger:  logger,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Engine returns the underlying sync engine for pull/push/sync and
// metadata reads.
func (g *FriendGraph) Engine() *Engine[model.RelationshipEdge] {
	return g.engine
}

type edgePayload struct {
	OtherID string `json:"other_id"`
}

// RequestFriend sends a friend request: the caller's edge becomes
// requested, the counterpart edge pending. Requesting someone with an
// incoming pending request accepts it instead (mutual intent). Repeat
// requests are no-ops, so offline retries never duplicate.
func (g *FriendGraph) RequestFriend(otherID string) error {
	self, err := g.principal(otherID)
	if err != nil {
		return err
	}

	switch g.statusOf(self, otherID) {
	case model.EdgeBlocked:
		return ErrBlocked
	case model.EdgeFriends:
		return ErrAlreadyFriends
	case model.EdgeRequested:
		return nil // already asked
	case model.EdgePending:
		return g.AcceptFriend(otherID)
	}
	if g.statusOf(otherID, self) == model.EdgeBlocked {
		return ErrBlocked
	}

	now := g.nowMs()
	return g.engine.Mutate("request", edgePayload{OtherID: otherID},
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			setEdge(items, deletes, self, otherID, model.EdgeRequested, now)
			setEdge(items, deletes, otherID, self, model.EdgePending, now)
		})
}

// AcceptFriend accepts an incoming request, flipping both edges to
// friends.
func (g *FriendGraph) AcceptFriend(otherID string) error {
	self, err := g.principal(otherID)
	if err != nil {
		return err
	}
	if g.statusOf(self, otherID) != model.EdgePending {
		return ErrNoPendingRequest
	}

	now := g.nowMs()
	return g.engine.Mutate("accept", edgePayload{OtherID: otherID},
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			setEdge(items, deletes, self, otherID, model.EdgeFriends, now)
			setEdge(items, deletes, otherID, self, model.EdgeFriends, now)
		})
}

// RemoveFriend removes both edges of the pair. The removal is recorded
// in the pending-delete set so a pull cannot resurrect the pair before
// the next push confirms the deletion remotely.
func (g *FriendGraph) RemoveFriend(otherID string) error {
	self, err := g.principal(otherID)
	if err != nil {
		return err
	}
	return g.engine.Mutate("remove", edgePayload{OtherID: otherID},
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			dropEdge(items, deletes, self, otherID)
			dropEdge(items, deletes, otherID, self)
		})
}

// BlockUser replaces the caller's edge with blocked and resets the
// counterpart edge. Only the caller's own edge carries the block; the
// other side never ends up blocked by this action.
func (g *FriendGraph) BlockUser(otherID string) error {
	self, err := g.principal(otherID)
	if err != nil {
		return err
	}
	now := g.nowMs()
	return g.engine.Mutate("block", edgePayload{OtherID: otherID},
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			setEdge(items, deletes, self, otherID, model.EdgeBlocked, now)
			setEdge(items, deletes, otherID, self, model.EdgeNone, now)
		})
}

// UnblockUser lifts the caller's block by removing both edges.
func (g *FriendGraph) UnblockUser(otherID string) error {
	self, err := g.principal(otherID)
	if err != nil {
		return err
	}
	if g.statusOf(self, otherID) != model.EdgeBlocked {
		return nil
	}
	return g.engine.Mutate("unblock", edgePayload{OtherID: otherID},
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			dropEdge(items, deletes, self, otherID)
			dropEdge(items, deletes, otherID, self)
		})
}

// Friends lists the caller's confirmed friends.
func (g *FriendGraph) Friends() []model.RelationshipEdge {
	return g.ownEdges(model.EdgeFriends)
}

// IncomingRequests lists requests awaiting the caller's answer.
func (g *FriendGraph) IncomingRequests() []model.RelationshipEdge {
	return g.ownEdges(model.EdgePending)
}

// OutgoingRequests lists requests the caller has sent.
func (g *FriendGraph) OutgoingRequests() []model.RelationshipEdge {
	return g.ownEdges(model.EdgeRequested)
}

// Blocked lists users the caller has blocked.
func (g *FriendGraph) Blocked() []model.RelationshipEdge {
	return g.ownEdges(model.EdgeBlocked)
}

// StatusWith returns the caller's own edge status toward otherID.
func (g *FriendGraph) StatusWith(otherID string) model.EdgeStatus {
	self := g.session.CurrentUserID()
	if self == "" {
		return model.EdgeNone
	}
	return g.statusOf(self, otherID)
}

func (g *FriendGraph) principal(otherID string) (string, error) {
	self := g.session.CurrentUserID()
	if self == "" {
		return "", ErrNotSignedIn
	}
	if self == otherID {
		return "", ErrSelfRelationship
	}
	return self, nil
}

func (g *FriendGraph) statusOf(owner, other string) model.EdgeStatus {
	edge, ok := g.engine.Get(edgeKey(owner, other))
	if !ok {
		return model.EdgeNone
	}
	return edge.Status
}

func (g *FriendGraph) ownEdges(status model.EdgeStatus) []model.RelationshipEdge {
	self := g.session.CurrentUserID()
	if self == "" {
		return nil
	}
	var out []model.RelationshipEdge
	for _, e := range g.engine.Snapshot() {
		if e.OwnerID == self && e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func edgeKey(owner, other string) string {
	return owner + "|" + other
}

func setEdge(items map[string]model.RelationshipEdge, deletes map[string]bool, owner, other string, status model.EdgeStatus, nowMs int64) {
	e := model.RelationshipEdge{
		OwnerID:     owner,
		OtherID:     other,
		Status:      status,
		UpdatedAtMs: nowMs,
	}
	items[e.Key()] = e
	delete(deletes, e.Key())
}

func dropEdge(items map[string]model.RelationshipEdge, deletes map[string]bool, owner, other string) {
	k := edgeKey(owner, other)
	if _, ok := items[k]; ok {
		delete(items, k)
		deletes[k] = true
	}
}
