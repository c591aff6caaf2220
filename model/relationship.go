package model

// EdgeStatus is the lifecycle state of one directional relationship edge.
type EdgeStatus string

const (
	EdgeNone      EdgeStatus = "none"
	EdgePending   EdgeStatus = "pending"   // incoming request awaiting our answer
	EdgeRequested EdgeStatus = "requested" // outgoing request awaiting theirs
	EdgeFriends   EdgeStatus = "friends"
	EdgeBlocked   EdgeStatus = "blocked"
)

// RelationshipEdge is one direction of a relationship between two users.
// A friendship between A and B is two edges, (A→B) and (B→A), which
// converge to symmetric states: friends/friends, requested/pending, or
// one side blocked. Transient asymmetry is allowed between syncs.
type RelationshipEdge struct {
	OwnerID     string     `gorm:"primaryKey;size:64" json:"owner_id"`
	OtherID     string     `gorm:"primaryKey;size:64" json:"other_id"`
	Status      EdgeStatus `gorm:"size:16;default:none" json:"status"`
	UpdatedAtMs int64      `json:"updated_at_ms"`
}

// Key returns the natural key for upserts: owner|other.
func (e RelationshipEdge) Key() string {
	return e.OwnerID + "|" + e.OtherID
}
