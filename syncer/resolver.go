package syncer

import "github.com/fitroom/fitroom-client/model"

// statusPriority totally orders edge states for merge. Blocking always
// wins regardless of timestamp so a block is never silently overridden
// by a stale friend-request sync. Unrecognized statuses merge as the
// lowest priority rather than failing, preserving convergence.
func statusPriority(s model.EdgeStatus) int {
	switch s {
	case model.EdgeBlocked:
		return 3
	case model.EdgeFriends:
		return 2
	case model.EdgeRequested, model.EdgePending:
		return 1
	default:
		return 0
	}
}

// ResolveEdge merges one local and one remote version of an edge into
// the accepted version. Pure and total: higher status priority wins,
// then the greater UpdatedAtMs, and on a full tie the remote version is
// canonical (it is the multi-device merge point). Repeated application
// with the same inputs is deterministic and idempotent, so clients
// merging in different orders across sync rounds converge.
func ResolveEdge(local, remote model.RelationshipEdge) model.RelationshipEdge {
	lp, rp := statusPriority(local.Status), statusPriority(remote.Status)
	if lp > rp {
		return local
	}
	if rp > lp {
		return remote
	}
	if local.UpdatedAtMs > remote.UpdatedAtMs {
		return local
	}
	return remote
}

// ResolveProfile is last-writer-wins on UpdatedAtMs, remote on ties.
func ResolveProfile(local, remote model.FitnessProfile) model.FitnessProfile {
	if local.UpdatedAtMs > remote.UpdatedAtMs {
		return local
	}
	return remote
}

// ResolveMessage is last-writer-wins on UpdatedAtMs, remote on ties.
// Message bodies are immutable after send; only read markers race.
func ResolveMessage(local, remote model.DirectMessage) model.DirectMessage {
	if local.UpdatedAtMs > remote.UpdatedAtMs {
		return local
	}
	return remote
}
