package syncer

import "github.com/fitroom/fitroom-client/model"

// Collection names double as mutation-queue scopes and blob-store keys.
const (
	CollectionEdges    = "edges"
	CollectionProfile  = "profile"
	CollectionMessages = "messages"
)

// EdgesCollection is the friend-edge graph, the most involved instance:
// two per-user edges that must stay causally consistent.
func EdgesCollection() Collection[model.RelationshipEdge] {
	return Collection[model.RelationshipEdge]{
		Name:    CollectionEdges,
		Key:     model.RelationshipEdge.Key,
		Resolve: ResolveEdge,
	}
}

// ProfileCollection is the single-row gamification profile.
func ProfileCollection() Collection[model.FitnessProfile] {
	return Collection[model.FitnessProfile]{
		Name:    CollectionProfile,
		Key:     model.FitnessProfile.Key,
		Resolve: ResolveProfile,
	}
}

// MessagesCollection is the direct-message log.
func MessagesCollection() Collection[model.DirectMessage] {
	return Collection[model.DirectMessage]{
		Name:    CollectionMessages,
		Key:     model.DirectMessage.Key,
		Resolve: ResolveMessage,
	}
}
