package knot

import (
	"time"

	"golang.org/x/exp/slices"
)

// FriendSnapshot is a full, authoritative set of lists fetched over
// REST, as opposed to incrementally pushed events.
type FriendSnapshot struct {
	Friends          []FriendSummary
	IncomingRequests []FriendRequest
	OutgoingRequests []FriendRequest
}

// MergeFriendSnapshot folds a REST snapshot into the current state.
// The snapshot is authoritative for existence and status, but a purely
// local outgoing entry the server has not echoed yet is kept while it
// is still pending and younger than `retention` — a request sent an
// instant before the fetch must not vanish from the list. Anything
// older that the server omits is dropped; a later push event corrects
// the outcome if it was accepted or rejected meanwhile.
func MergeFriendSnapshot(
	state FriendUiState,
	snapshot *FriendSnapshot,
	now int64,
	retention time.Duration,
) FriendStateUpdate {
	snapshotIds := map[Id]bool{}
	outgoing := []FriendRequest{}
	for _, request := range snapshot.OutgoingRequests {
		snapshotIds[request.RequestId] = true
		if existing := findRequest(state.OutgoingRequests, request.RequestId); existing != nil {
			// adopt the server's view, keep richer local display fields
			merged := request
			if merged.RequesterName == "" {
				merged.RequesterName = existing.RequesterName
			}
			if merged.RequesterAvatar == "" {
				merged.RequesterAvatar = existing.RequesterAvatar
			}
			if merged.ReceiverName == "" {
				merged.ReceiverName = existing.ReceiverName
			}
			if merged.Message == "" {
				merged.Message = existing.Message
			}
			outgoing = append(outgoing, merged)
		} else {
			outgoing = append(outgoing, request)
		}
	}
	retentionMillis := retention.Milliseconds()
	for _, existing := range state.OutgoingRequests {
		if snapshotIds[existing.RequestId] {
			continue
		}
		if existing.Status == FriendRequestPending && now-existing.CreatedAt <= retentionMillis {
			outgoing = append(outgoing, existing)
		}
	}

	state.IncomingRequests = sortRequestsByCreatedAtDesc(dedupRequests(slices.Clone(snapshot.IncomingRequests)))
	state.OutgoingRequests = sortRequestsByCreatedAtDesc(dedupRequests(outgoing))
	state.Friends = sortFriendsByDisplayName(dedupFriends(slices.Clone(snapshot.Friends)))
	return FriendStateUpdate{
		State:   state,
		Message: "Friend data refreshed",
	}
}
