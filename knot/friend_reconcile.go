package knot

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// ReconcileFriendEvent merges one decoded friend event into the current
// state and returns the next state plus an optional user-facing
// notification. Pure apart from consuming the pending-send tracker;
// `now` is unix millis and stands in for any missing event timestamp.
// The caller must not apply two events concurrently against the same
// state.
func ReconcileFriendEvent(
	state FriendUiState,
	event Event,
	pendingSends *PendingSends,
	now int64,
) FriendStateUpdate {
	switch v := event.(type) {
	case *FriendRequestNewEvent:
		return reconcileRequestNew(state, v, now)
	case *FriendRequestAckEvent:
		return reconcileRequestAck(state, v, pendingSends, now)
	case *FriendAddedEvent:
		return reconcileFriendAdded(state, v, now)
	case *FriendRequestListEvent:
		return reconcileRequestList(state, v, now)
	case *FriendListEvent:
		return reconcileFriendList(state, v)
	case *InfoEvent:
		return FriendStateUpdate{
			State:   state,
			Message: v.Message,
			IsError: v.IsError,
		}
	default:
		return FriendStateUpdate{State: state}
	}
}

func reconcileRequestNew(
	state FriendUiState,
	event *FriendRequestNewEvent,
	now int64,
) FriendStateUpdate {
	existing := findRequest(state.IncomingRequests, event.RequestId)

	updated := FriendRequest{
		RequestId:   event.RequestId,
		RequesterId: -1,
		ReceiverId:  -1,
		Message:     event.Message,
		Status:      FriendRequestPending,
		CreatedAt:   event.Timestamp,
		Incoming:    true,
	}
	if updated.CreatedAt == 0 {
		updated.CreatedAt = now
	}
	if event.From != nil {
		updated.RequesterId = event.From.UserId
		updated.RequesterName = event.From.Username
		updated.RequesterAvatar = event.From.AvatarUrl
	}
	if event.ReceiverId != 0 {
		updated.ReceiverId = event.ReceiverId
	}
	if existing != nil {
		// keep previously resolved display fields the event omits
		if event.From == nil {
			updated.RequesterId = existing.RequesterId
		}
		if event.ReceiverId == 0 {
			updated.ReceiverId = existing.ReceiverId
		}
		if updated.Message == "" {
			updated.Message = existing.Message
		}
		if updated.RequesterName == "" {
			updated.RequesterName = existing.RequesterName
		}
		if updated.RequesterAvatar == "" {
			updated.RequesterAvatar = existing.RequesterAvatar
		}
		updated.ReceiverName = existing.ReceiverName
		updated.ConvId = existing.ConvId
	}

	incoming := removeRequest(state.IncomingRequests, event.RequestId)
	incoming = sortRequestsByCreatedAtDesc(append(incoming, updated))

	state.IncomingRequests = incoming
	return FriendStateUpdate{
		State:   state,
		Message: fmt.Sprintf("New friend request from %s", updated.RequesterDisplayName()),
	}
}

func reconcileRequestAck(
	state FriendUiState,
	event *FriendRequestAckEvent,
	pendingSends *PendingSends,
	now int64,
) FriendStateUpdate {
	timestamp := event.Timestamp
	if timestamp == 0 {
		timestamp = now
	}
	switch event.Status {
	case "sent":
		return reconcileAckSent(state, event.RequestId, timestamp, pendingSends)
	case "accepted":
		return reconcileAckAccepted(state, event.RequestId, timestamp, event.ConvId)
	case "rejected":
		return reconcileAckRejected(state, event.RequestId)
	case "error", "failed":
		return reconcileAckError(state, event.Message, pendingSends)
	default:
		return FriendStateUpdate{State: state}
	}
}

func reconcileAckSent(
	state FriendUiState,
	requestId Id,
	timestamp int64,
	pendingSends *PendingSends,
) FriendStateUpdate {
	if requestId == 0 {
		return FriendStateUpdate{State: state}
	}

	context := pendingSends.ConsumeOldest()
	if context == nil {
		// no send in flight. defensively refresh the matching entry.
		outgoing := slices.Clone(state.OutgoingRequests)
		for i := range outgoing {
			if outgoing[i].RequestId == requestId {
				outgoing[i].Status = FriendRequestPending
				outgoing[i].CreatedAt = timestamp
			}
		}
		state.OutgoingRequests = sortRequestsByCreatedAtDesc(outgoing)
		return FriendStateUpdate{State: state}
	}

	if context.PlaceholderId != 0 {
		// promote the optimistic placeholder to the server-assigned id
		base := findRequest(state.OutgoingRequests, context.PlaceholderId)
		updated := FriendRequest{
			RequestId:     requestId,
			RequesterId:   -1,
			ReceiverId:    context.ReceiverId,
			Message:       context.Message,
			Status:        FriendRequestPending,
			CreatedAt:     timestamp,
			RequesterName: "You",
			Incoming:      false,
		}
		if base != nil {
			updated.RequesterId = base.RequesterId
			updated.RequesterName = base.RequesterName
			updated.RequesterAvatar = base.RequesterAvatar
			updated.ReceiverName = base.ReceiverName
			if updated.Message == "" {
				updated.Message = base.Message
			}
		}
		outgoing := removeRequest(state.OutgoingRequests, context.PlaceholderId)
		state.OutgoingRequests = sortRequestsByCreatedAtDesc(append(outgoing, updated))
		return FriendStateUpdate{
			State:   state,
			Message: "Friend request sent",
		}
	}

	if context.ExistingRequestId != 0 {
		// a resend. refresh the existing entry in place.
		outgoing := slices.Clone(state.OutgoingRequests)
		for i := range outgoing {
			if outgoing[i].RequestId == context.ExistingRequestId || outgoing[i].RequestId == requestId {
				outgoing[i].RequestId = requestId
				if 0 < context.ReceiverId {
					outgoing[i].ReceiverId = context.ReceiverId
				}
				if context.Message != "" {
					outgoing[i].Message = context.Message
				}
				outgoing[i].Status = FriendRequestPending
				outgoing[i].CreatedAt = timestamp
				outgoing[i].ConvId = 0
			}
		}
		state.OutgoingRequests = sortRequestsByCreatedAtDesc(outgoing)
		return FriendStateUpdate{
			State:   state,
			Message: "Friend request resent",
		}
	}

	return FriendStateUpdate{State: state}
}

func reconcileAckAccepted(
	state FriendUiState,
	requestId Id,
	timestamp int64,
	convId Id,
) FriendStateUpdate {
	if requestId == 0 {
		return FriendStateUpdate{State: state}
	}

	if incoming := findRequest(state.IncomingRequests, requestId); incoming != nil {
		// we accepted: the request becomes a friend in the same step
		friend := FriendSummary{
			UserId:    incoming.RequesterId,
			Username:  incoming.RequesterName,
			AvatarUrl: incoming.RequesterAvatar,
			ConvId:    convId,
			Since:     timestamp,
		}
		if friend.ConvId == 0 {
			friend.ConvId = incoming.ConvId
		}
		displayName := incoming.RequesterDisplayName()

		state.IncomingRequests = removeRequest(state.IncomingRequests, requestId)
		state.Friends = sortFriendsByDisplayName(dedupFriends(append(slices.Clone(state.Friends), friend)))
		return FriendStateUpdate{
			State:   state,
			Message: fmt.Sprintf("Accepted %s's request", displayName),
		}
	}

	// the other side accepted. the friend entry for this side arrives
	// via a separate FRIEND_ADDED event.
	outgoing := findRequest(state.OutgoingRequests, requestId)
	state.OutgoingRequests = sortRequestsByCreatedAtDesc(removeRequest(state.OutgoingRequests, requestId))
	update := FriendStateUpdate{State: state}
	if outgoing != nil {
		update.Message = "Your friend request was accepted"
	}
	return update
}

func reconcileAckRejected(state FriendUiState, requestId Id) FriendStateUpdate {
	if requestId == 0 {
		return FriendStateUpdate{State: state}
	}

	message := ""
	incoming := findRequest(state.IncomingRequests, requestId)
	if incoming != nil {
		message = fmt.Sprintf("Rejected %s's friend request", incoming.RequesterDisplayName())
		state.IncomingRequests = removeRequest(state.IncomingRequests, requestId)
	}

	if findRequest(state.OutgoingRequests, requestId) != nil {
		outgoing := slices.Clone(state.OutgoingRequests)
		for i := range outgoing {
			if outgoing[i].RequestId == requestId {
				outgoing[i].Status = FriendRequestRejected
			}
		}
		state.OutgoingRequests = sortRequestsByCreatedAtDesc(outgoing)
		if incoming == nil {
			message = "Friend request was rejected by the recipient"
		}
	}

	return FriendStateUpdate{State: state, Message: message}
}

func reconcileAckError(
	state FriendUiState,
	backendMessage string,
	pendingSends *PendingSends,
) FriendStateUpdate {
	context := pendingSends.ConsumeOldest()
	if context != nil && context.PlaceholderId != 0 {
		// roll back the optimistic insert
		state.OutgoingRequests = removeRequest(state.OutgoingRequests, context.PlaceholderId)
	}
	message := backendMessage
	if message == "" {
		message = "Friend action failed"
	}
	return FriendStateUpdate{
		State:   state,
		Message: message,
		IsError: true,
	}
}

func reconcileFriendAdded(
	state FriendUiState,
	event *FriendAddedEvent,
	now int64,
) FriendStateUpdate {
	if event.Friend == nil {
		return FriendStateUpdate{State: state}
	}

	if event.RequestId != 0 {
		state.OutgoingRequests = sortRequestsByCreatedAtDesc(removeRequest(state.OutgoingRequests, event.RequestId))
		state.IncomingRequests = sortRequestsByCreatedAtDesc(removeRequest(state.IncomingRequests, event.RequestId))
	}

	friend := FriendSummary{
		UserId:    event.Friend.UserId,
		Username:  event.Friend.Username,
		AvatarUrl: event.Friend.AvatarUrl,
		ConvId:    event.ConvId,
		Since:     event.Timestamp,
	}
	if friend.Since == 0 {
		friend.Since = now
	}
	state.Friends = sortFriendsByDisplayName(dedupFriends(append(slices.Clone(state.Friends), friend)))
	return FriendStateUpdate{
		State:   state,
		Message: fmt.Sprintf("You and %s are now friends", friend.DisplayName()),
	}
}

func reconcileRequestList(
	state FriendUiState,
	event *FriendRequestListEvent,
	now int64,
) FriendStateUpdate {
	incoming := []FriendRequest{}
	outgoing := []FriendRequest{}
	for _, request := range event.Requests {
		if request.CreatedAt == 0 {
			request.CreatedAt = now
		}
		request.Incoming = request.ReceiverId == event.SelfId
		if request.Status == FriendRequestPending && request.Incoming {
			incoming = append(incoming, request)
		} else if request.Status == FriendRequestPending || request.Status == FriendRequestRejected {
			request.Incoming = false
			outgoing = append(outgoing, request)
		}
		// accepted requests are represented by the friends list
	}

	state.IncomingRequests = sortRequestsByCreatedAtDesc(dedupRequests(incoming))
	state.OutgoingRequests = mergeOutgoingWithExisting(state.OutgoingRequests, outgoing)
	return FriendStateUpdate{
		State:   state,
		Message: "Friend requests synced",
	}
}

func reconcileFriendList(state FriendUiState, event *FriendListEvent) FriendStateUpdate {
	state.Friends = sortFriendsByDisplayName(dedupFriends(slices.Clone(event.Friends)))
	return FriendStateUpdate{
		State:   state,
		Message: "Friend list synced",
	}
}

// mergeOutgoingWithExisting folds a pushed outgoing list into the
// current one. An existing entry for the same request id keeps its
// richer locally-resolved fields while adopting the server's status,
// timestamp and conversation id. Existing entries the push does not
// mention are kept; a later snapshot merge decides their fate.
func mergeOutgoingWithExisting(current []FriendRequest, pushed []FriendRequest) []FriendRequest {
	if len(pushed) == 0 {
		return current
	}

	pushedIds := map[Id]bool{}
	merged := []FriendRequest{}
	for _, request := range pushed {
		pushedIds[request.RequestId] = true
		if existing := findRequest(current, request.RequestId); existing != nil {
			updated := *existing
			updated.Status = request.Status
			if request.Message != "" {
				updated.Message = request.Message
			}
			updated.CreatedAt = request.CreatedAt
			updated.ConvId = request.ConvId
			if 0 < request.ReceiverId {
				updated.ReceiverId = request.ReceiverId
			}
			merged = append(merged, updated)
		} else {
			merged = append(merged, request)
		}
	}
	for _, existing := range current {
		if !pushedIds[existing.RequestId] {
			merged = append(merged, existing)
		}
	}
	return sortRequestsByCreatedAtDesc(dedupRequests(merged))
}
