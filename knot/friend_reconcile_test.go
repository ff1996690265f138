package knot

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestReconcileRequestNewDedup(t *testing.T) {
	state := FriendUiState{}
	pendingSends := NewPendingSends()

	event := &FriendRequestNewEvent{
		RequestId: 10,
		Timestamp: 1000,
		Message:   "hi",
		From:      &FriendUser{UserId: 4, Username: "bob"},
	}
	update := ReconcileFriendEvent(state, event, pendingSends, 2000)
	assert.Equal(t, len(update.State.IncomingRequests), 1)
	assert.Equal(t, update.Message, "New friend request from bob")

	// the same request pushed again replaces, never duplicates
	update = ReconcileFriendEvent(update.State, event, pendingSends, 3000)
	assert.Equal(t, len(update.State.IncomingRequests), 1)
	assert.Equal(t, update.State.IncomingRequests[0].RequesterName, "bob")

	// a redelivery missing the user block keeps the resolved fields
	update = ReconcileFriendEvent(update.State, &FriendRequestNewEvent{
		RequestId: 10,
		Timestamp: 1000,
	}, pendingSends, 4000)
	assert.Equal(t, len(update.State.IncomingRequests), 1)
	assert.Equal(t, update.State.IncomingRequests[0].RequesterName, "bob")
	assert.Equal(t, update.State.IncomingRequests[0].Message, "hi")
}

func TestReconcileIncomingSortedByCreatedAtDesc(t *testing.T) {
	state := FriendUiState{}
	pendingSends := NewPendingSends()

	update := ReconcileFriendEvent(state, &FriendRequestNewEvent{RequestId: 1, Timestamp: 100}, pendingSends, 0)
	update = ReconcileFriendEvent(update.State, &FriendRequestNewEvent{RequestId: 2, Timestamp: 300}, pendingSends, 0)
	update = ReconcileFriendEvent(update.State, &FriendRequestNewEvent{RequestId: 3, Timestamp: 200}, pendingSends, 0)

	assert.Equal(t, update.State.IncomingRequests[0].RequestId, Id(2))
	assert.Equal(t, update.State.IncomingRequests[1].RequestId, Id(3))
	assert.Equal(t, update.State.IncomingRequests[2].RequestId, Id(1))
}

func TestReconcileAcceptIncomingRequest(t *testing.T) {
	state := FriendUiState{
		IncomingRequests: []FriendRequest{
			{
				RequestId:     7,
				RequesterId:   42,
				ReceiverId:    5,
				RequesterName: "carol",
				Status:        FriendRequestPending,
				CreatedAt:     100,
				Incoming:      true,
			},
		},
	}
	pendingSends := NewPendingSends()

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "accepted",
		RequestId: 7,
		ConvId:    99,
		Timestamp: 2000,
	}, pendingSends, 2000)

	assert.Equal(t, len(update.State.IncomingRequests), 0)
	assert.Equal(t, len(update.State.Friends), 1)
	assert.Equal(t, update.State.Friends[0].UserId, Id(42))
	assert.Equal(t, update.State.Friends[0].ConvId, Id(99))
	assert.Equal(t, update.State.Friends[0].Username, "carol")
	assert.Equal(t, update.Message, "Accepted carol's request")
}

func TestReconcileAcceptOutgoingRequest(t *testing.T) {
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{RequestId: 12, ReceiverId: 8, Status: FriendRequestPending, CreatedAt: 100},
		},
	}
	pendingSends := NewPendingSends()

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "accepted",
		RequestId: 12,
	}, pendingSends, 500)

	// the friend entry arrives via FRIEND_ADDED, not here
	assert.Equal(t, len(update.State.OutgoingRequests), 0)
	assert.Equal(t, len(update.State.Friends), 0)
	assert.Equal(t, update.Message, "Your friend request was accepted")

	update = ReconcileFriendEvent(update.State, &FriendAddedEvent{
		RequestId: 12,
		Friend:    &FriendUser{UserId: 8, Username: "dan"},
		ConvId:    44,
		Timestamp: 600,
	}, pendingSends, 700)
	assert.Equal(t, len(update.State.Friends), 1)
	assert.Equal(t, update.State.Friends[0].ConvId, Id(44))
	assert.Equal(t, update.Message, "You and dan are now friends")
}

func TestReconcileOptimisticSendRoundTrip(t *testing.T) {
	pendingSends := NewPendingSends()

	// the view inserts a placeholder and records the send context
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{
				RequestId:     -1,
				RequesterId:   -1,
				ReceiverId:    8,
				Message:       "hi there",
				Status:        FriendRequestPending,
				CreatedAt:     100,
				RequesterName: "You",
			},
		},
	}
	pendingSends.Record(&PendingSendContext{
		PlaceholderId: -1,
		ReceiverId:    8,
		Message:       "hi there",
	})

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "sent",
		RequestId: 555,
		Timestamp: 200,
	}, pendingSends, 200)

	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].RequestId, Id(555))
	assert.Equal(t, update.State.OutgoingRequests[0].ReceiverId, Id(8))
	assert.Equal(t, update.State.OutgoingRequests[0].Message, "hi there")
	assert.Equal(t, update.State.OutgoingRequests[0].Status, FriendRequestPending)
	assert.Equal(t, update.Message, "Friend request sent")
	assert.Equal(t, pendingSends.Len(), 0)
}

func TestReconcileErrorRollsBackPlaceholder(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{RequestId: -1, ReceiverId: 8, Status: FriendRequestPending, CreatedAt: 100},
			{RequestId: 3, ReceiverId: 6, Status: FriendRequestPending, CreatedAt: 50},
		},
	}
	pendingSends.Record(&PendingSendContext{PlaceholderId: -1, ReceiverId: 8})

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:  "error",
		Message: "blocked",
	}, pendingSends, 200)

	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].RequestId, Id(3))
	assert.Equal(t, update.Message, "blocked")
	assert.Equal(t, update.IsError, true)
	assert.Equal(t, pendingSends.Len(), 0)
}

func TestReconcileErrorWithoutPending(t *testing.T) {
	pendingSends := NewPendingSends()
	update := ReconcileFriendEvent(FriendUiState{}, &FriendRequestAckEvent{
		Status: "failed",
	}, pendingSends, 200)
	assert.Equal(t, update.Message, "Friend action failed")
	assert.Equal(t, update.IsError, true)
}

func TestReconcileResendAck(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{RequestId: 21, ReceiverId: 8, Message: "old", Status: FriendRequestRejected, CreatedAt: 100},
		},
	}
	pendingSends.Record(&PendingSendContext{ExistingRequestId: 21, ReceiverId: 8, Message: "old"})

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "sent",
		RequestId: 22,
		Timestamp: 900,
	}, pendingSends, 900)

	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].RequestId, Id(22))
	assert.Equal(t, update.State.OutgoingRequests[0].Status, FriendRequestPending)
	assert.Equal(t, update.State.OutgoingRequests[0].CreatedAt, int64(900))
	assert.Equal(t, update.Message, "Friend request resent")
}

func TestReconcileRejectedIncoming(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		IncomingRequests: []FriendRequest{
			{RequestId: 5, RequesterId: 3, RequesterName: "eve", Status: FriendRequestPending, Incoming: true},
		},
	}

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "rejected",
		RequestId: 5,
	}, pendingSends, 100)

	assert.Equal(t, len(update.State.IncomingRequests), 0)
	assert.Equal(t, update.Message, "Rejected eve's friend request")
}

func TestReconcileRejectedOutgoing(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{RequestId: 5, ReceiverId: 3, Status: FriendRequestPending},
		},
	}

	update := ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "rejected",
		RequestId: 5,
	}, pendingSends, 100)

	// the entry is kept so the user can resend
	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].Status, FriendRequestRejected)
	assert.Equal(t, update.Message, "Friend request was rejected by the recipient")
}

func TestReconcileRequestListClassification(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{RequestId: 2, ReceiverId: 9, ReceiverName: "frank", Message: "yo", Status: FriendRequestPending, CreatedAt: 50},
		},
	}

	event := &FriendRequestListEvent{
		SelfId: 5,
		Requests: []FriendRequest{
			{RequestId: 1, RequesterId: 9, ReceiverId: 5, Status: FriendRequestPending, CreatedAt: 100},
			{RequestId: 2, RequesterId: 5, ReceiverId: 9, Status: FriendRequestPending, CreatedAt: 200},
			{RequestId: 3, RequesterId: 5, ReceiverId: 7, Status: FriendRequestAccepted, CreatedAt: 300},
		},
	}
	update := ReconcileFriendEvent(state, event, pendingSends, 500)

	assert.Equal(t, len(update.State.IncomingRequests), 1)
	assert.Equal(t, update.State.IncomingRequests[0].RequestId, Id(1))
	assert.Equal(t, update.State.IncomingRequests[0].Incoming, true)

	// accepted entries are dropped; the merged outgoing entry keeps the
	// locally resolved receiver name
	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].RequestId, Id(2))
	assert.Equal(t, update.State.OutgoingRequests[0].ReceiverName, "frank")
	assert.Equal(t, update.State.OutgoingRequests[0].CreatedAt, int64(200))
	assert.Equal(t, update.Message, "Friend requests synced")
}

func TestReconcileFriendListReplaces(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		Friends: []FriendSummary{{UserId: 1, Username: "old"}},
	}

	update := ReconcileFriendEvent(state, &FriendListEvent{
		Friends: []FriendSummary{
			{UserId: 2, Username: "zed"},
			{UserId: 3, Username: "amy"},
			{UserId: 2, Username: "zed", ConvId: 10},
		},
	}, pendingSends, 100)

	assert.Equal(t, len(update.State.Friends), 2)
	// sorted by display name, duplicates merged
	assert.Equal(t, update.State.Friends[0].Username, "amy")
	assert.Equal(t, update.State.Friends[1].Username, "zed")
	assert.Equal(t, update.State.Friends[1].ConvId, Id(10))
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	pendingSends := NewPendingSends()
	state := FriendUiState{
		IncomingRequests: []FriendRequest{
			{RequestId: 5, RequesterId: 3, Status: FriendRequestPending, CreatedAt: 10, Incoming: true},
		},
	}

	ReconcileFriendEvent(state, &FriendRequestAckEvent{
		Status:    "rejected",
		RequestId: 5,
	}, pendingSends, 100)

	// the caller's snapshot is unchanged
	assert.Equal(t, len(state.IncomingRequests), 1)
	assert.Equal(t, state.IncomingRequests[0].Status, FriendRequestPending)
}
