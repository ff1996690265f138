package knot

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestMergeFriendSnapshotAuthoritative(t *testing.T) {
	state := FriendUiState{
		Friends: []FriendSummary{{UserId: 1, Username: "stale"}},
		IncomingRequests: []FriendRequest{
			{RequestId: 4, RequesterId: 2, Status: FriendRequestPending, Incoming: true},
		},
	}
	snapshot := &FriendSnapshot{
		Friends: []FriendSummary{{UserId: 3, Username: "hana", ConvId: 7}},
		IncomingRequests: []FriendRequest{
			{RequestId: 9, RequesterId: 6, Status: FriendRequestPending, CreatedAt: 100, Incoming: true},
		},
	}

	update := MergeFriendSnapshot(state, snapshot, 1000, 30*time.Second)
	assert.Equal(t, len(update.State.Friends), 1)
	assert.Equal(t, update.State.Friends[0].UserId, Id(3))
	assert.Equal(t, len(update.State.IncomingRequests), 1)
	assert.Equal(t, update.State.IncomingRequests[0].RequestId, Id(9))
	assert.Equal(t, update.Message, "Friend data refreshed")
}

func TestMergeFriendSnapshotRetainsRecentPending(t *testing.T) {
	now := int64(100_000)
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			// sent an instant before the fetch; the server has not echoed it yet
			{RequestId: -1, ReceiverId: 8, Status: FriendRequestPending, CreatedAt: now - 2_000},
			// old pending the server no longer knows about
			{RequestId: 17, ReceiverId: 9, Status: FriendRequestPending, CreatedAt: now - 60_000},
			// rejected local-only entries never survive
			{RequestId: 18, ReceiverId: 10, Status: FriendRequestRejected, CreatedAt: now - 1_000},
		},
	}

	update := MergeFriendSnapshot(state, &FriendSnapshot{}, now, 30*time.Second)
	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].RequestId, Id(-1))
}

func TestMergeFriendSnapshotKeepsLocalDisplayFields(t *testing.T) {
	now := int64(100_000)
	state := FriendUiState{
		OutgoingRequests: []FriendRequest{
			{
				RequestId:    21,
				ReceiverId:   8,
				ReceiverName: "ines",
				Message:      "hello",
				Status:       FriendRequestPending,
				CreatedAt:    now - 5_000,
			},
		},
	}
	snapshot := &FriendSnapshot{
		OutgoingRequests: []FriendRequest{
			// the server echoes the request with a final status but no names
			{RequestId: 21, ReceiverId: 8, Status: FriendRequestRejected, CreatedAt: now - 5_000},
		},
	}

	update := MergeFriendSnapshot(state, snapshot, now, 30*time.Second)
	assert.Equal(t, len(update.State.OutgoingRequests), 1)
	assert.Equal(t, update.State.OutgoingRequests[0].Status, FriendRequestRejected)
	assert.Equal(t, update.State.OutgoingRequests[0].ReceiverName, "ines")
	assert.Equal(t, update.State.OutgoingRequests[0].Message, "hello")
}
