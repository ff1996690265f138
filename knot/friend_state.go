package knot

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

type FriendRequestStatus int

// wire codes: 0=PENDING, 1=ACCEPTED, 2=REJECTED
const (
	FriendRequestPending  FriendRequestStatus = 0
	FriendRequestAccepted FriendRequestStatus = 1
	FriendRequestRejected FriendRequestStatus = 2
)

func FriendRequestStatusFromCode(code int64) FriendRequestStatus {
	switch code {
	case 1:
		return FriendRequestAccepted
	case 2:
		return FriendRequestRejected
	default:
		return FriendRequestPending
	}
}

func (self FriendRequestStatus) String() string {
	switch self {
	case FriendRequestAccepted:
		return "accepted"
	case FriendRequestRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// FriendRequest is one entry of the incoming or outgoing request list.
// `RequestId` may be a client-assigned negative placeholder until the
// server confirms a real id.
type FriendRequest struct {
	RequestId       Id
	RequesterId     Id
	ReceiverId      Id
	Message         string
	Status          FriendRequestStatus
	CreatedAt       int64
	ConvId          Id
	RequesterName   string
	RequesterAvatar string
	ReceiverName    string
	Incoming        bool
}

func (self *FriendRequest) RequesterDisplayName() string {
	if self.RequesterName != "" {
		return self.RequesterName
	}
	return fmt.Sprintf("User %d", self.RequesterId)
}

type FriendSummary struct {
	UserId    Id
	Username  string
	AvatarUrl string
	ConvId    Id
	Since     int64
}

func (self *FriendSummary) DisplayName() string {
	if self.Username != "" {
		return self.Username
	}
	return fmt.Sprintf("%d", self.UserId)
}

// FriendUiState is the published snapshot for the friend domain.
// Every reconciliation step produces a new value; the lists are never
// edited in place, so a caller may hold a state across concurrent reads.
type FriendUiState struct {
	Connected        bool
	IncomingRequests []FriendRequest
	OutgoingRequests []FriendRequest
	Friends          []FriendSummary
}

type FriendStateUpdate struct {
	State   FriendUiState
	Message string
	IsError bool
}

func sortRequestsByCreatedAtDesc(requests []FriendRequest) []FriendRequest {
	slices.SortStableFunc(requests, func(a FriendRequest, b FriendRequest) int {
		if b.CreatedAt < a.CreatedAt {
			return -1
		} else if a.CreatedAt < b.CreatedAt {
			return 1
		}
		return 0
	})
	return requests
}

func sortFriendsByDisplayName(friends []FriendSummary) []FriendSummary {
	slices.SortStableFunc(friends, func(a FriendSummary, b FriendSummary) int {
		return strings.Compare(
			strings.ToLower(a.DisplayName()),
			strings.ToLower(b.DisplayName()),
		)
	})
	return friends
}

// dedupFriends removes duplicate user ids. The later-processed entry
// wins, with unset optional fields filled from the earlier one.
func dedupFriends(friends []FriendSummary) []FriendSummary {
	indexByUserId := map[Id]int{}
	out := []FriendSummary{}
	for _, friend := range friends {
		if i, ok := indexByUserId[friend.UserId]; ok {
			out[i] = mergeFriend(out[i], friend)
		} else {
			indexByUserId[friend.UserId] = len(out)
			out = append(out, friend)
		}
	}
	return out
}

func mergeFriend(earlier FriendSummary, later FriendSummary) FriendSummary {
	merged := later
	if merged.Username == "" {
		merged.Username = earlier.Username
	}
	if merged.AvatarUrl == "" {
		merged.AvatarUrl = earlier.AvatarUrl
	}
	if merged.ConvId == 0 {
		merged.ConvId = earlier.ConvId
	}
	if merged.Since == 0 {
		merged.Since = earlier.Since
	}
	return merged
}

// dedupRequests removes duplicate request ids, keeping the
// later-processed entry merged over the earlier one.
func dedupRequests(requests []FriendRequest) []FriendRequest {
	indexByRequestId := map[Id]int{}
	out := []FriendRequest{}
	for _, request := range requests {
		if i, ok := indexByRequestId[request.RequestId]; ok {
			out[i] = mergeRequest(out[i], request)
		} else {
			indexByRequestId[request.RequestId] = len(out)
			out = append(out, request)
		}
	}
	return out
}

func mergeRequest(earlier FriendRequest, later FriendRequest) FriendRequest {
	merged := later
	if merged.Message == "" {
		merged.Message = earlier.Message
	}
	if merged.RequesterName == "" {
		merged.RequesterName = earlier.RequesterName
	}
	if merged.RequesterAvatar == "" {
		merged.RequesterAvatar = earlier.RequesterAvatar
	}
	if merged.ReceiverName == "" {
		merged.ReceiverName = earlier.ReceiverName
	}
	if merged.ConvId == 0 {
		merged.ConvId = earlier.ConvId
	}
	return merged
}

func findRequest(requests []FriendRequest, requestId Id) *FriendRequest {
	for i := range requests {
		if requests[i].RequestId == requestId {
			return &requests[i]
		}
	}
	return nil
}

func removeRequest(requests []FriendRequest, requestId Id) []FriendRequest {
	out := []FriendRequest{}
	for _, request := range requests {
		if request.RequestId != requestId {
			out = append(out, request)
		}
	}
	return out
}
