package knot

// Typed events decoded from wire frames. One frame decodes to at most
// one event; the view controllers consume them one at a time.

type Event interface {
	eventFrame()
}

type FriendUser struct {
	UserId    Id
	Username  string
	AvatarUrl string
}

// FRIEND_REQUEST_NEW
type FriendRequestNewEvent struct {
	RequestId  Id
	Timestamp  int64
	Message    string
	ReceiverId Id
	From       *FriendUser
}

// FRIEND_REQUEST_ACK
// `Status` is one of sent, accepted, rejected, error, failed.
type FriendRequestAckEvent struct {
	Status    string
	RequestId Id
	Timestamp int64
	ConvId    Id
	Message   string
}

// FRIEND_ADDED
type FriendAddedEvent struct {
	RequestId Id
	Friend    *FriendUser
	ConvId    Id
	Timestamp int64
}

// FRIEND_REQUEST_LIST, a full snapshot push
type FriendRequestListEvent struct {
	SelfId   Id
	Requests []FriendRequest
}

// FRIEND_LIST, a full snapshot push
type FriendListEvent struct {
	Friends []FriendSummary
}

// MSG_NEW
type ChatIncomingEvent struct {
	ConvId     Id
	MsgId      Id
	FromUid    Id
	Content    string
	ServerTime int64
}

// MSG_ACK
type ChatAckEvent struct {
	ClientMsgId string
	MsgId       Id
	ServerTime  int64
}

// MSG_ERROR. `ClientMsgId` is empty in the observed schema; when a
// newer server does correlate the failure, the matching pending message
// is marked failed instead of surfacing the error globally.
type ChatErrorEvent struct {
	Message     string
	ClientMsgId string
}

// InfoEvent carries a non-fatal diagnostic, e.g. a malformed frame.
type InfoEvent struct {
	Message string
	IsError bool
}

func (*FriendRequestNewEvent) eventFrame()  {}
func (*FriendRequestAckEvent) eventFrame()  {}
func (*FriendAddedEvent) eventFrame()       {}
func (*FriendRequestListEvent) eventFrame() {}
func (*FriendListEvent) eventFrame()        {}
func (*ChatIncomingEvent) eventFrame()      {}
func (*ChatAckEvent) eventFrame()           {}
func (*ChatErrorEvent) eventFrame()         {}
func (*InfoEvent) eventFrame()              {}
