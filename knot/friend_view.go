package knot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"
)

const DefaultRequestMessage = "Hi! Let's connect as friends."

type FriendStateFunction func(state FriendUiState)
type NotificationFunction func(message string, isError bool)

type friendStateCallback struct {
	callback FriendStateFunction
}

type notificationCallback struct {
	callback NotificationFunction
}

// FriendView owns the friend-domain state. Decoded events are applied
// one at a time in the order the transport delivers frames; the state
// snapshot is replaced atomically and never edited in place. Closing a
// view stops its consumption but leaves the shared transport open.
type FriendView struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport *PlatformTransport
	api       *KnotApi
	settings  *ClientSettings

	pendingSends *PendingSends

	stateMutex         sync.Mutex
	state              FriendUiState
	nextPlaceholderId  Id
	connectionObserved bool

	stateCallbacks        *CallbackList[*friendStateCallback]
	notificationCallbacks *CallbackList[*notificationCallback]

	unsubReceive    func()
	unsubConnection func()
}

func NewFriendView(
	ctx context.Context,
	transport *PlatformTransport,
	api *KnotApi,
	settings *ClientSettings,
) *FriendView {
	cancelCtx, cancel := context.WithCancel(ctx)
	view := &FriendView{
		ctx:                   cancelCtx,
		cancel:                cancel,
		transport:             transport,
		api:                   api,
		settings:              settings,
		pendingSends:          NewPendingSends(),
		stateCallbacks:        NewCallbackList[*friendStateCallback](),
		notificationCallbacks: NewCallbackList[*notificationCallback](),
	}
	view.unsubReceive = transport.AddReceiveCallback(view.receive)
	view.unsubConnection = transport.AddConnectionCallback(view.connectionChanged)
	return view
}

func (self *FriendView) State() FriendUiState {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.state
}

func (self *FriendView) AddStateCallback(callback FriendStateFunction) func() {
	return self.stateCallbacks.Add(&friendStateCallback{callback: callback})
}

func (self *FriendView) AddNotificationCallback(callback NotificationFunction) func() {
	return self.notificationCallbacks.Add(&notificationCallback{callback: callback})
}

func (self *FriendView) receive(frame string) {
	event := DecodeFrame(frame)
	if event == nil || !isFriendEvent(event) {
		return
	}
	HandleError(func() {
		self.stateMutex.Lock()
		update := ReconcileFriendEvent(self.state, event, self.pendingSends, time.Now().UnixMilli())
		self.state = update.State
		self.stateMutex.Unlock()
		self.publish(update)
	})
}

func (self *FriendView) connectionChanged(connected bool) {
	self.stateMutex.Lock()
	first := !self.connectionObserved
	self.connectionObserved = true
	changed := self.state.Connected != connected
	self.state.Connected = connected
	state := self.state
	self.stateMutex.Unlock()

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(state)
	}
	// do not notify on the initial observation, only on transitions
	if first || !changed {
		return
	}
	if connected {
		self.notify("Connected", false)
	} else {
		self.notify("Disconnected", false)
	}
}

// Refresh fetches a REST snapshot and merges it. The snapshot is
// authoritative, but recently sent still-pending requests survive the
// merge (see MergeFriendSnapshot).
func (self *FriendView) Refresh() error {
	snapshot, err := self.api.FetchFriendSnapshotSync()
	if err != nil {
		self.notify(fmt.Sprintf("Failed to refresh friend data: %s", err), true)
		return err
	}
	self.stateMutex.Lock()
	update := MergeFriendSnapshot(self.state, snapshot, time.Now().UnixMilli(), self.settings.SnapshotRetention)
	self.state = update.State
	self.stateMutex.Unlock()
	self.publish(update)
	return nil
}

// SendFriendRequest optimistically inserts an outgoing entry under a
// negative placeholder id and puts the send on the wire. Rejected
// synchronously when disconnected; nothing is queued for later.
func (self *FriendView) SendFriendRequest(receiverId Id, message string) error {
	if receiverId <= 0 {
		return fmt.Errorf("invalid receiver id %d", receiverId)
	}
	if !self.transport.IsConnected() {
		return ErrNotConnected
	}
	if message == "" {
		message = DefaultRequestMessage
	}

	now := time.Now().UnixMilli()

	self.stateMutex.Lock()
	self.nextPlaceholderId -= 1
	placeholderId := self.nextPlaceholderId
	placeholder := FriendRequest{
		RequestId:     placeholderId,
		RequesterId:   -1,
		ReceiverId:    receiverId,
		Message:       message,
		Status:        FriendRequestPending,
		CreatedAt:     now,
		RequesterName: "You",
		Incoming:      false,
	}
	self.state.OutgoingRequests = sortRequestsByCreatedAtDesc(
		append(slices.Clone(self.state.OutgoingRequests), placeholder),
	)
	state := self.state
	self.stateMutex.Unlock()

	context := &PendingSendContext{
		PlaceholderId: placeholderId,
		ReceiverId:    receiverId,
		Message:       message,
	}
	self.pendingSends.Record(context)

	err := self.transport.SendEvent(map[string]any{
		"type":       "FRIEND_REQUEST_SEND",
		"receiverId": receiverId,
		"message":    message,
	})
	if err != nil {
		// no ack will come. roll the optimistic insert back.
		self.pendingSends.Remove(context)
		self.stateMutex.Lock()
		self.state.OutgoingRequests = removeRequest(self.state.OutgoingRequests, placeholderId)
		state = self.state
		self.stateMutex.Unlock()
		for _, stateCallback := range self.stateCallbacks.Get() {
			stateCallback.callback(state)
		}
		self.notify(fmt.Sprintf("Failed to send friend request: %s", err), true)
		return err
	}

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(state)
	}
	self.notify("Friend request sent, waiting for confirmation", false)
	glog.V(2).Infof("[fv]request -> %d\n", receiverId)
	return nil
}

// ResendFriendRequest refreshes an existing outgoing entry and sends
// the request again.
func (self *FriendView) ResendFriendRequest(requestId Id) error {
	if !self.transport.IsConnected() {
		return ErrNotConnected
	}

	now := time.Now().UnixMilli()

	self.stateMutex.Lock()
	existing := findRequest(self.state.OutgoingRequests, requestId)
	if existing == nil {
		self.stateMutex.Unlock()
		return fmt.Errorf("no outgoing request %d", requestId)
	}
	receiverId := existing.ReceiverId
	message := existing.Message
	outgoing := slices.Clone(self.state.OutgoingRequests)
	for i := range outgoing {
		if outgoing[i].RequestId == requestId {
			outgoing[i].Status = FriendRequestPending
			outgoing[i].CreatedAt = now
		}
	}
	self.state.OutgoingRequests = sortRequestsByCreatedAtDesc(outgoing)
	state := self.state
	self.stateMutex.Unlock()

	context := &PendingSendContext{
		ExistingRequestId: requestId,
		ReceiverId:        receiverId,
		Message:           message,
	}
	self.pendingSends.Record(context)

	err := self.transport.SendEvent(map[string]any{
		"type":       "FRIEND_REQUEST_SEND",
		"receiverId": receiverId,
		"message":    message,
	})
	if err != nil {
		self.pendingSends.Remove(context)
		self.notify(fmt.Sprintf("Failed to resend friend request: %s", err), true)
		return err
	}

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(state)
	}
	self.notify("Friend request resent", false)
	return nil
}

func (self *FriendView) AcceptFriendRequest(requestId Id) error {
	if !self.transport.IsConnected() {
		return ErrNotConnected
	}
	err := self.transport.SendEvent(map[string]any{
		"type":      "FRIEND_REQUEST_ACCEPT",
		"requestId": requestId,
	})
	if err != nil {
		return err
	}
	self.notify("Accept request sent", false)
	return nil
}

func (self *FriendView) RejectFriendRequest(requestId Id) error {
	if !self.transport.IsConnected() {
		return ErrNotConnected
	}
	err := self.transport.SendEvent(map[string]any{
		"type":      "FRIEND_REQUEST_REJECT",
		"requestId": requestId,
	})
	if err != nil {
		return err
	}
	self.notify("Reject request sent", false)
	return nil
}

func (self *FriendView) publish(update FriendStateUpdate) {
	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(update.State)
	}
	if update.Message != "" {
		self.notify(update.Message, update.IsError)
	}
}

func (self *FriendView) notify(message string, isError bool) {
	if isError {
		glog.Infof("[fv]%s\n", message)
	}
	for _, notificationCallback := range self.notificationCallbacks.Get() {
		notificationCallback.callback(message, isError)
	}
}

func (self *FriendView) Close() {
	self.unsubReceive()
	self.unsubConnection()
	self.cancel()
}

func isFriendEvent(event Event) bool {
	switch event.(type) {
	case *FriendRequestNewEvent, *FriendRequestAckEvent, *FriendAddedEvent,
		*FriendRequestListEvent, *FriendListEvent, *InfoEvent:
		return true
	default:
		return false
	}
}
