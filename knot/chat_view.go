package knot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

type ChatStateFunction func(state ChatUiState)

type chatStateCallback struct {
	callback ChatStateFunction
}

// ChatView owns the chat-domain state: one ordered timeline per
// conversation plus per-message delivery status. Same consumption and
// publication discipline as FriendView.
type ChatView struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport *PlatformTransport
	settings  *ClientSettings

	selfId Id

	pendingMessages *PendingMessages

	stateMutex         sync.Mutex
	state              ChatUiState
	selectedConvId     Id
	connectionObserved bool

	stateCallbacks        *CallbackList[*chatStateCallback]
	notificationCallbacks *CallbackList[*notificationCallback]

	unsubReceive    func()
	unsubConnection func()
}

func NewChatView(
	ctx context.Context,
	transport *PlatformTransport,
	auth *ClientAuth,
	settings *ClientSettings,
) (*ChatView, error) {
	selfId, err := auth.SelfId()
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	view := &ChatView{
		ctx:                   cancelCtx,
		cancel:                cancel,
		transport:             transport,
		settings:              settings,
		selfId:                selfId,
		pendingMessages:       NewPendingMessages(),
		state:                 NewChatUiState(),
		stateCallbacks:        NewCallbackList[*chatStateCallback](),
		notificationCallbacks: NewCallbackList[*notificationCallback](),
	}
	view.unsubReceive = transport.AddReceiveCallback(view.receive)
	view.unsubConnection = transport.AddConnectionCallback(view.connectionChanged)
	return view, nil
}

func (self *ChatView) State() ChatUiState {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.state
}

func (self *ChatView) SelfId() Id {
	return self.selfId
}

func (self *ChatView) AddStateCallback(callback ChatStateFunction) func() {
	return self.stateCallbacks.Add(&chatStateCallback{callback: callback})
}

func (self *ChatView) AddNotificationCallback(callback NotificationFunction) func() {
	return self.notificationCallbacks.Add(&notificationCallback{callback: callback})
}

// Select marks one conversation as in the foreground. New-message
// notifications for the selected conversation are suppressed.
func (self *ChatView) Select(convId Id) {
	self.stateMutex.Lock()
	self.selectedConvId = convId
	self.stateMutex.Unlock()
}

// SeedConversations installs conversation partners from a friend
// snapshot, so timelines are addressable before any message arrives.
func (self *ChatView) SeedConversations(friends []FriendSummary) {
	self.stateMutex.Lock()
	next := self.state
	for _, friend := range friends {
		if friend.ConvId == 0 {
			continue
		}
		if _, ok := next.Partners[friend.ConvId]; !ok {
			next = next.withPartner(friend.ConvId, friend)
		}
	}
	self.state = next
	state := self.state
	self.stateMutex.Unlock()

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(state)
	}
}

func (self *ChatView) receive(frame string) {
	event := DecodeFrame(frame)
	if event == nil {
		return
	}
	HandleError(func() {
		switch v := event.(type) {
		case *ChatIncomingEvent:
			self.handleIncoming(v)
		case *ChatAckEvent:
			self.handleAck(v)
		case *ChatErrorEvent:
			self.handleError(v)
		}
	})
}

func (self *ChatView) handleIncoming(event *ChatIncomingEvent) {
	self.stateMutex.Lock()
	update := ApplyChatIncoming(self.state, self.selfId, event, time.Now().UnixMilli())
	self.state = update.State
	selected := self.selectedConvId
	self.stateMutex.Unlock()

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(update.State)
	}
	// the foreground conversation renders the message itself
	if update.Message != "" && event.ConvId != selected {
		self.notify(update.Message, update.IsError)
	}
	glog.V(2).Infof("[cv]msg %d<-%d\n", event.ConvId, event.FromUid)
}

func (self *ChatView) handleAck(event *ChatAckEvent) {
	convId, ok := self.pendingMessages.Consume(event.ClientMsgId)
	if !ok {
		glog.Infof("[cv]ack for unknown message %s\n", event.ClientMsgId)
		return
	}

	self.stateMutex.Lock()
	self.state = ApplyChatAck(self.state, convId, event)
	state := self.state
	self.stateMutex.Unlock()

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(state)
	}
}

// handleError surfaces MSG_ERROR. The observed schema carries no
// correlating id, so the failure is reported globally; when a client
// message id is present the matching pending message is marked failed.
func (self *ChatView) handleError(event *ChatErrorEvent) {
	if event.ClientMsgId != "" {
		if convId, ok := self.pendingMessages.Consume(event.ClientMsgId); ok {
			self.stateMutex.Lock()
			self.state = ApplyChatFail(self.state, convId, event.ClientMsgId)
			state := self.state
			self.stateMutex.Unlock()

			for _, stateCallback := range self.stateCallbacks.Get() {
				stateCallback.callback(state)
			}
		}
	}
	self.notify(event.Message, true)
}

func (self *ChatView) connectionChanged(connected bool) {
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
	if first || !changed {
		return
	}
	if connected {
		self.notify("Connected", false)
	} else {
		self.notify("Disconnected", false)
	}
}

// SendMessage appends a pending message to the conversation timeline
// and puts it on the wire. Returns the client message id the later ack
// will carry. Rejected synchronously when disconnected.
func (self *ChatView) SendMessage(convId Id, content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty message")
	}
	if !self.transport.IsConnected() {
		return "", ErrNotConnected
	}

	self.stateMutex.Lock()
	next, clientMsgId := ApplyChatSend(self.state, convId, self.selfId, content, time.Now().UnixMilli())
	self.state = next
	self.stateMutex.Unlock()

	self.pendingMessages.Record(clientMsgId, convId)

	err := self.transport.SendEvent(map[string]any{
		"type":        "MSG_SEND",
		"convId":      convId,
		"clientMsgId": clientMsgId,
		"msgType":     "text",
		"contentText": content,
	})
	if err != nil {
		// no ack will come. mark the message failed right away.
		self.pendingMessages.Consume(clientMsgId)
		self.stateMutex.Lock()
		self.state = ApplyChatFail(self.state, convId, clientMsgId)
		state := self.state
		self.stateMutex.Unlock()

		for _, stateCallback := range self.stateCallbacks.Get() {
			stateCallback.callback(state)
		}
		self.notify(fmt.Sprintf("Failed to send message: %s", err), true)
		return clientMsgId, err
	}

	for _, stateCallback := range self.stateCallbacks.Get() {
		stateCallback.callback(next)
	}
	glog.V(2).Infof("[cv]msg %d-> %s\n", convId, clientMsgId)
	return clientMsgId, nil
}

func (self *ChatView) notify(message string, isError bool) {
	if isError {
		glog.Infof("[cv]%s\n", message)
	}
	for _, notificationCallback := range self.notificationCallbacks.Get() {
		notificationCallback.callback(message, isError)
	}
}

func (self *ChatView) Close() {
	self.unsubReceive()
	self.unsubConnection()
	self.cancel()
}
