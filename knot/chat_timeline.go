package knot

import (
	"fmt"

	"golang.org/x/exp/maps"
)

type MessageStatus int

const (
	MessagePending MessageStatus = iota
	MessageSent
	MessageFailed
)

func (self MessageStatus) String() string {
	switch self {
	case MessageSent:
		return "sent"
	case MessageFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ChatMessage is one entry of a conversation timeline. `ClientMsgId` is
// the join key for ack matching and stays populated after the server
// assigns `MsgId`, since acks only ever echo the client id.
type ChatMessage struct {
	ConvId      Id
	MsgId       Id
	ClientMsgId string
	SenderId    Id
	Content     string
	Timestamp   int64
	IsOwn       bool
	Status      MessageStatus
}

// ChatUiState is the published snapshot for the chat domain.
// `Partners` maps a conversation to the other participant; an entry may
// be a synthesized placeholder when a message arrives for a
// conversation this client has never seen.
type ChatUiState struct {
	Connected     bool
	Conversations map[Id][]ChatMessage
	Partners      map[Id]FriendSummary
}

func NewChatUiState() ChatUiState {
	return ChatUiState{
		Conversations: map[Id][]ChatMessage{},
		Partners:      map[Id]FriendSummary{},
	}
}

type ChatStateUpdate struct {
	State   ChatUiState
	Message string
	IsError bool
}

// copy-on-write helpers. a previously published state is never edited.

func (self ChatUiState) withMessages(convId Id, messages []ChatMessage) ChatUiState {
	conversations := maps.Clone(self.Conversations)
	conversations[convId] = messages
	self.Conversations = conversations
	return self
}

func (self ChatUiState) withPartner(convId Id, partner FriendSummary) ChatUiState {
	partners := maps.Clone(self.Partners)
	partners[convId] = partner
	self.Partners = partners
	return self
}

// ApplyChatSend appends a locally composed message with a fresh client
// message id and pending status. The caller records the returned id
// with the pending-message tracker and puts it on the wire.
func ApplyChatSend(
	state ChatUiState,
	convId Id,
	selfId Id,
	content string,
	now int64,
) (ChatUiState, string) {
	clientMsgId := NewClientMessageId()
	message := ChatMessage{
		ConvId:      convId,
		ClientMsgId: clientMsgId,
		SenderId:    selfId,
		Content:     content,
		Timestamp:   now,
		IsOwn:       true,
		Status:      MessagePending,
	}
	messages := append(cloneMessages(state.Conversations[convId]), message)
	return state.withMessages(convId, messages), clientMsgId
}

// ApplyChatIncoming appends a server-pushed message as sent. An unknown
// conversation gets a placeholder partner entry so the message is not
// dropped. The update message is set for messages from other users; the
// view suppresses it for the selected conversation.
func ApplyChatIncoming(
	state ChatUiState,
	selfId Id,
	event *ChatIncomingEvent,
	now int64,
) ChatStateUpdate {
	timestamp := event.ServerTime
	if timestamp == 0 {
		timestamp = now
	}

	next := state
	if _, ok := next.Partners[event.ConvId]; !ok {
		next = next.withPartner(event.ConvId, FriendSummary{
			UserId: event.FromUid,
			ConvId: event.ConvId,
			Since:  timestamp,
		})
	}

	clientMsgId := fmt.Sprintf("server-%d", event.MsgId)
	if event.MsgId == 0 {
		clientMsgId = fmt.Sprintf("server-%d", timestamp)
	}
	message := ChatMessage{
		ConvId:      event.ConvId,
		MsgId:       event.MsgId,
		ClientMsgId: clientMsgId,
		SenderId:    event.FromUid,
		Content:     event.Content,
		Timestamp:   timestamp,
		IsOwn:       event.FromUid == selfId,
		Status:      MessageSent,
	}
	messages := append(cloneMessages(next.Conversations[event.ConvId]), message)
	next = next.withMessages(event.ConvId, messages)

	update := ChatStateUpdate{State: next}
	if !message.IsOwn {
		update.Message = fmt.Sprintf("New message in conversation %d", event.ConvId)
	}
	return update
}

// ApplyChatAck flips the matching pending message to sent and attaches
// the server-assigned id and timestamp. Other messages are unaffected.
func ApplyChatAck(state ChatUiState, convId Id, event *ChatAckEvent) ChatUiState {
	messages := cloneMessages(state.Conversations[convId])
	for i := range messages {
		if messages[i].ClientMsgId == event.ClientMsgId {
			messages[i].Status = MessageSent
			if event.MsgId != 0 {
				messages[i].MsgId = event.MsgId
			}
			if event.ServerTime != 0 {
				messages[i].Timestamp = event.ServerTime
			}
		}
	}
	return state.withMessages(convId, messages)
}

// ApplyChatFail marks one pending message failed, for the rare error
// payload that correlates by client message id.
func ApplyChatFail(state ChatUiState, convId Id, clientMsgId string) ChatUiState {
	messages := cloneMessages(state.Conversations[convId])
	for i := range messages {
		if messages[i].ClientMsgId == clientMsgId {
			messages[i].Status = MessageFailed
		}
	}
	return state.withMessages(convId, messages)
}

func cloneMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	return out
}
