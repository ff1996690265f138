package knot

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestApplyChatSendAndAck(t *testing.T) {
	state := NewChatUiState()

	next, clientMsgId := ApplyChatSend(state, 12, 5, "hello", 1000)
	assert.Equal(t, strings.HasPrefix(clientMsgId, "c-"), true)
	assert.Equal(t, len(next.Conversations[12]), 1)
	assert.Equal(t, next.Conversations[12][0].Status, MessagePending)
	assert.Equal(t, next.Conversations[12][0].IsOwn, true)

	// an ack for a different message changes nothing
	next2 := ApplyChatAck(next, 12, &ChatAckEvent{ClientMsgId: "c-other", MsgId: 9})
	assert.Equal(t, next2.Conversations[12][0].Status, MessagePending)

	// the matching ack flips exactly the pending message to sent
	next3 := ApplyChatAck(next, 12, &ChatAckEvent{
		ClientMsgId: clientMsgId,
		MsgId:       42,
		ServerTime:  2000,
	})
	assert.Equal(t, next3.Conversations[12][0].Status, MessageSent)
	assert.Equal(t, next3.Conversations[12][0].MsgId, Id(42))
	assert.Equal(t, next3.Conversations[12][0].Timestamp, int64(2000))
	// the client id stays populated after the server assigns one
	assert.Equal(t, next3.Conversations[12][0].ClientMsgId, clientMsgId)

	// the earlier snapshot is untouched
	assert.Equal(t, next.Conversations[12][0].Status, MessagePending)
}

func TestApplyChatIncomingKnownConversation(t *testing.T) {
	state := NewChatUiState().withPartner(3, FriendSummary{UserId: 9, Username: "gus", ConvId: 3})

	update := ApplyChatIncoming(state, 5, &ChatIncomingEvent{
		ConvId:     3,
		MsgId:      70,
		FromUid:    9,
		Content:    "hey",
		ServerTime: 1500,
	}, 9999)

	assert.Equal(t, len(update.State.Conversations[3]), 1)
	assert.Equal(t, update.State.Conversations[3][0].Status, MessageSent)
	assert.Equal(t, update.State.Conversations[3][0].Timestamp, int64(1500))
	assert.Equal(t, update.State.Conversations[3][0].IsOwn, false)
	assert.Equal(t, update.Message, "New message in conversation 3")
	// the known partner entry is untouched
	assert.Equal(t, update.State.Partners[3].Username, "gus")
}

func TestApplyChatIncomingUnknownConversation(t *testing.T) {
	update := ApplyChatIncoming(NewChatUiState(), 5, &ChatIncomingEvent{
		ConvId:  8,
		FromUid: 2,
		Content: "first contact",
	}, 3000)

	// a placeholder partner is synthesized and the event time defaults to now
	partner, ok := update.State.Partners[8]
	assert.Equal(t, ok, true)
	assert.Equal(t, partner.UserId, Id(2))
	assert.Equal(t, len(update.State.Conversations[8]), 1)
	assert.Equal(t, update.State.Conversations[8][0].Timestamp, int64(3000))
}

func TestApplyChatIncomingOwnEcho(t *testing.T) {
	// servers echo messages sent from another device of the same user
	update := ApplyChatIncoming(NewChatUiState(), 5, &ChatIncomingEvent{
		ConvId:  8,
		MsgId:   71,
		FromUid: 5,
		Content: "from my phone",
	}, 3000)

	assert.Equal(t, update.State.Conversations[8][0].IsOwn, true)
	assert.Equal(t, update.Message, "")
}

func TestApplyChatFail(t *testing.T) {
	state, clientMsgId := ApplyChatSend(NewChatUiState(), 12, 5, "hello", 1000)
	next := ApplyChatFail(state, 12, clientMsgId)
	assert.Equal(t, next.Conversations[12][0].Status, MessageFailed)
	assert.Equal(t, state.Conversations[12][0].Status, MessagePending)
}

func TestClientMessageIdsUnique(t *testing.T) {
	state := NewChatUiState()
	seen := map[string]bool{}
	for i := 0; i < 100; i += 1 {
		var clientMsgId string
		state, clientMsgId = ApplyChatSend(state, 1, 5, "m", int64(i))
		assert.Equal(t, seen[clientMsgId], false)
		seen[clientMsgId] = true
	}
	assert.Equal(t, len(state.Conversations[1]), 100)
}
