package knot

import (
	"sync"

	"golang.org/x/exp/slices"
)

// PendingSendContext records one locally-initiated friend request send
// that has not been acknowledged yet. Exactly one of `PlaceholderId`
// (first send) or `ExistingRequestId` (resend) is set. Each context is
// consumed at most once, by the first matching ack or error.
type PendingSendContext struct {
	PlaceholderId     Id
	ExistingRequestId Id
	ReceiverId        Id
	Message           string
}

// PendingSends is a strict fifo queue: each "sent" ack is matched to
// the oldest unconfirmed send. This is correct only while the server
// acks sends in transmission order, which holds for a single ordered
// websocket. The ack payload carries no correlating field (no receiver,
// no echo of the message), so a content-addressed match is not
// implementable against the observed schema.
type PendingSends struct {
	mutex    sync.Mutex
	contexts []*PendingSendContext
}

func NewPendingSends() *PendingSends {
	return &PendingSends{}
}

func (self *PendingSends) Record(context *PendingSendContext) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.contexts = append(slices.Clone(self.contexts), context)
}

// Remove discards a recorded context that will never be acknowledged,
// e.g. when the wire send itself failed.
func (self *PendingSends) Remove(context *PendingSendContext) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	i := slices.Index(self.contexts, context)
	if i < 0 {
		return
	}
	next := slices.Clone(self.contexts)
	self.contexts = slices.Delete(next, i, i+1)
}

func (self *PendingSends) ConsumeOldest() *PendingSendContext {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if len(self.contexts) == 0 {
		return nil
	}
	context := self.contexts[0]
	self.contexts = slices.Clone(self.contexts[1:])
	return context
}

func (self *PendingSends) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.contexts)
}

// PendingMessages maps an unacknowledged chat message to its owning
// conversation, so that an ack carrying only the client message id can
// be resolved to the right timeline.
type PendingMessages struct {
	mutex         sync.Mutex
	conversations map[string]Id
}

func NewPendingMessages() *PendingMessages {
	return &PendingMessages{
		conversations: map[string]Id{},
	}
}

func (self *PendingMessages) Record(clientMsgId string, convId Id) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.conversations[clientMsgId] = convId
}

func (self *PendingMessages) Consume(clientMsgId string) (Id, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	convId, ok := self.conversations[clientMsgId]
	if ok {
		delete(self.conversations, clientMsgId)
	}
	return convId, ok
}

func (self *PendingMessages) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.conversations)
}
