package knot

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestPendingSendsFifo(t *testing.T) {
	pendingSends := NewPendingSends()
	a := &PendingSendContext{PlaceholderId: -1, ReceiverId: 8}
	b := &PendingSendContext{PlaceholderId: -2, ReceiverId: 9}
	pendingSends.Record(a)
	pendingSends.Record(b)
	assert.Equal(t, pendingSends.Len(), 2)

	assert.Equal(t, pendingSends.ConsumeOldest(), a)
	assert.Equal(t, pendingSends.ConsumeOldest(), b)
	assert.Equal(t, pendingSends.ConsumeOldest(), nil)
}

func TestPendingSendsRemove(t *testing.T) {
	pendingSends := NewPendingSends()
	a := &PendingSendContext{PlaceholderId: -1}
	b := &PendingSendContext{PlaceholderId: -2}
	pendingSends.Record(a)
	pendingSends.Record(b)

	pendingSends.Remove(a)
	assert.Equal(t, pendingSends.Len(), 1)
	assert.Equal(t, pendingSends.ConsumeOldest(), b)

	// removing an unknown context is a no-op
	pendingSends.Remove(a)
	assert.Equal(t, pendingSends.Len(), 0)
}

func TestPendingMessagesConsumeOnce(t *testing.T) {
	pendingMessages := NewPendingMessages()
	pendingMessages.Record("c-1", 12)
	pendingMessages.Record("c-2", 13)

	convId, ok := pendingMessages.Consume("c-1")
	assert.Equal(t, ok, true)
	assert.Equal(t, convId, Id(12))

	_, ok = pendingMessages.Consume("c-1")
	assert.Equal(t, ok, false)
	assert.Equal(t, pendingMessages.Len(), 1)
}
