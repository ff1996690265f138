package knot

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// server-assigned identifiers (user, request, conversation, message) are
// int64 on the wire. 0 means unset. placeholder request ids are negative
// and assigned locally before the server confirms a real id.
type Id = int64

// NewClientMessageId returns a new id for a locally composed message.
// unique per device per process. the id doubles as the join key for ack
// matching, so a collision is a correctness bug, not a cosmetic one.
func NewClientMessageId() string {
	return fmt.Sprintf("c-%s", ulid.Make())
}

// NewInstanceId identifies this client process to the platform.
func NewInstanceId() string {
	return uuid.NewString()
}
