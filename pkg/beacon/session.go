package beacon

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// SessionIDSize is the wire size of a session identifier.
const SessionIDSize = 16

// SessionID identifies one attendance session. It is created by the
// presenter and compared only for equality.
type SessionID uuid.UUID

// NilSessionID is the all-zero session id.
var NilSessionID SessionID

// NewSessionID returns a random (version 4) session id.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID parses the canonical textual form of a session id.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilSessionID, fmt.Errorf("%w: %q", ErrInvalidSessionID, s)
	}
	return SessionID(u), nil
}

// MustParseSessionID is like ParseSessionID but panics on error.
func MustParseSessionID(s string) SessionID {
	id, err := ParseSessionID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// SessionIDFromBits builds a session id from its most and least
// significant 64-bit halves.
func SessionIDFromBits(msb, lsb uint64) SessionID {
	var id SessionID
	binary.BigEndian.PutUint64(id[:8], msb)
	binary.BigEndian.PutUint64(id[8:], lsb)
	return id
}

// MostSignificantBits returns the upper 64 bits of the id.
func (id SessionID) MostSignificantBits() uint64 {
	return binary.BigEndian.Uint64(id[:8])
}

// LeastSignificantBits returns the lower 64 bits of the id.
func (id SessionID) LeastSignificantBits() uint64 {
	return binary.BigEndian.Uint64(id[8:])
}

// IsNil reports whether the id is all zeros.
func (id SessionID) IsNil() bool {
	return id == NilSessionID
}

// String returns the canonical textual form (xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx).
func (id SessionID) String() string {
	return uuid.UUID(id).String()
}
