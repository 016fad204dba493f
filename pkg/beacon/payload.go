package beacon

import "fmt"

// PayloadSize is the fixed wire size of a beacon frame.
const PayloadSize = 1 + SessionIDSize

// Marker distinguishes the origin of a beacon.
type Marker uint8

// Marker values.
const (
	// MarkerOrigin tags the presenter's original broadcast.
	MarkerOrigin Marker = 0x01

	// MarkerRelay tags a single-hop rebroadcast by an attendee.
	MarkerRelay Marker = 0x02
)

// IsValid returns true if m is a recognized marker.
func (m Marker) IsValid() bool {
	return m == MarkerOrigin || m == MarkerRelay
}

// String returns a human-readable name for the marker.
func (m Marker) String() string {
	switch m {
	case MarkerOrigin:
		return "Origin"
	case MarkerRelay:
		return "Relay"
	default:
		return fmt.Sprintf("Marker(0x%02X)", uint8(m))
	}
}

// Payload is a decoded beacon frame.
type Payload struct {
	Marker  Marker
	Session SessionID
}

// Encode returns the wire form of p. See Encode.
func (p Payload) Encode() []byte {
	return Encode(p.Marker, p.Session)
}

// String returns a compact description for logging.
func (p Payload) String() string {
	return fmt.Sprintf("%s/%s", p.Marker, p.Session)
}

// Encode writes the marker byte followed by the session id, most
// significant half first. The result is always PayloadSize bytes.
func Encode(marker Marker, session SessionID) []byte {
	buf := make([]byte, PayloadSize)
	buf[0] = byte(marker)
	copy(buf[1:], session[:])
	return buf
}

// Decode parses a beacon frame. The buffer is never partially parsed:
// it is either a complete valid payload or an error.
func Decode(buf []byte) (Payload, error) {
	if len(buf) != PayloadSize {
		return Payload{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(buf), PayloadSize)
	}

	marker := Marker(buf[0])
	if !marker.IsValid() {
		return Payload{}, fmt.Errorf("%w: 0x%02X", ErrUnknownMarker, buf[0])
	}

	var session SessionID
	copy(session[:], buf[1:])

	return Payload{Marker: marker, Session: session}, nil
}
