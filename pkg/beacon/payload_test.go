package beacon

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode_Layout(t *testing.T) {
	session := SessionIDFromBits(0x0102030405060708, 0x090A0B0C0D0E0F10)

	got := Encode(MarkerRelay, session)
	want := []byte{
		0x02,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10,
	}

	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
	if len(got) != PayloadSize {
		t.Errorf("len(Encode()) = %d, want %d", len(got), PayloadSize)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	sessions := []SessionID{
		NilSessionID,
		NewSessionID(),
		NewSessionID(),
		SessionIDFromBits(^uint64(0), ^uint64(0)),
		MustParseSessionID("00001111-0000-1000-8000-00805f9b34fb"),
	}

	for _, marker := range []Marker{MarkerOrigin, MarkerRelay} {
		for _, session := range sessions {
			got, err := Decode(Encode(marker, session))
			if err != nil {
				t.Fatalf("Decode(Encode(%s, %s)) error = %v", marker, session, err)
			}
			if got.Marker != marker || got.Session != session {
				t.Errorf("Decode(Encode(%s, %s)) = %s", marker, session, got)
			}
		}
	}
}

func TestDecode_Rejects(t *testing.T) {
	valid := Encode(MarkerOrigin, NewSessionID())

	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{"nil", nil, ErrInvalidLength},
		{"empty", []byte{}, ErrInvalidLength},
		{"marker only", []byte{0x01}, ErrInvalidLength},
		{"one short", valid[:PayloadSize-1], ErrInvalidLength},
		{"one long", append(append([]byte{}, valid...), 0x00), ErrInvalidLength},
		{"utf8 marker string", []byte("TEACHER"), ErrInvalidLength},
		{"zero marker", append([]byte{0x00}, valid[1:]...), ErrUnknownMarker},
		{"marker 0x03", append([]byte{0x03}, valid[1:]...), ErrUnknownMarker},
		{"marker 0xFF", append([]byte{0xFF}, valid[1:]...), ErrUnknownMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if p != (Payload{}) {
				t.Errorf("Decode() returned partial payload %+v", p)
			}
		})
	}
}

func TestDecode_AllMarkerBytes(t *testing.T) {
	session := NewSessionID()
	for b := 0; b < 256; b++ {
		buf := Encode(Marker(b), session)
		_, err := Decode(buf)
		valid := b == 0x01 || b == 0x02
		if valid && err != nil {
			t.Errorf("marker 0x%02X: unexpected error %v", b, err)
		}
		if !valid && !errors.Is(err, ErrUnknownMarker) {
			t.Errorf("marker 0x%02X: error = %v, want ErrUnknownMarker", b, err)
		}
	}
}

func TestMarker_String(t *testing.T) {
	tests := []struct {
		m    Marker
		want string
	}{
		{MarkerOrigin, "Origin"},
		{MarkerRelay, "Relay"},
		{Marker(0x7F), "Marker(0x7F)"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Marker(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}
