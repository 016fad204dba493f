package simradio

import (
	"encoding/binary"
	"errors"

	"github.com/backkem/attendbeacon/pkg/radio"
)

// Air frame layout: tx power (1), manufacturer id (2, big-endian),
// service uuid (16, zero if none), manufacturer data.
const frameHeaderSize = 1 + 2 + 16

var errShortFrame = errors.New("simradio: short frame")

func marshalFrame(ad radio.Advertisement) []byte {
	buf := make([]byte, frameHeaderSize+len(ad.Data))
	buf[0] = byte(ad.TxPower)
	binary.BigEndian.PutUint16(buf[1:3], ad.ManufacturerID)
	copy(buf[3:19], ad.ServiceUUID[:])
	copy(buf[frameHeaderSize:], ad.Data)
	return buf
}

func unmarshalFrame(buf []byte) (radio.Advertisement, error) {
	if len(buf) < frameHeaderSize {
		return radio.Advertisement{}, errShortFrame
	}
	ad := radio.Advertisement{
		TxPower:        radio.TxPower(buf[0]),
		ManufacturerID: binary.BigEndian.Uint16(buf[1:3]),
		Data:           append([]byte(nil), buf[frameHeaderSize:]...),
	}
	copy(ad.ServiceUUID[:], buf[3:19])
	return ad, nil
}
