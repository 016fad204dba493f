// Package beacon implements the fixed binary framing of attendance session
// beacons.
//
// A beacon frame is exactly 17 bytes:
//
//	+--------+-----------------------------------+
//	| marker | session id (16 bytes, big-endian) |
//	+--------+-----------------------------------+
//	   0x01 = origin (presenter broadcast)
//	   0x02 = relay (single-hop rebroadcast)
//
// The session id is written most-significant 8 bytes first, then the
// least-significant 8 bytes. Frames of any other length, or with any other
// marker value, are rejected by Decode.
package beacon
