// Package attendance is the device-level entry point of the attendance
// protocol.
//
// A Device wires one radio adapter and one durable store into the scan
// orchestrator, the relay coordinator and the presenter beacon controller,
// and exposes the two requests a user interface issues:
//
//	reply, err := dev.ScanForBeacon(ctx, 0)      // attendee
//	reply, err := dev.StartBeacon(ctx, session, 0) // presenter
//
// Each request is answered exactly once. Failures are *RequestError values
// carrying a stable code (see ErrorCode) and a human-readable message.
package attendance
