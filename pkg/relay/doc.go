// Package relay lets an attendee device rebroadcast a session beacon once,
// extending the presenter's range by a single hop.
//
// The Registry is the durable record of sessions this device has relayed;
// a session found there is permanently ineligible. The Coordinator checks
// eligibility and radio preconditions, runs a time-bounded relay broadcast
// and records the session on successful start.
//
// The Coordinator does not check that the session was actually observed
// nearby. Callers only relay sessions the proximity engine accepted.
package relay
