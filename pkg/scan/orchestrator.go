// Package scan runs the attendee side of the protocol: scan for a session
// beacon until one is accepted as nearby, then optionally relay it.
//
// Every call to Orchestrator.ScanForBeacon is answered exactly once. The
// radio callbacks, the timeout and Close race to produce the answer; the
// first one wins and the rest are discarded.
package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/metrics"
	"github.com/backkem/attendbeacon/pkg/proximity"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/backkem/attendbeacon/pkg/relay"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultTimeout bounds a scan when no timeout is given.
const DefaultTimeout = 10 * time.Second

// Relayer starts a relay for an accepted origin beacon.
// *relay.Coordinator implements it.
type Relayer interface {
	StartRelay(ctx context.Context, session beacon.SessionID) error
}

// Config configures an Orchestrator.
type Config struct {
	// Adapter is the device radio. Required.
	Adapter radio.Adapter

	// Relayer extends the range of accepted origin beacons. Optional; nil
	// disables relaying.
	Relayer Relayer

	// Proximity configures the acceptance engine created for each scan.
	Proximity proximity.Config

	// ManufacturerID selects beacon frames (default: radio.DefaultManufacturerID).
	ManufacturerID uint16

	// ServiceUUID additionally filters observations if set.
	ServiceUUID uuid.UUID

	// Metrics records outcomes and discarded events. Optional.
	Metrics *metrics.Metrics

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Result is the answer to a scan.
type Result struct {
	// State is StateFound or StateTimedOut. Failures are returned as errors.
	State State

	// Session, Marker and Median describe the accepted beacon.
	Session beacon.SessionID
	Marker  beacon.Marker
	Median  int

	// Relayed reports whether a relay was started for the session.
	Relayed bool

	// RelayErr is the secondary relay status. It never changes State.
	RelayErr error
}

// Found returns true if a beacon was accepted.
func (r Result) Found() bool {
	return r.State == StateFound
}

// Orchestrator runs one scan at a time. It is safe for concurrent use.
type Orchestrator struct {
	config Config
	log    logging.LeveledLogger

	mu      sync.Mutex
	state   State
	current *attempt
	closed  bool
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(config Config) *Orchestrator {
	if config.ManufacturerID == 0 {
		config.ManufacturerID = radio.DefaultManufacturerID
	}
	if config.Proximity.LoggerFactory == nil {
		config.Proximity.LoggerFactory = config.LoggerFactory
	}

	o := &Orchestrator{config: config}
	if config.LoggerFactory != nil {
		o.log = config.LoggerFactory.NewLogger("beacon-scan")
	}
	return o
}

// State returns the current state. Terminal states persist until the next
// scan starts.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ScanForBeacon scans until a beacon is accepted, the timeout (DefaultTimeout
// if <= 0) elapses, the radio reports a failure, ctx is done or the
// orchestrator is closed. A timeout is not an error: it returns a Result with
// StateTimedOut.
func (o *Orchestrator) ScanForBeacon(ctx context.Context, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	att, handle, err := o.begin()
	if err != nil {
		return Result{State: StateFailed}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-att.done:
	case <-timer.C:
		att.resolve(outcome{state: StateTimedOut}, "timeout")
	case <-ctx.Done():
		att.resolve(outcome{state: StateFailed, err: ctx.Err()}, "canceled")
	}
	out := att.result()

	if err := handle.Stop(); err != nil && o.log != nil {
		o.log.Warnf("stop scan: %v", err)
	}

	o.mu.Lock()
	o.state = out.state
	o.current = nil
	o.mu.Unlock()

	switch out.state {
	case StateFound:
		o.config.Metrics.ScanCompleted("found")
	case StateTimedOut:
		o.config.Metrics.ScanCompleted("not_found")
	default:
		o.config.Metrics.ScanCompleted("failed")
		if o.log != nil {
			o.log.Infof("scan failed: %v", out.err)
		}
		return Result{State: StateFailed}, out.err
	}

	res := Result{State: out.state}
	if out.state == StateTimedOut {
		if o.log != nil {
			o.log.Infof("scan timed out after %v", timeout)
		}
		return res, nil
	}

	res.Session = out.payload.Session
	res.Marker = out.payload.Marker
	res.Median = out.median
	if o.log != nil {
		o.log.Infof("beacon found: %s median=%d", out.payload, out.median)
	}

	if out.payload.Marker == beacon.MarkerOrigin && o.config.Relayer != nil {
		res.RelayErr = o.config.Relayer.StartRelay(ctx, res.Session)
		res.Relayed = res.RelayErr == nil
		if res.RelayErr != nil && o.log != nil {
			if errors.Is(res.RelayErr, relay.ErrAlreadyRelayed) {
				o.log.Debugf("session %s already relayed", res.Session)
			} else {
				o.log.Warnf("relay for session %s failed: %v", res.Session, res.RelayErr)
			}
		}
	}
	return res, nil
}

// Close answers a running scan with ErrClosed and rejects further scans.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	o.closed = true
	if o.current != nil {
		o.current.resolve(outcome{state: StateFailed, err: ErrClosed}, "closed")
	}
	return nil
}

// begin validates preconditions and starts the radio scan.
func (o *Orchestrator) begin() (*attempt, radio.Scan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, nil, ErrClosed
	}
	if o.state == StateScanning {
		return nil, nil, ErrScanInProgress
	}

	scanner, err := radio.CheckScan(o.config.Adapter)
	if err != nil {
		o.state = StateFailed
		o.config.Metrics.ScanCompleted("failed")
		if o.log != nil {
			o.log.Debugf("scan precondition failed: %v", err)
		}
		return nil, nil, err
	}

	att := newAttempt(o)
	filter := radio.Filter{
		ManufacturerID: o.config.ManufacturerID,
		ServiceUUID:    o.config.ServiceUUID,
	}
	handle, err := scanner.StartScan(filter, att)
	if err != nil {
		o.state = StateFailed
		o.config.Metrics.ScanCompleted("failed")
		return nil, nil, err
	}

	o.state = StateScanning
	o.current = att
	if o.log != nil {
		o.log.Debugf("scanning: manufacturer=0x%04X", filter.ManufacturerID)
	}
	return att, handle, nil
}

// outcome is a terminal event.
type outcome struct {
	state   State
	payload beacon.Payload
	median  int
	err     error
}

// attempt is the radio.ScanHandler of one scan. It owns the proximity
// engine and the reply latch.
type attempt struct {
	o        *Orchestrator
	engine   *proximity.Engine
	answered atomic.Bool
	done     chan struct{}
	out      outcome
}

func newAttempt(o *Orchestrator) *attempt {
	return &attempt{
		o:      o,
		engine: proximity.NewEngine(o.config.Proximity),
		done:   make(chan struct{}),
	}
}

// resolve latches out as the answer. It returns false, and counts the event
// as discarded, if the attempt was already answered.
func (a *attempt) resolve(out outcome, event string) bool {
	if !a.answered.CompareAndSwap(false, true) {
		a.o.config.Metrics.LateEventDiscarded(event)
		if a.o.log != nil {
			a.o.log.Tracef("discarding late %s event", event)
		}
		return false
	}
	a.out = out
	close(a.done)
	return true
}

// result waits for the latched answer.
func (a *attempt) result() outcome {
	<-a.done
	return a.out
}

// HandleObservation implements radio.ScanHandler.
func (a *attempt) HandleObservation(obs radio.Observation) {
	if a.answered.Load() {
		a.o.config.Metrics.LateEventDiscarded("observation")
		return
	}

	p, err := beacon.Decode(obs.Data)
	if err != nil {
		a.o.config.Metrics.Observed("invalid")
		if a.o.log != nil {
			a.o.log.Tracef("ignoring frame from %s: %v", obs.Address, err)
		}
		return
	}

	res := a.engine.Observe(p.Session, obs.RSSI)
	a.o.config.Metrics.Observed(decisionLabel(res.Decision))
	if a.o.log != nil {
		a.o.log.Tracef("observation %s rssi=%d: %s", p, obs.RSSI, res)
	}

	if res.Decision == proximity.DecisionAccepted {
		a.resolve(outcome{state: StateFound, payload: p, median: res.Median}, "found")
	}
}

// HandleScanFailure implements radio.ScanHandler.
func (a *attempt) HandleScanFailure(code int) {
	a.resolve(outcome{state: StateFailed, err: &radio.ScanError{Code: code}}, "scan_failed")
}

func decisionLabel(d proximity.Decision) string {
	switch d {
	case proximity.DecisionPending:
		return "pending"
	case proximity.DecisionAccepted:
		return "accepted"
	case proximity.DecisionRejected:
		return "rejected"
	case proximity.DecisionAlreadyAccepted:
		return "already_accepted"
	default:
		return "unknown"
	}
}
