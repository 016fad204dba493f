// Package proximity decides whether a beacon is close enough to count as
// present, using a per-session sliding window of signal strength samples.
//
// Each session keeps at most SampleCount samples no older than Window. Once
// the window is full, the median RSSI is compared against RSSIThreshold.
// Acceptance is final for the lifetime of the Engine; rejection is not, and
// later samples may still lead to acceptance.
package proximity

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/pion/logging"
)

// Defaults.
const (
	DefaultWindow        = 15 * time.Second
	DefaultSampleCount   = 3
	DefaultRSSIThreshold = -75
)

// Decision is the kind of outcome produced by Observe.
type Decision int

const (
	// DecisionPending means the window does not yet hold enough samples.
	DecisionPending Decision = iota

	// DecisionAccepted means the median met the threshold. Final.
	DecisionAccepted

	// DecisionRejected means the median was below the threshold. Retry allowed.
	DecisionRejected

	// DecisionAlreadyAccepted means the session was accepted earlier.
	DecisionAlreadyAccepted
)

// String returns a human-readable name for the decision.
func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "Pending"
	case DecisionAccepted:
		return "Accepted"
	case DecisionRejected:
		return "Rejected"
	case DecisionAlreadyAccepted:
		return "AlreadyAccepted"
	default:
		return "Unknown"
	}
}

// Outcome is the result of a single observation.
type Outcome struct {
	Decision Decision

	// Median is the window median for Accepted and Rejected outcomes.
	Median int
}

// String returns a compact description for logging.
func (o Outcome) String() string {
	switch o.Decision {
	case DecisionAccepted, DecisionRejected:
		return fmt.Sprintf("%s(median=%d)", o.Decision, o.Median)
	default:
		return o.Decision.String()
	}
}

// Config configures an Engine.
type Config struct {
	// Window is the maximum sample age (default: 15s).
	Window time.Duration

	// SampleCount is the number of samples required for a decision and the
	// hard cap on the window size (default: 3).
	SampleCount int

	// RSSIThreshold is the minimum median, in dBm, for acceptance (default: -75).
	// Received signal strength is always negative, so zero means unset.
	RSSIThreshold int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns a Config populated with the default constants.
func DefaultConfig() Config {
	return Config{
		Window:        DefaultWindow,
		SampleCount:   DefaultSampleCount,
		RSSIThreshold: DefaultRSSIThreshold,
	}
}

type sample struct {
	at   time.Time
	rssi int
}

// Engine tracks per-session sample windows and the set of accepted sessions.
// It is safe for concurrent use.
type Engine struct {
	config Config
	log    logging.LeveledLogger

	mu       sync.Mutex
	windows  map[beacon.SessionID][]sample
	accepted map[beacon.SessionID]struct{}
}

// NewEngine creates an Engine. Zero fields in config take their defaults.
func NewEngine(config Config) *Engine {
	if config.RSSIThreshold == 0 {
		config.RSSIThreshold = DefaultRSSIThreshold
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.SampleCount <= 0 {
		config.SampleCount = DefaultSampleCount
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	e := &Engine{
		config:   config,
		windows:  make(map[beacon.SessionID][]sample),
		accepted: make(map[beacon.SessionID]struct{}),
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("proximity")
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Observe records one RSSI sample for session and returns the resulting decision.
func (e *Engine) Observe(session beacon.SessionID, rssi int) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.accepted[session]; ok {
		return Outcome{Decision: DecisionAlreadyAccepted}
	}

	now := e.config.Now()
	window := append(e.windows[session], sample{at: now, rssi: rssi})

	// Drop stale samples.
	fresh := window[:0]
	for _, s := range window {
		if now.Sub(s.at) <= e.config.Window {
			fresh = append(fresh, s)
		}
	}
	window = fresh

	// Hard cap.
	if len(window) > e.config.SampleCount {
		window = window[len(window)-e.config.SampleCount:]
	}
	e.windows[session] = window

	if len(window) < e.config.SampleCount {
		return Outcome{Decision: DecisionPending}
	}

	m := median(window)
	if m >= e.config.RSSIThreshold {
		e.accepted[session] = struct{}{}
		delete(e.windows, session)
		if e.log != nil {
			e.log.Debugf("session %s accepted (median=%d)", session, m)
		}
		return Outcome{Decision: DecisionAccepted, Median: m}
	}

	if e.log != nil {
		e.log.Debugf("session %s rejected (median=%d), retry allowed", session, m)
	}
	return Outcome{Decision: DecisionRejected, Median: m}
}

// Accepted reports whether session has been accepted.
func (e *Engine) Accepted(session beacon.SessionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.accepted[session]
	return ok
}

// Pending returns the number of samples currently held for session.
func (e *Engine) Pending(session beacon.SessionID) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.windows[session])
}

// median returns the middle RSSI of the window, or the lower-middle one
// for an even-sized window.
func median(window []sample) int {
	values := make([]int, len(window))
	for i, s := range window {
		values[i] = s.rssi
	}
	sort.Ints(values)
	return values[(len(values)-1)/2]
}
