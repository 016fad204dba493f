// Package simradio is an in-memory radio medium.
//
// An Air connects simulated devices with Links. Each link is a pion test
// bridge with a configurable signal strength and loss model; a broadcast
// repeats its frame over every link of the sending device, and the
// receiving device delivers it to its running scans. Devices implement
// radio.Adapter, so the whole attendance stack runs unchanged on top.
package simradio

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"
)

var (
	// ErrClosed is returned when the air has been closed.
	ErrClosed = errors.New("simradio: air closed")

	// ErrSelfLink is returned when linking a device to itself.
	ErrSelfLink = errors.New("simradio: cannot link a device to itself")
)

// Defaults.
const (
	DefaultInterval      = 100 * time.Millisecond
	DefaultTickInterval  = 1 * time.Millisecond
	DefaultMaxBroadcasts = 4

	// maxDataSize is the manufacturer data that fits a legacy advertisement.
	maxDataSize = 24
)

// Config configures an Air.
type Config struct {
	// Interval between repeated frames of one broadcast (default: 100ms).
	Interval time.Duration

	// TickInterval is how often link bridges deliver frames (default: 1ms).
	TickInterval time.Duration

	// MaxBroadcasts is the number of concurrent broadcasts a device
	// supports (default: 4).
	MaxBroadcasts int

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Air is the shared medium.
type Air struct {
	config Config
	log    logging.LeveledLogger

	mu      sync.Mutex
	devices []*Device
	links   []*Link
	closed  bool
}

// NewAir creates an empty medium.
func NewAir(config Config) *Air {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.MaxBroadcasts <= 0 {
		config.MaxBroadcasts = DefaultMaxBroadcasts
	}

	a := &Air{config: config}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("simradio")
	}
	return a
}

// NewDevice adds a powered, fully authorized device with both capabilities.
func (a *Air) NewDevice(name string) *Device {
	d := newDevice(a, name)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = append(a.devices, d)
	return d
}

// Link connects x and y. A TxPowerHigh broadcast from either side is
// received by the other at rssi dBm.
func (a *Air) Link(x, y *Device, rssi int) (*Link, error) {
	if x == y {
		return nil, ErrSelfLink
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	l := newLink(x, y, rssi, a.config.TickInterval)
	a.links = append(a.links, l)
	x.addLink(l)
	y.addLink(l)

	if a.log != nil {
		a.log.Debugf("linked %s <-> %s at %d dBm", x.name, y.name, rssi)
	}
	return l, nil
}

// Close stops every broadcast and scan and tears down all links.
func (a *Air) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	devices := a.devices
	links := a.links
	a.mu.Unlock()

	for _, d := range devices {
		d.shutdown()
	}

	var firstErr error
	for _, l := range links {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
