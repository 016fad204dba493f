package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/metrics"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultDuration is how long a relay broadcast runs.
const DefaultDuration = 20 * time.Second

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Adapter is the device radio. Required.
	Adapter radio.Adapter

	// Registry records relayed sessions. Required.
	Registry *Registry

	// Marker tags relayed frames (default: beacon.MarkerRelay).
	Marker beacon.Marker

	// Duration bounds each relay broadcast (default: 20s).
	Duration time.Duration

	// ManufacturerID keys the payload (default: radio.DefaultManufacturerID).
	ManufacturerID uint16

	// ServiceUUID is advertised alongside the payload if set.
	ServiceUUID uuid.UUID

	// TxPower for relay broadcasts. The zero value is radio.TxPowerUltraLow,
	// which keeps the extension to a single short hop.
	TxPower radio.TxPower

	// Metrics records relay attempts. Optional.
	Metrics *metrics.Metrics

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// activeRelay is the single live relay broadcast.
type activeRelay struct {
	session   beacon.SessionID
	broadcast radio.Broadcast
	timer     *time.Timer
	gen       uint64
	startedAt time.Time
}

// Coordinator runs relay broadcasts. At most one relay is live at a time;
// starting a new one stops the previous one first.
type Coordinator struct {
	config CoordinatorConfig
	log    logging.LeveledLogger

	mu     sync.Mutex
	active *activeRelay
	gen    uint64
	closed bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Registry == nil {
		return nil, ErrNilRegistry
	}
	if !config.Marker.IsValid() {
		config.Marker = beacon.MarkerRelay
	}
	if config.Duration <= 0 {
		config.Duration = DefaultDuration
	}
	if config.ManufacturerID == 0 {
		config.ManufacturerID = radio.DefaultManufacturerID
	}

	c := &Coordinator{config: config}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("beacon-relay")
	}
	return c, nil
}

// Registry returns the registry the coordinator records into.
func (c *Coordinator) Registry() *Registry {
	return c.config.Registry
}

// StartRelay rebroadcasts session for the configured duration.
//
// It fails with ErrAlreadyRelayed if this device relayed session before,
// radio.ErrMissingPermission, radio.ErrRadioOff or radio.ErrNoBroadcaster
// if the radio cannot broadcast, and a *radio.BroadcastError if the
// platform rejects the start. The registry is only updated on success.
func (c *Coordinator) StartRelay(ctx context.Context, session beacon.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.config.Registry.Contains(session) {
		c.config.Metrics.RelayAttempted("already_relayed")
		if c.log != nil {
			c.log.Debugf("session %s already relayed, skipping", session)
		}
		return ErrAlreadyRelayed
	}

	b, err := radio.CheckBroadcast(c.config.Adapter)
	if err != nil {
		c.config.Metrics.RelayAttempted("precondition")
		return err
	}

	c.stopLocked()

	ad := radio.Advertisement{
		ManufacturerID: c.config.ManufacturerID,
		Data:           beacon.Encode(c.config.Marker, session),
		ServiceUUID:    c.config.ServiceUUID,
		TxPower:        c.config.TxPower,
	}
	handle, err := b.StartBroadcast(ctx, ad)
	if err != nil {
		c.config.Metrics.RelayAttempted("broadcast_failed")
		if c.log != nil {
			c.log.Warnf("relay of session %s failed to start: %v", session, err)
		}
		return fmt.Errorf("relay: start broadcast: %w", err)
	}

	if err := c.config.Registry.MarkRelayed(session); err != nil && c.log != nil {
		c.log.Warnf("relay of session %s started but not persisted: %v", session, err)
	}

	c.gen++
	gen := c.gen
	c.active = &activeRelay{
		session:   session,
		broadcast: handle,
		startedAt: time.Now(),
		gen:       gen,
		timer:     time.AfterFunc(c.config.Duration, func() { c.expire(gen) }),
	}

	c.config.Metrics.RelayAttempted("ok")
	if c.log != nil {
		c.log.Infof("relaying session %s for %v", session, c.config.Duration)
	}
	return nil
}

// StopRelay stops the live relay, if any. It never fails: a broadcast whose
// stop is rejected (for example because authorization was revoked since
// start) is logged and treated as stopped.
func (c *Coordinator) StopRelay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Active returns the session being relayed, if any.
func (c *Coordinator) Active() (beacon.SessionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return beacon.NilSessionID, false
	}
	return c.active.session, true
}

// Close stops the live relay and rejects further starts.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.stopLocked()
	c.closed = true
	return nil
}

// expire is the auto-stop timer callback for generation gen.
func (c *Coordinator) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.gen != gen {
		return
	}
	if c.log != nil {
		c.log.Debugf("relay of session %s expired", c.active.session)
	}
	c.stopLocked()
}

// stopLocked tears down the timer and broadcast together.
func (c *Coordinator) stopLocked() {
	a := c.active
	if a == nil {
		return
	}
	c.active = nil
	a.timer.Stop()

	err := a.broadcast.Stop()
	switch {
	case err == nil:
		if c.log != nil {
			c.log.Debugf("relay of session %s stopped", a.session)
		}
	case errors.Is(err, radio.ErrMissingPermission):
		if c.log != nil {
			c.log.Warnf("relay of session %s: authorization revoked, treating as stopped", a.session)
		}
	default:
		if c.log != nil {
			c.log.Warnf("relay of session %s: stop failed: %v", a.session, err)
		}
	}
}
