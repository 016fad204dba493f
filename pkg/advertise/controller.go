// Package advertise runs the presenter's session beacon.
//
// A Controller broadcasts the origin-marked frame of one session at a time
// and stops it automatically after the requested duration. Starting a new
// beacon replaces the current one.
package advertise

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

// DefaultDuration is how long a presenter beacon runs when no duration is given.
const DefaultDuration = 120 * time.Second

// Config configures a Controller.
type Config struct {
	// Adapter is the device radio. Required.
	Adapter radio.Adapter

	// ManufacturerID keys the payload (default: radio.DefaultManufacturerID).
	ManufacturerID uint16

	// ServiceUUID is advertised alongside the payload if set.
	ServiceUUID uuid.UUID

	// TxPower for the beacon. The zero value is radio.TxPowerUltraLow.
	TxPower radio.TxPower

	// Metrics records beacon attempts. Optional.
	Metrics *metrics.Metrics

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Info describes the live beacon.
type Info struct {
	Session   beacon.SessionID
	StartedAt time.Time
	Duration  time.Duration
}

// ExpiresAt returns when the beacon stops on its own.
func (i Info) ExpiresAt() time.Time {
	return i.StartedAt.Add(i.Duration)
}

// activeBeacon is the single live presenter broadcast.
type activeBeacon struct {
	info      Info
	broadcast radio.Broadcast
	timer     *time.Timer
	gen       uint64
}

// Controller runs presenter beacons.
type Controller struct {
	config Config
	log    logging.LeveledLogger

	mu     sync.Mutex
	active *activeBeacon
	gen    uint64
	closed bool
}

// NewController creates a Controller.
func NewController(config Config) *Controller {
	if config.ManufacturerID == 0 {
		config.ManufacturerID = radio.DefaultManufacturerID
	}

	c := &Controller{config: config}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("beacon-advertise")
	}
	return c
}

// StartBeacon broadcasts session for duration (DefaultDuration if <= 0).
// It returns once the platform confirms or rejects the start.
func (c *Controller) StartBeacon(ctx context.Context, session beacon.SessionID, duration time.Duration) error {
	if session.IsNil() {
		return ErrNilSession
	}
	if duration <= 0 {
		duration = DefaultDuration
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	b, err := radio.CheckBroadcast(c.config.Adapter)
	if err != nil {
		c.config.Metrics.BeaconAttempted("precondition")
		return err
	}

	c.stopLocked()

	ad := radio.Advertisement{
		ManufacturerID: c.config.ManufacturerID,
		Data:           beacon.Encode(beacon.MarkerOrigin, session),
		ServiceUUID:    c.config.ServiceUUID,
		TxPower:        c.config.TxPower,
	}
	if c.log != nil {
		c.log.Debugf("starting beacon: session=%s power=%s duration=%v", session, ad.TxPower, duration)
	}

	handle, err := b.StartBroadcast(ctx, ad)
	if err != nil {
		c.config.Metrics.BeaconAttempted("broadcast_failed")
		return fmt.Errorf("advertise: start broadcast: %w", err)
	}

	c.gen++
	gen := c.gen
	c.active = &activeBeacon{
		info: Info{
			Session:   session,
			StartedAt: time.Now(),
			Duration:  duration,
		},
		broadcast: handle,
		gen:       gen,
		timer:     time.AfterFunc(duration, func() { c.expire(gen) }),
	}

	c.config.Metrics.BeaconAttempted("ok")
	if c.log != nil {
		c.log.Infof("beacon active for session %s", session)
	}
	return nil
}

// StopBeacon stops the live beacon. It is safe to call when no beacon was
// ever started.
func (c *Controller) StopBeacon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Active returns the live beacon, if any.
func (c *Controller) Active() (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return Info{}, false
	}
	return c.active.info, true
}

// Close stops the live beacon and rejects further starts.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.stopLocked()
	c.closed = true
	return nil
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.gen != gen {
		return
	}
	if c.log != nil {
		c.log.Infof("beacon for session %s expired", c.active.info.Session)
	}
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	a := c.active
	if a == nil {
		return
	}
	c.active = nil
	a.timer.Stop()

	if err := a.broadcast.Stop(); err != nil && c.log != nil {
		if errors.Is(err, radio.ErrMissingPermission) {
			c.log.Warnf("beacon for session %s: authorization revoked, treating as stopped", a.info.Session)
		} else {
			c.log.Warnf("beacon for session %s: stop failed: %v", a.info.Session, err)
		}
	}
}
