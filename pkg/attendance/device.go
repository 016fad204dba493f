package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/advertise"
	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/relay"
	"github.com/backkem/attendbeacon/pkg/scan"
	"github.com/pion/logging"
)

// RelayStarted is ScanReply.RelayStatus when the beacon is being relayed.
const RelayStarted = "STARTED"

// ScanReply answers a scan request.
type ScanReply struct {
	// Found is false when the scan timed out.
	Found bool

	Session beacon.SessionID
	Marker  beacon.Marker
	Median  int

	// RelayStatus is RelayStarted, an error code if the relay could not be
	// started, or empty if no relay was attempted.
	RelayStatus string
}

// BeaconReply answers a beacon request.
type BeaconReply struct {
	Active    bool
	Session   beacon.SessionID
	ExpiresAt time.Time
}

// Status is a snapshot of the device.
type Status struct {
	Scan         scan.State
	Beacon       *advertise.Info
	RelaySession *beacon.SessionID
}

// Device runs the attendance protocol on one radio. It is safe for
// concurrent use.
type Device struct {
	config DeviceConfig
	log    logging.LeveledLogger

	registry *relay.Registry
	relay    *relay.Coordinator
	scanner  *scan.Orchestrator
	beacon   *advertise.Controller

	mu     sync.Mutex
	closed bool
}

// NewDevice creates a Device and loads the relayed-session set.
func NewDevice(config DeviceConfig) (*Device, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	d := &Device{config: config}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("attendance")
	}

	var err error
	d.registry, err = relay.NewRegistry(relay.RegistryConfig{
		Store:         config.Store,
		Key:           config.StoreKey,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	d.relay, err = relay.NewCoordinator(relay.CoordinatorConfig{
		Adapter:        config.Adapter,
		Registry:       d.registry,
		Duration:       config.RelayDuration,
		ManufacturerID: config.ManufacturerID,
		ServiceUUID:    config.ServiceUUID,
		TxPower:        config.RelayTxPower,
		Metrics:        config.Metrics,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	scanConfig := scan.Config{
		Adapter:        config.Adapter,
		Proximity:      config.Proximity,
		ManufacturerID: config.ManufacturerID,
		ServiceUUID:    config.ServiceUUID,
		Metrics:        config.Metrics,
		LoggerFactory:  config.LoggerFactory,
	}
	if !config.DisableRelay {
		scanConfig.Relayer = d.relay
	}
	d.scanner = scan.NewOrchestrator(scanConfig)

	d.beacon = advertise.NewController(advertise.Config{
		Adapter:        config.Adapter,
		ManufacturerID: config.ManufacturerID,
		ServiceUUID:    config.ServiceUUID,
		TxPower:        config.BeaconTxPower,
		Metrics:        config.Metrics,
		LoggerFactory:  config.LoggerFactory,
	})

	if d.log != nil {
		d.log.Infof("device ready: %d relayed sessions, relay enabled=%v", d.registry.Len(), !config.DisableRelay)
	}
	return d, nil
}

// ScanForBeacon scans until a nearby beacon is accepted or timeout
// (DeviceConfig.ScanTimeout if <= 0) elapses. Not finding a beacon is not
// an error.
func (d *Device) ScanForBeacon(ctx context.Context, timeout time.Duration) (ScanReply, error) {
	if d.isClosed() {
		return ScanReply{}, newRequestError(ErrClosed)
	}
	if timeout <= 0 {
		timeout = d.config.ScanTimeout
	}

	res, err := d.scanner.ScanForBeacon(ctx, timeout)
	if err != nil {
		return ScanReply{}, newRequestError(err)
	}
	if !res.Found() {
		return ScanReply{}, nil
	}

	reply := ScanReply{
		Found:   true,
		Session: res.Session,
		Marker:  res.Marker,
		Median:  res.Median,
	}
	switch {
	case res.Relayed:
		reply.RelayStatus = RelayStarted
	case res.RelayErr != nil:
		reply.RelayStatus = ErrorCode(res.RelayErr)
	}
	return reply, nil
}

// StartBeacon broadcasts session as presenter for duration
// (DeviceConfig.BeaconDuration if <= 0), replacing any running beacon.
func (d *Device) StartBeacon(ctx context.Context, session beacon.SessionID, duration time.Duration) (BeaconReply, error) {
	if d.isClosed() {
		return BeaconReply{}, newRequestError(ErrClosed)
	}
	if duration <= 0 {
		duration = d.config.BeaconDuration
	}

	if err := d.beacon.StartBeacon(ctx, session, duration); err != nil {
		return BeaconReply{}, newRequestError(err)
	}
	info, ok := d.beacon.Active()
	if !ok {
		// Expired before we looked.
		return BeaconReply{Session: session}, nil
	}
	return BeaconReply{Active: true, Session: info.Session, ExpiresAt: info.ExpiresAt()}, nil
}

// StopBeacon stops the presenter beacon, if any.
func (d *Device) StopBeacon() {
	d.beacon.StopBeacon()
}

// StopRelay stops the relay broadcast, if any.
func (d *Device) StopRelay() {
	d.relay.StopRelay()
}

// RelayedSessions returns every session this device has relayed.
func (d *Device) RelayedSessions() []beacon.SessionID {
	return d.registry.Sessions()
}

// Status returns a snapshot of the scan, beacon and relay state.
func (d *Device) Status() Status {
	s := Status{Scan: d.scanner.State()}
	if info, ok := d.beacon.Active(); ok {
		s.Beacon = &info
	}
	if session, ok := d.relay.Active(); ok {
		s.RelaySession = &session
	}
	return s
}

// Close answers a running scan, stops every broadcast and rejects further
// requests.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	var errs []error
	for _, c := range []interface{ Close() error }{d.scanner, d.beacon, d.relay} {
		if err := c.Close(); err != nil && ErrorCode(err) != CodeClosed {
			errs = append(errs, err)
		}
	}

	if d.log != nil {
		d.log.Info("device closed")
	}
	return errors.Join(errs...)
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
