package attendance

import (
	"time"

	"github.com/backkem/attendbeacon/pkg/advertise"
	"github.com/backkem/attendbeacon/pkg/metrics"
	"github.com/backkem/attendbeacon/pkg/proximity"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/backkem/attendbeacon/pkg/relay"
	"github.com/backkem/attendbeacon/pkg/scan"
	"github.com/backkem/attendbeacon/pkg/store"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DeviceConfig holds all configuration for a Device.
type DeviceConfig struct {
	// Adapter is the device radio. Required.
	Adapter radio.Adapter

	// Store persists the relayed-session set. Required.
	Store store.SetStore

	// StoreKey is the key of the relayed-session set (default: relay.DefaultStoreKey).
	StoreKey string

	// ManufacturerID keys beacon frames (default: radio.DefaultManufacturerID).
	ManufacturerID uint16

	// ServiceUUID, if set, is advertised with every beacon and required of
	// every scanned one.
	ServiceUUID uuid.UUID

	// Proximity configures acceptance. Zero fields take the proximity defaults.
	Proximity proximity.Config

	// ScanTimeout bounds a scan request that gives no timeout (default: 10s).
	ScanTimeout time.Duration

	// BeaconDuration bounds a presenter beacon that gives no duration
	// (default: 120s).
	BeaconDuration time.Duration

	// BeaconTxPower is the presenter transmit power. The zero value is
	// radio.TxPowerUltraLow; DefaultDeviceConfig sets radio.TxPowerHigh.
	BeaconTxPower radio.TxPower

	// RelayDuration bounds each relay broadcast (default: 20s).
	RelayDuration time.Duration

	// RelayTxPower is the relay transmit power (zero value: UltraLow).
	RelayTxPower radio.TxPower

	// DisableRelay turns the device into a scan-only attendee.
	DisableRelay bool

	// Metrics records protocol counters. Optional.
	Metrics *metrics.Metrics

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// DefaultDeviceConfig returns a config with every default filled in, ready
// for Adapter and Store to be set.
func DefaultDeviceConfig() DeviceConfig {
	c := DeviceConfig{
		BeaconTxPower: radio.TxPowerHigh,
		RelayTxPower:  radio.TxPowerUltraLow,
		Proximity:     proximity.DefaultConfig(),
	}
	c.applyDefaults()
	return c
}

// Validate checks the configuration for errors.
func (c *DeviceConfig) Validate() error {
	if c.Adapter == nil {
		return ErrAdapterRequired
	}
	if c.Store == nil {
		return ErrStoreRequired
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *DeviceConfig) applyDefaults() {
	if c.ManufacturerID == 0 {
		c.ManufacturerID = radio.DefaultManufacturerID
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = scan.DefaultTimeout
	}
	if c.BeaconDuration <= 0 {
		c.BeaconDuration = advertise.DefaultDuration
	}
	if c.RelayDuration <= 0 {
		c.RelayDuration = relay.DefaultDuration
	}
	if c.Proximity.LoggerFactory == nil {
		c.Proximity.LoggerFactory = c.LoggerFactory
	}
}
