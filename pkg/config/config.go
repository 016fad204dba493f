// Package config loads the YAML configuration of the attendbeacon command.
//
// Missing keys keep their defaults; see Default.
//
//	log_level: info
//	store:
//	  backend: sqlite
//	  path: /var/lib/attendbeacon/relayed.db
//	radio:
//	  backend: lan
//	  assumed_rssi: -60
//	proximity:
//	  window: 15s
//	  samples: 3
//	  rssi_threshold: -75
//	scan:
//	  timeout: 10s
//	relay:
//	  duration: 20s
//	beacon:
//	  duration: 2m
//	  tx_power: High
//	metrics:
//	  listen: 127.0.0.1:9464
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/backkem/attendbeacon/pkg/attendance"
	"github.com/backkem/attendbeacon/pkg/proximity"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/backkem/attendbeacon/pkg/store"
	"github.com/google/uuid"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// RadioLAN is the only radio backend the command ships with.
const RadioLAN = "lan"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Config is the command configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Store     StoreConfig     `yaml:"store"`
	Radio     RadioConfig     `yaml:"radio"`
	Proximity ProximityConfig `yaml:"proximity"`
	Scan      ScanConfig      `yaml:"scan"`
	Relay     RelayConfig     `yaml:"relay"`
	Beacon    BeaconConfig    `yaml:"beacon"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig selects where the relayed-session set is persisted.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RadioConfig configures the radio backend and beacon framing.
type RadioConfig struct {
	Backend        string        `yaml:"backend"`
	Interfaces     []string      `yaml:"interfaces"`
	AssumedRSSI    int           `yaml:"assumed_rssi"`
	BrowseInterval time.Duration `yaml:"browse_interval"`
	ManufacturerID uint16        `yaml:"manufacturer_id"`
	ServiceUUID    string        `yaml:"service_uuid"`
}

// ProximityConfig tunes the proximity acceptance window.
type ProximityConfig struct {
	Window        time.Duration `yaml:"window"`
	Samples       int           `yaml:"samples"`
	RSSIThreshold int           `yaml:"rssi_threshold"`
}

// ScanConfig configures scan requests.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RelayConfig configures relay broadcasts.
type RelayConfig struct {
	Duration time.Duration `yaml:"duration"`
	TxPower  string        `yaml:"tx_power"`
	Disabled bool          `yaml:"disabled"`
}

// BeaconConfig configures presenter beacons.
type BeaconConfig struct {
	Duration time.Duration `yaml:"duration"`
	TxPower  string        `yaml:"tx_power"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address of the Prometheus endpoint. Empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := attendance.DefaultDeviceConfig()
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Backend: StoreFile,
			Path:    "attendbeacon.yaml",
		},
		Radio: RadioConfig{
			Backend:        RadioLAN,
			AssumedRSSI:    -60,
			BrowseInterval: time.Second,
			ManufacturerID: d.ManufacturerID,
		},
		Proximity: ProximityConfig{
			Window:        d.Proximity.Window,
			Samples:       d.Proximity.SampleCount,
			RSSIThreshold: d.Proximity.RSSIThreshold,
		},
		Scan:   ScanConfig{Timeout: d.ScanTimeout},
		Relay:  RelayConfig{Duration: d.RelayDuration, TxPower: d.RelayTxPower.String()},
		Beacon: BeaconConfig{Duration: d.BeaconDuration, TxPower: d.BeaconTxPower.String()},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and parseable values.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for %s", ErrInvalid, c.Store.Backend)
		}
	default:
		return fmt.Errorf("%w: store.backend %q", ErrInvalid, c.Store.Backend)
	}
	if c.Radio.Backend != RadioLAN {
		return fmt.Errorf("%w: radio.backend %q", ErrInvalid, c.Radio.Backend)
	}
	if c.Radio.ServiceUUID != "" {
		if _, err := uuid.Parse(c.Radio.ServiceUUID); err != nil {
			return fmt.Errorf("%w: radio.service_uuid: %v", ErrInvalid, err)
		}
	}
	if c.Proximity.Samples < 0 {
		return fmt.Errorf("%w: proximity.samples %d", ErrInvalid, c.Proximity.Samples)
	}
	if c.Proximity.RSSIThreshold > 0 {
		return fmt.Errorf("%w: proximity.rssi_threshold %d is not negative", ErrInvalid, c.Proximity.RSSIThreshold)
	}
	for key, p := range map[string]string{"relay.tx_power": c.Relay.TxPower, "beacon.tx_power": c.Beacon.TxPower} {
		if _, ok := radio.ParseTxPower(p); !ok {
			return fmt.Errorf("%w: %s %q", ErrInvalid, key, p)
		}
	}
	return nil
}

// Level returns the pion log level named by LogLevel.
func (c *Config) Level() (logging.LogLevel, error) {
	switch c.LogLevel {
	case "disabled":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
}

// LoggerFactory returns a pion logger factory at the configured level.
func (c *Config) LoggerFactory() (*logging.DefaultLoggerFactory, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = level
	return lf, nil
}

// DeviceConfig converts the protocol settings. Adapter, Store, Metrics and
// LoggerFactory are left for the caller.
func (c *Config) DeviceConfig() (attendance.DeviceConfig, error) {
	if err := c.Validate(); err != nil {
		return attendance.DeviceConfig{}, err
	}

	d := attendance.DefaultDeviceConfig()
	d.ManufacturerID = c.Radio.ManufacturerID
	if c.Radio.ServiceUUID != "" {
		d.ServiceUUID = uuid.MustParse(c.Radio.ServiceUUID)
	}
	d.Proximity = proximity.Config{
		Window:        c.Proximity.Window,
		SampleCount:   c.Proximity.Samples,
		RSSIThreshold: c.Proximity.RSSIThreshold,
	}
	d.ScanTimeout = c.Scan.Timeout
	d.RelayDuration = c.Relay.Duration
	d.RelayTxPower, _ = radio.ParseTxPower(c.Relay.TxPower)
	d.DisableRelay = c.Relay.Disabled
	d.BeaconDuration = c.Beacon.Duration
	d.BeaconTxPower, _ = radio.ParseTxPower(c.Beacon.TxPower)
	return d, nil
}

// OpenStore opens the configured relayed-session store. The caller closes
// it if it implements io.Closer.
func (c *Config) OpenStore() (store.SetStore, error) {
	switch c.Store.Backend {
	case StoreMemory:
		return store.NewMemoryStore(), nil
	case StoreFile:
		fs, err := store.OpenFileStore(c.Store.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case StoreSQLite:
		db, err := store.OpenSQLiteStore(c.Store.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: store.backend %q", ErrInvalid, c.Store.Backend)
	}
}
