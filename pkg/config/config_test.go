package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/pion/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Scan.Timeout != 10*time.Second || cfg.Relay.Duration != 20*time.Second || cfg.Beacon.Duration != 2*time.Minute {
		t.Errorf("timing defaults = %+v %+v %+v", cfg.Scan, cfg.Relay, cfg.Beacon)
	}
	if cfg.Proximity.Samples != 3 || cfg.Proximity.RSSIThreshold != -75 || cfg.Proximity.Window != 15*time.Second {
		t.Errorf("proximity defaults = %+v", cfg.Proximity)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
store:
  backend: sqlite
  path: /tmp/relayed.db
radio:
  assumed_rssi: -55
  service_uuid: 00001111-0000-1000-8000-00805F9B34FB
proximity:
  samples: 5
  rssi_threshold: -70
scan:
  timeout: 30s
beacon:
  tx_power: Medium
relay:
  disabled: true
metrics:
  listen: 127.0.0.1:9464
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != StoreSQLite || cfg.Store.Path != "/tmp/relayed.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Radio.AssumedRSSI != -55 || cfg.Radio.Backend != RadioLAN {
		t.Errorf("Radio = %+v", cfg.Radio)
	}
	if cfg.Scan.Timeout != 30*time.Second {
		t.Errorf("Scan.Timeout = %v", cfg.Scan.Timeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Proximity.Window != 15*time.Second {
		t.Errorf("Proximity.Window = %v", cfg.Proximity.Window)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("Metrics.Listen = %q", cfg.Metrics.Listen)
	}

	level, err := cfg.Level()
	if err != nil || level != logging.LogLevelDebug {
		t.Errorf("Level() = %v, %v", level, err)
	}

	dc, err := cfg.DeviceConfig()
	if err != nil {
		t.Fatalf("DeviceConfig() error = %v", err)
	}
	if dc.BeaconTxPower != radio.TxPowerMedium || dc.RelayTxPower != radio.TxPowerUltraLow {
		t.Errorf("tx power = %s/%s", dc.BeaconTxPower, dc.RelayTxPower)
	}
	if !dc.DisableRelay {
		t.Error("DisableRelay = false")
	}
	if dc.ServiceUUID != radio.ClassServiceUUID {
		t.Errorf("ServiceUUID = %s", dc.ServiceUUID)
	}
	if dc.Proximity.SampleCount != 5 || dc.Proximity.RSSIThreshold != -70 {
		t.Errorf("Proximity = %+v", dc.Proximity)
	}
	if dc.ScanTimeout != 30*time.Second {
		t.Errorf("ScanTimeout = %v", dc.ScanTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"log level", "log_level: chatty", ErrInvalid},
		{"store backend", "store: {backend: etcd}", ErrInvalid},
		{"store path", "store: {backend: sqlite, path: ''}", ErrInvalid},
		{"radio backend", "radio: {backend: ble}", ErrInvalid},
		{"service uuid", "radio: {service_uuid: nope}", ErrInvalid},
		{"threshold", "proximity: {rssi_threshold: 10}", ErrInvalid},
		{"tx power", "beacon: {tx_power: Loud}", ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(writeConfig(t, "scan: [")); err == nil {
		t.Error("malformed yaml accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		path    string
	}{
		{StoreMemory, ""},
		{StoreFile, filepath.Join(dir, "relayed.yaml")},
		{StoreSQLite, filepath.Join(dir, "relayed.db")},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := Default()
			cfg.Store = StoreConfig{Backend: tt.backend, Path: tt.path}

			s, err := cfg.OpenStore()
			if err != nil {
				t.Fatalf("OpenStore() error = %v", err)
			}
			if c, ok := s.(io.Closer); ok {
				defer c.Close()
			}
			if err := s.PutSet("k", []string{"a"}); err != nil {
				t.Fatalf("PutSet() error = %v", err)
			}
		})
	}

	cfg := Default()
	cfg.Store.Backend = "etcd"
	if _, err := cfg.OpenStore(); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown backend error = %v", err)
	}
}

func TestLoggerFactory(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	lf, err := cfg.LoggerFactory()
	if err != nil {
		t.Fatalf("LoggerFactory() error = %v", err)
	}
	if lf.DefaultLogLevel != logging.LogLevelWarn {
		t.Errorf("DefaultLogLevel = %v", lf.DefaultLogLevel)
	}
}
