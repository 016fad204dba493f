// Package radio defines the short-range radio capability the attendance
// core depends on but does not implement.
//
// An Adapter exposes the device's radio state (powered, positioning,
// authorization) and, when present, a Scanner and a Broadcaster. Beacon
// payloads travel as manufacturer-specific data under a manufacturer id.
//
// Implementations live in subpackages: simradio (in-memory air for tests
// and simulations) and lanradio (DNS-SD over the local network).
package radio

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultManufacturerID is the manufacturer id under which beacon payloads
// are carried (0xFFFF is reserved for testing and internal use).
const DefaultManufacturerID uint16 = 0xFFFF

// ClassServiceUUID is the service identifier optionally advertised next to
// the manufacturer data.
var ClassServiceUUID = uuid.MustParse("00001111-0000-1000-8000-00805F9B34FB")

// Permission is a runtime authorization the platform may grant or withhold.
type Permission int

const (
	// PermissionScan authorizes scanning for advertisements.
	PermissionScan Permission = iota

	// PermissionAdvertise authorizes broadcasting advertisements.
	PermissionAdvertise
)

// String returns a human-readable name for the permission.
func (p Permission) String() string {
	switch p {
	case PermissionScan:
		return "Scan"
	case PermissionAdvertise:
		return "Advertise"
	default:
		return "Unknown"
	}
}

// TxPower is a transmit power hint for broadcasts.
type TxPower int

// TxPower levels, weakest first.
const (
	TxPowerUltraLow TxPower = iota
	TxPowerLow
	TxPowerMedium
	TxPowerHigh
)

// String returns a human-readable name for the power level.
func (p TxPower) String() string {
	switch p {
	case TxPowerUltraLow:
		return "UltraLow"
	case TxPowerLow:
		return "Low"
	case TxPowerMedium:
		return "Medium"
	case TxPowerHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Attenuation returns the nominal signal loss, in dB, of a broadcast at
// power p relative to TxPowerHigh.
func (p TxPower) Attenuation() int {
	switch p {
	case TxPowerUltraLow:
		return 21
	case TxPowerLow:
		return 15
	case TxPowerMedium:
		return 7
	default:
		return 0
	}
}

// ParseTxPower parses a power level name as returned by String.
func ParseTxPower(s string) (TxPower, bool) {
	for p := TxPowerUltraLow; p <= TxPowerHigh; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return TxPowerUltraLow, false
}

// Advertisement is what a Broadcaster emits.
type Advertisement struct {
	// ManufacturerID is the key of the manufacturer-specific data.
	ManufacturerID uint16

	// Data is the manufacturer-specific payload.
	Data []byte

	// ServiceUUID is advertised alongside the data if not uuid.Nil.
	ServiceUUID uuid.UUID

	// TxPower is the requested transmit power.
	TxPower TxPower
}

// Observation is one received advertisement.
type Observation struct {
	// Address identifies the sender as seen by the radio stack.
	Address string

	// ManufacturerID and Data are the manufacturer-specific payload.
	ManufacturerID uint16
	Data           []byte

	// ServiceUUIDs lists advertised service identifiers, if any.
	ServiceUUIDs []uuid.UUID

	// RSSI is the received signal strength in dBm.
	RSSI int

	// Timestamp is when the radio stack received the advertisement.
	Timestamp time.Time
}

// Filter selects the advertisements delivered to a scan.
type Filter struct {
	// ManufacturerID must match the observation's manufacturer id.
	ManufacturerID uint16

	// ServiceUUID, if not uuid.Nil, must be among the observation's services.
	ServiceUUID uuid.UUID
}

// Matches reports whether obs passes the filter.
func (f Filter) Matches(obs Observation) bool {
	if obs.ManufacturerID != f.ManufacturerID {
		return false
	}
	if f.ServiceUUID == uuid.Nil {
		return true
	}
	for _, u := range obs.ServiceUUIDs {
		if u == f.ServiceUUID {
			return true
		}
	}
	return false
}

// ScanHandler receives scan events. Methods may be called from any
// goroutine, concurrently with each other, and after the scan was stopped.
type ScanHandler interface {
	// HandleObservation is called for each matching advertisement.
	HandleObservation(obs Observation)

	// HandleScanFailure is called when the radio stack aborts the scan.
	HandleScanFailure(code int)
}

// Scan is a running scan.
type Scan interface {
	// Stop ends the scan. It is safe to call more than once.
	Stop() error
}

// Scanner starts scans.
type Scanner interface {
	// StartScan begins delivering observations that match filter to h.
	StartScan(filter Filter, h ScanHandler) (Scan, error)
}

// Broadcast is a running advertisement.
type Broadcast interface {
	// Stop ends the broadcast. It is safe to call more than once.
	Stop() error
}

// Broadcaster starts advertisements.
type Broadcaster interface {
	// StartBroadcast begins advertising ad. It returns once the platform
	// confirms the start, or with a *BroadcastError if it rejects it.
	StartBroadcast(ctx context.Context, ad Advertisement) (Broadcast, error)
}

// Adapter is the device's radio.
type Adapter interface {
	// Enabled reports whether the radio is powered on.
	Enabled() bool

	// PositioningEnabled reports whether the positioning service the
	// platform requires for scanning is on. Platforms without that
	// requirement return true.
	PositioningEnabled() bool

	// Authorized reports whether the application holds p.
	Authorized(p Permission) bool

	// Scanner returns the scan capability, or nil if the device has none.
	Scanner() Scanner

	// Broadcaster returns the broadcast capability, or nil if the device has none.
	Broadcaster() Broadcaster
}
