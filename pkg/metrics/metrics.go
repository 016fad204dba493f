// Package metrics exposes Prometheus counters for beacon scans, relays and
// presenter broadcasts.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without guarding every call site.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "attendbeacon"

// Metrics holds the counters of one device.
type Metrics struct {
	scans        *prometheus.CounterVec
	discarded    *prometheus.CounterVec
	observations *prometheus.CounterVec
	relays       *prometheus.CounterVec
	beacons      *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scan requests by outcome.",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_late_events_total",
			Help:      "Terminal scan events discarded because the request was already answered.",
		}, []string{"event"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Radio observations seen while scanning, by proximity decision.",
		}, []string{"decision"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relay start attempts by result.",
		}, []string{"result"}),
		beacons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_total",
			Help:      "Presenter beacon start attempts by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.scans, m.discarded, m.observations, m.relays, m.beacons)
	}
	return m
}

// ScanCompleted counts a scan answered with outcome.
func (m *Metrics) ScanCompleted(outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
}

// LateEventDiscarded counts a terminal scan event that lost the race.
func (m *Metrics) LateEventDiscarded(event string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(event).Inc()
}

// Observed counts an observation by proximity decision ("invalid" for
// frames that failed to decode).
func (m *Metrics) Observed(decision string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(decision).Inc()
}

// RelayAttempted counts a relay start with result.
func (m *Metrics) RelayAttempted(result string) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(result).Inc()
}

// BeaconAttempted counts a presenter beacon start with result.
func (m *Metrics) BeaconAttempted(result string) {
	if m == nil {
		return
	}
	m.beacons.WithLabelValues(result).Inc()
}

// Scans returns the scan counter, for inspection.
func (m *Metrics) Scans() *prometheus.CounterVec { return m.scans }

// Discarded returns the late event counter, for inspection.
func (m *Metrics) Discarded() *prometheus.CounterVec { return m.discarded }

// Observations returns the observation counter, for inspection.
func (m *Metrics) Observations() *prometheus.CounterVec { return m.observations }

// Relays returns the relay counter, for inspection.
func (m *Metrics) Relays() *prometheus.CounterVec { return m.relays }

// Beacons returns the beacon counter, for inspection.
func (m *Metrics) Beacons() *prometheus.CounterVec { return m.beacons }
