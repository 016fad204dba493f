// Package radiotest provides a scriptable radio.Adapter for tests.
//
// The Adapter records every broadcast and scan it starts. Tests drive
// scans by calling Scan.Deliver / Scan.Fail from any goroutine, and obtain
// newly started scans from Adapter.ScanStarted.
package radiotest

import (
	"context"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/google/uuid"
)

// Adapter is a fake radio.Adapter. The zero value is not usable; call NewAdapter.
type Adapter struct {
	mu             sync.Mutex
	enabled        bool
	positioning    bool
	perms          map[radio.Permission]bool
	hasScanner     bool
	hasBroadcaster bool
	failNext       *radio.BroadcastError
	stopErr        error
	startDelay     time.Duration
	broadcasts     []*Broadcast
	scans          []*Scan

	scanStarted chan *Scan
}

// NewAdapter returns an adapter that is powered, authorized and has both
// capabilities.
func NewAdapter() *Adapter {
	return &Adapter{
		enabled:     true,
		positioning: true,
		perms: map[radio.Permission]bool{
			radio.PermissionScan:      true,
			radio.PermissionAdvertise: true,
		},
		hasScanner:     true,
		hasBroadcaster: true,
		scanStarted:    make(chan *Scan, 16),
	}
}

// SetEnabled powers the radio on or off.
func (a *Adapter) SetEnabled(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = v
}

// SetPositioning turns the positioning service on or off.
func (a *Adapter) SetPositioning(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positioning = v
}

// SetAuthorized grants or revokes p.
func (a *Adapter) SetAuthorized(p radio.Permission, v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.perms[p] = v
}

// SetScanner adds or removes the scan capability.
func (a *Adapter) SetScanner(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hasScanner = v
}

// SetBroadcaster adds or removes the broadcast capability.
func (a *Adapter) SetBroadcaster(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hasBroadcaster = v
}

// FailNextBroadcast makes the next StartBroadcast fail with code.
func (a *Adapter) FailNextBroadcast(code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = &radio.BroadcastError{Code: code}
}

// SetStopError makes Broadcast.Stop return err (the broadcast is still
// marked stopped).
func (a *Adapter) SetStopError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopErr = err
}

// SetStartDelay delays broadcast start confirmation.
func (a *Adapter) SetStartDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startDelay = d
}

// Enabled implements radio.Adapter.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// PositioningEnabled implements radio.Adapter.
func (a *Adapter) PositioningEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positioning
}

// Authorized implements radio.Adapter.
func (a *Adapter) Authorized(p radio.Permission) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perms[p]
}

// Scanner implements radio.Adapter.
func (a *Adapter) Scanner() radio.Scanner {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasScanner {
		return nil
	}
	return scanner{a}
}

// Broadcaster implements radio.Adapter.
func (a *Adapter) Broadcaster() radio.Broadcaster {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasBroadcaster {
		return nil
	}
	return broadcaster{a}
}

// Broadcasts returns every broadcast started so far, oldest first.
func (a *Adapter) Broadcasts() []*Broadcast {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Broadcast, len(a.broadcasts))
	copy(out, a.broadcasts)
	return out
}

// ActiveBroadcasts returns the broadcasts not yet stopped.
func (a *Adapter) ActiveBroadcasts() []*Broadcast {
	var out []*Broadcast
	for _, b := range a.Broadcasts() {
		if !b.Stopped() {
			out = append(out, b)
		}
	}
	return out
}

// Scans returns every scan started so far, oldest first.
func (a *Adapter) Scans() []*Scan {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Scan, len(a.scans))
	copy(out, a.scans)
	return out
}

// ScanStarted delivers each scan as it starts.
func (a *Adapter) ScanStarted() <-chan *Scan {
	return a.scanStarted
}

// WaitScan waits for the next scan to start.
func (a *Adapter) WaitScan(ctx context.Context) (*Scan, error) {
	select {
	case s := <-a.scanStarted:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type scanner struct{ a *Adapter }

func (s scanner) StartScan(filter radio.Filter, h radio.ScanHandler) (radio.Scan, error) {
	sc := &Scan{Filter: filter, handler: h}
	s.a.mu.Lock()
	s.a.scans = append(s.a.scans, sc)
	s.a.mu.Unlock()

	select {
	case s.a.scanStarted <- sc:
	default:
	}
	return sc, nil
}

type broadcaster struct{ a *Adapter }

func (b broadcaster) StartBroadcast(ctx context.Context, ad radio.Advertisement) (radio.Broadcast, error) {
	b.a.mu.Lock()
	delay := b.a.startDelay
	fail := b.a.failNext
	b.a.failNext = nil
	b.a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	data := make([]byte, len(ad.Data))
	copy(data, ad.Data)
	ad.Data = data

	bc := &Broadcast{Ad: ad, StartedAt: time.Now(), a: b.a}
	b.a.mu.Lock()
	b.a.broadcasts = append(b.a.broadcasts, bc)
	b.a.mu.Unlock()
	return bc, nil
}

// Broadcast is a recorded broadcast.
type Broadcast struct {
	Ad        radio.Advertisement
	StartedAt time.Time

	a         *Adapter
	mu        sync.Mutex
	stopped   bool
	stopCalls int
	stoppedAt time.Time
}

// Stop implements radio.Broadcast.
func (b *Broadcast) Stop() error {
	b.a.mu.Lock()
	err := b.a.stopErr
	b.a.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCalls++
	if !b.stopped {
		b.stopped = true
		b.stoppedAt = time.Now()
	}
	return err
}

// Stopped reports whether Stop was called.
func (b *Broadcast) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// StoppedAt returns when Stop was first called.
func (b *Broadcast) StoppedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stoppedAt
}

// StopCalls returns how many times Stop was called.
func (b *Broadcast) StopCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopCalls
}

// Payload decodes the broadcast data as a beacon frame.
func (b *Broadcast) Payload() (beacon.Payload, error) {
	return beacon.Decode(b.Ad.Data)
}

// Scan is a recorded scan.
type Scan struct {
	Filter radio.Filter

	handler radio.ScanHandler
	mu      sync.Mutex
	stopped bool
}

// Stop implements radio.Scan.
func (s *Scan) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// Stopped reports whether Stop was called.
func (s *Scan) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Deliver hands obs to the scan handler if it passes the filter. Delivery
// happens even after Stop, as real radio stacks may do.
func (s *Scan) Deliver(obs radio.Observation) {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	if !s.Filter.Matches(obs) {
		return
	}
	s.handler.HandleObservation(obs)
}

// Emit delivers a manufacturer-data observation carrying data.
func (s *Scan) Emit(data []byte, rssi int) {
	s.Deliver(radio.Observation{
		Address:        "00:11:22:33:44:55",
		ManufacturerID: s.Filter.ManufacturerID,
		Data:           data,
		ServiceUUIDs:   serviceList(s.Filter),
		RSSI:           rssi,
	})
}

// EmitPayload delivers an encoded beacon frame.
func (s *Scan) EmitPayload(marker beacon.Marker, session beacon.SessionID, rssi int) {
	s.Emit(beacon.Encode(marker, session), rssi)
}

// Fail reports an asynchronous scan failure.
func (s *Scan) Fail(code int) {
	s.handler.HandleScanFailure(code)
}

func serviceList(f radio.Filter) []uuid.UUID {
	if f.ServiceUUID == uuid.Nil {
		return nil
	}
	return []uuid.UUID{f.ServiceUUID}
}
