package simradio

import (
	"context"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/google/uuid"
)

// Device is a simulated device radio. It implements radio.Adapter.
type Device struct {
	air  *Air
	name string

	mu             sync.Mutex
	enabled        bool
	positioning    bool
	perms          map[radio.Permission]bool
	hasScanner     bool
	hasBroadcaster bool
	links          []*Link
	scans          map[*scan]struct{}
	broadcasts     map[*broadcast]struct{}
	down           bool
}

var _ radio.Adapter = (*Device)(nil)

func newDevice(a *Air, name string) *Device {
	return &Device{
		air:         a,
		name:        name,
		enabled:     true,
		positioning: true,
		perms: map[radio.Permission]bool{
			radio.PermissionScan:      true,
			radio.PermissionAdvertise: true,
		},
		hasScanner:     true,
		hasBroadcaster: true,
		scans:          make(map[*scan]struct{}),
		broadcasts:     make(map[*broadcast]struct{}),
	}
}

// Name returns the device name, used as the sender address of its frames.
func (d *Device) Name() string {
	return d.name
}

// Enabled implements radio.Adapter.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// PositioningEnabled implements radio.Adapter.
func (d *Device) PositioningEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positioning
}

// Authorized implements radio.Adapter.
func (d *Device) Authorized(p radio.Permission) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perms[p]
}

// Scanner implements radio.Adapter.
func (d *Device) Scanner() radio.Scanner {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasScanner {
		return nil
	}
	return scanner{d}
}

// Broadcaster implements radio.Adapter.
func (d *Device) Broadcaster() radio.Broadcaster {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasBroadcaster {
		return nil
	}
	return broadcaster{d}
}

// SetEnabled powers the radio. Powering off ends every broadcast and fails
// every running scan with radio.ScanErrInternal.
func (d *Device) SetEnabled(v bool) {
	d.mu.Lock()
	d.enabled = v
	var bs []*broadcast
	var ss []*scan
	if !v {
		bs, ss = d.detachLocked()
	}
	d.mu.Unlock()

	for _, b := range bs {
		b.halt()
	}
	for _, s := range ss {
		s.handler.HandleScanFailure(radio.ScanErrInternal)
	}
}

// SetPositioning turns the positioning service on or off.
func (d *Device) SetPositioning(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positioning = v
}

// SetAuthorized grants or revokes p. Revocation does not stop running
// operations, but stopping a broadcast without PermissionAdvertise reports
// radio.ErrMissingPermission.
func (d *Device) SetAuthorized(p radio.Permission, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.perms[p] = v
}

// SetScanner adds or removes the scan capability.
func (d *Device) SetScanner(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasScanner = v
}

// SetBroadcaster adds or removes the broadcast capability.
func (d *Device) SetBroadcaster(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasBroadcaster = v
}

// Broadcasting returns the number of running broadcasts.
func (d *Device) Broadcasting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.broadcasts)
}

// Scanning returns the number of running scans.
func (d *Device) Scanning() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scans)
}

func (d *Device) addLink(l *Link) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, l)
}

// transmit sends frame over every link of d.
func (d *Device) transmit(frame []byte) {
	d.mu.Lock()
	links := append([]*Link(nil), d.links...)
	d.mu.Unlock()

	for _, l := range links {
		l.send(d, frame)
	}
}

// receive delivers an advertisement from src to the running scans of d.
func (d *Device) receive(src *Device, ad radio.Advertisement, rssi int) {
	d.mu.Lock()
	if !d.enabled || d.down || len(d.scans) == 0 {
		d.mu.Unlock()
		return
	}
	scans := make([]*scan, 0, len(d.scans))
	for s := range d.scans {
		scans = append(scans, s)
	}
	d.mu.Unlock()

	obs := radio.Observation{
		Address:        src.name,
		ManufacturerID: ad.ManufacturerID,
		Data:           ad.Data,
		RSSI:           rssi,
		Timestamp:      time.Now(),
	}
	if ad.ServiceUUID != uuid.Nil {
		obs.ServiceUUIDs = []uuid.UUID{ad.ServiceUUID}
	}

	for _, s := range scans {
		if s.filter.Matches(obs) {
			s.handler.HandleObservation(obs)
		}
	}
}

// detachLocked removes all broadcasts and scans and returns them.
func (d *Device) detachLocked() ([]*broadcast, []*scan) {
	bs := make([]*broadcast, 0, len(d.broadcasts))
	for b := range d.broadcasts {
		bs = append(bs, b)
	}
	ss := make([]*scan, 0, len(d.scans))
	for s := range d.scans {
		ss = append(ss, s)
	}
	d.broadcasts = make(map[*broadcast]struct{})
	d.scans = make(map[*scan]struct{})
	return bs, ss
}

func (d *Device) shutdown() {
	d.mu.Lock()
	d.down = true
	bs, _ := d.detachLocked()
	d.mu.Unlock()

	for _, b := range bs {
		b.halt()
	}
}

type scanner struct{ d *Device }

func (s scanner) StartScan(filter radio.Filter, h radio.ScanHandler) (radio.Scan, error) {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled || d.down {
		return nil, &radio.ScanError{Code: radio.ScanErrInternal}
	}
	sc := &scan{d: d, filter: filter, handler: h}
	d.scans[sc] = struct{}{}

	if log := d.air.log; log != nil {
		log.Debugf("%s: scan started (manufacturer=0x%04X)", d.name, filter.ManufacturerID)
	}
	return sc, nil
}

type scan struct {
	d       *Device
	filter  radio.Filter
	handler radio.ScanHandler
}

func (s *scan) Stop() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	delete(s.d.scans, s)
	return nil
}

type broadcaster struct{ d *Device }

func (b broadcaster) StartBroadcast(ctx context.Context, ad radio.Advertisement) (radio.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := b.d
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case !d.enabled || d.down:
		return nil, &radio.BroadcastError{Code: radio.BroadcastErrInternal}
	case len(ad.Data) > maxDataSize:
		return nil, &radio.BroadcastError{Code: radio.BroadcastErrDataTooLarge}
	case len(d.broadcasts) >= d.air.config.MaxBroadcasts:
		return nil, &radio.BroadcastError{Code: radio.BroadcastErrTooManyAdvertisers}
	}

	bc := &broadcast{
		d:      d,
		frame:  marshalFrame(ad),
		stopCh: make(chan struct{}),
	}
	d.broadcasts[bc] = struct{}{}
	bc.wg.Add(1)
	go bc.run(d.air.config.Interval)

	if log := d.air.log; log != nil {
		log.Debugf("%s: broadcast started (%d bytes, power=%s)", d.name, len(ad.Data), ad.TxPower)
	}
	return bc, nil
}

type broadcast struct {
	d      *Device
	frame  []byte
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (b *broadcast) run(interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.d.transmit(b.frame)
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.d.transmit(b.frame)
		}
	}
}

// halt stops transmitting and waits for the broadcast goroutine.
func (b *broadcast) halt() {
	b.once.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// Stop implements radio.Broadcast.
func (b *broadcast) Stop() error {
	b.halt()

	d := b.d
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.broadcasts, b)
	if !d.perms[radio.PermissionAdvertise] {
		return radio.ErrMissingPermission
	}
	return nil
}
