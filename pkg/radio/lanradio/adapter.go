// Package lanradio carries beacons over the local network as DNS-SD
// services, for devices without a short-range radio.
//
// A broadcast registers a _attendbeacon._udp service whose TXT records hold
// the manufacturer data. A scan browses for that service type in short
// cycles and reports every live instance once per cycle. The network gives
// no signal strength or distance, so every observation carries a
// configured nominal RSSI. The transmit power hint is carried in the TXT
// records but does not change the reported RSSI.
package lanradio

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DNS-SD constants.
const (
	ServiceType   = "_attendbeacon._udp"
	DefaultDomain = "local."
	DefaultPort   = 5545
)

// Defaults.
const (
	DefaultBrowseInterval = 1 * time.Second
	DefaultAssumedRSSI    = -60
)

// ErrClosed is returned when the adapter has been closed.
var ErrClosed = errors.New("lanradio: closed")

// Config configures an Adapter.
type Config struct {
	// Port is advertised in the SRV record (default: 5545). Nothing listens on it.
	Port int

	// Interfaces restricts registration and browsing. Nil means all.
	Interfaces []net.Interface

	// BrowseInterval is the length of one browse cycle (default: 1s).
	BrowseInterval time.Duration

	// AssumedRSSI is the signal strength reported for every observation
	// (default: -60).
	AssumedRSSI int

	// ServerFactory registers services. If nil, grandcat/zeroconf is used.
	ServerFactory MDNSServerFactory

	// Resolver browses services. If nil, grandcat/zeroconf is used.
	Resolver MDNSResolver

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Adapter is a radio.Adapter over mDNS. It is always powered and authorized.
type Adapter struct {
	config   Config
	factory  MDNSServerFactory
	resolver MDNSResolver
	log      logging.LeveledLogger

	mu         sync.Mutex
	own        map[string]struct{}
	broadcasts map[*broadcast]struct{}
	scans      map[*scan]struct{}
	closed     bool
}

var _ radio.Adapter = (*Adapter)(nil)

// NewAdapter creates an Adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = DefaultBrowseInterval
	}
	if config.AssumedRSSI == 0 {
		config.AssumedRSSI = DefaultAssumedRSSI
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = zeroconfServerFactory{}
	}
	resolver := config.Resolver
	if resolver == nil {
		zr, err := newZeroconfResolver(config.Interfaces)
		if err != nil {
			return nil, fmt.Errorf("lanradio: create resolver: %w", err)
		}
		resolver = zr
	}

	a := &Adapter{
		config:     config,
		factory:    factory,
		resolver:   resolver,
		own:        make(map[string]struct{}),
		broadcasts: make(map[*broadcast]struct{}),
		scans:      make(map[*scan]struct{}),
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("lanradio")
	}
	return a, nil
}

// Enabled implements radio.Adapter.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.closed
}

// PositioningEnabled implements radio.Adapter.
func (a *Adapter) PositioningEnabled() bool { return true }

// Authorized implements radio.Adapter.
func (a *Adapter) Authorized(radio.Permission) bool { return true }

// Scanner implements radio.Adapter.
func (a *Adapter) Scanner() radio.Scanner { return scanner{a} }

// Broadcaster implements radio.Adapter.
func (a *Adapter) Broadcaster() radio.Broadcaster { return broadcaster{a} }

// Close withdraws every service and ends every scan.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	bs := make([]*broadcast, 0, len(a.broadcasts))
	for b := range a.broadcasts {
		bs = append(bs, b)
	}
	ss := make([]*scan, 0, len(a.scans))
	for s := range a.scans {
		ss = append(ss, s)
	}
	a.mu.Unlock()

	for _, b := range bs {
		b.Stop()
	}
	for _, s := range ss {
		s.Stop()
	}
	return nil
}

func (a *Adapter) isOwn(instance string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.own[instance]
	return ok
}

type broadcaster struct{ a *Adapter }

func (b broadcaster) StartBroadcast(ctx context.Context, ad radio.Advertisement) (radio.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := b.a

	instance, err := generateInstanceName()
	if err != nil {
		return nil, errors.Join(&radio.BroadcastError{Code: radio.BroadcastErrInternal}, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &radio.BroadcastError{Code: radio.BroadcastErrInternal}
	}

	txt := EncodeTXT(ad)
	if a.log != nil {
		a.log.Debugf("registering %s.%s%s port=%d", instance, ServiceType, DefaultDomain, a.config.Port)
		a.log.Tracef("TXT records: %v", txt)
	}
	server, err := a.factory.Register(instance, ServiceType, DefaultDomain, a.config.Port, txt, a.config.Interfaces)
	if err != nil {
		return nil, errors.Join(&radio.BroadcastError{Code: radio.BroadcastErrInternal},
			fmt.Errorf("lanradio: mDNS registration failed: %w", err))
	}

	bc := &broadcast{a: a, instance: instance, server: server}
	a.own[instance] = struct{}{}
	a.broadcasts[bc] = struct{}{}
	return bc, nil
}

type broadcast struct {
	a        *Adapter
	instance string
	server   MDNSServer
	once     sync.Once
}

func (b *broadcast) Stop() error {
	b.once.Do(func() {
		b.server.Shutdown()

		b.a.mu.Lock()
		delete(b.a.own, b.instance)
		delete(b.a.broadcasts, b)
		b.a.mu.Unlock()

		if b.a.log != nil {
			b.a.log.Debugf("withdrew %s", b.instance)
		}
	})
	return nil
}

type scanner struct{ a *Adapter }

func (s scanner) StartScan(filter radio.Filter, h radio.ScanHandler) (radio.Scan, error) {
	a := s.a
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &radio.ScanError{Code: radio.ScanErrInternal}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := &scan{a: a, filter: filter, handler: h, cancel: cancel}
	a.scans[sc] = struct{}{}

	sc.wg.Add(1)
	go sc.run(ctx)
	return sc, nil
}

type scan struct {
	a       *Adapter
	filter  radio.Filter
	handler radio.ScanHandler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (s *scan) Stop() error {
	s.cancel()
	s.wg.Wait()

	s.a.mu.Lock()
	delete(s.a.scans, s)
	s.a.mu.Unlock()
	return nil
}

// run browses in cycles until ctx is done.
func (s *scan) run(ctx context.Context) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		if err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.a.log != nil {
				s.a.log.Warnf("browse failed: %v", err)
			}
			s.handler.HandleScanFailure(radio.ScanErrInternal)
			return
		}
	}
}

// cycle runs one browse window and reports each live instance once.
// It returns only after the resolver has closed entries.
func (s *scan) cycle(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.a.config.BrowseInterval)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := s.a.resolver.Browse(ctx, ServiceType, DefaultDomain, entries); err != nil {
		cancel()
		for range entries {
		}
		return err
	}

	seen := make(map[string]struct{})
	for e := range entries {
		// Entries sent after the window are drained, not reported.
		if e == nil || ctx.Err() != nil {
			continue
		}
		if _, dup := seen[e.Instance]; dup {
			continue
		}
		seen[e.Instance] = struct{}{}
		s.deliver(e)
	}
	return nil
}

func (s *scan) deliver(e *zeroconf.ServiceEntry) {
	if e.TTL == 0 || s.a.isOwn(e.Instance) {
		return
	}

	ad, err := DecodeTXT(e.Text)
	if err != nil {
		if s.a.log != nil {
			s.a.log.Tracef("ignoring %s: %v", e.Instance, err)
		}
		return
	}

	obs := radio.Observation{
		Address:        e.Instance,
		ManufacturerID: ad.ManufacturerID,
		Data:           ad.Data,
		RSSI:           s.a.config.AssumedRSSI,
		Timestamp:      time.Now(),
	}
	if ad.ServiceUUID != uuid.Nil {
		obs.ServiceUUIDs = []uuid.UUID{ad.ServiceUUID}
	}
	if s.filter.Matches(obs) {
		s.handler.HandleObservation(obs)
	}
}

// generateInstanceName returns 16 random uppercase hex characters.
func generateInstanceName() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016X", binary.BigEndian.Uint64(buf[:])), nil
}
