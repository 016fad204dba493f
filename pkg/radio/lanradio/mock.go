package lanradio

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockLAN is an in-memory DNS-SD network. It implements both
// MDNSServerFactory and MDNSResolver, so adapters sharing one MockLAN see
// each other's broadcasts without real network I/O.
type MockLAN struct {
	mu        sync.RWMutex
	services  map[string][]*zeroconf.ServiceEntry
	browseErr error
	browses   int
}

var (
	_ MDNSServerFactory = (*MockLAN)(nil)
	_ MDNSResolver      = (*MockLAN)(nil)
)

// NewMockLAN creates an empty network.
func NewMockLAN() *MockLAN {
	return &MockLAN{services: make(map[string][]*zeroconf.ServiceEntry)}
}

// RegisterService adds a raw entry, as if registered by a foreign host.
func (m *MockLAN) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// ClearServices removes all entries.
func (m *MockLAN) ClearServices() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[string][]*zeroconf.ServiceEntry)
}

// Services returns the number of entries registered for service.
func (m *MockLAN) Services(service string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services[service])
}

// FailBrowse makes every following Browse return err. Nil restores normal
// operation.
func (m *MockLAN) FailBrowse(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.browseErr = err
}

// Browses returns how many Browse calls were made.
func (m *MockLAN) Browses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browses
}

// Register implements MDNSServerFactory.
func (m *MockLAN) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  service,
			Domain:   domain,
		},
		HostName: instance + ".local.",
		Port:     port,
		Text:     append([]string(nil), txt...),
		TTL:      120,
		AddrIPv4: []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	m.RegisterService(service, entry)
	return &mockServer{lan: m, service: service, entry: entry}, nil
}

// Browse implements MDNSResolver. It sends the current entries, then
// closes entries once ctx is done.
func (m *MockLAN) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.Lock()
	m.browses++
	err := m.browseErr
	svcEntries := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(svcEntries, m.services[service])
	m.mu.Unlock()

	go func() {
		defer close(entries)
		if err != nil {
			return
		}
		for _, entry := range svcEntries {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return err
}

type mockServer struct {
	lan     *MockLAN
	service string
	entry   *zeroconf.ServiceEntry
}

func (s *mockServer) Shutdown() {
	s.lan.mu.Lock()
	defer s.lan.mu.Unlock()

	list := s.lan.services[s.service]
	for i, e := range list {
		if e == s.entry {
			s.lan.services[s.service] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}
