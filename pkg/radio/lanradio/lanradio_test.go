package lanradio

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	obs      chan radio.Observation
	mu       sync.Mutex
	failures []int
}

func newRecorder() *recorder {
	return &recorder{obs: make(chan radio.Observation, 256)}
}

func (r *recorder) HandleObservation(obs radio.Observation) {
	select {
	case r.obs <- obs:
	default:
	}
}

func (r *recorder) HandleScanFailure(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, code)
}

func (r *recorder) Failures() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.failures...)
}

func (r *recorder) next(t *testing.T) radio.Observation {
	t.Helper()
	select {
	case o := <-r.obs:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no observation received")
		return radio.Observation{}
	}
}

func (r *recorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case o := <-r.obs:
		t.Fatalf("unexpected observation %+v", o)
	case <-time.After(d):
	}
}

func newTestAdapter(t *testing.T, lan *MockLAN) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{
		BrowseInterval: 20 * time.Millisecond,
		ServerFactory:  lan,
		Resolver:       lan,
		LoggerFactory:  logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func beaconAd(session beacon.SessionID, power radio.TxPower) radio.Advertisement {
	return radio.Advertisement{
		ManufacturerID: radio.DefaultManufacturerID,
		Data:           beacon.Encode(beacon.MarkerOrigin, session),
		TxPower:        power,
	}
}

func TestNewAdapter_Defaults(t *testing.T) {
	lan := NewMockLAN()
	a, err := NewAdapter(Config{ServerFactory: lan, Resolver: lan})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	defer a.Close()

	if a.config.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", a.config.Port, DefaultPort)
	}
	if a.config.BrowseInterval != DefaultBrowseInterval {
		t.Errorf("BrowseInterval = %v", a.config.BrowseInterval)
	}
	if a.config.AssumedRSSI != DefaultAssumedRSSI {
		t.Errorf("AssumedRSSI = %d", a.config.AssumedRSSI)
	}
	if !a.Enabled() || !a.PositioningEnabled() || !a.Authorized(radio.PermissionAdvertise) {
		t.Error("adapter not ready")
	}
	if _, err := radio.CheckScan(a); err != nil {
		t.Errorf("CheckScan() error = %v", err)
	}
	if _, err := radio.CheckBroadcast(a); err != nil {
		t.Errorf("CheckBroadcast() error = %v", err)
	}
}

func TestAdapter_BroadcastReachesPeer(t *testing.T) {
	lan := NewMockLAN()
	presenter := newTestAdapter(t, lan)
	attendee := newTestAdapter(t, lan)
	session := beacon.NewSessionID()

	b, err := presenter.Broadcaster().StartBroadcast(context.Background(), beaconAd(session, radio.TxPowerHigh))
	if err != nil {
		t.Fatalf("StartBroadcast() error = %v", err)
	}
	defer b.Stop()
	if lan.Services(ServiceType) != 1 {
		t.Fatalf("services = %d, want 1", lan.Services(ServiceType))
	}

	rec := newRecorder()
	sc, err := attendee.Scanner().StartScan(radio.Filter{ManufacturerID: radio.DefaultManufacturerID}, rec)
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	defer sc.Stop()

	obs := rec.next(t)
	if obs.RSSI != DefaultAssumedRSSI {
		t.Errorf("RSSI = %d, want %d", obs.RSSI, DefaultAssumedRSSI)
	}
	if len(obs.Address) != 16 {
		t.Errorf("Address = %q, want instance name", obs.Address)
	}
	p, err := beacon.Decode(obs.Data)
	if err != nil || p.Session != session || p.Marker != beacon.MarkerOrigin {
		t.Errorf("payload = %s, %v", p, err)
	}

	// Reported again in the next cycle.
	rec.next(t)
}

func TestAdapter_PowerHintKeepsRSSI(t *testing.T) {
	lan := NewMockLAN()
	presenter := newTestAdapter(t, lan)
	attendee := newTestAdapter(t, lan)

	b, _ := presenter.Broadcaster().StartBroadcast(context.Background(), beaconAd(beacon.NewSessionID(), radio.TxPowerUltraLow))
	defer b.Stop()

	rec := newRecorder()
	sc, _ := attendee.Scanner().StartScan(radio.Filter{ManufacturerID: radio.DefaultManufacturerID}, rec)
	defer sc.Stop()

	obs := rec.next(t)
	if obs.RSSI != DefaultAssumedRSSI {
		t.Errorf("RSSI = %d, want %d", obs.RSSI, DefaultAssumedRSSI)
	}
}

// lateResolver behaves like grandcat/zeroconf: Browse returns at once and
// a loop goroutine sends one entry after ctx is done, then closes entries.
type lateResolver struct {
	entry *zeroconf.ServiceEntry
	wg    sync.WaitGroup
}

func (r *lateResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-ctx.Done()
		entries <- r.entry
		close(entries)
	}()
	return nil
}

func TestScan_DrainsEntriesAfterWindow(t *testing.T) {
	res := &lateResolver{entry: &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "AAAA", Service: ServiceType},
		Text:          EncodeTXT(beaconAd(beacon.NewSessionID(), radio.TxPowerHigh)),
		TTL:           120,
	}}
	a, err := NewAdapter(Config{
		BrowseInterval: 10 * time.Millisecond,
		ServerFactory:  NewMockLAN(),
		Resolver:       res,
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	rec := newRecorder()
	sc, err := a.Scanner().StartScan(radio.Filter{ManufacturerID: radio.DefaultManufacturerID}, rec)
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	sc.Stop()
	a.Close()

	done := make(chan struct{})
	go func() {
		res.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resolver sends still blocked after scan stopped")
	}

	if got := len(rec.obs); got != 0 {
		t.Errorf("observations = %d, want 0 for entries after the window", got)
	}
}

func TestAdapter_IgnoresOwnBroadcasts(t *testing.T) {
	lan := NewMockLAN()
	a := newTestAdapter(t, lan)

	b, _ := a.Broadcaster().StartBroadcast(context.Background(), beaconAd(beacon.NewSessionID(), radio.TxPowerHigh))
	defer b.Stop()

	rec := newRecorder()
	sc, _ := a.Scanner().StartScan(radio.Filter{ManufacturerID: radio.DefaultManufacturerID}, rec)
	defer sc.Stop()

	rec.none(t, 100*time.Millisecond)
}

func TestAdapter_StopWithdraws(t *testing.T) {
	lan := NewMockLAN()
	a := newTestAdapter(t, lan)

	b, _ := a.Broadcaster().StartBroadcast(context.Background(), beaconAd(beacon.NewSessionID(), radio.TxPowerHigh))
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if lan.Services(ServiceType) != 0 {
		t.Errorf("services = %d after Stop", lan.Services(ServiceType))
	}
}

func TestAdapter_ServiceUUIDFilter(t *testing.T) {
	lan := NewMockLAN()
	presenter := newTestAdapter(t, lan)
	attendee := newTestAdapter(t, lan)

	plain, _ := presenter.Broadcaster().StartBroadcast(context.Background(), beaconAd(beacon.NewSessionID(), radio.TxPowerHigh))
	defer plain.Stop()

	tagged := beaconAd(beacon.NewSessionID(), radio.TxPowerHigh)
	tagged.ServiceUUID = radio.ClassServiceUUID
	tb, _ := presenter.Broadcaster().StartBroadcast(context.Background(), tagged)
	defer tb.Stop()

	rec := newRecorder()
	sc, _ := attendee.Scanner().StartScan(radio.Filter{
		ManufacturerID: radio.DefaultManufacturerID,
		ServiceUUID:    radio.ClassServiceUUID,
	}, rec)
	defer sc.Stop()

	for i := 0; i < 3; i++ {
		obs := rec.next(t)
		if len(obs.ServiceUUIDs) != 1 || obs.ServiceUUIDs[0] != radio.ClassServiceUUID {
			t.Fatalf("untagged beacon passed the filter: %+v", obs)
		}
	}
}

func TestAdapter_BrowseFailure(t *testing.T) {
	lan := NewMockLAN()
	lan.FailBrowse(errors.New("socket closed"))
	a := newTestAdapter(t, lan)

	rec := newRecorder()
	sc, _ := a.Scanner().StartScan(radio.Filter{ManufacturerID: radio.DefaultManufacturerID}, rec)
	defer sc.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Failures()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.Failures(); len(got) != 1 || got[0] != radio.ScanErrInternal {
		t.Errorf("failures = %v, want [%d]", got, radio.ScanErrInternal)
	}
}

func TestAdapter_RegisterFailure(t *testing.T) {
	lan := NewMockLAN()
	a, _ := NewAdapter(Config{ServerFactory: failingFactory{}, Resolver: lan})
	defer a.Close()

	_, err := a.Broadcaster().StartBroadcast(context.Background(), beaconAd(beacon.NewSessionID(), radio.TxPowerHigh))
	var be *radio.BroadcastError
	if !errors.As(err, &be) || be.Code != radio.BroadcastErrInternal {
		t.Errorf("error = %v, want BroadcastError(internal)", err)
	}
	if !errors.Is(err, errRegister) {
		t.Errorf("error = %v, want cause preserved", err)
	}
}

var errRegister = errors.New("no multicast interface")

type failingFactory struct{}

func (failingFactory) Register(string, string, string, int, []string, []net.Interface) (MDNSServer, error) {
	return nil, errRegister
}

func TestAdapter_Close(t *testing.T) {
	lan := NewMockLAN()
	a, _ := NewAdapter(Config{BrowseInterval: 10 * time.Millisecond, ServerFactory: lan, Resolver: lan})

	a.Broadcaster().StartBroadcast(context.Background(), beaconAd(beacon.NewSessionID(), radio.TxPowerHigh))
	a.Scanner().StartScan(radio.Filter{}, newRecorder())

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v", err)
	}
	if lan.Services(ServiceType) != 0 {
		t.Error("service still registered after Close")
	}
	if a.Enabled() {
		t.Error("Enabled() = true after Close")
	}
	if _, err := radio.CheckScan(a); !errors.Is(err, radio.ErrRadioOff) {
		t.Errorf("CheckScan() after Close error = %v", err)
	}
	if _, err := a.Scanner().StartScan(radio.Filter{}, newRecorder()); !errors.Is(err, radio.ErrScanFailed) {
		t.Errorf("StartScan() after Close error = %v", err)
	}
}

func TestScan_CycleDeduplicatesAndSkips(t *testing.T) {
	lan := NewMockLAN()
	a := newTestAdapter(t, lan)
	session := beacon.NewSessionID()

	live := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "AAAA", Service: ServiceType},
		Text:          EncodeTXT(beaconAd(session, radio.TxPowerHigh)),
		TTL:           120,
	}
	gone := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "BBBB", Service: ServiceType},
		Text:          EncodeTXT(beaconAd(beacon.NewSessionID(), radio.TxPowerHigh)),
	}
	junk := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "CCCC", Service: ServiceType},
		Text:          []string{"M=zz"},
		TTL:           120,
	}
	lan.RegisterService(ServiceType, live)
	lan.RegisterService(ServiceType, live)
	lan.RegisterService(ServiceType, gone)
	lan.RegisterService(ServiceType, junk)

	rec := newRecorder()
	sc := &scan{a: a, filter: radio.Filter{ManufacturerID: radio.DefaultManufacturerID}, handler: rec}
	if err := sc.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	if got := len(rec.obs); got != 1 {
		t.Fatalf("observations = %d, want 1", got)
	}
	if obs := <-rec.obs; obs.Address != "AAAA" {
		t.Errorf("Address = %q, want AAAA", obs.Address)
	}
}

func TestTXT_Roundtrip(t *testing.T) {
	tests := []radio.Advertisement{
		{ManufacturerID: 0xFFFF, Data: []byte{1, 2, 3}, TxPower: radio.TxPowerLow},
		{ManufacturerID: 0x004C, Data: beacon.Encode(beacon.MarkerRelay, beacon.NewSessionID()),
			ServiceUUID: radio.ClassServiceUUID, TxPower: radio.TxPowerUltraLow},
		{ManufacturerID: 1, Data: []byte{}},
	}

	for _, ad := range tests {
		got, err := DecodeTXT(EncodeTXT(ad))
		if err != nil {
			t.Fatalf("DecodeTXT() error = %v", err)
		}
		if got.ManufacturerID != ad.ManufacturerID || string(got.Data) != string(ad.Data) ||
			got.ServiceUUID != ad.ServiceUUID || got.TxPower != ad.TxPower {
			t.Errorf("roundtrip = %+v, want %+v", got, ad)
		}
	}
}

func TestDecodeTXT_Errors(t *testing.T) {
	tests := []struct {
		name    string
		txt     []string
		wantErr error
	}{
		{"no manufacturer", []string{"D=01"}, errMissingKey},
		{"no data", []string{"M=FFFF"}, errMissingKey},
		{"bad manufacturer", []string{"M=12345", "D=01"}, errBadValue},
		{"bad data", []string{"M=FFFF", "D=0g"}, errBadValue},
		{"bad power", []string{"M=FFFF", "D=01", "P=Loud"}, errBadValue},
		{"bad service", []string{"M=FFFF", "D=01", "S=nope"}, errBadValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTXT(tt.txt); !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeTXT() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeTXT_DefaultsToHighPower(t *testing.T) {
	ad, err := DecodeTXT([]string{"M=FFFF", "D=01", "X=ignored"})
	if err != nil {
		t.Fatalf("DecodeTXT() error = %v", err)
	}
	if ad.TxPower != radio.TxPowerHigh || ad.ServiceUUID != uuid.Nil {
		t.Errorf("DecodeTXT() = %+v", ad)
	}
}
