package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/metrics"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/backkem/attendbeacon/pkg/radio/radiotest"
	"github.com/backkem/attendbeacon/pkg/relay"
	"github.com/backkem/attendbeacon/pkg/scan"
	"github.com/backkem/attendbeacon/pkg/store"
	"github.com/google/go-cmp/cmp"
	"github.com/pion/logging"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDevice(t *testing.T, mutate func(*DeviceConfig)) (*Device, *radiotest.Adapter, *store.MemoryStore) {
	t.Helper()

	a := radiotest.NewAdapter()
	s := store.NewMemoryStore()
	config := DefaultDeviceConfig()
	config.Adapter = a
	config.Store = s
	config.Metrics = metrics.New(nil)
	config.LoggerFactory = logging.NewDefaultLoggerFactory()
	if mutate != nil {
		mutate(&config)
	}

	d, err := NewDevice(config)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, a, s
}

func TestNewDevice_Validate(t *testing.T) {
	if _, err := NewDevice(DeviceConfig{Store: store.NewMemoryStore()}); !errors.Is(err, ErrAdapterRequired) {
		t.Errorf("missing adapter error = %v", err)
	}
	if _, err := NewDevice(DeviceConfig{Adapter: radiotest.NewAdapter()}); !errors.Is(err, ErrStoreRequired) {
		t.Errorf("missing store error = %v", err)
	}
}

func TestDefaultDeviceConfig(t *testing.T) {
	c := DefaultDeviceConfig()
	if c.ScanTimeout != scan.DefaultTimeout {
		t.Errorf("ScanTimeout = %v", c.ScanTimeout)
	}
	if c.RelayDuration != relay.DefaultDuration {
		t.Errorf("RelayDuration = %v", c.RelayDuration)
	}
	if c.BeaconDuration != 120*time.Second {
		t.Errorf("BeaconDuration = %v", c.BeaconDuration)
	}
	if c.BeaconTxPower != radio.TxPowerHigh || c.RelayTxPower != radio.TxPowerUltraLow {
		t.Errorf("tx power = %s/%s", c.BeaconTxPower, c.RelayTxPower)
	}
	if c.ManufacturerID != radio.DefaultManufacturerID {
		t.Errorf("ManufacturerID = %#x", c.ManufacturerID)
	}
}

func TestNewDevice_LoadsRelayedSet(t *testing.T) {
	s := store.NewMemoryStore()
	known := beacon.NewSessionID()
	if err := s.PutSet(relay.DefaultStoreKey, []string{known.String(), "garbage"}); err != nil {
		t.Fatal(err)
	}

	d, err := NewDevice(DeviceConfig{Adapter: radiotest.NewAdapter(), Store: s})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer d.Close()

	if diff := cmp.Diff([]beacon.SessionID{known}, d.RelayedSessions()); diff != "" {
		t.Errorf("RelayedSessions() mismatch (-want +got):\n%s", diff)
	}
}

func TestDevice_StartBeacon(t *testing.T) {
	d, a, _ := newTestDevice(t, nil)
	session := beacon.NewSessionID()

	reply, err := d.StartBeacon(context.Background(), session, 0)
	if err != nil {
		t.Fatalf("StartBeacon() error = %v", err)
	}
	if !reply.Active || reply.Session != session {
		t.Errorf("reply = %+v", reply)
	}
	if until := time.Until(reply.ExpiresAt); until < 110*time.Second || until > 120*time.Second {
		t.Errorf("ExpiresAt in %v, want ~120s", until)
	}

	b := a.ActiveBroadcasts()
	if len(b) != 1 || b[0].Ad.TxPower != radio.TxPowerHigh {
		t.Fatalf("broadcasts = %+v", b)
	}
	if st := d.Status(); st.Beacon == nil || st.Beacon.Session != session {
		t.Errorf("Status().Beacon = %+v", st.Beacon)
	}

	d.StopBeacon()
	if len(a.ActiveBroadcasts()) != 0 {
		t.Error("beacon still active after StopBeacon")
	}
	if d.Status().Beacon != nil {
		t.Error("Status().Beacon set after StopBeacon")
	}
}

func TestDevice_StartBeaconErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(a *radiotest.Adapter)
		session beacon.SessionID
		want    string
	}{
		{"nil session", nil, beacon.NilSessionID, CodeInvalidSession},
		{"missing permission", func(a *radiotest.Adapter) {
			a.SetAuthorized(radio.PermissionAdvertise, false)
		}, beacon.NewSessionID(), CodeMissingPermission},
		{"no broadcaster", func(a *radiotest.Adapter) { a.SetBroadcaster(false) }, beacon.NewSessionID(), CodeNoBroadcaster},
		{"rejected", func(a *radiotest.Adapter) {
			a.FailNextBroadcast(radio.BroadcastErrTooManyAdvertisers)
		}, beacon.NewSessionID(), CodeBroadcastFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, a, _ := newTestDevice(t, nil)
			if tt.setup != nil {
				tt.setup(a)
			}

			_, err := d.StartBeacon(context.Background(), tt.session, time.Minute)
			var re *RequestError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *RequestError", err)
			}
			if re.Code != tt.want {
				t.Errorf("Code = %q, want %q", re.Code, tt.want)
			}
		})
	}
}

func TestDevice_ScanFoundAndRelays(t *testing.T) {
	d, a, s := newTestDevice(t, nil)
	session := beacon.NewSessionID()

	replies := make(chan ScanReply, 1)
	errs := make(chan error, 1)
	go func() {
		r, err := d.ScanForBeacon(context.Background(), time.Minute)
		replies <- r
		errs <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sc, err := a.WaitScan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		sc.EmitPayload(beacon.MarkerOrigin, session, -65)
	}

	reply := <-replies
	if err := <-errs; err != nil {
		t.Fatalf("ScanForBeacon() error = %v", err)
	}
	want := ScanReply{Found: true, Session: session, Marker: beacon.MarkerOrigin, Median: -65, RelayStatus: RelayStarted}
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	members, _ := s.GetSet(relay.DefaultStoreKey)
	if diff := cmp.Diff([]string{session.String()}, members); diff != "" {
		t.Errorf("stored set mismatch (-want +got):\n%s", diff)
	}
	if st := d.Status(); st.RelaySession == nil || *st.RelaySession != session || st.Scan != scan.StateFound {
		t.Errorf("Status() = %+v", st)
	}

	d.StopRelay()
	if d.Status().RelaySession != nil {
		t.Error("relay still active after StopRelay")
	}
}

func TestDevice_ScanDisableRelay(t *testing.T) {
	d, a, _ := newTestDevice(t, func(c *DeviceConfig) { c.DisableRelay = true })

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if sc, err := a.WaitScan(ctx); err == nil {
			session := beacon.NewSessionID()
			for i := 0; i < 3; i++ {
				sc.EmitPayload(beacon.MarkerOrigin, session, -60)
			}
		}
	}()

	reply, err := d.ScanForBeacon(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("ScanForBeacon() error = %v", err)
	}
	if !reply.Found || reply.RelayStatus != "" {
		t.Errorf("reply = %+v, want Found without relay", reply)
	}
	if len(a.Broadcasts()) != 0 {
		t.Error("relay started with relaying disabled")
	}
}

func TestDevice_ScanNotFound(t *testing.T) {
	d, _, _ := newTestDevice(t, func(c *DeviceConfig) { c.ScanTimeout = 30 * time.Millisecond })

	reply, err := d.ScanForBeacon(context.Background(), 0)
	if err != nil {
		t.Fatalf("ScanForBeacon() error = %v", err)
	}
	if reply.Found {
		t.Errorf("reply = %+v, want not found", reply)
	}
}

func TestDevice_ScanPreconditions(t *testing.T) {
	d, a, _ := newTestDevice(t, nil)
	a.SetPositioning(false)

	_, err := d.ScanForBeacon(context.Background(), time.Second)
	if got := ErrorCode(err); got != CodePositioningOff {
		t.Errorf("ErrorCode = %q, want %q", got, CodePositioningOff)
	}
}

func TestDevice_Close(t *testing.T) {
	d, a, _ := newTestDevice(t, nil)
	d.StartBeacon(context.Background(), beacon.NewSessionID(), time.Minute)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(a.ActiveBroadcasts()) != 0 {
		t.Error("broadcast survived Close")
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := d.ScanForBeacon(context.Background(), 0); ErrorCode(err) != CodeClosed {
		t.Errorf("scan after Close code = %q", ErrorCode(err))
	}
	if _, err := d.StartBeacon(context.Background(), beacon.NewSessionID(), 0); ErrorCode(err) != CodeClosed {
		t.Errorf("beacon after Close code = %q", ErrorCode(err))
	}
}
