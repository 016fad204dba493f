package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/backkem/attendbeacon/pkg/attendance"
	"github.com/backkem/attendbeacon/pkg/config"
	"github.com/backkem/attendbeacon/pkg/metrics"
	"github.com/backkem/attendbeacon/pkg/radio/lanradio"
	"github.com/backkem/attendbeacon/pkg/store"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// app is a running device and everything it owns.
type app struct {
	device  *attendance.Device
	adapter *lanradio.Adapter
	store   store.SetStore
	server  *http.Server
	log     logging.LeveledLogger
}

// newApp wires the configured store, radio and metrics into a Device.
func newApp(cfg *config.Config) (*app, error) {
	lf, err := cfg.LoggerFactory()
	if err != nil {
		return nil, err
	}
	dc, err := cfg.DeviceConfig()
	if err != nil {
		return nil, err
	}
	ifaces, err := interfaces(cfg.Radio.Interfaces)
	if err != nil {
		return nil, err
	}

	a := &app{log: lf.NewLogger("attendbeacon")}

	a.store, err = cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.adapter, err = lanradio.NewAdapter(lanradio.Config{
		Interfaces:     ifaces,
		BrowseInterval: cfg.Radio.BrowseInterval,
		AssumedRSSI:    cfg.Radio.AssumedRSSI,
		LoggerFactory:  lf,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create radio: %w", err)
	}

	reg := prometheus.NewRegistry()
	dc.Adapter = a.adapter
	dc.Store = a.store
	dc.Metrics = metrics.New(reg)
	dc.LoggerFactory = lf

	a.device, err = attendance.NewDevice(dc)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create device: %w", err)
	}

	if cfg.Metrics.Listen != "" {
		a.serveMetrics(cfg.Metrics.Listen, reg)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(reg,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.log.Infof("Exporting metrics on %s", addr)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("Metrics server: %v", err)
		}
	}()
}

// Close shuts everything down in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
	}
	if a.device != nil {
		errs = append(errs, a.device.Close())
	}
	if a.adapter != nil {
		errs = append(errs, a.adapter.Close())
	}
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func interfaces(names []string) ([]net.Interface, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]net.Interface, 0, len(names))
	for _, name := range names {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", name, err)
		}
		out = append(out, *iface)
	}
	return out, nil
}
