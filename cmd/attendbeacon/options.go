package main

import (
	"github.com/backkem/attendbeacon/pkg/config"
	"github.com/spf13/pflag"
)

// options are the flags shared by every command. Flags that are set win
// over the config file.
type options struct {
	configPath    string
	logLevel      string
	storeBackend  string
	storePath     string
	metricsListen string

	flags *pflag.FlagSet
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (disabled, error, warn, info, debug, trace)")
	fs.StringVar(&o.storeBackend, "store-backend", "", "relayed session store (memory, file, sqlite)")
	fs.StringVar(&o.storePath, "store-path", "", "relayed session store path")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "address of the Prometheus endpoint")
	o.flags = fs
}

// load reads the config file and applies the flags that were set.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if o.flags.Changed("store-backend") {
		cfg.Store.Backend = o.storeBackend
	}
	if o.flags.Changed("store-path") {
		cfg.Store.Path = o.storePath
	}
	if o.flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = o.metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
