package main

import (
	"errors"
	"os"
	"strings"

	"github.com/danmuck/stompctl/internal/config"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/stompctl/config.toml"

type options struct {
	configPath  string
	transport   string
	logLevel    string
	metricsAddr string
	metricsSet  bool
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("stompctl", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "client config file (default "+defaultConfigPath+" when present)")
	fs.StringVarP(&opts.transport, "transport", "t", "", "transport kind: tcp|websocket")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, errors.New("unexpected arguments: " + strings.Join(fs.Args(), " "))
	}
	opts.metricsSet = fs.Changed("metrics-addr")
	return opts, nil
}

// resolve loads the config file, if any, and applies flag overrides.
func (o options) resolve() (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}
	if o.transport != "" {
		cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(o.transport))
	}
	if o.metricsSet {
		cfg.MetricsAddr = strings.TrimSpace(o.metricsAddr)
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}
