package root

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/config"
)

// resolveConfig loads the configuration file, if any, overrides it with the
// flags set on the command line, applies defaults and validates the result.
func resolveConfig(fs *pflag.FlagSet, opts *options, logger *common.Logger) (*config.Config, error) {
	if err := checkFlags(fs, opts); err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if opts.configFile != "" {
		loaded, err := config.Load(opts.configFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	applyFlags(fs, opts, cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// checkFlags rejects flag values that are only invalid on the command line,
// where zero does not mean "unset".
func checkFlags(fs *pflag.FlagSet, opts *options) error {
	if fs.Changed("port") && opts.port <= 0 {
		return fmt.Errorf("invalid port %d", opts.port)
	}
	if fs.Changed("max") && opts.maxAllocations <= 0 {
		return fmt.Errorf("invalid maximum allocations %d", opts.maxAllocations)
	}
	if opts.logLevel != "" {
		if _, err := common.ParseLogLevel(opts.logLevel); err != nil {
			return err
		}
	}
	return nil
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(fs *pflag.FlagSet, opts *options, cfg *config.Config) {
	if fs.Changed("port") {
		cfg.Listen.Port = opts.port
	}
	if fs.Changed("bind") {
		cfg.Listen.Address = opts.bind
	}
	if fs.Changed("external") {
		cfg.Listen.External = opts.external
	}
	if fs.Changed("relay-port-min") {
		cfg.Relay.PortMin = opts.relayPortMin
	}
	if fs.Changed("relay-port-max") {
		cfg.Relay.PortMax = opts.relayPortMax
	}
	if fs.Changed("realm") {
		cfg.Relay.Realm = opts.realm
	}
	if fs.Changed("credentials") {
		cfg.Credentials = append(cfg.Credentials, opts.credentials.Items()...)
	}
	if fs.Changed("max") {
		cfg.Relay.MaxAllocations = opts.maxAllocations
	}
	if fs.Changed("stun-only") {
		cfg.Relay.STUNOnly = opts.stunOnly
	}
	if fs.Changed("auth-rate") {
		cfg.Auth.Rate = opts.authRate
	}
	if fs.Changed("auth-burst") {
		cfg.Auth.Burst = opts.authBurst
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Address = opts.metricsAddr
	}
	if fs.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if opts.debug && common.LogLevelFromString(cfg.Log.Level) < common.LogLevelVerbose {
		cfg.Log.Level = common.LogLevelVerbose.String()
	}
	if fs.Changed("daemon") {
		cfg.Daemon.Enabled = opts.daemon
	}
	if fs.Changed("daemon-timeout") {
		cfg.Daemon.Timeout = opts.daemonTimeout
	}
}
