// Package config provides configuration loading and handling functionality.
//
// It defines the data structures for representing the relay configuration,
// which is loaded from YAML files, and includes utilities for parsing, merging
// and validating these configurations.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inercia/violet/pkg/common"
)

const (
	// DefaultAddress is the address the relay listens on
	DefaultAddress = "0.0.0.0"
	// DefaultPort is the standard STUN/TURN port
	DefaultPort = 3478
	// DefaultRealm is the TURN realm used in long-term credentials
	DefaultRealm = "violet"
	// DefaultAuthRate is the number of authentication attempts per second per source IP
	DefaultAuthRate = 5.0
	// DefaultAuthBurst is the number of authentication attempts a source IP may burst
	DefaultAuthBurst = 20
	// DefaultLogLevel is the logging verbosity when nothing is configured
	DefaultLogLevel = "info"
)

// Config represents the top-level configuration structure for the application.
type Config struct {
	// Listen configures the UDP socket of the relay
	Listen ListenConfig `yaml:"listen,omitempty"`

	// Relay configures the TURN service
	Relay RelayConfig `yaml:"relay,omitempty"`

	// Credentials are the accepted long-term credentials
	Credentials []Credential `yaml:"credentials,omitempty"`

	// Permissions are CEL expressions that must all hold for a peer to be
	// reachable through the relay
	Permissions []string `yaml:"permissions,omitempty"`

	// Auth configures authentication throttling
	Auth AuthConfig `yaml:"auth,omitempty"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// Log configures logging
	Log common.LoggingConfig `yaml:"log,omitempty"`

	// Daemon configures background operation
	Daemon DaemonConfig `yaml:"daemon,omitempty"`
}

// ListenConfig represents the listening socket configuration.
type ListenConfig struct {
	// Address is the local IP address to bind
	Address string `yaml:"address,omitempty"`

	// Port is the UDP port to bind
	Port int `yaml:"port,omitempty"`

	// External is the public IP advertised in relayed addresses
	External string `yaml:"external,omitempty"`
}

// RelayConfig represents the TURN service configuration.
type RelayConfig struct {
	// Realm is the TURN realm
	Realm string `yaml:"realm,omitempty"`

	// PortMin and PortMax bound the ports used for relayed addresses. Zero
	// for both lets the system choose.
	PortMin int `yaml:"port_min,omitempty"`
	PortMax int `yaml:"port_max,omitempty"`

	// MaxAllocations is the maximum number of live allocations; zero is unlimited
	MaxAllocations int `yaml:"max_allocations,omitempty"`

	// STUNOnly disables relaying, so only Binding requests are answered
	STUNOnly bool `yaml:"stun_only,omitempty"`
}

// AuthConfig represents the authentication throttling configuration.
type AuthConfig struct {
	// Rate is the sustained number of authentication attempts per second per source IP
	Rate float64 `yaml:"rate,omitempty"`

	// Burst is the number of attempts allowed in a burst
	Burst int `yaml:"burst,omitempty"`
}

// MetricsConfig represents the metrics endpoint configuration.
type MetricsConfig struct {
	// Address is the HTTP listen address; empty disables the endpoint
	Address string `yaml:"address,omitempty"`
}

// DaemonConfig represents the background operation configuration.
type DaemonConfig struct {
	// Enabled detaches the relay from the terminal at startup
	Enabled bool `yaml:"enabled,omitempty"`

	// Timeout bounds the wait for the daemon's pid; zero waits forever
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen.Address == "" {
		c.Listen.Address = DefaultAddress
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = DefaultPort
	}
	if c.Relay.Realm == "" {
		c.Relay.Realm = DefaultRealm
	}
	if c.Auth.Rate == 0 {
		c.Auth.Rate = DefaultAuthRate
	}
	if c.Auth.Burst == 0 {
		c.Auth.Burst = DefaultAuthBurst
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Parse decodes a YAML document. Unknown keys are rejected.
//
// Parameters:
//   - data: The YAML content
//
// Returns:
//   - The decoded configuration, without defaults applied
//   - An error if the content is not valid
func Parse(data []byte) (*Config, error) {
	var config Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads the configuration from a YAML file at the specified path.
//
// Parameters:
//   - filepath: Path to the YAML configuration file
//
// Returns:
//   - A pointer to the loaded Config structure
//   - An error if loading or parsing fails
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath, err)
	}

	return config, nil
}

// Merge folds other into c. Scalar fields set in other replace those in c,
// while credentials and permissions are appended.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	mergeString(&c.Listen.Address, other.Listen.Address)
	mergeInt(&c.Listen.Port, other.Listen.Port)
	mergeString(&c.Listen.External, other.Listen.External)

	mergeString(&c.Relay.Realm, other.Relay.Realm)
	mergeInt(&c.Relay.PortMin, other.Relay.PortMin)
	mergeInt(&c.Relay.PortMax, other.Relay.PortMax)
	mergeInt(&c.Relay.MaxAllocations, other.Relay.MaxAllocations)
	c.Relay.STUNOnly = c.Relay.STUNOnly || other.Relay.STUNOnly

	c.Credentials = append(c.Credentials, other.Credentials...)
	c.Permissions = append(c.Permissions, other.Permissions...)

	if other.Auth.Rate != 0 {
		c.Auth.Rate = other.Auth.Rate
	}
	mergeInt(&c.Auth.Burst, other.Auth.Burst)

	mergeString(&c.Metrics.Address, other.Metrics.Address)

	mergeString(&c.Log.File, other.Log.File)
	mergeString(&c.Log.Level, other.Log.Level)

	c.Daemon.Enabled = c.Daemon.Enabled || other.Daemon.Enabled
	if other.Daemon.Timeout != 0 {
		c.Daemon.Timeout = other.Daemon.Timeout
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Listen.Port)
	}
	if c.Listen.Address != "" && net.ParseIP(c.Listen.Address) == nil {
		return fmt.Errorf("invalid listen address %q", c.Listen.Address)
	}
	if c.Listen.External != "" && net.ParseIP(c.Listen.External) == nil {
		return fmt.Errorf("invalid external address %q", c.Listen.External)
	}

	if c.Relay.Realm == "" {
		return fmt.Errorf("realm must not be empty")
	}
	if c.Relay.PortMin < 0 || c.Relay.PortMax < 0 || c.Relay.PortMin > 65535 || c.Relay.PortMax > 65535 {
		return fmt.Errorf("invalid relay port range %d-%d", c.Relay.PortMin, c.Relay.PortMax)
	}
	if (c.Relay.PortMin == 0) != (c.Relay.PortMax == 0) {
		return fmt.Errorf("relay port range needs both port_min and port_max")
	}
	if c.Relay.PortMin > c.Relay.PortMax {
		return fmt.Errorf("invalid relay port range %d-%d", c.Relay.PortMin, c.Relay.PortMax)
	}
	if c.Relay.MaxAllocations < 0 {
		return fmt.Errorf("invalid maximum allocations %d", c.Relay.MaxAllocations)
	}

	seen := make(map[string]bool, len(c.Credentials))
	for i, cred := range c.Credentials {
		if err := cred.Validate(); err != nil {
			return fmt.Errorf("credentials #%d: %w", i+1, err)
		}
		if seen[cred.Username] {
			return fmt.Errorf("credentials #%d: duplicate username %q", i+1, cred.Username)
		}
		seen[cred.Username] = true
	}

	if c.Auth.Rate < 0 {
		return fmt.Errorf("invalid auth rate %v", c.Auth.Rate)
	}
	if c.Auth.Burst < 0 {
		return fmt.Errorf("invalid auth burst %d", c.Auth.Burst)
	}

	if c.Metrics.Address != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", c.Metrics.Address, err)
		}
	}

	if c.Log.Level != "" {
		if _, err := common.ParseLogLevel(c.Log.Level); err != nil {
			return err
		}
	}

	if c.Daemon.Timeout < 0 {
		return fmt.Errorf("invalid daemon timeout %s", c.Daemon.Timeout)
	}

	return nil
}

// ToYAML serializes the configuration
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}
	return buf.Bytes(), nil
}

// Redacted returns a copy of the configuration with passwords hidden, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Credentials = make([]Credential, len(c.Credentials))
	for i, cred := range c.Credentials {
		cred.Password = "********"
		out.Credentials[i] = cred
	}
	return &out
}
