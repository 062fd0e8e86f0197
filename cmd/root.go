// Package root contains the command-line interface implementation for violet.
//
// It defines the root command, which runs the relay, and its subcommands
// using Cobra, and turns command-line flags and configuration files into a
// validated relay configuration.
package root

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inercia/violet/pkg/config"
)

// ApplicationName is the name of the application used in various places
const ApplicationName = "violet"

// Application version (can be overridden at build time)
var version = "1.0.0"

// errReported is returned by commands that already printed their diagnostic.
var errReported = errors.New("error already reported")

// options holds the values of the command-line flags of the root command.
type options struct {
	configFile string
	debug      bool
	logLevel   string
	logFile    string

	port           int
	bind           string
	external       string
	relayPortMin   int
	relayPortMax   int
	realm          string
	credentials    config.CredentialList
	maxAllocations int
	stunOnly       bool
	authRate       float64
	authBurst      int
	metricsAddr    string

	daemon        bool
	daemonTimeout time.Duration
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   ApplicationName,
		Short: "A small TURN/STUN relay",
		Long: `violet is a standalone TURN/STUN relay.

It answers STUN Binding requests and relays traffic for clients that
authenticate with one of the configured long-term credentials. With --daemon
it detaches from the terminal, prints the pid of the background process and
returns.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	addRelayFlags(cmd.Flags(), opts)

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newProbeCommand())

	return cmd
}

// addRelayFlags registers the flags shared by the root and validate commands.
func addRelayFlags(fs *pflag.FlagSet, opts *options) {
	fs.StringVar(&opts.configFile, "config", "", "YAML configuration file, directory, name under ~/.violet, or URL")
	fs.BoolVarP(&opts.debug, "debug", "d", false, "Enable verbose logging, including TURN protocol traces")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: none, fatal, error, warn, info, debug, verbose (default \"info\")")
	fs.StringVarP(&opts.logFile, "log-file", "l", "", "Append log lines to this file instead of stdout")

	fs.IntVarP(&opts.port, "port", "p", config.DefaultPort, "UDP listen port")
	fs.StringVar(&opts.bind, "bind", config.DefaultAddress, "Listen address")
	fs.StringVarP(&opts.external, "external", "e", "", "Public relay IP advertised in allocations")
	fs.IntVar(&opts.relayPortMin, "relay-port-min", 0, "Lowest relay port (0 for ephemeral ports)")
	fs.IntVar(&opts.relayPortMax, "relay-port-max", 0, "Highest relay port (0 for ephemeral ports)")
	fs.StringVar(&opts.realm, "realm", config.DefaultRealm, "TURN realm")
	fs.VarP(&credentialsFlag{list: &opts.credentials}, "credentials", "c", "Accepted credentials as USER:PASSWORD (repeatable)")
	fs.VarP(&quotaFlag{list: &opts.credentials}, "quota", "q", "Allocation quota for the preceding --credentials")
	fs.IntVarP(&opts.maxAllocations, "max", "m", 0, "Maximum number of allocations (0 for unlimited)")
	fs.BoolVarP(&opts.stunOnly, "stun-only", "s", false, "Only answer STUN Binding requests")
	fs.Float64Var(&opts.authRate, "auth-rate", config.DefaultAuthRate, "Authentication attempts per second per client IP")
	fs.IntVar(&opts.authBurst, "auth-burst", config.DefaultAuthBurst, "Authentication attempts a client IP may burst")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "host:port for the /metrics, /live and /ready endpoints")

	fs.BoolVarP(&opts.daemon, "daemon", "b", false, "Run in the background")
	fs.DurationVar(&opts.daemonTimeout, "daemon-timeout", 0, "How long to wait for the background process to start (0 waits forever)")
}

// reportError prints err to w and returns errReported, so that Execute does
// not print it a second time.
func reportError(w io.Writer, err error) error {
	fmt.Fprintln(w, color.RedString("Error: %v", err))
	return errReported
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			_ = reportError(os.Stderr, err)
		}
		os.Exit(1)
	}
}
