package root

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/config"
	"github.com/inercia/violet/pkg/daemon"
	"github.com/inercia/violet/pkg/relay"
)

// runServe resolves the configuration, detaches when asked to, and runs the
// relay until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, opts *options) error {
	console := consoleLogger(opts, cmd.ErrOrStderr())
	defer common.RecoverPanic(console)

	// Resolved before daemonizing, so a bad configuration is reported to
	// the terminal instead of killing the daemon silently.
	cfg, err := resolveConfig(cmd.Flags(), opts, console)
	if err != nil {
		return reportError(cmd.ErrOrStderr(), err)
	}

	// Spawned stages get the same arguments as the invoker, so a stage
	// marker without daemon mode was not set by us.
	if stage := daemon.Stage(); stage != daemon.StageInvoker && !cfg.Daemon.Enabled {
		return reportError(cmd.ErrOrStderr(),
			fmt.Errorf("%s=%s is set but daemon mode is not enabled", daemon.StageEnv, stage))
	}

	if cfg.Daemon.Enabled {
		background, err := daemonize(cfg, console, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if !background {
			return err
		}
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()
	defer common.RecoverPanic(logger)

	logger.Info("Starting %s %s (pid %d)", ApplicationName, version, os.Getpid())
	if daemon.IsDaemonized() {
		logger.Info("Running as daemon")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve runs the relay until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *common.Logger) error {
	srv, err := relay.New(relay.ConfigFrom(cfg, logger))
	if err != nil {
		logger.Error("Failed to create relay: %v", err)
		return fmt.Errorf("failed to create relay: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("Failed to start relay: %v", err)
		return fmt.Errorf("failed to start relay: %w", err)
	}

	<-srv.Done()
	return nil
}
