package root

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/config"
	"github.com/inercia/violet/pkg/daemon"
)

// daemonize detaches the relay from the terminal.
//
// It returns true in the background daemon, which must go on to serve. In
// the invoker it reports the daemon pid on stdout, or the failure on stderr,
// and returns false with a nil error on success and errReported on failure.
func daemonize(cfg *config.Config, logger *common.Logger, stdout, stderr io.Writer) (bool, error) {
	if err := checkDaemonSupported(); err != nil {
		fmt.Fprintln(stderr, color.RedString("Fork as daemon failed: %v", err))
		return false, errReported
	}

	d := &daemon.Daemonizer{
		HandoffTimeout: cfg.Daemon.Timeout,
		Logger:         logger,
	}

	out, err := d.Daemonize()
	switch out.Kind {
	case daemon.ChildContinues:
		return true, nil
	case daemon.ParentSuccess:
		logger.Debug("Background relay started with pid %d", out.PID)
		fmt.Fprintln(stdout, color.GreenString("Daemon forked as pid %d", out.PID))
		return false, nil
	default:
		logger.Debug("Daemonization failed: %v", err)
		fmt.Fprintln(stderr, color.RedString("Fork as daemon failed: %v", err))
		return false, errReported
	}
}
