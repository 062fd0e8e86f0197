package root

import (
	"fmt"
	"io"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/config"
)

const logPrefix = "[violet] "

// consoleLogger returns the logger used before the configuration is known
// and in the foreground part of a daemonized start. It writes to the
// command's stderr so it does not mix with command output.
func consoleLogger(opts *options, w io.Writer) *common.Logger {
	level := common.LogLevelFromString(opts.logLevel)
	if opts.logLevel == "" {
		level = common.LogLevelWarn
	}
	if opts.debug {
		level = common.LogLevelVerbose
	}
	return common.NewWriterLogger(w, logPrefix, level)
}

// setupLogger opens the log configured in cfg and makes it the global logger.
func setupLogger(cfg *config.Config) (*common.Logger, error) {
	level := common.LogLevelFromString(cfg.Log.Level)
	logger, err := common.NewLogger(logPrefix, cfg.Log.File, level, false)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	common.SetLogger(logger)
	return logger, nil
}
