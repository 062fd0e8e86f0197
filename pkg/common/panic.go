package common

import (
	"fmt"
	"os"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it to the provided logger.
// It returns true if a panic was recovered, false otherwise.
//
// Parameters:
//   - logger: The logger to use for logging the panic. If nil, logs only to stderr.
//
// This function should be used in deferred calls to catch panics.
func RecoverPanic(logger *Logger) bool {
	r := recover()
	if r == nil {
		return false
	}

	stackTrace := debug.Stack()
	if logger != nil {
		logger.Fatal("panic recovered: %v", r)
		logger.Fatal("stack trace:\n%s", stackTrace)
	}

	// A daemonized process has its stderr on /dev/null, so this only
	// reaches a terminal in the foreground.
	fmt.Fprintf(os.Stderr, "PANIC RECOVERED: %v\n", r)
	if logger != nil && logger.FilePath() != "" {
		fmt.Fprintf(os.Stderr, "Stack trace has been written to the log file: %s\n", logger.FilePath())
	} else {
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", stackTrace)
	}

	return true
}
