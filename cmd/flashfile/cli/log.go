package cli

import (
	"log"
	"os"

	"golang.org/x/exp/slog"
)

var stdout = log.New(os.Stdout, "[flashfile] ", log.LstdFlags|log.Lmicroseconds)
var stderr = log.New(os.Stderr, "[flashfile] ", log.LstdFlags|log.Lmicroseconds)

// SetupStructuredLogger installs the default slog logger according to the
// -verbose and -log-format flags. Logs are written to stderr so that the
// output of the scripts stays untouched.
func SetupStructuredLogger() {
	level := slog.LevelInfo
	if Flags.VerboseOutput {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if Flags.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
