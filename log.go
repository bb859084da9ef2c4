package kaybee

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-wide base logger. Replace it (e.g. in tests or
// an embedding application) before opening a Store to change sinks.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// SetLogOutput reconfigures Logger to write JSON lines to w, matching
// the JSON-mode option of the component logging convention this is
// modeled on.
func SetLogOutput(w io.Writer, level zerolog.Level) {
	Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// withComponent returns a child logger tagged with component=name, the
// same pattern used to scope logs per subsystem (store, node, replicator).
func withComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
