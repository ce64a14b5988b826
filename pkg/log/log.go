package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger every With* helper derives from. Init replaces
// it; code that runs before Init (flag parsing, config loading) gets a
// default info-level console logger instead of a zero-value no-op.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Level is one of the four zerolog levels Reddwarf's config exposes. Kept
// as its own string type rather than zerolog.Level so cmd/reddwarf's YAML
// and flag parsing never need to import zerolog directly.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) toZerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config is what serveCmd builds from flags/YAML and hands to Init once at
// process startup.
type Config struct {
	Level Level
	// JSONOutput selects one-line machine-parseable JSON, the shape a
	// log shipper expects in production. Leaving it false renders
	// human-readable console lines for local runs.
	JSONOutput bool
	// Output defaults to os.Stdout; tests set it to capture log lines.
	Output io.Writer
}

// Init sets the global level and replaces Logger with one writing in the
// requested format. Every WithComponent/WithResource call made afterward
// derives from this logger, so Init must run before any component starts
// its own goroutines.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.toZerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent scopes a logger to one long-lived subsystem: "main",
// "api", "controller". Each call builds a new child logger from Logger.
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithResource scopes a logger to one resource key, the shape every
// reconcile-loop and watch-delivery log line needs: which kind, which
// namespace (omitted for cluster-scoped kinds), which name. namespace is
// dropped from the line entirely rather than logged empty.
func WithResource(gvk, namespace, name string) *zerolog.Logger {
	l := Logger.With().Str("gvk", gvk).Str("name", name)
	if namespace != "" {
		l = l.Str("namespace", namespace)
	}
	logger := l.Logger()
	return &logger
}
