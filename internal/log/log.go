// Package log wraps zerolog with the fields this engine's components
// attach to a line: namespace/database scoping, statement and
// transaction identifiers.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured by Init.
var Logger zerolog.Logger

// Level names accepted by Config.Level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Sensible default so packages that log before Init (tests, cmd
	// wiring order) don't panic on a zero-value Logger.
	Init(Config{Level: InfoLevel})
}

// WithComponent creates a child logger tagged with the emitting package.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNamespace creates a child logger tagged with a namespace name.
func WithNamespace(ns string) zerolog.Logger {
	return Logger.With().Str("ns", ns).Logger()
}

// WithDatabase creates a child logger tagged with namespace/database.
func WithDatabase(ns, db string) zerolog.Logger {
	return Logger.With().Str("ns", ns).Str("db", db).Logger()
}

// WithStatementID creates a child logger tagged with a statement id.
func WithStatementID(id uint64) zerolog.Logger {
	return Logger.With().Uint64("stmt_id", id).Logger()
}

// WithTxID creates a child logger tagged with a transaction id.
func WithTxID(id string) zerolog.Logger {
	return Logger.With().Str("tx_id", id).Logger()
}
