// Package log provides a thin wrapper around zerolog with a leveled,
// structured API shared by every package of the repository.
package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

var (
	log   zerolog.Logger
	level string
)

func init() {
	// Always have a usable logger, even before Init is called; $LOG_LEVEL
	// allows raising verbosity globally when running tests.
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = LogLevelError
	}
	Init(lvl, "stderr")
}

// Init configures the global logger. Output accepts "stdout", "stderr" or a
// file path.
func Init(logLevel, output string) {
	var out *os.File
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %q: %v", output, err))
		}
		out = f
	}
	zl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		zl = zerolog.InfoLevel
	}
	level = logLevel
	log = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}).Level(zl).With().Timestamp().Logger()
}

// Logger returns the underlying zerolog logger.
func Logger() *zerolog.Logger { return &log }

// Level returns the level the logger was initialized with.
func Level() string { return level }

func Debugf(format string, args ...any) { log.Debug().Msgf(format, args...) }

func Infof(format string, args ...any) { log.Info().Msgf(format, args...) }

func Warnf(format string, args ...any) { log.Warn().Msgf(format, args...) }

func Errorf(format string, args ...any) { log.Error().Msgf(format, args...) }

// Fatalf logs the message and exits with status 1.
func Fatalf(format string, args ...any) {
	log.Fatal().Msgf(format, args...)
}

// Warn logs its arguments space-separated at warn level.
func Warn(args ...any) { log.Warn().Msg(argsToString(args...)) }

// Error logs its arguments space-separated at error level.
func Error(args ...any) { log.Error().Msg(argsToString(args...)) }

func Debugw(msg string, keyvalues ...any) { logw(log.Debug(), msg, keyvalues) }

func Infow(msg string, keyvalues ...any) { logw(log.Info(), msg, keyvalues) }

func Warnw(msg string, keyvalues ...any) { logw(log.Warn(), msg, keyvalues) }

func Errorw(err error, msg string) {
	log.Error().Err(err).Msg(msg)
}

func logw(ev *zerolog.Event, msg string, keyvalues []any) {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvalues[i])
		}
		ev = ev.Interface(key, keyvalues[i+1])
	}
	ev.Msg(msg)
}

func argsToString(args ...any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return strings.Join(parts, " ")
}
