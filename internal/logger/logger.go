// Package logger is the console logger used across galos.
//
// Every line carries a short tag naming the subsystem ("DB", "EDDN", "ROUTE").
// Output is a human-readable console stream by default and JSON when
// configured with format "json".
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger

	format = "console"
	output io.Writer = os.Stdout
)

func init() {
	configure()
}

// Init sets the minimum level (debug, info, warn, error) and the output format
// (console or json). Unknown levels fall back to info.
func Init(level, fmtName string) {
	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(parseLevel(level))
	if fmtName != "" {
		format = strings.ToLower(fmtName)
	}
	configure()
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	configure()
}

// configure rebuilds the global logger; callers hold mu (or run from init).
func configure() {
	zerolog.TimeFieldFormat = time.RFC3339
	w := output
	if format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(output),
		}
	}
	log = zerolog.New(w).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

// Debug logs a diagnostic message.
func Debug(tag, msg string) {
	current().Debug().Str("tag", tag).Msg(msg)
}

// Info logs an informational message.
func Info(tag, msg string) {
	current().Info().Str("tag", tag).Msg(msg)
}

// Success logs the completion of a step.
func Success(tag, msg string) {
	current().Info().Str("tag", tag).Bool("ok", true).Msg(msg)
}

// Warn logs a recoverable problem.
func Warn(tag, msg string) {
	current().Warn().Str("tag", tag).Msg(msg)
}

// Error logs a failure.
func Error(tag, msg string) {
	current().Error().Str("tag", tag).Msg(msg)
}

// Section starts a titled block of Stats lines.
func Section(title string) {
	current().Info().Str("section", title).Msg("")
}

// Stats logs a single key/value figure.
func Stats(key string, value interface{}) {
	current().Info().Str("stat", key).Interface("value", value).Msg("")
}

// Banner logs the program name and version at startup.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	current().Info().Str("version", version).Msg("galos")
}

// Server logs the address the HTTP API listens on.
func Server(addr string) {
	current().Info().Str("tag", "HTTP").Msg(fmt.Sprintf("Listening on http://%s", addr))
}
