package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the logger with the specified log level.
func Init(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}
	log.Logger = log.Output(output)

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
		log.Warn().Str("log_level_in", level).Msg("invalid log level, defaulting to 'info'")
	}
	zerolog.SetGlobalLevel(lvl)

	log.Info().Str("level", zerolog.GlobalLevel().String()).Msg("logger initialized")
}

// Get returns a pointer to the configured global logger instance.
func Get() *zerolog.Logger {
	return &log.Logger
}

// SetOutput changes the destination for log output, used by tests.
func SetOutput(w io.Writer) {
	log.Logger = log.Output(w)
}
