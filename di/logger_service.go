package di

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
)

// LogLevelKey names the optional log level string ("debug", "info", ...)
// in the container. Defaults to info.
const LogLevelKey = "tiercache.log.level"

// LoggerService wraps the zerolog logger for DI.
type LoggerService struct {
	Logger *zerolog.Logger
}

// NewLogger creates the zerolog logger. Output goes to stderr, with
// pretty console formatting when stderr is a terminal and JSON otherwise.
func NewLogger(i do.Injector) (*LoggerService, error) {
	level := zerolog.InfoLevel
	if raw, err := do.InvokeNamed[string](i, LogLevelKey); err == nil && raw != "" {
		parsed, err := zerolog.ParseLevel(raw)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	var out = os.Stderr
	var logger zerolog.Logger
	if isatty.IsTerminal(out.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(out)
	}
	logger = logger.Level(level).With().Timestamp().Logger()

	return &LoggerService{Logger: &logger}, nil
}
