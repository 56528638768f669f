package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"receivables/internal/config"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json, console
	TimeFormat string
	Output     string // stdout, stderr, or file path
}

// FromConfig maps the service configuration onto LogConfig.
func FromConfig(cfg config.LoggingConfig) LogConfig {
	return LogConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		TimeFormat: time.RFC3339,
		Output:     cfg.Output,
	}
}

// Setup initializes the global logger with the provided configuration
func Setup(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		output = file
	}

	if strings.ToLower(cfg.Format) != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}
	return nil
}

// WithComponent returns a child of the global logger tagged with a component name
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// Nop is used by tests and by callers that do not care about output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
