package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

const (
	// KeyError is the log attribute key for errors.
	KeyError = "err"

	// KeyDal is the log attribute key for the data access layer name.
	KeyDal = "dal"

	// KeyAppName is the log attribute key for the application name.
	KeyAppName = "app"
)

// Name is the name of the application that the logger is for.
type Name string

// Config is the configuration for a logger.
type Config struct {
	name   Name
	writer io.Writer
	level  slog.Leveler
}

// NewConfig creates a new logger configuration for the named application.
func NewConfig(name Name) *Config {
	return &Config{
		name:   name,
		writer: os.Stdout,
		level:  slog.LevelDebug,
	}
}

// CommonLogger creates the standard application logger from the given
// configuration. The logger is also installed as the slog default.
func CommonLogger(c *Config) (*slog.Logger, error) {
	if c == nil {
		return nil, errors.New("nil logging config")
	} else if c.name == "" {
		return nil, errors.New("no application name provided")
	}

	h := slog.NewJSONHandler(c.writer, &slog.HandlerOptions{
		Level: c.level,
	})

	l := slog.New(h).With(slog.String(KeyAppName, string(c.name)))
	slog.SetDefault(l)
	return l, nil
}
