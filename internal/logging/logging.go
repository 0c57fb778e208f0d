// Package logging builds the process logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger's level, encoding and destinations
type Options struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is console or json
	Format string
	// Syslog also sends every entry to the local syslog daemon
	Syslog bool
	// OutputPaths defaults to stderr
	OutputPaths []string
}

// New builds a production logger from opts. The returned level can be
// changed while the logger is in use.
func New(opts Options) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	atom := zap.NewAtomicLevelAt(level)

	config := zap.NewProductionConfig()
	config.Level = atom
	config.Sampling = nil
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		config.OutputPaths = opts.OutputPaths
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		config.Encoding = "json"
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("unknown log format %q", opts.Format)
	}

	var buildOpts []zap.Option
	if opts.Syslog {
		core, err := NewSyslogCore(atom, config.EncoderConfig)
		if err != nil {
			return nil, zap.AtomicLevel{}, err
		}
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}

	logger, err := config.Build(buildOpts...)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, atom, nil
}

// ParseLevel accepts the level names used in configuration. The empty
// string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
