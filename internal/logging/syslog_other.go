//go:build windows || plan9

package logging

import (
	"errors"

	"go.uber.org/zap/zapcore"
)

// NewSyslogCore reports that syslog is unavailable on this platform
func NewSyslogCore(zapcore.LevelEnabler, zapcore.EncoderConfig) (zapcore.Core, error) {
	return nil, errors.New("syslog is not supported on this platform")
}
