//go:build !windows && !plan9

package logging

import (
	"fmt"
	"log/syslog"

	"go.uber.org/zap/zapcore"
)

// syslogTag identifies entries in the system log
const syslogTag = "raid-health-check"

// priorityWriter is the subset of *syslog.Writer the core needs
type priorityWriter interface {
	Debug(m string) error
	Info(m string) error
	Warning(m string) error
	Err(m string) error
	Crit(m string) error
}

// syslogCore writes entries to syslog at the priority matching the
// entry level
type syslogCore struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
	w   priorityWriter
}

// NewSyslogCore connects to the local syslog daemon with the user
// facility
func NewSyslogCore(enab zapcore.LevelEnabler, cfg zapcore.EncoderConfig) (zapcore.Core, error) {
	w, err := syslog.New(syslog.LOG_USER|syslog.LOG_INFO, syslogTag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}
	return newSyslogCore(enab, cfg, w), nil
}

func newSyslogCore(enab zapcore.LevelEnabler, cfg zapcore.EncoderConfig, w priorityWriter) *syslogCore {
	// syslog stamps its own time and level
	cfg.TimeKey = ""
	cfg.LevelKey = ""
	return &syslogCore{LevelEnabler: enab, enc: zapcore.NewConsoleEncoder(cfg), w: w}
}

func (c *syslogCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &syslogCore{LevelEnabler: c.LevelEnabler, enc: c.enc.Clone(), w: c.w}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *syslogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *syslogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := buf.String()
	buf.Free()

	switch {
	case ent.Level >= zapcore.DPanicLevel:
		return c.w.Crit(msg)
	case ent.Level == zapcore.ErrorLevel:
		return c.w.Err(msg)
	case ent.Level == zapcore.WarnLevel:
		return c.w.Warning(msg)
	case ent.Level == zapcore.InfoLevel:
		return c.w.Info(msg)
	default:
		return c.w.Debug(msg)
	}
}

func (c *syslogCore) Sync() error {
	return nil
}
