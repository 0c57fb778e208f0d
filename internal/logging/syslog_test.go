//go:build !windows && !plan9

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakeSyslog struct {
	lines []string
}

func (f *fakeSyslog) record(prio, m string) error {
	f.lines = append(f.lines, prio+" "+m)
	return nil
}

func (f *fakeSyslog) Debug(m string) error   { return f.record("debug", m) }
func (f *fakeSyslog) Info(m string) error    { return f.record("info", m) }
func (f *fakeSyslog) Warning(m string) error { return f.record("warning", m) }
func (f *fakeSyslog) Err(m string) error     { return f.record("err", m) }
func (f *fakeSyslog) Crit(m string) error    { return f.record("crit", m) }

func TestSyslogCorePriorities(t *testing.T) {
	w := &fakeSyslog{}
	core := newSyslogCore(zapcore.InfoLevel, zap.NewProductionEncoderConfig(), w)
	logger := zap.New(core).With(zap.String("run_id", "r1"))

	logger.Debug("dropped")
	logger.Info("health check started")
	logger.Warn("predictive failure", zap.String("instance", "0"))
	logger.Error("backend setup failed")

	assert.Len(t, w.lines, 3)
	assert.Regexp(t, `^info health check started\s+\{"run_id": "r1"\}`, w.lines[0])
	assert.Regexp(t, `^warning predictive failure\s+\{"run_id": "r1", "instance": "0"\}`, w.lines[1])
	assert.Regexp(t, `^err backend setup failed`, w.lines[2])
}
