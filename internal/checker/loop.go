package checker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"raid-health-check/internal/policy"
	"raid-health-check/pkg/types"
)

// Start runs the checker immediately and then every interval until ctx
// is cancelled. It returns early only when a run halts.
func (c *Checker) Start(ctx context.Context) error {
	if c.metrics != nil {
		c.metrics.ExporterUp.Set(1)
		defer c.metrics.ExporterUp.Set(0)
	}

	if err := c.runOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Checker) runOnce(ctx context.Context) error {
	_, err := c.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Watch installs policy overrides from path whenever the file changes
func (c *Checker) Watch(ctx context.Context, path string) error {
	return policy.Watch(ctx, path, c.Schemas(), c.log, func(o policy.Overrides) {
		if err := c.SetOverrides(o); err != nil {
			c.log.Error("policy overrides rejected", zap.Error(err))
		}
	})
}

// observe publishes a finished run to the metrics
func (c *Checker) observe(r *Result) {
	if c.metrics == nil {
		return
	}
	m := c.metrics
	m.Reset()

	m.Severity.Set(float64(r.Severity))
	m.RunDuration.Set(r.Finished.Sub(r.Started).Seconds())
	m.LastRun.Set(float64(r.Finished.Unix()))
	c.recordRun("completed")

	for _, b := range r.Backends {
		m.BackendStatus.WithLabelValues(b.Backend, string(b.Status)).Set(1)
		if b.Status != StatusOK {
			continue
		}
		m.BackendSeverity.WithLabelValues(b.Backend).Set(float64(b.Severity))
		for instance, sev := range b.InstanceSeverity {
			m.InstanceSeverity.WithLabelValues(b.Backend, instance).Set(float64(sev))
		}
		counts := map[types.Severity]int{types.SeverityWarning: 0, types.SeverityError: 0}
		for _, f := range b.Findings {
			counts[f.Severity]++
		}
		for sev, n := range counts {
			m.Findings.WithLabelValues(b.Backend, sev.String()).Set(float64(n))
		}
	}
}

func (c *Checker) recordRun(result string) {
	if c.metrics != nil {
		c.metrics.Runs.WithLabelValues(result).Inc()
	}
}
