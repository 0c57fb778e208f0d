package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"raid-health-check/internal/backend"
	"raid-health-check/internal/metrics"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/system"
	"raid-health-check/pkg/types"
)

var errNoInstances = errors.New("no instances found")

// Config wires a Checker
type Config struct {
	Backends []backend.Backend
	// Explicit marks the backends the operator asked for by name.
	// Missing tools on those are failures rather than absences.
	Explicit  []string
	Detector  *system.Detector
	Runner    backend.Runner
	Overrides policy.Overrides
	// Metrics is optional
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Interval time.Duration
}

// Checker runs the backends and folds their health into one result
type Checker struct {
	backends  []backend.Backend
	explicit  map[string]bool
	detector  *system.Detector
	runner    backend.Runner
	metrics   *metrics.Metrics
	log       *zap.Logger
	interval  time.Duration
	overrides atomic.Pointer[policy.Overrides]

	mu   sync.RWMutex
	last *Result
}

// New creates a checker. Overrides are validated against the schemas of
// the configured backends.
func New(cfg Config) (*Checker, error) {
	if cfg.Runner == nil {
		return nil, errors.New("checker: runner is required")
	}
	if cfg.Detector == nil {
		cfg.Detector = system.New(nil, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Checker{
		backends: cfg.Backends,
		explicit: make(map[string]bool, len(cfg.Explicit)),
		detector: cfg.Detector,
		runner:   cfg.Runner,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		interval: cfg.Interval,
	}
	for _, name := range cfg.Explicit {
		c.explicit[name] = true
	}
	if err := c.SetOverrides(cfg.Overrides); err != nil {
		return nil, err
	}
	return c, nil
}

// Schemas returns the schemas of the configured backends
func (c *Checker) Schemas() map[string]policy.Schema {
	return backend.Schemas(c.backends)
}

// SetOverrides validates o and installs it for the following runs
func (c *Checker) SetOverrides(o policy.Overrides) error {
	if o == nil {
		o = policy.Overrides{}
	}
	if err := o.Validate(c.Schemas()); err != nil {
		return err
	}
	c.overrides.Store(&o)
	return nil
}

// Last returns the most recent completed run, or nil
func (c *Checker) Last() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run performs one monitoring run over every configured backend. It
// returns an error only when the run must halt: a policy that does not
// match what a backend extracts, or cancellation.
func (c *Checker) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString(), Started: time.Now()}
	log := c.log.With(zap.String("run_id", result.RunID))
	log.Info("health check started", zap.Int("backends", len(c.backends)))

	overrides := *c.overrides.Load()
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		br, err := c.check(ctx, log, b, overrides)
		if err != nil {
			c.recordRun("halted")
			return nil, err
		}
		result.Backends = append(result.Backends, br)
		if br.Status == StatusOK {
			result.Severity = types.Raise(result.Severity, br.Severity)
			result.Findings = append(result.Findings, br.Findings...)
		}
	}
	result.Finished = time.Now()

	log.Info("health check finished",
		zap.Stringer("severity", result.Severity),
		zap.Int("findings", len(result.Findings)),
		zap.Int("checked", result.Checked()),
		zap.Int("failed", len(result.Failed())),
		zap.Duration("duration", result.Finished.Sub(result.Started)))

	c.observe(result)
	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
	return result, nil
}

// check collects and evaluates one backend
func (c *Checker) check(ctx context.Context, log *zap.Logger, b backend.Backend, overrides policy.Overrides) (br BackendResult, err error) {
	name := b.Name()
	log = log.With(zap.String("backend", name))
	start := time.Now()

	br = BackendResult{Backend: name, Program: c.detector.Resolve(name, b.Programs())}
	defer func() { br.Duration = time.Since(start) }()

	if !br.Program.Found && !c.explicit[name] {
		log.Debug("backend tool not installed", zap.Strings("programs", b.Programs()))
		br.Status = StatusAbsent
		return br, nil
	}

	st, err := b.Collect(ctx, c.runner, br.Program.Path)
	if err == nil && len(st.Instances()) == 0 {
		err = errNoInstances
	}
	if err != nil {
		absent := (backend.IsMissing(err) || errors.Is(err, errNoInstances)) && !c.explicit[name]
		if absent {
			log.Debug("nothing to monitor", zap.Error(err))
			br.Status = StatusAbsent
			return br, nil
		}
		log.Error("backend setup failed", zap.String("program", br.Program.Path), zap.Error(err))
		br.Status = StatusFailed
		br.Err = err
		return br, nil
	}

	severity, findings, err := policy.EvaluateStore(name, st, overrides.Apply(name, b.Policies()))
	if err != nil {
		log.Error("policy does not match extracted tables", zap.Error(err))
		return br, fmt.Errorf("backend %s: %w", name, err)
	}

	br.Status = StatusOK
	br.Severity = severity
	br.Findings = findings
	br.Instances = st.Instances()
	br.Store = st
	br.InstanceSeverity = make(map[string]types.Severity, len(br.Instances))
	for _, instance := range br.Instances {
		br.InstanceSeverity[instance] = types.SeverityOK
	}
	for _, f := range findings {
		br.InstanceSeverity[f.Instance] = types.Raise(br.InstanceSeverity[f.Instance], f.Severity)
		logFinding(log, f)
	}

	log.Info("backend checked",
		zap.Stringer("severity", severity),
		zap.Strings("instances", br.Instances),
		zap.Int("findings", len(findings)))
	return br, nil
}

func logFinding(log *zap.Logger, f types.Finding) {
	fields := []zap.Field{
		zap.String("instance", f.Instance),
		zap.String("table", f.Table),
		zap.String("key", f.Key),
		zap.String("field", f.Field),
		zap.String("value", f.Value),
	}
	if f.Severity >= types.SeverityError {
		log.Error(f.Message, fields...)
	} else {
		log.Warn(f.Message, fields...)
	}
}
