package checker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"raid-health-check/internal/backend"
	"raid-health-check/internal/backend/backendtest"
	"raid-health-check/internal/metrics"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/store"
	"raid-health-check/internal/system"
	"raid-health-check/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend serves a fixed store
type fakeBackend struct {
	name     string
	schema   policy.Schema
	policies policy.Set
	collect  func(ctx context.Context, run backend.Runner, program string) (*store.Store, error)
}

func (f *fakeBackend) Name() string          { return f.name }
func (f *fakeBackend) Programs() []string    { return []string{f.name + "-cli"} }
func (f *fakeBackend) Schema() policy.Schema { return f.schema }
func (f *fakeBackend) Policies() policy.Set  { return f.policies.Clone() }
func (f *fakeBackend) Collect(ctx context.Context, run backend.Runner, program string) (*store.Store, error) {
	return f.collect(ctx, run, program)
}

// volumes builds a backend reporting one volume state per instance
func volumes(name string, states map[string]string) *fakeBackend {
	return &fakeBackend{
		name:   name,
		schema: policy.Schema{"volumes": {"state"}},
		policies: policy.Set{"volumes": {
			policy.Equal("state", "Optimal", types.SeverityError),
		}},
		collect: func(ctx context.Context, _ backend.Runner, _ string) (*store.Store, error) {
			s := store.New()
			for instance, state := range states {
				s.Put(instance, "volumes", "v0", types.Record{"state": state})
			}
			s.Freeze()
			return s, nil
		},
	}
}

func failing(name string, err error) *fakeBackend {
	b := volumes(name, nil)
	b.collect = func(context.Context, backend.Runner, string) (*store.Store, error) { return nil, err }
	return b
}

// detector finds only the programs of the named backends
func detector(t *testing.T, found ...string) *system.Detector {
	overrides := make(map[string]string, len(found))
	for _, name := range found {
		overrides[name] = name + "-cli"
	}
	return system.New(overrides, zaptest.NewLogger(t)).
		WithSearchPaths(t.TempDir()).
		WithLookPath(func(string) (string, error) { return "", errors.New("not found") })
}

func newChecker(t *testing.T, cfg Config) *Checker {
	t.Helper()
	if cfg.Runner == nil {
		cfg.Runner = &backendtest.Runner{}
	}
	cfg.Logger = zaptest.NewLogger(t)
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func statuses(r *Result) map[string]Status {
	out := make(map[string]Status, len(r.Backends))
	for _, b := range r.Backends {
		out[b.Backend] = b.Status
	}
	return out
}

func TestRunFoldsBackends(t *testing.T) {
	c := newChecker(t, Config{
		Backends: []backend.Backend{
			volumes("alpha", map[string]string{"a0": "Optimal", "a1": "Degraded"}),
			volumes("beta", map[string]string{"b0": "Optimal"}),
			volumes("gamma", map[string]string{"g0": "Degraded"}),
		},
		Detector: detector(t, "alpha", "beta"),
	})

	r, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, map[string]Status{"alpha": StatusOK, "beta": StatusOK, "gamma": StatusAbsent}, statuses(r))
	assert.Equal(t, types.SeverityError, r.Severity)
	assert.Equal(t, 2, r.ExitCode())
	assert.Equal(t, 2, r.Checked())

	require.Len(t, r.Findings, 1)
	assert.Equal(t, "alpha", r.Findings[0].Backend)
	assert.Equal(t, "a1", r.Findings[0].Instance)

	alpha := r.Backends[0]
	assert.Equal(t, []string{"a0", "a1"}, alpha.Instances)
	assert.Equal(t, map[string]types.Severity{"a0": types.SeverityOK, "a1": types.SeverityError}, alpha.InstanceSeverity)
	assert.Equal(t, system.OriginOverride, alpha.Program.Origin)

	assert.Same(t, r, c.Last())
}

func TestRunAllHealthy(t *testing.T) {
	c := newChecker(t, Config{
		Backends: []backend.Backend{volumes("alpha", map[string]string{"a0": "Optimal"})},
		Detector: detector(t, "alpha"),
	})

	r, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.SeverityOK, r.Severity)
	assert.Equal(t, 0, r.ExitCode())
	assert.Empty(t, r.Findings)
}

func TestRunMissingTool(t *testing.T) {
	notFound := &backend.CollaboratorFault{Command: "alpha-cli", ExitCode: -1, Err: os.ErrNotExist}

	testCases := []struct {
		name     string
		explicit []string
		found    []string
		expected Status
	}{
		{name: "not installed", expected: StatusAbsent},
		{name: "vanished after detection", found: []string{"alpha"}, expected: StatusAbsent},
		{name: "requested but not installed", explicit: []string{"alpha"}, expected: StatusFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newChecker(t, Config{
				Backends: []backend.Backend{failing("alpha", notFound)},
				Explicit: tc.explicit,
				Detector: detector(t, tc.found...),
			})

			r, err := c.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, r.Backends[0].Status)
			assert.Equal(t, types.SeverityOK, r.Severity)
		})
	}
}

func TestRunNoInstances(t *testing.T) {
	for explicit, expected := range map[bool]Status{false: StatusAbsent, true: StatusFailed} {
		cfg := Config{
			Backends: []backend.Backend{volumes("alpha", nil)},
			Detector: detector(t, "alpha"),
		}
		if explicit {
			cfg.Explicit = []string{"alpha"}
		}
		r, err := newChecker(t, cfg).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expected, r.Backends[0].Status, "explicit=%v", explicit)
	}
}

func TestRunFailedSetupDoesNotRaiseSeverity(t *testing.T) {
	c := newChecker(t, Config{
		Backends: []backend.Backend{
			failing("alpha", errors.New("unexpected end of output")),
			volumes("beta", map[string]string{"b0": "Optimal"}),
		},
		Detector: detector(t, "alpha", "beta"),
	})

	r, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.SeverityOK, r.Severity)

	failed := r.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "alpha", failed[0].Backend)
	assert.ErrorContains(t, failed[0].Err, "unexpected end of output")
}

func TestRunSchemaFaultHalts(t *testing.T) {
	broken := volumes("alpha", nil)
	broken.collect = func(context.Context, backend.Runner, string) (*store.Store, error) {
		s := store.New()
		s.Put("a0", "volumes", "v0", types.Record{"status": "Optimal"})
		s.Freeze()
		return s, nil
	}
	later := volumes("beta", map[string]string{"b0": "Optimal"})
	later.collect = func(context.Context, backend.Runner, string) (*store.Store, error) {
		t.Error("backend after a halted one must not run")
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newChecker(t, Config{
		Backends: []backend.Backend{broken, later},
		Detector: detector(t, "alpha", "beta"),
		Metrics:  m,
	})

	r, err := c.Run(context.Background())
	assert.Nil(t, r)
	require.True(t, policy.IsSchemaFault(err))

	var fault *policy.SchemaFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "alpha", fault.Backend)
	assert.Equal(t, "state", fault.Field)

	assert.Nil(t, c.Last())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("halted")))
}

func TestRunCancelled(t *testing.T) {
	c := newChecker(t, Config{
		Backends: []backend.Backend{volumes("alpha", map[string]string{"a0": "Optimal"})},
		Detector: detector(t, "alpha"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOverrides(t *testing.T) {
	c := newChecker(t, Config{
		Backends: []backend.Backend{volumes("alpha", map[string]string{"a0": "Degraded"})},
		Detector: detector(t, "alpha"),
	})

	err := c.SetOverrides(policy.Overrides{"alpha": {"volumes": {policy.Equal("status", "ok", types.SeverityError)}}})
	assert.True(t, policy.IsSchemaFault(err))

	err = c.SetOverrides(policy.Overrides{"alpha": {"volumes": {
		policy.In("state", types.SeverityWarning, "Optimal", "Rebuilding"),
	}}})
	require.NoError(t, err)

	r, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.SeverityWarning, r.Severity)
}

func TestNewRejectsInvalidOverrides(t *testing.T) {
	_, err := New(Config{
		Runner:    &backendtest.Runner{},
		Backends:  []backend.Backend{volumes("alpha", nil)},
		Overrides: policy.Overrides{"hpraid": {}},
	})
	assert.Error(t, err)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestMetricsObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newChecker(t, Config{
		Backends: []backend.Backend{
			volumes("alpha", map[string]string{"a0": "Optimal", "a1": "Degraded"}),
			volumes("gamma", nil),
		},
		Detector: detector(t, "alpha"),
		Metrics:  m,
	})

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Severity))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendStatus.WithLabelValues("alpha", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendStatus.WithLabelValues("gamma", "absent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BackendSeverity.WithLabelValues("alpha")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InstanceSeverity.WithLabelValues("alpha", "a0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InstanceSeverity.WithLabelValues("alpha", "a1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Findings.WithLabelValues("alpha", "ERROR")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Findings.WithLabelValues("alpha", "WARNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("completed")))
	assert.Positive(t, testutil.ToFloat64(m.LastRun))
}

func TestStartRunsUntilCancelled(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := newChecker(t, Config{
		Backends: []backend.Backend{volumes("alpha", map[string]string{"a0": "Optimal"})},
		Detector: detector(t, "alpha"),
		Metrics:  m,
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Runs.WithLabelValues("completed")) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExporterUp))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExporterUp))
	assert.NotNil(t, c.Last())
}

func TestWatchAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	c := newChecker(t, Config{
		Backends: []backend.Backend{volumes("alpha", map[string]string{"a0": "Rebuilding"})},
		Detector: detector(t, "alpha"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, path) }()
	defer func() {
		cancel()
		<-done
	}()

	policyYAML := "alpha:\n  volumes:\n    - field: state\n      kind: one-of\n      values: [Optimal, Rebuilding]\n      severity: warning\n"
	// Rewritten until the watcher has picked it up; the tick outlasts the
	// debounce so every write is seen.
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte(policyYAML), 0o644); err != nil {
			return false
		}
		r, err := c.Run(context.Background())
		return err == nil && r.Severity == types.SeverityOK
	}, 5*time.Second, 400*time.Millisecond)
}
