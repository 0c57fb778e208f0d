package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"raid-health-check/internal/backend"
	"raid-health-check/internal/checker"
	"raid-health-check/internal/metrics"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/report"
	"raid-health-check/internal/system"
)

func (a *app) checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one health check and exit with its severity",
		Long: `Run every selected backend once, print a report and exit with
0 (OK), 1 (WARNING), 2 (ERROR) or 3 when no verdict could be reached.

Examples:
  raid-health-check check
  raid-health-check check --backend megaraid --program megaraid=/opt/MegaRAID/MegaCli/MegaCli64
  raid-health-check check --format json --details`,
		Args: cobra.NoArgs,
		RunE: a.runCheck,
	}
	addBackendFlags(cmd)
	cmd.Flags().StringP("format", "o", "text", "output format: text, json")
	cmd.Flags().Bool("details", false, "include every extracted table in the report")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := a.newChecker(nil)
	if err != nil {
		return err
	}

	result, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("health check halted: %w", err)
	}

	opts := report.Options{Version: versionString(), Details: a.cfg.Details}
	switch a.cfg.Format {
	case "json":
		err = report.WriteJSON(a.stdout, result, opts)
	default:
		err = report.WriteText(a.stdout, result, opts)
	}
	if err != nil {
		return err
	}

	a.exitCode = result.ExitCode()
	return nil
}

// newChecker wires the selected backends, program discovery, the
// command runner and the policy overrides. m may be nil.
func (a *app) newChecker(m *metrics.Metrics) (*checker.Checker, error) {
	backends, err := backend.Select(backend.All(a.log), a.cfg.Backends)
	if err != nil {
		return nil, err
	}

	overrides, err := policy.LoadOverrides(a.cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	detector := system.New(a.cfg.Programs, a.log)
	candidates := make(map[string][]string, len(backends))
	for _, b := range backends {
		candidates[b.Name()] = b.Programs()
	}
	detector.Detect(candidates)

	c, err := checker.New(checker.Config{
		Backends:  backends,
		Explicit:  a.explicitBackends(backends),
		Detector:  detector,
		Runner:    backend.NewExecRunner(a.cfg.Timeout, a.log),
		Overrides: overrides,
		Metrics:   m,
		Logger:    a.log,
		Interval:  a.cfg.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid policy overrides: %w", err)
	}
	return c, nil
}

// explicitBackends names the backends the operator asked for, either by
// selecting them or by giving their program path
func (a *app) explicitBackends(selected []backend.Backend) []string {
	var names []string
	if len(a.cfg.Backends) > 0 {
		names = backend.Names(selected)
	}
	for name := range a.cfg.Programs {
		names = append(names, name)
	}
	if len(names) > 0 {
		a.log.Debug("explicitly requested backends", zap.Strings("backends", names))
	}
	return names
}
