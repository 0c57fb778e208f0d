package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raid-health-check/internal/metrics"
	"raid-health-check/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Check periodically and expose the results as Prometheus metrics",
		Long: `Run the health check every interval and serve the latest result on
/metrics, /health and /health/json. A policy file given with --policy
is reloaded whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}
	addBackendFlags(cmd)
	cmd.Flags().String("listen", ":9100", "address to serve HTTP on")
	cmd.Flags().Duration("interval", 0, "time between health checks (default 30s)")
	cmd.Flags().String("metrics-path", "/metrics", "path of the metrics endpoint")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	c, err := a.newChecker(m)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Listen:      a.cfg.Listen,
		MetricsPath: a.cfg.MetricsPath,
		Interval:    a.cfg.Interval,
		Version:     versionString(),
	}, c, reg, a.log)

	a.log.Info("starting raid health exporter",
		zap.String("version", versionString()),
		zap.Duration("interval", a.cfg.Interval),
		zap.String("policy_file", a.cfg.PolicyFile))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Start(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	if a.cfg.PolicyFile != "" {
		g.Go(func() error { return c.Watch(ctx, a.cfg.PolicyFile) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("exporter stopped: %w", err)
	}
	a.log.Info("raid health exporter stopped")
	return nil
}
