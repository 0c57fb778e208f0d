package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"raid-health-check/internal/config"
	"raid-health-check/internal/logging"
)

// exitUnknown is returned when no verdict could be reached: bad usage,
// bad configuration or a policy that does not fit the extracted tables
const exitUnknown = 3

// flagKeys maps flag names to the configuration keys they override
var flagKeys = map[string]string{
	"backend":      config.KeyBackends,
	"program":      config.KeyPrograms,
	"timeout":      config.KeyTimeout,
	"policy":       config.KeyPolicyFile,
	"format":       config.KeyFormat,
	"details":      config.KeyDetails,
	"log-level":    config.KeyLogLevel,
	"log-format":   config.KeyLogFormat,
	"syslog":       config.KeyLogSyslog,
	"listen":       config.KeyListen,
	"metrics-path": config.KeyMetricsPath,
	"interval":     config.KeyInterval,
}

// app carries what the commands share
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger

	exitCode int
}

// run executes the command line and returns the process exit status
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, v: config.New()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "raid-health-check: %v\n", err)
		return exitUnknown
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raid-health-check",
		Short: "Check the health of RAID controllers, software RAID and ZFS pools",
		Long: `raid-health-check runs the inspection tool of every storage subsystem it
finds (MegaRAID, Areca, 3ware, Linux md, ZFS), parses the output and
classifies the health of each controller, array and pool.

Exit status of check: 0 OK, 1 WARNING, 2 ERROR, 3 no verdict.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: /etc/raid-health-check/config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log encoding: console, json")
	flags.Bool("syslog", false, "also log to the local syslog daemon")

	root.AddCommand(a.checkCmd(), a.serveCmd(), a.versionCmd())
	return root
}

// addBackendFlags adds the flags that pick and run backends
func addBackendFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceP("backend", "b", nil, "backends to check (default: all that are installed)")
	flags.StringToString("program", nil, "executable for a backend, e.g. megaraid=/opt/MegaCli64")
	flags.Duration("timeout", 0, "deadline for each inspection tool invocation (default 60s)")
	flags.String("policy", "", "YAML file overriding the built-in health policies")
}

// setup binds the executing command's flags, loads the configuration
// and builds the logger
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, _, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Syslog: cfg.Log.Syslog,
	})
	if err != nil {
		return err
	}
	a.log = logger.With(zap.String("service", "raid-health-check"))
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "raid-health-check %s\n", versionString())
			fmt.Fprintf(a.stdout, "  built %s by %s\n", buildTime, buildBy)
		},
	}
}

func versionString() string {
	return fmt.Sprintf("v%s (%s)", strings.TrimPrefix(version, "v"), commit)
}
