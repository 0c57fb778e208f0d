package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. RAIDCHECK_TIMEOUT
const EnvPrefix = "RAIDCHECK"

// Configuration keys
const (
	KeyBackends    = "backends"
	KeyPrograms    = "programs"
	KeyTimeout     = "timeout"
	KeyPolicyFile  = "policy_file"
	KeyFormat      = "format"
	KeyDetails     = "details"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
	KeyLogSyslog   = "log.syslog"
	KeyListen      = "listen"
	KeyMetricsPath = "metrics_path"
	KeyInterval    = "interval"
)

// legacyEnv keeps the environment names earlier exporter deployments use
var legacyEnv = map[string]string{
	KeyListen:      "PORT",
	KeyMetricsPath: "METRICS_PATH",
	KeyInterval:    "COLLECT_INTERVAL",
	KeyLogLevel:    "LOG_LEVEL",
}

// DefaultPaths are searched for config.yaml when no file is given
var DefaultPaths = []string{"/etc/raid-health-check", "."}

// Config holds the application configuration
type Config struct {
	// Backends limits the run to the named backends; empty means all
	Backends []string
	// Programs maps backend names to executable paths
	Programs   map[string]string
	Timeout    time.Duration
	PolicyFile string
	Format     string
	Details    bool

	Log LogConfig

	Listen      string
	MetricsPath string
	Interval    time.Duration
}

// LogConfig selects the logger settings
type LogConfig struct {
	Level  string
	Format string
	Syslog bool
}

// New creates a viper instance carrying the defaults and environment
// bindings. Flags are bound onto it by the caller.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyTimeout, "60s")
	v.SetDefault(KeyFormat, "text")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyListen, ":9100")
	v.SetDefault(KeyMetricsPath, "/metrics")
	v.SetDefault(KeyInterval, "30s")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// The prefixed name wins over the legacy one.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}
	return v
}

// Load reads path, or config.yaml from DefaultPaths when path is empty,
// and decodes the merged configuration. A missing default file is not
// an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range DefaultPaths {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Backends:   splitList(v.GetStringSlice(KeyBackends)),
		Programs:   v.GetStringMapString(KeyPrograms),
		PolicyFile: v.GetString(KeyPolicyFile),
		Format:     strings.ToLower(v.GetString(KeyFormat)),
		Details:    v.GetBool(KeyDetails),
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
			Syslog: v.GetBool(KeyLogSyslog),
		},
		Listen:      listenAddr(v.GetString(KeyListen)),
		MetricsPath: v.GetString(KeyMetricsPath),
	}

	var err error
	if cfg.Timeout, err = duration(v, KeyTimeout); err != nil {
		return nil, err
	}
	if cfg.Interval, err = duration(v, KeyInterval); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be repaired by defaults
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q", c.Format)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyTimeout, c.Timeout)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyInterval, c.Interval)
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("%s must start with /, got %q", KeyMetricsPath, c.MetricsPath)
	}
	if c.PolicyFile != "" {
		if _, err := os.Stat(c.PolicyFile); err != nil {
			return fmt.Errorf("%s: %w", KeyPolicyFile, err)
		}
	}
	return nil
}

// duration accepts Go duration syntax or a plain number of seconds
func duration(v *viper.Viper, key string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid %s %q", key, value)
}

// listenAddr turns a bare port into a listen address
func listenAddr(value string) string {
	if value != "" && !strings.Contains(value, ":") {
		return ":" + value
	}
	return value
}

// splitList accepts comma or space separated items as well as a YAML
// list
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	return out
}
