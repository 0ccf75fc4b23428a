// Package config loads origamid settings from defaults, an optional config
// file and ORIGAMI_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ORIGAMI_DOCKER_CALL_TIMEOUT.
const EnvPrefix = "ORIGAMI"

// Config is the complete origamid configuration.
type Config struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	DataDir      string `mapstructure:"data_dir"`
	DemosDir     string `mapstructure:"demos_dir"`
	LogsDir      string `mapstructure:"logs_dir"`
	DatabasePath string `mapstructure:"database_path"`
	ProxyDomain  string `mapstructure:"proxy_domain"`
	ProxyTarget  string `mapstructure:"proxy_target"`

	Log       LogConfig       `mapstructure:"log"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Demo      DemoConfig      `mapstructure:"demo"`
	Ports     PortsConfig     `mapstructure:"ports"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json or logfmt
}

type DockerConfig struct {
	Host         string        `mapstructure:"host"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	BuildTimeout time.Duration `mapstructure:"build_timeout"`
}

type DemoConfig struct {
	// Port is the port demos listen on inside their container.
	Port        int           `mapstructure:"port"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type PortsConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

type ReconcileConfig struct {
	// Interval between drift sweeps; zero disables the loop.
	Interval    time.Duration `mapstructure:"interval"`
	Parallelism int           `mapstructure:"parallelism"`
}

func setDefaults(v *viper.Viper, home string) {
	dataDir := filepath.Join(home, ".origami")

	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("demos_dir", "")
	v.SetDefault("logs_dir", "")
	v.SetDefault("database_path", "")
	v.SetDefault("proxy_domain", "localhost")
	v.SetDefault("proxy_target", "127.0.0.1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.call_timeout", 30*time.Second)
	v.SetDefault("docker.build_timeout", 15*time.Minute)
	v.SetDefault("demo.port", 9000)
	v.SetDefault("demo.stop_timeout", 10*time.Second)
	v.SetDefault("ports.min", 9001)
	v.SetDefault("ports.max", 9999)
	v.SetDefault("reconcile.interval", time.Minute)
	v.SetDefault("reconcile.parallelism", 4)
}

// Load reads the configuration. An empty path loads defaults and environment
// overrides only.
func Load(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	v := viper.New()
	setDefaults(v, home)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths fills directories left empty from DataDir.
func (c *Config) resolvePaths() {
	if c.DemosDir == "" {
		c.DemosDir = filepath.Join(c.DataDir, "demos")
	}
	if c.LogsDir == "" {
		c.LogsDir = filepath.Join(c.DataDir, "static", "deploy_logs")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "origami.db")
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Ports.Min <= 0 || c.Ports.Max > 65535 || c.Ports.Min > c.Ports.Max {
		errs = append(errs, fmt.Errorf("ports: invalid range %d-%d", c.Ports.Min, c.Ports.Max))
	}
	if c.Demo.Port <= 0 || c.Demo.Port > 65535 {
		errs = append(errs, fmt.Errorf("demo.port: %d out of range", c.Demo.Port))
	}
	if c.Docker.CallTimeout <= 0 {
		errs = append(errs, errors.New("docker.call_timeout must be positive"))
	}
	if c.Docker.BuildTimeout <= 0 {
		errs = append(errs, errors.New("docker.build_timeout must be positive"))
	}
	if c.Demo.StopTimeout < time.Second {
		errs = append(errs, errors.New("demo.stop_timeout must be at least 1s"))
	}
	if c.ProxyDomain == "" {
		errs = append(errs, errors.New("proxy_domain must not be empty"))
	}
	if c.Reconcile.Interval < 0 {
		errs = append(errs, errors.New("reconcile.interval must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
