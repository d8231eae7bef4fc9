// Package config loads plumbtest settings from defaults, an optional YAML
// file, PLUMBTEST_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eniac111/plumbtest/internal/runner"
	"github.com/eniac111/plumbtest/pkg/hostmanager"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is used for the config file name and the environment prefix.
	AppName = "plumbtest"
	// ConfigFileEnv names an explicit config file.
	ConfigFileEnv = "PLUMBTEST_CONFIG"
)

// Config is the resolved configuration.
type Config struct {
	Inventory      string        `mapstructure:"inventory"`
	HostPattern    string        `mapstructure:"host_pattern"`
	Limit          string        `mapstructure:"limit"`
	Connection     string        `mapstructure:"connection"`
	User           string        `mapstructure:"user"`
	Become         bool          `mapstructure:"become"`
	BecomeUser     string        `mapstructure:"become_user"`
	BecomeMethod   string        `mapstructure:"become_method"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Forks          int           `mapstructure:"forks"`
	EngineVersion  string        `mapstructure:"engine_version"`
	LogLevel       string        `mapstructure:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HostPattern:  "all",
		BecomeUser:   "root",
		BecomeMethod: "sudo",
		Timeout:      10 * time.Second,
		Forks:        runner.DefaultForks,
		LogLevel:     "warn",
	}
}

// LoadOptions tell Load where to look.
type LoadOptions struct {
	// ConfigFile is used exclusively when set; it must exist.
	ConfigFile string
	// Flags are bound by key, with '-' in flag names read as '_'.
	Flags *pflag.FlagSet
}

// Load resolves the configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("inventory", defaults.Inventory)
	v.SetDefault("host_pattern", defaults.HostPattern)
	v.SetDefault("limit", defaults.Limit)
	v.SetDefault("connection", defaults.Connection)
	v.SetDefault("user", defaults.User)
	v.SetDefault("become", defaults.Become)
	v.SetDefault("become_user", defaults.BecomeUser)
	v.SetDefault("become_method", defaults.BecomeMethod)
	v.SetDefault("private_key_file", defaults.PrivateKeyFile)
	v.SetDefault("known_hosts", defaults.KnownHosts)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("forks", defaults.Forks)
	v.SetDefault("engine_version", runner.DefaultVersion)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	envPrefix := strings.ToUpper(AppName) + "_"
	if err := v.BindEnv("become", envPrefix+"BECOME", envPrefix+"SUDO"); err != nil {
		return nil, fmt.Errorf("bind become env: %w", err)
	}

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}
	// Registered after reading so a file using the alias is moved over.
	v.RegisterAlias("sudo", "become")

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Forks < 1 {
		return nil, fmt.Errorf("forks must be at least 1, got %d", cfg.Forks)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// HostManagerOptions converts the configuration for hostmanager.Open.
func (c *Config) HostManagerOptions() hostmanager.Options {
	return hostmanager.Options{
		Inventory:      c.Inventory,
		HostPattern:    c.HostPattern,
		Limit:          c.Limit,
		Connection:     c.Connection,
		User:           c.User,
		Become:         c.Become,
		BecomeUser:     c.BecomeUser,
		BecomeMethod:   c.BecomeMethod,
		PrivateKeyFile: c.PrivateKeyFile,
		KnownHosts:     c.KnownHosts,
		Timeout:        c.Timeout,
		Forks:          c.Forks,
		EngineVersion:  c.EngineVersion,
	}
}
