package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/fulmenhq/leakhook/pkg/safeio"
)

// Config holds all configuration for leakhook
type Config struct {
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Hooks     HooksConfig     `mapstructure:"hooks"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Output    OutputConfig    `mapstructure:"output"`

	// File is the config file that was read, empty when only defaults applied.
	File string `mapstructure:"-"`
}

// DiscoveryConfig controls repository discovery
type DiscoveryConfig struct {
	MaxDepth     int      `mapstructure:"max_depth"`    // 0 = unbounded
	ExcludeNames []string `mapstructure:"exclude_names"` // added to the built-in set
	ExcludeGlobs []string `mapstructure:"exclude_globs"` // doublestar patterns on absolute paths
	Concurrency  int      `mapstructure:"concurrency"`   // roots walked in parallel
}

// HooksConfig controls hook reconciliation
type HooksConfig struct {
	TemplateDir string `mapstructure:"template_dir"`
	ManagerDir  string `mapstructure:"manager_dir"`
}

// ScannerConfig describes the external secret scanner
type ScannerConfig struct {
	Binary     string `mapstructure:"binary"`
	ConfigPath string `mapstructure:"config_path"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Format string `mapstructure:"format"` // text | json | yaml
}

var defaultConfig = Config{
	Discovery: DiscoveryConfig{
		MaxDepth:    0,
		Concurrency: 4,
	},
	Hooks: HooksConfig{
		ManagerDir: ".husky",
	},
	Scanner: ScannerConfig{
		Binary: "gitleaks",
	},
	Output: OutputConfig{
		Format: "text",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	return &c
}

// LoadConfig loads configuration from defaults, config files and environment.
// An explicit path must exist; otherwise leakhook.yaml is searched in the
// current directory and the leakhook config directory.
func LoadConfig(explicitPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("discovery.max_depth", defaultConfig.Discovery.MaxDepth)
	v.SetDefault("discovery.exclude_names", []string{})
	v.SetDefault("discovery.exclude_globs", []string{})
	v.SetDefault("discovery.concurrency", defaultConfig.Discovery.Concurrency)
	v.SetDefault("hooks.template_dir", "")
	v.SetDefault("hooks.manager_dir", defaultConfig.Hooks.ManagerDir)
	v.SetDefault("scanner.binary", defaultConfig.Scanner.Binary)
	v.SetDefault("scanner.config_path", "")
	v.SetDefault("output.format", defaultConfig.Output.Format)

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("leakhook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("LEAKHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	used := v.ConfigFileUsed()
	if used != "" {
		raw, err := os.ReadFile(used) // #nosec G304 -- path chosen by viper search or the user
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", used, err)
		}
		if err := ValidateConfig(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", used, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.File = used

	// The manager dir is joined onto each repository and must stay inside it.
	managerDir, err := safeio.CleanUserPath(config.Hooks.ManagerDir)
	if err != nil || managerDir == "." || filepath.IsAbs(managerDir) {
		return nil, fmt.Errorf("hooks.manager_dir %q must be relative to the repository", config.Hooks.ManagerDir)
	}
	config.Hooks.ManagerDir = filepath.FromSlash(managerDir)

	if config.Hooks.TemplateDir == "" {
		dir, err := GetTemplateDir()
		if err != nil {
			return nil, err
		}
		config.Hooks.TemplateDir = dir
	}

	return &config, nil
}

// GetHome returns the leakhook home directory
func GetHome() (string, error) {
	if home := os.Getenv("LEAKHOOK_HOME"); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".leakhook"), nil
}

// GetTemplateDir returns where the canonical hook templates live. The
// directory is not created: a missing template set is reported by the caller.
func GetTemplateDir() (string, error) {
	homeDir, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "hooks"), nil
}

// GetBinDir returns the directory holding leakhook-managed tool binaries
func GetBinDir() (string, error) {
	homeDir, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "bin"), nil
}

// GetConfigDir returns the directory searched for leakhook.yaml
func GetConfigDir() (string, error) {
	homeDir, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "config"), nil
}
