package scanner

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// ConfigSummary describes a gitleaks configuration file.
type ConfigSummary struct {
	Path           string   `json:"path" yaml:"path"`
	Title          string   `json:"title,omitempty" yaml:"title,omitempty"`
	ExtendsDefault bool     `json:"extends_default" yaml:"extends_default"`
	Rules          int      `json:"rules" yaml:"rules"`
	RuleIDs        []string `json:"rule_ids,omitempty" yaml:"rule_ids,omitempty"`
	HasAllowlist   bool     `json:"has_allowlist" yaml:"has_allowlist"`
}

type gitleaksConfig struct {
	Title  string `toml:"title"`
	Extend struct {
		UseDefault bool   `toml:"useDefault"`
		Path       string `toml:"path"`
	} `toml:"extend"`
	Rules []struct {
		ID          string   `toml:"id"`
		Description string   `toml:"description"`
		Regex       string   `toml:"regex"`
		Path        string   `toml:"path"`
		Keywords    []string `toml:"keywords"`
	} `toml:"rules"`
	Allowlist *struct {
		Paths   []string `toml:"paths"`
		Regexes []string `toml:"regexes"`
	} `toml:"allowlist"`
	Allowlists []struct {
		Paths   []string `toml:"paths"`
		Regexes []string `toml:"regexes"`
	} `toml:"allowlists"`
}

// LoadConfigFile parses a gitleaks TOML configuration. Rules without an id or
// without any matcher, and patterns that do not compile, are errors.
func LoadConfigFile(path string) (*ConfigSummary, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-selected scanner config
	if err != nil {
		return nil, fmt.Errorf("read scanner config: %w", err)
	}

	var cfg gitleaksConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scanner config %s: %w", path, err)
	}

	sum := &ConfigSummary{
		Path:           path,
		Title:          cfg.Title,
		ExtendsDefault: cfg.Extend.UseDefault || cfg.Extend.Path != "",
		Rules:          len(cfg.Rules),
		HasAllowlist:   cfg.Allowlist != nil || len(cfg.Allowlists) > 0,
	}
	for i, r := range cfg.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("scanner config %s: rule %d has no id", path, i+1)
		}
		if r.Regex == "" && r.Path == "" {
			return nil, fmt.Errorf("scanner config %s: rule %s has neither regex nor path", path, r.ID)
		}
		for _, pattern := range []string{r.Regex, r.Path} {
			if pattern == "" {
				continue
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return nil, fmt.Errorf("scanner config %s: rule %s: %w", path, r.ID, err)
			}
		}
		sum.RuleIDs = append(sum.RuleIDs, r.ID)
	}
	if sum.Rules == 0 && !sum.ExtendsDefault {
		return nil, fmt.Errorf("scanner config %s defines no rules and does not extend the defaults", path)
	}
	return sum, nil
}
