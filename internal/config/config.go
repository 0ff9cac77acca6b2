// Package config loads the optional tool configuration. Everything has a
// working default, so a config file is only needed to relocate paths or
// change logging and wait behavior.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"ccswitch/internal/logging"
	"ccswitch/internal/platform"
)

// Config is the full tool configuration.
type Config struct {
	// DataDir holds the registry, the backup blobs and migration copies.
	DataDir string `toml:"data_dir" json:"data_dir" yaml:"data_dir"`

	Claude  ClaudeConfig  `toml:"claude" json:"claude" yaml:"claude"`
	Switch  SwitchConfig  `toml:"switch" json:"switch" yaml:"switch"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// ClaudeConfig locates the managed application's live state.
type ClaudeConfig struct {
	// ConfigPath is the live config document carrying the oauthAccount
	// identity section.
	ConfigPath string `toml:"config_path" json:"config_path" yaml:"config_path"`

	// CredentialsPath is the live credential file on platforms that keep
	// credentials on disk. Ignored on darwin, where the keychain is used.
	CredentialsPath string `toml:"credentials_path" json:"credentials_path" yaml:"credentials_path"`

	// LockDir holds one <pid>.lock per running session.
	LockDir string `toml:"lock_dir" json:"lock_dir" yaml:"lock_dir"`

	// KeychainService and KeychainAccount select the darwin keychain item.
	KeychainService string `toml:"keychain_service" json:"keychain_service" yaml:"keychain_service"`
	KeychainAccount string `toml:"keychain_account" json:"keychain_account" yaml:"keychain_account"`
}

// SwitchConfig tunes switch preconditions.
type SwitchConfig struct {
	// Wait blocks a switch until every running session exits instead of
	// failing fast. Interruptible with ^C.
	Wait bool `toml:"wait" json:"wait" yaml:"wait"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
}

// Default returns the configuration used when no file exists. Path
// defaults that need the home directory degrade to empty strings and are
// caught by Validate.
func Default() *Config {
	dataDir, _ := platform.DataDir()
	configPath, _ := platform.ClaudeConfigPath()
	credPath, _ := platform.ClaudeCredentialsPath()
	lockDir, _ := platform.ClaudeLockDir()

	return &Config{
		DataDir: dataDir,
		Claude: ClaudeConfig{
			ConfigPath:      configPath,
			CredentialsPath: credPath,
			LockDir:         lockDir,
		},
		Switch: SwitchConfig{Wait: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config at path, or discovers one in the default data
// directory when path is empty. A missing file yields the defaults.
// Environment overrides are applied last, so they win over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = discover()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// discover returns the first config file present in the default data
// directory, trying extensions in a fixed order.
func discover() string {
	dataDir, err := platform.DataDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.toml", "config.json", "config.yaml", "config.yml"} {
		candidate := filepath.Join(dataDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func decode(path string, data []byte, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnvOverrides lets CCSWITCH_* variables win over file values,
// mainly for tests and one-off invocations.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CCSWITCH_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CCSWITCH_CLAUDE_CONFIG"); v != "" {
		c.Claude.ConfigPath = v
	}
	if v := os.Getenv("CCSWITCH_CLAUDE_CREDENTIALS"); v != "" {
		c.Claude.CredentialsPath = v
	}
	if v := os.Getenv("CCSWITCH_CLAUDE_LOCK_DIR"); v != "" {
		c.Claude.LockDir = v
	}
	if v := os.Getenv("CCSWITCH_KEYCHAIN_SERVICE"); v != "" {
		c.Claude.KeychainService = v
	}
	if v := os.Getenv("CCSWITCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CCSWITCH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects configurations the rest of the tool cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty and no home directory could be resolved")
	}
	if c.Claude.ConfigPath == "" {
		return fmt.Errorf("claude.config_path is empty")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
