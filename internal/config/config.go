// Package config loads service settings from ~/.tablechat/config.yaml
// with TABLECHAT_* environment overrides, and the agent API key from a
// separate secrets file. A missing config file is scaffolded with
// defaults on first run. A missing API key is not fatal here; the
// server reports it and refuses to dispatch questions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tablechat/tablechat/internal/utils"
)

// Settings is the service configuration.
type Settings struct {
	ListenAddr       string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Model            string `mapstructure:"model" yaml:"model"`
	AgentBaseURL     string `mapstructure:"agent_base_url" yaml:"agent_base_url"`
	HTTPTimeoutSec   int    `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	PreviewRows      int    `mapstructure:"preview_rows" yaml:"preview_rows"`
	MaxUploadBytes   int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	MaxPayloadTokens int    `mapstructure:"max_payload_tokens" yaml:"max_payload_tokens"`
	SessionTTLMin    int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`

	// APIKey comes from the secrets file or TABLECHAT_API_KEY, never
	// from config.yaml, so the scaffolded config stays safe to share.
	APIKey string `mapstructure:"-" yaml:"-"`
}

// APIKeySet reports whether the agent API key was configured.
func (s *Settings) APIKeySet() bool { return s.APIKey != "" }

// HTTPTimeout returns the agent request timeout as a duration.
func (s *Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSec) * time.Second
}

// SessionTTL returns the idle session lifetime as a duration.
func (s *Settings) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMin) * time.Minute
}

// Dir returns the tablechat config directory (~/.tablechat), creating it
// if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".tablechat")
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("mkdir config dir: %w", err)
	}
	return dir, nil
}

// SecretsPath returns the expected location of the secrets file.
func SecretsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "secrets.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8741")
	v.SetDefault("model", "gemini-2.5-flash")
	v.SetDefault("agent_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("preview_rows", 10)
	v.SetDefault("max_upload_bytes", 20<<20)
	v.SetDefault("max_payload_tokens", 200000)
	v.SetDefault("session_ttl_min", 45)
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. If cfgFile is empty the
// default path is used and scaffolded with defaults when absent.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("TABLECHAT")
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if _, err := os.Stat(filepath.Join(dir, "config.yaml")); os.IsNotExist(err) {
			if err := scaffoldDefaults(filepath.Join(dir, "config.yaml")); err != nil {
				return nil, err
			}
		}
		// the default file always exists after scaffolding
		_ = v.ReadInConfig()
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := loadSecrets(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the given settings to path as YAML.
func Save(s *Settings, path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// scaffoldDefaults writes a fresh config.yaml carrying the defaults so
// users have something to edit.
func scaffoldDefaults(path string) error {
	v := viper.New()
	setDefaults(v)
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	return Save(&s, path)
}

// loadSecrets fills s.APIKey from TABLECHAT_API_KEY or the secrets
// file, in that order. A missing key is left empty for the caller to
// surface.
func loadSecrets(s *Settings) error {
	if key := os.Getenv("TABLECHAT_API_KEY"); key != "" {
		s.APIKey = key
		return nil
	}
	path, err := SecretsPath()
	if err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read secrets: %w", err)
	}
	s.APIKey = v.GetString("api_key")
	return nil
}
