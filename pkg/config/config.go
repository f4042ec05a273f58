// Package config loads solo's configuration from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/solo/pkg/llm"
	"github.com/papercomputeco/solo/pkg/prompt"
)

// Config is the complete solo configuration.
type Config struct {
	Server     ServerConfig `toml:"server" yaml:"server"`
	Engine     EngineConfig `toml:"engine" yaml:"engine"`
	Prompt     PromptConfig `toml:"prompt" yaml:"prompt"`
	Generation llm.Options  `toml:"generation" yaml:"generation"`
	Ledger     LedgerConfig `toml:"ledger" yaml:"ledger"`
	Log        LogConfig    `toml:"log" yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen string `toml:"listen" yaml:"listen"`

	// ModelID is reported in every response regardless of the model the
	// client asked for.
	ModelID string `toml:"model_id" yaml:"model_id"`
}

// EngineConfig points at the Ollama server backing the engine.
type EngineConfig struct {
	OllamaURL string `toml:"ollama_url" yaml:"ollama_url"`
	Model     string `toml:"model" yaml:"model"`

	Timeout     time.Duration `toml:"-" yaml:"-"`
	LoadTimeout time.Duration `toml:"-" yaml:"-"`

	// Raw string values for decoding
	TimeoutRaw     string `toml:"timeout" yaml:"timeout"`
	LoadTimeoutRaw string `toml:"load_timeout" yaml:"load_timeout"`
}

// PromptConfig names the two personas of the rendered conversation.
type PromptConfig struct {
	UserLabel      string `toml:"user_label" yaml:"user_label"`
	AssistantLabel string `toml:"assistant_label" yaml:"assistant_label"`
	Delimiter      string `toml:"delimiter" yaml:"delimiter"`
}

// LedgerConfig selects the session ledger backend.
type LedgerConfig struct {
	// SQLitePath enables the SQLite ledger. Empty keeps records in memory.
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Debug bool `toml:"debug" yaml:"debug"`
	JSON  bool `toml:"json" yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:  ":8000",
			ModelID: "solo",
		},
		Engine: EngineConfig{
			OllamaURL:   "http://localhost:11434",
			Model:       "llama3.2",
			Timeout:     5 * time.Minute,
			LoadTimeout: 2 * time.Minute,
		},
		Prompt: PromptConfig{
			UserLabel:      prompt.DefaultUserLabel,
			AssistantLabel: prompt.DefaultAssistantLabel,
			Delimiter:      prompt.DefaultDelimiter,
		},
	}
}

// Load reads a configuration file on top of Default. The format is chosen
// by extension: .toml, or .yaml/.yml. Environment variables written as
// ${VAR_NAME} are expanded before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or the empty
// string when it is unset.
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVar.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Engine.TimeoutRaw != "" {
		cfg.Engine.Timeout, err = time.ParseDuration(cfg.Engine.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing engine.timeout %q: %w", cfg.Engine.TimeoutRaw, err)
		}
	}

	if cfg.Engine.LoadTimeoutRaw != "" {
		cfg.Engine.LoadTimeout, err = time.ParseDuration(cfg.Engine.LoadTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing engine.load_timeout %q: %w", cfg.Engine.LoadTimeoutRaw, err)
		}
	}

	return nil
}

// Validate checks the configuration and reports the first problem found.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}

	if c.Engine.OllamaURL == "" {
		return errors.New("engine.ollama_url is required")
	}
	u, err := url.Parse(c.Engine.OllamaURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("engine.ollama_url %q is not an absolute URL", c.Engine.OllamaURL)
	}
	if c.Engine.Model == "" {
		return errors.New("engine.model is required")
	}
	if c.Engine.Timeout < 0 || c.Engine.LoadTimeout < 0 {
		return errors.New("engine timeouts must not be negative")
	}

	return c.Generation.Validate()
}
