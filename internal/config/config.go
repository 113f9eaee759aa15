// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatstream configuration.
type Config struct {
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Provider   ProviderConfig   `toml:"provider" json:"provider"`
	Server     ServerConfig     `toml:"server" json:"server"`
	Session    SessionConfig    `toml:"session" json:"session"`
	Export     ExportConfig     `toml:"export" json:"export"`
}

// GenerationConfig holds the parameters new sessions start with.
type GenerationConfig struct {
	Model       string  `toml:"model" json:"model"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
}

// ProviderConfig describes the completion endpoint.
type ProviderConfig struct {
	// APIKey is normally supplied through OPENAI_API_KEY.
	APIKey      string `toml:"api_key" json:"api_key"`
	BaseURL     string `toml:"base_url" json:"base_url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// SessionConfig configures session lifetime and storage.
type SessionConfig struct {
	// Store is "memory" or "redis".
	Store           string `toml:"store" json:"store"`
	RedisURL        string `toml:"redis_url" json:"redis_url"`
	IdleTimeoutMins int    `toml:"idle_timeout_mins" json:"idle_timeout_mins"`
}

// ExportConfig configures transcript export.
type ExportConfig struct {
	OutputDir string `toml:"output_dir" json:"output_dir"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with all default values.
func Default() *Config {
	p := model.DefaultParams()
	return &Config{
		Generation: GenerationConfig{
			Model:       p.Model.String(),
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		},
		Provider: ProviderConfig{
			BaseURL:     "https://api.openai.com/v1/",
			TimeoutSecs: 120,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7860",
		},
		Session: SessionConfig{
			Store:           "memory",
			IdleTimeoutMins: 30,
		},
		Export: ExportConfig{
			OutputDir: ".",
		},
	}
}

// Params converts the generation section to model parameters.
// Call Validate first; unknown models fall back to the default.
func (g GenerationConfig) Params() model.Params {
	m, err := model.ParseChatModel(g.Model)
	if err != nil {
		m = model.DefaultChatModel
	}
	return model.Params{Model: m, Temperature: g.Temperature, MaxTokens: g.MaxTokens}.Clamp()
}

// Timeout returns the provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// IdleTimeout returns how long an untouched session lives.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMins) * time.Minute
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatstream configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatstream"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration from the default locations.
// Tries TOML first, then JSON, and falls back to defaults. A .env file in
// the working directory is loaded before environment overrides are applied.
//
// When a file exists but cannot be decoded, the defaults are returned along
// with the decode error.
func Load() (*Config, error) {
	LoadDotEnv()

	var loadErr error
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
		break
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file with full validation.
// Files ending in .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// the values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	warnInsecurePermissions(path)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	warnInsecurePermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read JSON: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}

// LoadDotEnv loads ./.env into the process environment. Variables already
// set are not overwritten. A missing file is not an error.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("CONFIG_DOTENV_FAILED | error=%v", err)
	}
}

// warnInsecurePermissions logs when a config file that may hold the
// credential is readable by others.
func warnInsecurePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0077 != 0 {
		log.Printf("CONFIG_PERMISSIONS | path=%s mode=%o hint=chmod 600", path, info.Mode().Perm())
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# chatstream configuration file\n")
	sb.WriteString("# Environment variables override these values.\n\n")

	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600, 0700); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidateErrors when any check fails.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := model.ParseChatModel(c.Generation.Model); err != nil {
		errs = append(errs, ValidationError{
			Field:   "generation.model",
			Message: fmt.Sprintf("unknown model %q", c.Generation.Model),
		})
	}
	if t := c.Generation.Temperature; t < model.MinTemperature || t > model.MaxTemperature {
		errs = append(errs, ValidationError{
			Field:   "generation.temperature",
			Message: fmt.Sprintf("must be between %.1f and %.1f, got %g", model.MinTemperature, model.MaxTemperature, t),
		})
	}
	if n := c.Generation.MaxTokens; n < model.MinMaxTokens || n > model.MaxMaxTokens {
		errs = append(errs, ValidationError{
			Field:   "generation.max_tokens",
			Message: fmt.Sprintf("must be between %d and %d, got %d", model.MinMaxTokens, model.MaxMaxTokens, n),
		})
	}

	if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "provider.base_url",
			Message: fmt.Sprintf("must be an absolute URL, got %q", c.Provider.BaseURL),
		})
	} else if u.Scheme != "https" && u.Scheme != "http" {
		errs = append(errs, ValidationError{
			Field:   "provider.base_url",
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
		})
	}
	if c.Provider.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "provider.timeout_secs", Message: "must be positive"})
	}

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "must not be empty"})
	}

	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			errs = append(errs, ValidationError{Field: "session.redis_url", Message: "required when store is redis"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "session.store",
			Message: fmt.Sprintf("must be memory or redis, got %q", c.Session.Store),
		})
	}
	if c.Session.IdleTimeoutMins <= 0 {
		errs = append(errs, ValidationError{Field: "session.idle_timeout_mins", Message: "must be positive"})
	}

	if c.Export.OutputDir == "" {
		errs = append(errs, ValidationError{Field: "export.output_dir", Message: "must not be empty"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OPENAI_API_KEY: provider.api_key
//   - OPENAI_BASE_URL: provider.base_url
//   - CHATSTREAM_MODEL: generation.model
//   - CHATSTREAM_TEMPERATURE: generation.temperature
//   - CHATSTREAM_MAX_TOKENS: generation.max_tokens
//   - CHATSTREAM_ADDR: server.addr
//   - CHATSTREAM_STORE: session.store
//   - CHATSTREAM_REDIS_URL: session.redis_url
//   - CHATSTREAM_EXPORT_DIR: export.output_dir
//
// Numeric values that do not parse are ignored with a log line.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Provider.APIKey = strings.TrimSpace(key)
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("CHATSTREAM_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("CHATSTREAM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Generation.Temperature = f
		} else {
			log.Printf("CONFIG_ENV_IGNORED | var=CHATSTREAM_TEMPERATURE error=%v", err)
		}
	}
	if v := os.Getenv("CHATSTREAM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Generation.MaxTokens = n
		} else {
			log.Printf("CONFIG_ENV_IGNORED | var=CHATSTREAM_MAX_TOKENS error=%v", err)
		}
	}
	if v := os.Getenv("CHATSTREAM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHATSTREAM_STORE"); v != "" {
		c.Session.Store = strings.ToLower(v)
	}
	if v := os.Getenv("CHATSTREAM_REDIS_URL"); v != "" {
		c.Session.RedisURL = v
	}
	if v := os.Getenv("CHATSTREAM_EXPORT_DIR"); v != "" {
		c.Export.OutputDir = v
	}
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON for debugging with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Provider.APIKey != "" {
		safe.Provider.APIKey = "[REDACTED]"
	}
	if u, err := url.Parse(safe.Session.RedisURL); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			safe.Session.RedisURL = u.String()
		}
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Printf("CONFIG_LOAD_FAILED | error=%v fallback=defaults", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
