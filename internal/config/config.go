// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/transport"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete relaychat configuration.
type Config struct {
	// Backend is the backend selected at startup ("cloud" or "local").
	Backend string `toml:"backend"`

	Cloud     CloudConfig     `toml:"cloud"`
	Local     LocalConfig     `toml:"local"`
	UI        UIConfig        `toml:"ui"`
	Context   ContextConfig   `toml:"context"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Storage   StorageConfig   `toml:"storage"`
}

// CloudConfig configures the streaming chat-completions backend.
type CloudConfig struct {
	URL    string `toml:"url"`
	Model  string `toml:"model"`
	APIKey string `toml:"api_key"`

	// SystemPrompt is prepended to every cloud request.
	SystemPrompt string `toml:"system_prompt"`

	ConnectTimeoutSecs int `toml:"connect_timeout_secs"`
	HeaderTimeoutSecs  int `toml:"header_timeout_secs"`
}

// LocalConfig configures the single-shot generation service.
type LocalConfig struct {
	URL         string `toml:"url"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// UIConfig contains terminal panel settings.
type UIConfig struct {
	// Style is a glamour standard style name or "auto".
	Style       string `toml:"style"`
	WordWrap    int    `toml:"word_wrap"`
	RenderFPS   int    `toml:"render_fps"`
	DownloadDir string `toml:"download_dir"`
}

// ContextConfig limits what references and workspace analysis may inline.
type ContextConfig struct {
	MaxFileSize      int `toml:"max_file_size"`
	WorkspaceMaxSize int `toml:"workspace_max_size"`
	WorkspaceFiles   int `toml:"workspace_max_files"`
}

// LogConfig configures the structured log file.
type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

// TelemetryConfig toggles the OpenTelemetry stdout exporters.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// StorageConfig locates the conversation database.
type StorageConfig struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration. Paths are left empty and
// resolved against ConfigDir by SetDefaults.
func Default() *Config {
	return &Config{
		Backend: backend.Cloud.String(),
		Cloud: CloudConfig{
			URL:                transport.DefaultCloudURL,
			Model:              transport.DefaultCloudModel,
			SystemPrompt:       "You are a helpful assistant.",
			ConnectTimeoutSecs: int(transport.DefaultConnectTimeout / time.Second),
			HeaderTimeoutSecs:  int(transport.DefaultHeaderTimeout / time.Second),
		},
		Local: LocalConfig{
			URL:         transport.DefaultLocalURL,
			TimeoutSecs: int(transport.DefaultLocalTimeout / time.Second),
		},
		UI: UIConfig{
			Style:     "auto",
			WordWrap:  100,
			RenderFPS: 30,
		},
		Context: ContextConfig{
			MaxFileSize:      50 * 1024,
			WorkspaceMaxSize: 256 * 1024,
			WorkspaceFiles:   200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Cloud.URL == "" {
		c.Cloud.URL = d.Cloud.URL
	}
	if c.Cloud.Model == "" {
		c.Cloud.Model = d.Cloud.Model
	}
	if c.Cloud.SystemPrompt == "" {
		c.Cloud.SystemPrompt = d.Cloud.SystemPrompt
	}
	if c.Cloud.ConnectTimeoutSecs <= 0 {
		c.Cloud.ConnectTimeoutSecs = d.Cloud.ConnectTimeoutSecs
	}
	if c.Cloud.HeaderTimeoutSecs <= 0 {
		c.Cloud.HeaderTimeoutSecs = d.Cloud.HeaderTimeoutSecs
	}
	if c.Local.URL == "" {
		c.Local.URL = d.Local.URL
	}
	if c.Local.TimeoutSecs <= 0 {
		c.Local.TimeoutSecs = d.Local.TimeoutSecs
	}
	if c.UI.Style == "" {
		c.UI.Style = d.UI.Style
	}
	if c.UI.WordWrap <= 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
	if c.UI.RenderFPS <= 0 {
		c.UI.RenderFPS = d.UI.RenderFPS
	}
	if c.UI.DownloadDir == "" {
		c.UI.DownloadDir = "."
	}
	if c.Context.MaxFileSize <= 0 {
		c.Context.MaxFileSize = d.Context.MaxFileSize
	}
	if c.Context.WorkspaceMaxSize <= 0 {
		c.Context.WorkspaceMaxSize = d.Context.WorkspaceMaxSize
	}
	if c.Context.WorkspaceFiles <= 0 {
		c.Context.WorkspaceFiles = d.Context.WorkspaceFiles
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}

	dir, err := ConfigDir()
	if err != nil {
		return
	}
	if c.Log.Path == "" {
		c.Log.Path = filepath.Join(dir, "logs", "relaychat.log")
	}
	if c.Telemetry.Dir == "" {
		c.Telemetry.Dir = filepath.Join(dir, "telemetry")
	}
	if c.Storage.Path == "" && !c.Storage.Disabled {
		c.Storage.Path = filepath.Join(dir, "history.db")
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the relaychat configuration directory path.
// RELAYCHAT_HOME overrides the default of ~/.relaychat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RELAYCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relaychat"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: the file may hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the default config file, falling back to built-in defaults
// when it does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config at path. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure config permissions", "path", path, "error", err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ","))
	}
	return nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML encodes cfg to path.
// SECURITY: Written with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# relaychat configuration file\n")
	b.WriteString("# Generated by relaychat - edit with care\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies RELAYCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RELAYCHAT_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("RELAYCHAT_CLOUD_URL"); v != "" {
		c.Cloud.URL = v
	}
	if v := os.Getenv("RELAYCHAT_MODEL"); v != "" {
		c.Cloud.Model = v
	}

	// RELAYCHAT_API_KEY wins over the provider's conventional variable.
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		c.Cloud.APIKey = v
	}
	if v := os.Getenv("RELAYCHAT_API_KEY"); v != "" {
		c.Cloud.APIKey = v
	}

	if v := os.Getenv("RELAYCHAT_LOCAL_URL"); v != "" {
		c.Local.URL = v
	}
	if v := os.Getenv("RELAYCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks field values and returns ValidateErrors if any are bad.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := backend.Parse(c.Backend); err != nil {
		errs = append(errs, ValidationError{Field: "backend", Message: err.Error()})
	}
	if err := validateURL(c.Cloud.URL); err != nil {
		errs = append(errs, ValidationError{Field: "cloud.url", Message: err.Error()})
	}
	if err := validateURL(c.Local.URL); err != nil {
		errs = append(errs, ValidationError{Field: "local.url", Message: err.Error()})
	}
	if c.UI.RenderFPS > 120 {
		errs = append(errs, ValidationError{
			Field:   "ui.render_fps",
			Message: fmt.Sprintf("must be at most 120, got %d", c.UI.RenderFPS),
		})
	}
	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must not be negative"})
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// SelectedBackend returns the configured startup backend.
func (c *Config) SelectedBackend() backend.Kind {
	k, err := backend.Parse(c.Backend)
	if err != nil {
		return backend.Cloud
	}
	return k
}

// CloudTransport returns the transport settings for the cloud backend.
func (c *Config) CloudTransport() transport.CloudConfig {
	return transport.CloudConfig{
		BaseURL:        c.Cloud.URL,
		APIKey:         c.Cloud.APIKey,
		Model:          c.Cloud.Model,
		ConnectTimeout: time.Duration(c.Cloud.ConnectTimeoutSecs) * time.Second,
		HeaderTimeout:  time.Duration(c.Cloud.HeaderTimeoutSecs) * time.Second,
	}
}

// LocalTransport returns the transport settings for the local backend.
func (c *Config) LocalTransport() transport.LocalConfig {
	return transport.LocalConfig{
		BaseURL:        c.Local.URL,
		Timeout:        time.Duration(c.Local.TimeoutSecs) * time.Second,
		ConnectTimeout: time.Duration(c.Cloud.ConnectTimeoutSecs) * time.Second,
	}
}

// Redacted returns a copy safe for display.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Cloud.APIKey != "" {
		cp.Cloud.APIKey = transport.MaskKey(cp.Cloud.APIKey)
	}
	return &cp
}
