// Package config provides configuration types and defaults for watchdesk.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/watchdesk/watchdesk/internal/log"
)

// Config holds all configuration options for watchdesk.
type Config struct {
	Server  ServerConfig    `mapstructure:"server"`
	Auth    AuthConfig      `mapstructure:"auth"`
	Poll    PollConfig      `mapstructure:"poll"`
	Alerts  AlertsConfig    `mapstructure:"alerts"`
	Push    PushConfig      `mapstructure:"push"`
	Journal JournalConfig   `mapstructure:"journal"`
	Tracing TracingConfig   `mapstructure:"tracing"`
	UI      UIConfig        `mapstructure:"ui"`
	Log     LogConfig       `mapstructure:"log"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// ServerConfig locates the dispatch platform.
type ServerConfig struct {
	BaseURL string        `mapstructure:"base_url"` // REST root, e.g. https://cad.example.org
	WSURL   string        `mapstructure:"ws_url"`   // Push root; derived from base_url when empty
	Timeout time.Duration `mapstructure:"timeout"`  // Per-request timeout
}

// AuthConfig says where the bearer credential lives. The login flow that
// writes the token file is outside watchdesk.
type AuthConfig struct {
	TokenFile string `mapstructure:"token_file"`
	// Overrides for identity claims the token does not carry.
	Badge  string `mapstructure:"badge"`
	UnitID string `mapstructure:"unit_id"`
	Role   string `mapstructure:"role"`
}

// PollConfig sets the fetch cadences.
type PollConfig struct {
	CallsInterval time.Duration `mapstructure:"calls_interval"`
	UnitsInterval time.Duration `mapstructure:"units_interval"`
	// RetryBudget is how many consecutive failures are tolerated before
	// the board is marked degraded.
	RetryBudget int `mapstructure:"retry_budget"`
}

// AlertsConfig controls the new-call attention cue.
type AlertsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Muted      bool          `mapstructure:"muted"`
	PulseGap   time.Duration `mapstructure:"pulse_gap"`
	AudioDelay time.Duration `mapstructure:"audio_delay"`
	// Player is "command" (external tool, bell fallback), "bell" or "none".
	Player       string `mapstructure:"player"`
	ToneCommand  string `mapstructure:"tone_command"`
	AudioCommand string `mapstructure:"audio_command"`
	ToneFile     string `mapstructure:"tone_file"`
	CacheDir     string `mapstructure:"cache_dir"`
}

// PushConfig controls the dispatch push channel.
type PushConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	RetryBudget int           `mapstructure:"retry_budget"`
	DedupeTTL   time.Duration `mapstructure:"dedupe_ttl"`
	StableAfter time.Duration `mapstructure:"stable_after"`
}

// JournalConfig controls the local alert and assignment history.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/watchdesk/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	ShowUnits     bool `mapstructure:"show_units"`      // Show the unit roster beside the call board
	ShowStatusBar bool `mapstructure:"show_status_bar"` // Show status bar at bottom
}

// LogConfig controls the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Dir returns ~/.config/watchdesk, or empty if the home dir is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "watchdesk")
}

func inDir(parts ...string) string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(append([]string{dir}, parts...)...)
}

// DefaultTracesFilePath returns ~/.config/watchdesk/traces/traces.jsonl.
func DefaultTracesFilePath() string { return inDir("traces", "traces.jsonl") }

// DefaultJournalPath returns ~/.config/watchdesk/journal.db.
func DefaultJournalPath() string { return inDir("journal.db") }

// DefaultTokenFile returns ~/.config/watchdesk/token.
func DefaultTokenFile() string { return inDir("token") }

// DefaultCacheDir returns the per-user cache directory for dispatch audio.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "watchdesk", "audio")
	}
	return filepath.Join(dir, "watchdesk", "audio")
}

// DefaultAudioCommand returns the stock audio tool for the platform.
func DefaultAudioCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "afplay {file}"
	case "linux":
		return "paplay {file}"
	default:
		return ""
	}
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenFile: DefaultTokenFile(),
		},
		Poll: PollConfig{
			CallsInterval: 5 * time.Second,
			UnitsInterval: 15 * time.Second,
			RetryBudget:   3,
		},
		Alerts: AlertsConfig{
			Enabled:      true,
			PulseGap:     300 * time.Millisecond,
			AudioDelay:   600 * time.Millisecond,
			Player:       "command",
			ToneCommand:  DefaultAudioCommand(),
			AudioCommand: DefaultAudioCommand(),
			CacheDir:     DefaultCacheDir(),
		},
		Push: PushConfig{
			Enabled:     true,
			MinDelay:    time.Second,
			MaxDelay:    30 * time.Second,
			RetryBudget: 3,
			DedupeTTL:   12 * time.Hour,
			StableAfter: 10 * time.Second,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    DefaultJournalPath(),
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		UI: UIConfig{
			ShowUnits:     true,
			ShowStatusBar: true,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if err := ValidateServer(cfg.Server); err != nil {
		return err
	}
	if err := ValidatePoll(cfg.Poll); err != nil {
		return err
	}
	if err := ValidateAlerts(cfg.Alerts); err != nil {
		return err
	}
	if err := ValidatePush(cfg.Push); err != nil {
		return err
	}
	if err := ValidateAuth(cfg.Auth); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateServer checks the platform location.
func ValidateServer(s ServerConfig) error {
	if s.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if err := checkURL("server.base_url", s.BaseURL, "http", "https"); err != nil {
		return err
	}
	if s.WSURL != "" {
		if err := checkURL("server.ws_url", s.WSURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if s.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative, got %v", s.Timeout)
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s or %s URL, got %q", key, schemes[0], schemes[1], raw)
}

// ValidatePoll checks the poll cadences.
func ValidatePoll(p PollConfig) error {
	if p.CallsInterval != 0 && p.CallsInterval < time.Second {
		return fmt.Errorf("poll.calls_interval must be at least 1s, got %v", p.CallsInterval)
	}
	if p.UnitsInterval != 0 && p.UnitsInterval < time.Second {
		return fmt.Errorf("poll.units_interval must be at least 1s, got %v", p.UnitsInterval)
	}
	if p.RetryBudget < 0 {
		return fmt.Errorf("poll.retry_budget must not be negative, got %d", p.RetryBudget)
	}
	return nil
}

// ValidateAlerts checks the alert cue settings.
func ValidateAlerts(a AlertsConfig) error {
	switch a.Player {
	case "", "command", "bell", "none":
	default:
		return fmt.Errorf("alerts.player must be \"command\", \"bell\", or \"none\", got %q", a.Player)
	}
	if a.PulseGap < 0 || a.AudioDelay < 0 {
		return fmt.Errorf("alerts.pulse_gap and alerts.audio_delay must not be negative")
	}
	if a.ToneFile != "" {
		if _, err := os.Stat(a.ToneFile); err != nil {
			return fmt.Errorf("alerts.tone_file %q: %w", a.ToneFile, err)
		}
	}
	return nil
}

// ValidatePush checks the reconnect policy.
func ValidatePush(p PushConfig) error {
	if p.MinDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("push.min_delay and push.max_delay must not be negative")
	}
	if p.MinDelay > 0 && p.MaxDelay > 0 && p.MaxDelay < p.MinDelay {
		return fmt.Errorf("push.max_delay (%v) must not be less than push.min_delay (%v)", p.MaxDelay, p.MinDelay)
	}
	if p.RetryBudget < 0 {
		return fmt.Errorf("push.retry_budget must not be negative, got %d", p.RetryBudget)
	}
	if p.StableAfter < 0 {
		return fmt.Errorf("push.stable_after must not be negative, got %v", p.StableAfter)
	}
	return nil
}

// ValidateAuth checks identity overrides.
func ValidateAuth(a AuthConfig) error {
	switch a.Role {
	case "", "officer", "dispatcher", "admin":
		return nil
	default:
		return fmt.Errorf("auth.role must be \"officer\", \"dispatcher\", or \"admin\", got %q", a.Role)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Watchdesk Configuration

# Dispatch platform
server:
  base_url: http://localhost:8000   # REST API root
  # ws_url: ws://localhost:8000     # Push root (default: derived from base_url)
  timeout: 10s                      # Per-request timeout

# Bearer credential written by the login helper
auth:
  # token_file: ~/.config/watchdesk/token
  # Identity overrides when the token lacks the claim:
  # badge: B-1042
  # unit_id: u-17
  # role: officer                   # officer, dispatcher, or admin

# Poll cadences
poll:
  calls_interval: 5s                # Active call board
  units_interval: 15s               # Unit roster
  retry_budget: 3                   # Failures before the board shows degraded

# New-call attention cue
alerts:
  enabled: true
  muted: false                      # Toggled with 'm' and saved here
  pulse_gap: 300ms                  # Gap between the two attention pulses
  audio_delay: 600ms                # Delay before dispatch audio starts
  player: command                   # command (bell fallback), bell, or none
  # tone_command: "paplay {file}"
  # tone_file: /usr/share/sounds/freedesktop/stereo/bell.oga
  # audio_command: "afplay {file}"
  # cache_dir: ~/.cache/watchdesk/audio

# Dispatch push channel
push:
  enabled: true
  min_delay: 1s                     # Reconnect delay floor
  max_delay: 30s                    # Reconnect delay ceiling
  retry_budget: 3                   # Failed attempts before showing degraded
  dedupe_ttl: 12h                   # How long assignment ids are remembered
  stable_after: 10s                 # Uptime before a dropped connection stops counting as a failure

# Local alert and assignment history ('watchdesk history')
journal:
  enabled: true
  # path: ~/.config/watchdesk/journal.db

# Distributed tracing
# tracing:
#   enabled: false                  # Enable/disable tracing (default: false)
#   exporter: file                  # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/watchdesk/traces/traces.jsonl
#   otlp_endpoint: localhost:4317   # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0                # Trace sampling rate 0.0-1.0 (default: 1.0)

# UI settings
ui:
  show_units: true                  # Show the unit roster beside the call board
  show_status_bar: true             # Show status bar at bottom

# Debug log (enabled with --debug or WATCHDESK_DEBUG=1)
# log:
#   path: watchdesk.log
#   level: debug

# Feature flags
# flags:
#   strict-unit-transitions: false  # Forbid Out of Service -> On Scene
#   admin-close-all: false          # Offer close-all to officers too (dispatchers and admins always see it)
#   alert-journal: true             # Record alerts and assignments
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
