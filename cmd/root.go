package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watchdesk/watchdesk/internal/app"
	"github.com/watchdesk/watchdesk/internal/config"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/pubsub"
)

func init() {
	// Query the terminal background before any program starts so the OSC 11
	// reply cannot land in Bubble Tea's input loop.
	_ = lipgloss.HasDarkBackground()
}

const (
	envPrefix         = "WATCHDESK"
	localConfigPath   = ".watchdesk/config.yaml"
	defaultLogFileTUI = "watchdesk-debug.log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "watchdesk",
	Short: "A terminal console for emergency dispatch",
	Long: `watchdesk shows the live call board and unit roster from the dispatch
platform, sounds an alert for every new call, and lets officers attach,
arrive and close calls and change their unit status from the keyboard.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: applyFlags,
	RunE:              runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .watchdesk/config.yaml, then ~/.config/watchdesk/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false,
		"write a debug log and enable the in-app log viewer (ctrl+x)")
	rootCmd.PersistentFlags().String("server", "",
		"dispatch platform base URL (overrides server.base_url)")
	rootCmd.PersistentFlags().Bool("no-push", false,
		"do not open the dispatch push channel")
	rootCmd.PersistentFlags().Bool("mute", false,
		"start with alerts muted")

	_ = viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	// A .env beside the working directory supplies WATCHDESK_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}

	setDefaults(config.Defaults())
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .watchdesk/config.yaml (current directory)
		// 2. ~/.config/watchdesk/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.Dir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// First run: write the commented template to the user config dir.
			if path := userConfigPath(); path != "" {
				if writeErr := config.WriteDefaultConfig(path); writeErr == nil {
					viper.SetConfigFile(path)
					_ = viper.ReadInConfig()
				}
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func setDefaults(d config.Config) {
	viper.SetDefault("server.base_url", d.Server.BaseURL)
	viper.SetDefault("server.ws_url", d.Server.WSURL)
	viper.SetDefault("server.timeout", d.Server.Timeout)
	viper.SetDefault("auth.token_file", d.Auth.TokenFile)
	viper.SetDefault("auth.badge", d.Auth.Badge)
	viper.SetDefault("auth.unit_id", d.Auth.UnitID)
	viper.SetDefault("auth.role", d.Auth.Role)
	viper.SetDefault("poll.calls_interval", d.Poll.CallsInterval)
	viper.SetDefault("poll.units_interval", d.Poll.UnitsInterval)
	viper.SetDefault("poll.retry_budget", d.Poll.RetryBudget)
	viper.SetDefault("alerts.enabled", d.Alerts.Enabled)
	viper.SetDefault("alerts.muted", d.Alerts.Muted)
	viper.SetDefault("alerts.pulse_gap", d.Alerts.PulseGap)
	viper.SetDefault("alerts.audio_delay", d.Alerts.AudioDelay)
	viper.SetDefault("alerts.player", d.Alerts.Player)
	viper.SetDefault("alerts.tone_command", d.Alerts.ToneCommand)
	viper.SetDefault("alerts.audio_command", d.Alerts.AudioCommand)
	viper.SetDefault("alerts.tone_file", d.Alerts.ToneFile)
	viper.SetDefault("alerts.cache_dir", d.Alerts.CacheDir)
	viper.SetDefault("push.enabled", d.Push.Enabled)
	viper.SetDefault("push.min_delay", d.Push.MinDelay)
	viper.SetDefault("push.max_delay", d.Push.MaxDelay)
	viper.SetDefault("push.retry_budget", d.Push.RetryBudget)
	viper.SetDefault("push.dedupe_ttl", d.Push.DedupeTTL)
	viper.SetDefault("push.stable_after", d.Push.StableAfter)
	viper.SetDefault("journal.enabled", d.Journal.Enabled)
	viper.SetDefault("journal.path", d.Journal.Path)
	viper.SetDefault("tracing.enabled", d.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", d.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", d.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	viper.SetDefault("ui.show_units", d.UI.ShowUnits)
	viper.SetDefault("ui.show_status_bar", d.UI.ShowStatusBar)
	viper.SetDefault("log.path", d.Log.Path)
	viper.SetDefault("log.level", d.Log.Level)
}

func userConfigPath() string {
	dir := config.Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// applyFlags folds command line switches into cfg and validates the result.
func applyFlags(cmd *cobra.Command, _ []string) error {
	if noPush, _ := cmd.Flags().GetBool("no-push"); noPush {
		cfg.Push.Enabled = false
	}
	if mute, _ := cmd.Flags().GetBool("mute"); mute {
		cfg.Alerts.Muted = true
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func debugEnabled(cmd *cobra.Command) bool {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		return true
	}
	return viper.GetBool("debug")
}

func runApp(cmd *cobra.Command, args []string) error {
	debug := debugEnabled(cmd)
	if debug {
		path := cfg.Log.Path
		if path == "" {
			path = defaultLogFileTUI
		}
		cleanup, err := log.InitWithTeaLog(path, "watchdesk")
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		defer cleanup()
		log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	}

	c, err := newConsole(cfg, viper.GetString("token"))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	c.Seed(ctx)
	if err := c.Start(ctx); err != nil {
		return err
	}

	feeds := app.Feeds{
		Calls:  c.calls.Updates(),
		Units:  c.units.Updates(),
		Alerts: c.board.Alerts(),
		PollStatus: map[string]*pubsub.Broker[poll.Status]{
			callsDriverName: c.calls.Statuses(),
			unitsDriverName: c.units.Statuses(),
		},
		OwnUnit: c.unit.Broker(),
	}
	services := app.Services{
		Snapshots:     c.store,
		Calls:         c.lifecycle,
		Unit:          c.unit,
		Alerts:        c.sequencer,
		Identity:      c.creds,
		Flags:         c.flags,
		Refresh:       c.calls.Refresh,
		ConfigPath:    configPath(),
		ActionTimeout: cfg.Server.Timeout,
	}
	if c.push != nil {
		feeds.Notices = c.push.Notices()
		feeds.PushStatus = c.push.Statuses()
		services.Queue = c.push
	}

	model := app.New(services, feeds, app.Options{
		ShowUnits:     cfg.UI.ShowUnits,
		ShowStatusBar: cfg.UI.ShowStatusBar,
		Debug:         debug,
		PushEnabled:   c.push != nil,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// configPath is where runtime toggles are saved.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return ""
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so background loops wind down before exit.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
