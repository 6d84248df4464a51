package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/watchdesk/watchdesk/internal/alert"
	"github.com/watchdesk/watchdesk/internal/api"
	"github.com/watchdesk/watchdesk/internal/config"
	"github.com/watchdesk/watchdesk/internal/credential"
	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/flags"
	"github.com/watchdesk/watchdesk/internal/journal"
	"github.com/watchdesk/watchdesk/internal/lifecycle"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/push"
	"github.com/watchdesk/watchdesk/internal/tracing"
	"github.com/watchdesk/watchdesk/internal/unitstatus"
)

const (
	callsDriverName = "calls"
	unitsDriverName = "units"

	seedTimeout     = 5 * time.Second
	shutdownTimeout = 3 * time.Second
)

// console wires the platform client, pollers, push channel, alerting and
// journal together. The TUI and the headless watch command share it.
type console struct {
	cfg     config.Config
	flags   *flags.Registry
	creds   *credential.Source
	client  *api.Client
	tracing *tracing.Provider
	journal *journal.DB

	sequencer *alert.Sequencer
	store     *dispatch.SnapshotStore
	board     *poll.CallBoard
	calls     *poll.Driver[[]dispatch.Call]
	units     *poll.Driver[[]dispatch.Unit]
	push      *push.Listener
	lifecycle *lifecycle.Client
	unit      *unitstatus.Machine

	cancel context.CancelFunc
}

// newConsole builds every component from cfg. token, when set, is used
// instead of the token file.
func newConsole(cfg config.Config, token string) (*console, error) {
	c := &console{cfg: cfg, flags: flags.New(cfg.Flags)}

	overrides := credential.Overrides{Badge: cfg.Auth.Badge, UnitID: cfg.Auth.UnitID, Role: cfg.Auth.Role}
	var err error
	if token != "" {
		c.creds, err = credential.NewStatic(token, overrides)
	} else {
		c.creds, err = credential.NewFile(cfg.Auth.TokenFile, overrides)
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if !c.creds.Identity().Known() {
		log.Warn(log.CatAuth, "no identity yet; waiting for sign-in", "token_file", cfg.Auth.TokenFile)
	}

	c.tracing, err = tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("starting tracing: %w", err)
	}
	tracer := c.tracing.Tracer()

	c.client, err = api.New(cfg.Server.BaseURL, c.creds, api.WithTimeout(cfg.Server.Timeout))
	if err != nil {
		return nil, err
	}

	if cfg.Journal.Enabled && c.flags.Enabled(flags.FlagAlertJournal) {
		c.journal, err = journal.NewDB(cfg.Journal.Path)
		if err != nil {
			// History is optional; the console runs without it.
			log.WarnErr(log.CatJournal, "journal unavailable", err, "path", cfg.Journal.Path)
			c.journal = nil
		}
	}

	seqOpts := []alert.Option{
		alert.WithFetcher(alert.NewArtifactCache(cfg.Alerts.CacheDir, c.client, tracer)),
		alert.WithTracer(tracer),
	}
	if c.journal != nil {
		seqOpts = append(seqOpts, alert.WithRecorder(c.journal))
	}
	seqCfg := alert.DefaultConfig()
	seqCfg.PulseGap = cfg.Alerts.PulseGap
	seqCfg.AudioDelay = cfg.Alerts.AudioDelay
	seqCfg.Muted = cfg.Alerts.Muted
	c.sequencer = alert.NewSequencer(newPlayer(cfg.Alerts), seqCfg, seqOpts...)

	c.store = dispatch.NewSnapshotStore()
	c.board = poll.NewCallBoard(c.store, c.sequencer)
	c.calls = poll.New[[]dispatch.Call](poll.Config{
		Name:        callsDriverName,
		Interval:    cfg.Poll.CallsInterval,
		RetryBudget: cfg.Poll.RetryBudget,
	}, c.client.ActiveCalls, c.board.Apply, poll.WithTracer(tracer))

	c.units = poll.New[[]dispatch.Unit](poll.Config{
		Name:        unitsDriverName,
		Interval:    cfg.Poll.UnitsInterval,
		RetryBudget: cfg.Poll.RetryBudget,
	}, c.client.Units, func(_ context.Context, units []dispatch.Unit) error {
		c.unit.Sync(units, c.creds.Identity())
		return nil
	}, poll.WithTracer(tracer))
	c.unit = unitstatus.New(c.client, c.creds.Identity().UnitID, c.flags,
		unitstatus.WithTracer(tracer), unitstatus.WithRefresher(c.units))

	c.lifecycle = lifecycle.New(c.client, c.store, c.creds, c.calls, lifecycle.WithTracer(tracer))

	if cfg.Push.Enabled {
		wsURL := cfg.Server.WSURL
		if wsURL == "" {
			if wsURL, err = push.WebsocketURL(cfg.Server.BaseURL); err != nil {
				return nil, err
			}
		}
		pushOpts := []push.Option{push.WithTracer(tracer), push.WithBackfill(c.client.Dispatches)}
		if c.journal != nil {
			pushOpts = append(pushOpts, push.WithRecorder(c.journal))
		}
		c.push = push.New(push.Config{
			URL:         wsURL,
			MinDelay:    cfg.Push.MinDelay,
			MaxDelay:    cfg.Push.MaxDelay,
			RetryBudget: cfg.Push.RetryBudget,
			DedupeTTL:   cfg.Push.DedupeTTL,
			StableAfter: cfg.Push.StableAfter,
		}, c.creds, c.creds, pushOpts...)
	}
	return c, nil
}

// newPlayer picks the alert output.
func newPlayer(a config.AlertsConfig) alert.Player {
	if !a.Enabled {
		return alert.NoopPlayer{}
	}
	bell := &alert.BellPlayer{W: os.Stderr}
	switch a.Player {
	case "none":
		return alert.NoopPlayer{}
	case "bell":
		return bell
	default:
		return &alert.CommandPlayer{
			ToneCommand:  a.ToneCommand,
			ToneFile:     a.ToneFile,
			AudioCommand: a.AudioCommand,
			Fallback:     bell,
		}
	}
}

// Seed loads assignments already sent so the push channel treats their
// replay as duplicates. Failure only costs the initial queue.
func (c *console) Seed(ctx context.Context) {
	if c.push == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()
	assignments, err := c.client.Dispatches(ctx)
	if err != nil {
		log.WarnErr(log.CatPush, "seeding dispatch queue failed", err)
		return
	}
	c.push.Seed(assignments)
	log.Debug(log.CatPush, "dispatch queue seeded", "count", len(assignments))
}

// Start launches the background loops. They stop when ctx is cancelled or
// Close is called.
func (c *console) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.creds.Watch(ctx); err != nil {
		// Without the watcher a re-login needs a restart; keep going.
		log.WarnErr(log.CatAuth, "token file watch unavailable", err)
	}

	go func() { _ = c.calls.Run(ctx) }()
	go func() { _ = c.units.Run(ctx) }()
	if c.push != nil {
		go func() {
			if err := c.push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WarnErr(log.CatPush, "push listener stopped", err)
			}
		}()
	}
	return nil
}

// Close stops loops and releases resources.
func (c *console) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.calls != nil {
		c.calls.Close()
	}
	if c.units != nil {
		c.units.Close()
	}
	if c.board != nil {
		c.board.Alerts().Close()
	}
	if c.push != nil {
		c.push.Close()
	}
	if c.sequencer != nil {
		c.sequencer.Close()
	}
	if c.unit != nil {
		c.unit.Close()
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			log.WarnErr(log.CatJournal, "closing journal", err)
		}
	}
	if c.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = c.tracing.Shutdown(ctx)
	}
	if c.creds != nil {
		c.creds.Close()
	}
}
