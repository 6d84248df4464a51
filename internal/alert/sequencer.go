// Package alert announces newly active calls: a two-pulse attention cue,
// then the call's dispatch recording once the cue is over. Each alert is an
// independent playback session so one slow or broken artifact never holds
// up another call.
package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

const (
	DefaultPulseGap   = 300 * time.Millisecond
	DefaultAudioDelay = 600 * time.Millisecond
	defaultPlayLimit  = 2 * time.Minute
)

// Player renders sound. Implementations must be safe for concurrent use.
type Player interface {
	// Tone plays one attention pulse.
	Tone(ctx context.Context) error
	// Play plays a local audio file.
	Play(ctx context.Context, path string) error
}

// Fetcher turns an audio reference into a playable local path.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// Recorder journals alerts.
type Recorder interface {
	RecordAlert(ctx context.Context, intent dispatch.AlertIntent, muted bool) error
}

// Timer is a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config sets the cue timing.
type Config struct {
	PulseGap   time.Duration
	AudioDelay time.Duration
	// PlayLimit bounds a single playback session.
	PlayLimit time.Duration
	Muted     bool
}

// DefaultConfig returns the standard two-pulse timing.
func DefaultConfig() Config {
	return Config{
		PulseGap:   DefaultPulseGap,
		AudioDelay: DefaultAudioDelay,
		PlayLimit:  defaultPlayLimit,
	}
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithScheduler replaces the wall clock.
func WithScheduler(s Scheduler) Option {
	return func(q *Sequencer) { q.sched = s }
}

// WithFetcher resolves audio references before playback.
func WithFetcher(f Fetcher) Option {
	return func(q *Sequencer) { q.fetcher = f }
}

// WithRecorder journals every enqueued intent.
func WithRecorder(r Recorder) Option {
	return func(q *Sequencer) { q.recorder = r }
}

// WithTracer records a span per Enqueue.
func WithTracer(t trace.Tracer) Option {
	return func(q *Sequencer) { q.tracer = t }
}

// Sequencer schedules alert playback.
type Sequencer struct {
	cfg      Config
	player   Player
	sched    Scheduler
	fetcher  Fetcher
	recorder Recorder
	tracer   trace.Tracer

	muted  atomic.Bool
	closed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]Timer
	wg      sync.WaitGroup
}

// NewSequencer returns a sequencer playing through player.
func NewSequencer(player Player, cfg Config, opts ...Option) *Sequencer {
	if cfg.PulseGap <= 0 {
		cfg.PulseGap = DefaultPulseGap
	}
	if cfg.AudioDelay <= 0 {
		cfg.AudioDelay = DefaultAudioDelay
	}
	if cfg.PlayLimit <= 0 {
		cfg.PlayLimit = defaultPlayLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Sequencer{
		cfg:     cfg,
		player:  player,
		sched:   wallClock{},
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.muted.Store(cfg.Muted)
	return q
}

// Mute silences subsequent Enqueue calls. Already scheduled playback runs.
func (q *Sequencer) Mute() { q.muted.Store(true) }

// Unmute re-enables alerts.
func (q *Sequencer) Unmute() { q.muted.Store(false) }

// Toggle flips mute and returns the new state.
func (q *Sequencer) Toggle() bool {
	for {
		old := q.muted.Load()
		if q.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Muted reports whether alerts are silenced.
func (q *Sequencer) Muted() bool { return q.muted.Load() }

// Enqueue schedules a cue (and recording, if any) for every intent. It
// never blocks on playback.
func (q *Sequencer) Enqueue(intents []dispatch.AlertIntent) {
	if len(intents) == 0 || q.closed.Load() {
		return
	}
	muted := q.muted.Load()

	_, span := tracing.Start(q.ctx, q.tracer, tracing.SpanAlertSequence,
		attribute.Int(tracing.AttrAlertCount, len(intents)),
		attribute.Bool("alert.muted", muted))
	defer span.End()

	for _, in := range intents {
		q.record(in, muted)
		if muted {
			log.Debug(log.CatAlert, "alert skipped, muted", "call", in.CallID)
			continue
		}
		q.start(in)
	}
}

func (q *Sequencer) record(in dispatch.AlertIntent, muted bool) {
	if q.recorder == nil {
		return
	}
	if err := q.recorder.RecordAlert(q.ctx, in, muted); err != nil {
		log.WarnErr(log.CatAlert, "journal alert failed", err, "call", in.CallID)
	}
}

// start schedules one intent's session: pulses at 0 and PulseGap, the
// recording at AudioDelay.
func (q *Sequencer) start(in dispatch.AlertIntent) {
	log.Info(log.CatAlert, "alerting", "call", in.CallID, "priority", in.Priority, "audio", in.HasAudio())

	q.schedule(0, func(ctx context.Context) { q.pulse(ctx, in, 1) })
	q.schedule(q.cfg.PulseGap, func(ctx context.Context) { q.pulse(ctx, in, 2) })

	if !in.HasAudio() {
		return
	}
	ready := q.prefetch(in)
	q.schedule(q.cfg.AudioDelay, func(ctx context.Context) {
		var res fetchResult
		select {
		case res = <-ready:
		case <-ctx.Done():
			return
		}
		if res.err != nil {
			log.WarnErr(log.CatAlert, "dispatch audio unavailable", res.err, "call", in.CallID, "ref", in.AudioRef)
			return
		}
		if err := q.player.Play(ctx, res.path); err != nil {
			log.WarnErr(log.CatAlert, "dispatch audio playback failed", err, "call", in.CallID)
		}
	})
}

type fetchResult struct {
	path string
	err  error
}

// prefetch resolves the recording while the cue plays.
func (q *Sequencer) prefetch(in dispatch.AlertIntent) <-chan fetchResult {
	ready := make(chan fetchResult, 1)
	if q.fetcher == nil {
		ready <- fetchResult{path: in.AudioRef}
		return ready
	}
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		ready <- fetchResult{err: context.Canceled}
		return ready
	}
	q.wg.Add(1)
	q.mu.Unlock()
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(q.ctx, q.cfg.PlayLimit)
		defer cancel()
		path, err := q.fetcher.Fetch(ctx, in.AudioRef)
		ready <- fetchResult{path: path, err: err}
	}()
	return ready
}

func (q *Sequencer) pulse(ctx context.Context, in dispatch.AlertIntent, n int) {
	if err := q.player.Tone(ctx); err != nil {
		log.WarnErr(log.CatAlert, "attention pulse failed", err, "call", in.CallID, "pulse", n)
	}
}

// schedule runs fn after d, tracking the timer so Close can cancel it.
func (q *Sequencer) schedule(d time.Duration, fn func(ctx context.Context)) {
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return
	}
	id := q.nextID
	q.nextID++
	q.wg.Add(1)
	q.pending[id] = q.sched.AfterFunc(d, func() {
		defer q.wg.Done()
		q.mu.Lock()
		delete(q.pending, id)
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(q.ctx, q.cfg.PlayLimit)
		defer cancel()
		fn(ctx)
	})
	q.mu.Unlock()
}

// Pending reports scheduled but not yet started playback steps.
func (q *Sequencer) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting work, cancels steps that have not started and
// aborts running playback. It waits for sessions to wind down.
func (q *Sequencer) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	q.mu.Lock()
	for id, t := range q.pending {
		if t.Stop() {
			q.wg.Done()
		}
		delete(q.pending, id)
	}
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
