// Package push keeps a websocket open to the dispatch platform and surfaces
// dispatch assignments addressed to the signed-in unit as they happen.
// Push is a latency optimisation: the poll loop stays the source of truth,
// so the listener never touches the call snapshot.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdesk/watchdesk/internal/cachemanager"
	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

const (
	DefaultMinDelay    = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultRetryBudget = 3
	DefaultDedupeTTL   = 12 * time.Hour
	DefaultStableAfter = 10 * time.Second

	defaultPongWait   = 60 * time.Second
	defaultQueueLimit = 200
	writeWait         = 10 * time.Second
	maxMessageSize    = 64 << 10
)

// Message types sent by the platform.
const (
	TypeConnected        = "connected"
	TypeDispatchReceived = "dispatch_received"
)

// Message is the push envelope.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// State is the push channel's connectivity.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDegraded     State = "degraded"
	StateAuthRequired State = "auth required"
	StateStopped      State = "stopped"
)

// Status is a connectivity transition.
type Status struct {
	State    State
	Failures int
	Err      error
	Since    time.Time
}

// Notice is a newly received assignment.
type Notice struct {
	Assignment dispatch.Assignment
	// ForMe is set when the assignment names the console's own unit.
	ForMe    bool
	Received time.Time
}

// TokenSource supplies the bearer credential.
type TokenSource interface {
	Token() (string, error)
}

// IdentitySource says who the console is.
type IdentitySource interface {
	Identity() dispatch.Identity
}

// Recorder journals assignments.
type Recorder interface {
	RecordAssignment(ctx context.Context, a dispatch.Assignment) error
}

// Config configures the listener.
type Config struct {
	// URL is the websocket root, e.g. wss://cad.example.org.
	URL         string
	MinDelay    time.Duration
	MaxDelay    time.Duration
	RetryBudget int
	DedupeTTL   time.Duration
	// StableAfter is how long a connection must stay up before its loss
	// stops counting against RetryBudget.
	StableAfter time.Duration
	PongWait    time.Duration
	QueueLimit  int
}

func (c *Config) applyDefaults() {
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = max(DefaultMaxDelay, c.MinDelay)
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = DefaultDedupeTTL
	}
	if c.StableAfter <= 0 {
		c.StableAfter = DefaultStableAfter
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = defaultQueueLimit
	}
}

// Option configures a Listener.
type Option func(*Listener)

// WithRecorder journals received assignments.
func WithRecorder(r Recorder) Option {
	return func(l *Listener) { l.recorder = r }
}

// WithTracer records a span per connection attempt.
func WithTracer(t trace.Tracer) Option {
	return func(l *Listener) { l.tracer = t }
}

// BackfillFunc fetches assignments already sent to the console.
type BackfillFunc func(ctx context.Context) ([]dispatch.Assignment, error)

// WithBackfill fetches assignments after each reconnect so ones sent while
// the channel was down still raise notices.
func WithBackfill(fn BackfillFunc) Option {
	return func(l *Listener) { l.backfill = fn }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(l *Listener) { l.dialer = d }
}

// Listener owns the push connection.
type Listener struct {
	cfg      Config
	tokens   TokenSource
	identity IdentitySource
	dialer   *websocket.Dialer
	recorder Recorder
	backfill BackfillFunc
	tracer   trace.Tracer

	seen cachemanager.CacheManager[string, struct{}]

	mu     sync.Mutex
	queue  []dispatch.Assignment
	status Status

	notices  *pubsub.Broker[Notice]
	statuses *pubsub.Broker[Status]
}

// New returns a listener. Call Run to connect.
func New(cfg Config, tokens TokenSource, identity IdentitySource, opts ...Option) *Listener {
	cfg.applyDefaults()
	l := &Listener{
		cfg:      cfg,
		tokens:   tokens,
		identity: identity,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		seen:     cachemanager.NewInMemoryCacheManager[string, struct{}]("push-dedupe", cfg.DedupeTTL, cachemanager.DefaultCleanupInterval),
		status:   Status{State: StateIdle, Since: time.Now()},
		notices:  pubsub.NewBroker[Notice](),
		statuses: pubsub.NewBroker[Status](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Notices publishes each new assignment once.
func (l *Listener) Notices() *pubsub.Broker[Notice] { return l.notices }

// Statuses publishes connectivity transitions.
func (l *Listener) Statuses() *pubsub.Broker[Status] { return l.statuses }

// Status returns the current connectivity.
func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Queue returns received assignments, oldest first.
func (l *Listener) Queue() []dispatch.Assignment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]dispatch.Assignment(nil), l.queue...)
}

// Seed loads assignments fetched over REST without raising notices, so a
// later push of the same assignment is recognised as a duplicate.
func (l *Listener) Seed(assignments []dispatch.Assignment) {
	ctx := context.Background()
	for _, a := range assignments {
		if l.seen.SetIfAbsent(ctx, a.ID, struct{}{}, l.cfg.DedupeTTL) {
			l.enqueue(a)
		}
	}
}

// Run connects and reconnects until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.cfg.MinDelay
	bo.MaxInterval = l.cfg.MaxDelay
	bo.Reset()

	failures := 0
	reconnect := false
	for {
		l.setStatus(StateConnecting, failures, nil)
		conn, err := l.connect(ctx, failures+1)
		if ctx.Err() != nil {
			l.setStatus(StateStopped, failures, nil)
			return nil
		}

		if err == nil {
			up := time.Now()
			l.setStatus(StateConnected, failures, nil)
			if reconnect {
				l.catchUp(ctx)
			}
			reconnect = true
			err = l.read(ctx, conn)
			if ctx.Err() != nil {
				l.setStatus(StateStopped, failures, nil)
				return nil
			}
			// A connection dropped right after the handshake is a failure.
			if time.Since(up) >= l.cfg.StableAfter {
				failures = 0
				bo.Reset()
			} else {
				failures++
			}
			log.WarnErr(log.CatPush, "push connection lost", err, "up", time.Since(up).Round(time.Millisecond), "failures", failures)
		} else {
			failures++
			log.WarnErr(log.CatPush, "push connect failed", err, "failures", failures)
		}

		switch {
		case dispatch.IsAuth(err):
			l.setStatus(StateAuthRequired, failures, err)
		case failures >= l.cfg.RetryBudget:
			l.setStatus(StateDegraded, failures, err)
		default:
			l.setStatus(StateReconnecting, failures, err)
		}

		delay := clampDelay(bo.NextBackOff(), l.cfg.MinDelay, l.cfg.MaxDelay)
		if dispatch.IsAuth(err) {
			delay = l.cfg.MaxDelay
		}
		log.Debug(log.CatPush, "push reconnect scheduled", "delay", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			l.setStatus(StateStopped, failures, nil)
			return nil
		case <-t.C:
		}
	}
}

// catchUp replays assignments sent while disconnected. Ones already seen
// are dropped by the dedupe cache.
func (l *Listener) catchUp(ctx context.Context) {
	if l.backfill == nil {
		return
	}
	assignments, err := l.backfill(ctx)
	if err != nil {
		log.WarnErr(log.CatPush, "dispatch backfill failed", err)
		return
	}
	for _, a := range assignments {
		if err := a.Validate(); err != nil {
			continue
		}
		l.receive(ctx, a)
	}
}

// Close releases subscribers. Call after Run returns.
func (l *Listener) Close() {
	l.notices.Close()
	l.statuses.Close()
}

func clampDelay(d, lo, hi time.Duration) time.Duration {
	if d == backoff.Stop || d > hi {
		return hi
	}
	if d < lo {
		return lo
	}
	return d
}

func (l *Listener) connect(ctx context.Context, attempt int) (*websocket.Conn, error) {
	id := l.identity.Identity()
	ctx, span := tracing.Start(ctx, l.tracer, tracing.SpanPushConnect,
		attribute.String(tracing.AttrPushUserID, id.UserID),
		attribute.Int(tracing.AttrPushAttempt, attempt))

	conn, err := l.dial(ctx, id)
	kind := ""
	if dispatch.IsAuth(err) {
		kind = "auth"
	} else if err != nil {
		kind = "transient"
	}
	tracing.Finish(span, err, kind)
	return conn, err
}

func (l *Listener) dial(ctx context.Context, id dispatch.Identity) (*websocket.Conn, error) {
	const op = "push connect"
	if !id.Known() {
		return nil, &dispatch.AuthError{Op: op, Detail: "no signed-in identity"}
	}
	token, err := l.tokens.Token()
	if err != nil {
		return nil, &dispatch.AuthError{Op: op, Detail: err.Error()}
	}
	target := strings.TrimRight(l.cfg.URL, "/") + "/ws/" + url.PathEscape(id.UserID)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := l.dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &dispatch.AuthError{Op: op, Status: resp.StatusCode}
		}
		return nil, &dispatch.TransientError{Op: op, Err: err}
	}
	log.Info(log.CatPush, "push connected", "url", target)
	return conn, nil
}

// read consumes messages until the connection fails or ctx ends.
func (l *Listener) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		_ = conn.Close()
		wg.Wait()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.cfg.PongWait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					log.Debug(log.CatPush, "ping failed", "error", err)
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return &dispatch.TransientError{Op: "push read", Err: err}
		}
		// Any traffic proves the peer is alive.
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
		l.handle(ctx, data)
	}
}

func (l *Listener) handle(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn(log.CatPush, "undecodable push message", "error", err)
		return
	}
	switch msg.Type {
	case TypeConnected:
		log.Debug(log.CatPush, "push session confirmed")
	case TypeDispatchReceived:
		var a dispatch.Assignment
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			log.Warn(log.CatPush, "undecodable assignment", "error", err)
			return
		}
		if err := a.Validate(); err != nil {
			log.Warn(log.CatPush, "invalid assignment", "error", err)
			return
		}
		l.receive(ctx, a)
	default:
		log.Debug(log.CatPush, "ignoring push message", "type", msg.Type)
	}
}

func (l *Listener) receive(ctx context.Context, a dispatch.Assignment) {
	if !l.seen.SetIfAbsent(ctx, a.ID, struct{}{}, l.cfg.DedupeTTL) {
		log.Debug(log.CatPush, "duplicate assignment", "assignment", a.ID)
		return
	}
	l.enqueue(a)

	if l.recorder != nil {
		if err := l.recorder.RecordAssignment(ctx, a); err != nil {
			log.WarnErr(log.CatPush, "journal assignment failed", err, "assignment", a.ID)
		}
	}

	id := l.identity.Identity()
	notice := Notice{Assignment: a, ForMe: id.UnitID != "" && a.Includes(id.UnitID), Received: time.Now()}
	log.Info(log.CatPush, "assignment received", "assignment", a.ID, "call", a.IncidentID, "for_me", notice.ForMe)
	l.notices.Publish(pubsub.CreatedEvent, notice)
}

func (l *Listener) enqueue(a dispatch.Assignment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, a)
	if over := len(l.queue) - l.cfg.QueueLimit; over > 0 {
		l.queue = append([]dispatch.Assignment(nil), l.queue[over:]...)
	}
}

func (l *Listener) setStatus(state State, failures int, err error) {
	l.mu.Lock()
	if l.status.State == state && l.status.Failures == failures {
		l.mu.Unlock()
		return
	}
	l.status = Status{State: state, Failures: failures, Err: err, Since: time.Now()}
	s := l.status
	l.mu.Unlock()

	l.statuses.Publish(pubsub.StatusEvent, s)
}

// WebsocketURL derives the push root from the REST base URL.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", errors.New("base url must be http(s) or ws(s)")
	}
	return u.String(), nil
}
