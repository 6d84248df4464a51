// Package lifecycle issues call transitions (attach, on scene, close) on
// the operator's behalf. Each transition is checked against the latest
// snapshot first, collapses with identical in-flight requests, and asks
// the call poller for an immediate refetch once the server accepts it.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/watchdesk/watchdesk/internal/cachemanager"
	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

const (
	// DefaultClosedRetention bounds how long a confirmed close is
	// remembered while no newer snapshot has arrived. A few call poll
	// intervals.
	DefaultClosedRetention = 30 * time.Second

	// sendTimeout caps a shared round trip once it is detached from the
	// caller that started it.
	sendTimeout = 20 * time.Second
)

// Server performs the round trips.
type Server interface {
	Attach(ctx context.Context, callID string) error
	MarkOnScene(ctx context.Context, callID string) error
	CloseCall(ctx context.Context, callID string) error
}

// SnapshotReader exposes the latest committed snapshot.
type SnapshotReader interface {
	Load() *dispatch.Snapshot
}

// IdentitySource says who the operator is.
type IdentitySource interface {
	Identity() dispatch.Identity
}

// Refresher requests an out-of-band poll cycle.
type Refresher interface {
	Refresh()
}

// CloseResult is the outcome of closing one call in a bulk close.
type CloseResult struct {
	CallID string
	Err    error
}

// Client issues lifecycle transitions.
type Client struct {
	server    Server
	snapshots SnapshotReader
	identity  IdentitySource
	refresher Refresher
	tracer    trace.Tracer
	now       func() time.Time

	group singleflight.Group

	// closed maps call id to when the server accepted its close.
	closed    cachemanager.CacheManager[string, time.Time]
	retention time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTracer records a span per transition.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithClosedRetention overrides DefaultClosedRetention.
func WithClosedRetention(d time.Duration) Option {
	return func(c *Client) { c.retention = d }
}

// New returns a transition client. refresher may be nil.
func New(server Server, snapshots SnapshotReader, identity IdentitySource, refresher Refresher, opts ...Option) *Client {
	c := &Client{
		server:    server,
		snapshots: snapshots,
		identity:  identity,
		refresher: refresher,
		now:       time.Now,
		retention: DefaultClosedRetention,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.closed = cachemanager.NewInMemoryCacheManager[string, time.Time]("closed-calls", c.retention, time.Minute)
	return c
}

// Attach assigns the operator's unit to an Active, unassigned call.
func (c *Client) Attach(ctx context.Context, callID string) error {
	return c.issue(ctx, "attach", tracing.SpanCallAttach, callID, c.checkAttach, c.server.Attach)
}

// MarkOnScene records arrival. Only the assigned unit may do this.
func (c *Client) MarkOnScene(ctx context.Context, callID string) error {
	return c.issue(ctx, "on-scene", tracing.SpanCallOnScene, callID, c.checkOnScene, c.server.MarkOnScene)
}

// Close moves a call to Closed. The assigned unit may close at any stage;
// dispatchers and admins may close any call.
func (c *Client) Close(ctx context.Context, callID string) error {
	err := c.issue(ctx, "close", tracing.SpanCallClose, callID, c.checkClose, c.server.CloseCall)
	if err == nil {
		c.closed.Set(ctx, callID, c.now(), c.retention)
	}
	return err
}

// CloseAll closes each call in order. A failure is reported for that call
// and the rest are still attempted; completed closes are not rolled back.
func (c *Client) CloseAll(ctx context.Context, calls []dispatch.Call) []CloseResult {
	ctx, span := tracing.Start(ctx, c.tracer, tracing.SpanCallCloseAll,
		attribute.Int("call.count", len(calls)))
	defer span.End()

	results := make([]CloseResult, 0, len(calls))
	failed := 0
	for _, call := range calls {
		if ctx.Err() != nil {
			results = append(results, CloseResult{CallID: call.ID, Err: ctx.Err()})
			failed++
			continue
		}
		err := c.Close(ctx, call.ID)
		if err != nil {
			failed++
		}
		results = append(results, CloseResult{CallID: call.ID, Err: err})
	}
	span.SetAttributes(attribute.Int("call.failed", failed))
	log.Info(log.CatCall, "bulk close finished", "total", len(calls), "failed", failed)
	return results
}

type precondition func(ctx context.Context, callID string, snap *dispatch.Snapshot) error

func (c *Client) issue(
	ctx context.Context,
	op, spanName, callID string,
	check precondition,
	send func(context.Context, string) error,
) error {
	ctx, span := tracing.Start(ctx, c.tracer, spanName, attribute.String(tracing.AttrCallID, callID))

	if err := check(ctx, callID, c.snapshots.Load()); err != nil {
		log.Info(log.CatCall, "transition refused locally", "op", op, "call", callID, "reason", err)
		tracing.Finish(span, err, "rejected")
		return err
	}

	// Identical concurrent requests for the same call share one round
	// trip. It runs detached so one caller giving up does not fail the
	// others.
	shared := c.group.DoChan(op+":"+callID, func() (any, error) {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		return nil, send(sendCtx, callID)
	})

	var res singleflight.Result
	select {
	case res = <-shared:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	err := res.Err
	tracing.Finish(span, err, errorKind(err))

	if err != nil {
		log.WarnErr(log.CatCall, "transition failed", err, "op", op, "call", callID)
		return fmt.Errorf("%s call %s: %w", op, callID, err)
	}
	log.Info(log.CatCall, "transition accepted", "op", op, "call", callID, "shared", res.Shared)
	if c.refresher != nil {
		c.refresher.Refresh()
	}
	return nil
}

func (c *Client) checkAttach(_ context.Context, callID string, snap *dispatch.Snapshot) error {
	call, known := snap.Get(callID)
	if !known {
		return nil
	}
	switch {
	case call.Status.Terminal():
		return dispatch.Reject("attach", callID, "call is closed")
	case call.Assigned():
		return dispatch.Reject("attach", callID, "already assigned to "+call.AssignedUnit)
	case call.Status != dispatch.CallActive:
		return dispatch.Reject("attach", callID, fmt.Sprintf("call is %s", call.Status))
	}
	return nil
}

func (c *Client) checkOnScene(_ context.Context, callID string, snap *dispatch.Snapshot) error {
	call, known := snap.Get(callID)
	if !known {
		return nil
	}
	switch {
	case call.Status.Terminal():
		return dispatch.Reject("on-scene", callID, "call is closed")
	case !c.identity.Identity().Matches(call.AssignedUnit):
		return dispatch.Reject("on-scene", callID, "call not assigned to you")
	case call.OfficerOnScene:
		return dispatch.Reject("on-scene", callID, "already on scene")
	}
	return nil
}

// checkClose trusts a remembered close only until a snapshot fetched after
// it arrives; from then on the snapshot decides, so a reopened call can be
// closed again.
func (c *Client) checkClose(ctx context.Context, callID string, snap *dispatch.Snapshot) error {
	if closedAt, ok := c.closed.Get(ctx, callID); ok {
		if !snap.TakenAt().After(closedAt) {
			return dispatch.Reject("close", callID, "already closed")
		}
		_ = c.closed.Delete(ctx, callID)
	}

	call, known := snap.Get(callID)
	if !known {
		return nil
	}
	if call.Status.Terminal() {
		return dispatch.Reject("close", callID, "already closed")
	}
	id := c.identity.Identity()
	if !id.CanOverride() && call.Assigned() && !id.Matches(call.AssignedUnit) {
		return dispatch.Reject("close", callID, "call assigned to "+call.AssignedUnit)
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case dispatch.IsAuth(err):
		return "auth"
	case dispatch.IsRejected(err):
		return "rejected"
	case dispatch.IsTransient(err):
		return "transient"
	default:
		return "unknown"
	}
}
