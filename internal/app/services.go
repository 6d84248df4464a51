package app

import (
	"context"
	"time"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/flags"
	"github.com/watchdesk/watchdesk/internal/lifecycle"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/push"
)

// CallActions issues call transitions.
type CallActions interface {
	Attach(ctx context.Context, callID string) error
	MarkOnScene(ctx context.Context, callID string) error
	Close(ctx context.Context, callID string) error
	CloseAll(ctx context.Context, calls []dispatch.Call) []lifecycle.CloseResult
}

// UnitControl changes the console unit's status.
type UnitControl interface {
	Unit() dispatch.Unit
	Request(ctx context.Context, status dispatch.UnitStatus) error
}

// MuteControl switches alert playback.
type MuteControl interface {
	Toggle() bool
	Muted() bool
}

// QueueSource lists dispatch assignments already received.
type QueueSource interface {
	Queue() []dispatch.Assignment
}

// SnapshotReader exposes the committed call snapshot.
type SnapshotReader interface {
	Load() *dispatch.Snapshot
}

// IdentitySource says who the operator is.
type IdentitySource interface {
	Identity() dispatch.Identity
}

// Services are the collaborators the console drives. Calls is required;
// the rest may be left nil.
type Services struct {
	Snapshots SnapshotReader
	Calls     CallActions
	Unit      UnitControl
	Alerts    MuteControl
	Identity  IdentitySource
	Queue     QueueSource
	Flags     *flags.Registry

	// Refresh requests an immediate call poll. May be nil.
	Refresh func()

	// ConfigPath is where the mute toggle is persisted. Empty skips saving.
	ConfigPath string

	// ActionTimeout bounds each server round trip started from a key press.
	ActionTimeout time.Duration

	Clock func() time.Time
}

// Feeds are the brokers the console listens to. Nil brokers are skipped.
type Feeds struct {
	Calls  *pubsub.Broker[[]dispatch.Call]
	Units  *pubsub.Broker[[]dispatch.Unit]
	Alerts *pubsub.Broker[[]dispatch.AlertIntent]
	// PollStatus is keyed by poll driver name.
	PollStatus map[string]*pubsub.Broker[poll.Status]
	Notices    *pubsub.Broker[push.Notice]
	PushStatus *pubsub.Broker[push.Status]
	OwnUnit    *pubsub.Broker[dispatch.Unit]
}

// Options tune the console.
type Options struct {
	ShowUnits     bool
	ShowStatusBar bool
	Debug         bool
	// PushEnabled is false when the push channel is switched off.
	PushEnabled bool
}

func (s Services) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s Services) timeout() time.Duration {
	if s.ActionTimeout > 0 {
		return s.ActionTimeout
	}
	return 15 * time.Second
}

func (s Services) identity() dispatch.Identity {
	if s.Identity == nil {
		return dispatch.Identity{}
	}
	return s.Identity.Identity()
}

// canCloseAll reports whether the bulk close action is offered.
func (s Services) canCloseAll() bool {
	return s.identity().CanOverride() || s.Flags.Enabled(flags.FlagAdminCloseAll)
}
