package poll

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

// Alerter receives newly alert-worthy calls.
type Alerter interface {
	Enqueue(intents []dispatch.AlertIntent)
}

// CallBoard turns fetched call lists into committed snapshots. It is the
// only writer of its SnapshotStore.
type CallBoard struct {
	store   *dispatch.SnapshotStore
	alerter Alerter
	alerts  *pubsub.Broker[[]dispatch.AlertIntent]
	now     func() time.Time
}

// NewCallBoard returns a board committing into store. alerter may be nil.
func NewCallBoard(store *dispatch.SnapshotStore, alerter Alerter) *CallBoard {
	return &CallBoard{
		store:   store,
		alerter: alerter,
		alerts:  pubsub.NewBroker[[]dispatch.AlertIntent](),
		now:     time.Now,
	}
}

// Alerts publishes each non-empty batch of detected alerts.
func (b *CallBoard) Alerts() *pubsub.Broker[[]dispatch.AlertIntent] { return b.alerts }

// Apply diffs calls against the committed snapshot, hands new alerts to the
// alerter and then commits calls as the new snapshot.
func (b *CallBoard) Apply(ctx context.Context, calls []dispatch.Call) error {
	prev := b.store.Load()
	intents := dispatch.Detect(prev, calls)
	if len(intents) > 0 {
		trace.SpanFromContext(ctx).AddEvent(tracing.EventAlertsDetected,
			trace.WithAttributes(attribute.Int(tracing.AttrAlertCount, len(intents))))
		log.Info(log.CatPoll, "new active calls", "count", len(intents))
		if b.alerter != nil {
			b.alerter.Enqueue(intents)
		}
		b.alerts.Publish(pubsub.CreatedEvent, intents)
	}
	b.store.Commit(dispatch.NewSnapshot(calls, b.now()))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrPollCount, len(calls)))
	return nil
}

// Store returns the board's snapshot store.
func (b *CallBoard) Store() *dispatch.SnapshotStore { return b.store }
