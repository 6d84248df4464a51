// Package unitstatus tracks the console's own unit and changes its status
// through the server. The local status only ever reflects what the server
// has accepted.
package unitstatus

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/flags"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

const op = "set unit status"

// Server applies status changes.
type Server interface {
	SetUnitStatus(ctx context.Context, unitID string, status dispatch.UnitStatus) error
}

// Refresher requests an out-of-band roster fetch.
type Refresher interface {
	Refresh()
}

// strictForbidden lists transitions refused when strict transitions are on.
var strictForbidden = map[dispatch.UnitStatus][]dispatch.UnitStatus{
	dispatch.UnitOutOfService: {dispatch.UnitOnScene},
}

// Machine is the console unit's status.
type Machine struct {
	server    Server
	flags     *flags.Registry
	tracer    trace.Tracer
	refresher Refresher

	// reqMu serializes requests so two key presses cannot race.
	reqMu sync.Mutex

	mu   sync.RWMutex
	unit dispatch.Unit

	broker *pubsub.Broker[dispatch.Unit]
}

// Option configures a Machine.
type Option func(*Machine)

// WithTracer records a span per request.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) { m.tracer = t }
}

// WithRefresher requests a roster fetch after each accepted change.
func WithRefresher(r Refresher) Option {
	return func(m *Machine) { m.refresher = r }
}

// New returns a machine for unitID. The status is unknown until the first
// Sync from the roster.
func New(server Server, unitID string, registry *flags.Registry, opts ...Option) *Machine {
	m := &Machine{
		server: server,
		flags:  registry,
		unit:   dispatch.Unit{ID: unitID},
		broker: pubsub.NewBroker[dispatch.Unit](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Unit returns the last server-confirmed unit state.
func (m *Machine) Unit() dispatch.Unit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unit
}

// Status returns the confirmed status, empty when unknown.
func (m *Machine) Status() dispatch.UnitStatus {
	return m.Unit().Status
}

// Broker publishes every confirmed change.
func (m *Machine) Broker() *pubsub.Broker[dispatch.Unit] {
	return m.broker
}

// Allowed reports whether from -> to may be requested.
func (m *Machine) Allowed(from, to dispatch.UnitStatus) bool {
	if !to.Valid() {
		return false
	}
	if !m.flags.Enabled(flags.FlagStrictUnitTransitions) {
		return true
	}
	for _, forbidden := range strictForbidden[from] {
		if forbidden == to {
			return false
		}
	}
	return true
}

// Request asks the server to move the unit to status. On success the local
// state follows; on failure it is untouched and the error returned.
func (m *Machine) Request(ctx context.Context, status dispatch.UnitStatus) error {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()

	current := m.Unit()
	if current.ID == "" {
		return dispatch.Reject(op, "", "no unit assigned to this console")
	}
	if !m.Allowed(current.Status, status) {
		return dispatch.Reject(op, "", fmt.Sprintf("%s -> %s not allowed", displayStatus(current.Status), status))
	}
	if current.Status == status {
		return nil
	}

	ctx, span := tracing.Start(ctx, m.tracer, tracing.SpanUnitStatus,
		attribute.String(tracing.AttrUnitID, current.ID),
		attribute.String(tracing.AttrUnitStatus, string(status)))
	err := m.server.SetUnitStatus(ctx, current.ID, status)
	tracing.Finish(span, err, "")
	if err != nil {
		log.WarnErr(log.CatUnit, "status change refused", err, "unit", current.ID, "to", status)
		return fmt.Errorf("unit %s to %s: %w", current.ID, status, err)
	}

	m.mu.Lock()
	// A Sync may have replaced the unit while the request was in flight.
	if m.unit.ID == current.ID {
		m.unit.Status = status
	}
	updated := m.unit
	m.mu.Unlock()

	log.Info(log.CatUnit, "status changed", "unit", current.ID, "from", displayStatus(current.Status), "to", status)
	m.broker.Publish(pubsub.UpdatedEvent, updated)
	if m.refresher != nil {
		m.refresher.Refresh()
	}
	return nil
}

// Sync adopts server state for this unit from a roster fetch. When the
// console has no unit id yet, the unit whose assigned officer matches the
// identity's badge is adopted.
func (m *Machine) Sync(units []dispatch.Unit, id dispatch.Identity) {
	m.mu.Lock()
	var found *dispatch.Unit
	for i := range units {
		u := units[i]
		if (m.unit.ID != "" && u.ID == m.unit.ID) ||
			(m.unit.ID == "" && id.Badge != "" && u.AssignedOfficer == id.Badge) {
			found = &u
			break
		}
	}
	if found == nil || sameUnit(*found, m.unit) {
		m.mu.Unlock()
		return
	}
	prev := m.unit
	m.unit = *found
	m.mu.Unlock()

	if prev.Status != found.Status {
		log.Debug(log.CatUnit, "status synced from roster", "unit", found.ID, "status", found.Status)
	}
	m.broker.Publish(pubsub.UpdatedEvent, *found)
}

// Close releases subscribers.
func (m *Machine) Close() {
	m.broker.Close()
}

func sameUnit(a, b dispatch.Unit) bool {
	if a.ID != b.ID || a.Status != b.Status || a.Callsign != b.Callsign ||
		a.Type != b.Type || a.AssignedOfficer != b.AssignedOfficer {
		return false
	}
	if (a.Location == nil) != (b.Location == nil) {
		return false
	}
	return a.Location == nil || *a.Location == *b.Location
}

func displayStatus(s dispatch.UnitStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}
