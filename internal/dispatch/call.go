// Package dispatch holds the domain model shared by the console: calls,
// units, dispatch assignments, the call snapshot and the change detector.
package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CallStatus is the lifecycle stage of an emergency call.
type CallStatus string

const (
	CallActive     CallStatus = "Active"
	CallDispatched CallStatus = "Dispatched"
	CallOnScene    CallStatus = "On Scene"
	CallClosed     CallStatus = "Closed"
)

// Valid reports whether s is a known call status.
func (s CallStatus) Valid() bool {
	switch s {
	case CallActive, CallDispatched, CallOnScene, CallClosed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted.
func (s CallStatus) Terminal() bool {
	return s == CallClosed
}

// AlertWorthy reports whether entering s should notify the operator.
func (s CallStatus) AlertWorthy() bool {
	return s == CallActive
}

// Call is a reported emergency event as served by /api/calls/active.
type Call struct {
	ID             string     `json:"id" validate:"required"`
	CallSID        string     `json:"call_sid,omitempty"`
	Status         CallStatus `json:"status" validate:"call_status"`
	Priority       int        `json:"priority" validate:"min=1,max=5"`
	AssignedUnit   string     `json:"assigned_officer,omitempty"`
	OfficerOnScene bool       `json:"officer_on_scene"`

	CallerPhone  string `json:"caller_phone,omitempty"`
	IncidentType string `json:"incident_type,omitempty"`
	Location     string `json:"location,omitempty"`
	Description  string `json:"description,omitempty"`

	// DispatchAudioURL locates a pre-recorded announcement for this call.
	DispatchAudioURL string `json:"dispatch_audio_url,omitempty"`

	// Version is an optional server-side revision counter. Zero means unknown.
	Version int64 `json:"version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Assigned reports whether a unit has attached to the call.
func (c Call) Assigned() bool {
	return c.AssignedUnit != ""
}

// ShortID returns the last six characters of the call SID (or ID), the
// form dispatchers read out over the radio.
func (c Call) ShortID() string {
	ref := c.CallSID
	if ref == "" {
		ref = c.ID
	}
	if len(ref) <= 6 {
		return ref
	}
	return ref[len(ref)-6:]
}

// Summary is the one-line description used in notices.
func (c Call) Summary() string {
	incident := c.IncidentType
	if incident == "" {
		incident = "Emergency"
	}
	location := c.Location
	if location == "" {
		location = "Location pending"
	}
	return incident + " - " + location
}

// Validate checks the payload shape. Invalid calls are dropped from a fetch.
func (c Call) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("call %q: %w", c.ID, err)
	}
	return nil
}

// CheckInvariants reports lifecycle invariant violations. The server owns
// the rules, so violations are logged by callers rather than rejected.
func (c Call) CheckInvariants() error {
	var problems []string
	if !c.Assigned() && c.Status != CallActive && c.Status != CallClosed {
		problems = append(problems, fmt.Sprintf("unassigned call has status %q", c.Status))
	}
	if c.OfficerOnScene && c.Status != CallOnScene && c.Status != CallClosed {
		problems = append(problems, fmt.Sprintf("officer on scene but status %q", c.Status))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

// PriorityLabel names a priority level the way the board displays it.
func PriorityLabel(p int) string {
	switch p {
	case 1:
		return "CRITICAL"
	case 2:
		return "HIGH"
	case 3:
		return "MEDIUM"
	case 4:
		return "LOW"
	case 5:
		return "INFO"
	default:
		return "MEDIUM"
	}
}
