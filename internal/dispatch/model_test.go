package dispatch

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCall_DecodesServerPayload(t *testing.T) {
	payload := `{
		"id": "64f0c2",
		"call_sid": "CA1234567890abcdef",
		"caller_phone": "+15551234567",
		"incident_type": "Medical",
		"location": "4th and Main",
		"description": "Fall with injury",
		"priority": 2,
		"status": "Dispatched",
		"assigned_officer": "B-1042",
		"officer_on_scene": false,
		"dispatch_audio_url": "/static/dispatch_64f0c2.mp3",
		"created_at": "2026-10-17T09:15:00Z"
	}`

	var c Call
	require.NoError(t, json.Unmarshal([]byte(payload), &c))
	require.NoError(t, c.Validate())
	require.NoError(t, c.CheckInvariants())
	require.Equal(t, CallDispatched, c.Status)
	require.Equal(t, "B-1042", c.AssignedUnit)
	require.True(t, c.Assigned())
	require.Equal(t, "abcdef", c.ShortID())
	require.Equal(t, "Medical - 4th and Main", c.Summary())
}

func TestCall_ValidateRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		call Call
	}{
		{name: "missing id", call: Call{Status: CallActive, Priority: 1}},
		{name: "unknown status", call: Call{ID: "a", Status: "Pending", Priority: 1}},
		{name: "priority too high", call: Call{ID: "a", Status: CallActive, Priority: 6}},
		{name: "priority zero", call: Call{ID: "a", Status: CallActive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.call.Validate())
		})
	}
}

func TestCall_CheckInvariants(t *testing.T) {
	require.NoError(t, Call{ID: "a", Status: CallActive}.CheckInvariants())
	require.Error(t, Call{ID: "a", Status: CallDispatched}.CheckInvariants())
	require.Error(t, Call{ID: "a", Status: CallDispatched, AssignedUnit: "B-1", OfficerOnScene: true}.CheckInvariants())
	require.NoError(t, Call{ID: "a", Status: CallOnScene, AssignedUnit: "B-1", OfficerOnScene: true}.CheckInvariants())
	require.NoError(t, Call{ID: "a", Status: CallClosed}.CheckInvariants())
}

func TestPriorityLabel(t *testing.T) {
	require.Equal(t, "CRITICAL", PriorityLabel(1))
	require.Equal(t, "INFO", PriorityLabel(5))
	require.Equal(t, "MEDIUM", PriorityLabel(42))
}

func TestParseUnitStatus(t *testing.T) {
	for _, s := range UnitStatuses {
		got, err := ParseUnitStatus(string(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	got, err := ParseUnitStatus("out_of_service")
	require.NoError(t, err)
	require.Equal(t, UnitOutOfService, got)

	_, err = ParseUnitStatus("Lunch")
	require.Error(t, err)
}

func TestUnit_Validate(t *testing.T) {
	u := Unit{ID: "u1", Callsign: "Adam-12", Type: UnitPolice, Status: UnitAvailable,
		Location: &Coordinate{Lat: 34.05, Lng: -118.24}}
	require.NoError(t, u.Validate())

	u.Status = "Busy"
	require.Error(t, u.Validate())

	u.Status = UnitEnRoute
	u.Location = &Coordinate{Lat: 123, Lng: 0}
	require.Error(t, u.Validate())
}

func TestAssignment_Includes(t *testing.T) {
	a := Assignment{ID: "d1", IncidentID: "c1", UnitIDs: []string{"u1", "u2"}}
	require.NoError(t, a.Validate())
	require.True(t, a.Includes("u2"))
	require.False(t, a.Includes("u3"))
	require.Error(t, Assignment{ID: "d1"}.Validate())
}

func TestIdentity(t *testing.T) {
	officer := Identity{UserID: "7", Badge: "B-1042", UnitID: "u1", Role: RoleOfficer}
	require.True(t, officer.Known())
	require.True(t, officer.Matches("B-1042"))
	require.True(t, officer.Matches("u1"))
	require.False(t, officer.Matches(""))
	require.False(t, officer.Matches("B-9"))
	require.False(t, officer.CanOverride())

	require.True(t, Identity{Role: RoleDispatcher}.CanOverride())
	require.True(t, Identity{Role: RoleAdmin}.CanOverride())
	require.False(t, Identity{}.Known())
}

func TestErrorTaxonomy(t *testing.T) {
	transient := fmt.Errorf("fetch calls: %w", &TransientError{Op: "GET /api/calls/active", Err: fmt.Errorf("connection refused")})
	rejected := fmt.Errorf("attach: %w", Reject("attach", "c1", "already assigned"))
	auth := &AuthError{Op: "GET /api/units", Status: 401}

	require.True(t, IsTransient(transient))
	require.False(t, IsRejected(transient))
	require.True(t, IsRejected(rejected))
	require.False(t, IsAuth(rejected))
	require.True(t, IsAuth(auth))

	require.Contains(t, rejected.Error(), "already assigned")
	require.Contains(t, auth.Error(), "re-authentication required")
	require.Contains(t, transient.Error(), "connection refused")
}
