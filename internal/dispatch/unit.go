package dispatch

import (
	"fmt"
	"time"
)

// UnitStatus is a field unit's availability.
type UnitStatus string

const (
	UnitAvailable    UnitStatus = "Available"
	UnitEnRoute      UnitStatus = "En Route"
	UnitOnScene      UnitStatus = "On Scene"
	UnitOutOfService UnitStatus = "Out of Service"
)

// UnitStatuses lists every unit status in display order.
var UnitStatuses = []UnitStatus{UnitAvailable, UnitEnRoute, UnitOnScene, UnitOutOfService}

// Valid reports whether s is a known unit status.
func (s UnitStatus) Valid() bool {
	for _, known := range UnitStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseUnitStatus accepts the wire form ("En Route") or the config form
// ("en_route").
func ParseUnitStatus(s string) (UnitStatus, error) {
	switch s {
	case "Available", "available":
		return UnitAvailable, nil
	case "En Route", "en_route", "enroute":
		return UnitEnRoute, nil
	case "On Scene", "on_scene", "onscene":
		return UnitOnScene, nil
	case "Out of Service", "out_of_service", "oos":
		return UnitOutOfService, nil
	}
	return "", fmt.Errorf("unknown unit status %q", s)
}

// UnitType categorizes a unit.
type UnitType string

const (
	UnitPolice UnitType = "Police"
	UnitFire   UnitType = "Fire"
	UnitEMS    UnitType = "EMS"
)

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Unit is a field resource as served by /api/units.
type Unit struct {
	ID              string      `json:"id" validate:"required"`
	Callsign        string      `json:"callsign" validate:"required"`
	Type            UnitType    `json:"type"`
	Status          UnitStatus  `json:"status" validate:"unit_status"`
	AssignedOfficer string      `json:"assigned_officer,omitempty"`
	Location        *Coordinate `json:"location,omitempty" validate:"omitempty"`
	UpdatedAt       time.Time   `json:"updated_at,omitempty"`
}

// Validate checks the payload shape.
func (u Unit) Validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("unit %q: %w", u.ID, err)
	}
	return nil
}

// AssignmentStatus tracks a dispatch assignment's acknowledgement.
type AssignmentStatus string

const (
	AssignmentSent         AssignmentStatus = "Sent"
	AssignmentAcknowledged AssignmentStatus = "Acknowledged"
	AssignmentCompleted    AssignmentStatus = "Completed"
)

// Assignment is a dispatch of one or more units to a call, delivered over
// the push channel and listed by /api/dispatches.
type Assignment struct {
	ID         string           `json:"id" validate:"required"`
	IncidentID string           `json:"incident_id" validate:"required"`
	UnitIDs    []string         `json:"unit_ids"`
	Message    string           `json:"message,omitempty"`
	Status     AssignmentStatus `json:"status,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Validate checks the payload shape.
func (a Assignment) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("assignment %q: %w", a.ID, err)
	}
	return nil
}

// Includes reports whether unitID is among the dispatched units.
func (a Assignment) Includes(unitID string) bool {
	for _, id := range a.UnitIDs {
		if id == unitID {
			return true
		}
	}
	return false
}
