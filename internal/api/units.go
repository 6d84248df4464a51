package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
)

// Units fetches the unit roster, dropping invalid entries.
func (c *Client) Units(ctx context.Context) ([]dispatch.Unit, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/units", op: "fetch units", out: &raw}); err != nil {
		return nil, err
	}
	units := make([]dispatch.Unit, 0, len(raw))
	for _, entry := range raw {
		var unit dispatch.Unit
		if err := json.Unmarshal(entry, &unit); err != nil {
			log.Warn(log.CatAPI, "skipping undecodable unit", "error", err)
			continue
		}
		if err := unit.Validate(); err != nil {
			log.Warn(log.CatAPI, "skipping invalid unit", "error", err)
			continue
		}
		units = append(units, unit)
	}
	return units, nil
}

type statusBody struct {
	Status dispatch.UnitStatus `json:"status"`
}

// SetUnitStatus asks the server to move a unit to status.
func (c *Client) SetUnitStatus(ctx context.Context, unitID string, status dispatch.UnitStatus) error {
	return c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/api/units/" + url.PathEscape(unitID) + "/status",
		op:     "set unit status",
		body:   statusBody{Status: status},
	})
}

// Dispatches fetches the assignment queue used to seed the push listener.
func (c *Client) Dispatches(ctx context.Context) ([]dispatch.Assignment, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/dispatches", op: "fetch dispatches", out: &raw}); err != nil {
		return nil, err
	}
	out := make([]dispatch.Assignment, 0, len(raw))
	for _, entry := range raw {
		var a dispatch.Assignment
		if err := json.Unmarshal(entry, &a); err != nil {
			log.Warn(log.CatAPI, "skipping undecodable assignment", "error", err)
			continue
		}
		if err := a.Validate(); err != nil {
			log.Warn(log.CatAPI, "skipping invalid assignment", "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
