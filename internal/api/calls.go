package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
)

// Transition names, used as op labels and URL suffixes.
const (
	OpAttach  = "attach"
	OpOnScene = "on-scene"
	OpClose   = "close"
)

// ActiveCalls fetches the live call list. Entries that fail validation are
// dropped and logged so one bad record cannot blank the board.
func (c *Client) ActiveCalls(ctx context.Context) ([]dispatch.Call, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/calls/active", op: "fetch calls", out: &raw}); err != nil {
		return nil, err
	}
	calls := make([]dispatch.Call, 0, len(raw))
	for _, entry := range raw {
		var call dispatch.Call
		if err := json.Unmarshal(entry, &call); err != nil {
			log.Warn(log.CatAPI, "skipping undecodable call", "error", err)
			continue
		}
		if err := call.Validate(); err != nil {
			log.Warn(log.CatAPI, "skipping invalid call", "error", err)
			continue
		}
		if err := call.CheckInvariants(); err != nil {
			log.Debug(log.CatCall, "call invariant violation", "call", call.ID, "problem", err)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// Attach assigns the operator's unit to an Active, unassigned call.
func (c *Client) Attach(ctx context.Context, callID string) error {
	return c.transition(ctx, OpAttach, callID)
}

// MarkOnScene records that the assigned unit arrived.
func (c *Client) MarkOnScene(ctx context.Context, callID string) error {
	return c.transition(ctx, OpOnScene, callID)
}

// CloseCall moves a call to Closed.
func (c *Client) CloseCall(ctx context.Context, callID string) error {
	return c.transition(ctx, OpClose, callID)
}

func (c *Client) transition(ctx context.Context, op, callID string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/calls/" + url.PathEscape(callID) + "/" + op,
		op:     op,
		callID: callID,
	})
}
