// Package resources implements MCP resource handlers for agentrelay.
//
// Resources provide read-only snapshots the host can pull into context.
// They use URI-based addressing (relay://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/agentrelay/internal/ctxbridge"
	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs.
const (
	StatusURI   = "relay://status"
	SessionsURI = "relay://sessions"
)

// Handler serves router and context bridge snapshots.
type Handler struct {
	router *router.Router
	bridge *ctxbridge.Bridge
}

// NewHandler creates a resource Handler. bridge may be nil.
func NewHandler(r *router.Router, bridge *ctxbridge.Bridge) *Handler {
	return &Handler{router: r, bridge: bridge}
}

// Status is the relay://status payload.
type Status struct {
	router.Status
	OpenContexts int `json:"open_contexts"`
}

// Snapshot builds the status payload. It is shared with the HTTP side
// listener's /status route.
func (h *Handler) Snapshot(ctx context.Context) Status {
	st := Status{Status: h.router.GetStatus(ctx)}
	if h.bridge != nil {
		st.OpenContexts = h.bridge.Len()
	}
	return st
}

// StatusResource returns the MCP resource definition for the relay status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Relay Status",
		mcp.WithResourceDescription("Open sessions, known agents, message totals and side-channel health"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the current status as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.Snapshot(ctx))
}

// SessionsResource returns the MCP resource definition for the session list.
func (h *Handler) SessionsResource() mcp.Resource {
	return mcp.NewResource(
		SessionsURI,
		"Open Sessions",
		mcp.WithResourceDescription("Every open session with its members and message count, oldest first"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSessions returns the open sessions as JSON.
func (h *Handler) HandleSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.router.ListSessions())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
