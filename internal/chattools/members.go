package chattools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

// AddAgentTool handles the chat_add_agent MCP tool.
type AddAgentTool struct {
	router *router.Router
}

// NewAddAgentTool creates an AddAgentTool.
func NewAddAgentTool(r *router.Router) *AddAgentTool {
	return &AddAgentTool{router: r}
}

// Definition returns the MCP tool definition for chat_add_agent.
func (t *AddAgentTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_add_agent",
		mcp.WithDescription("Add an agent to a session so it sees the conversation."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Target session"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent to add"),
		),
	)
}

// Handle processes the chat_add_agent tool call.
func (t *AddAgentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	agentID := req.GetString("agent_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if agentID == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}

	added, err := t.router.AddAgent(ctx, sessionID, agentID)
	if err != nil {
		return errorResult("failed to add agent", err), nil
	}
	if !added {
		return mcp.NewToolResultText(fmt.Sprintf("%q is already a member of %q", agentID, sessionID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%q added to %q", agentID, sessionID)), nil
}

// ─── RemoveAgentTool ────────────────────────────────────────────────────────

// RemoveAgentTool handles the chat_remove_agent MCP tool.
type RemoveAgentTool struct {
	router *router.Router
}

// NewRemoveAgentTool creates a RemoveAgentTool.
func NewRemoveAgentTool(r *router.Router) *RemoveAgentTool {
	return &RemoveAgentTool{router: r}
}

// Definition returns the MCP tool definition for chat_remove_agent.
func (t *RemoveAgentTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_remove_agent",
		mcp.WithDescription(
			"Remove an agent from a session. Its past messages stay in the session.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Target session"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent to remove"),
		),
	)
}

// Handle processes the chat_remove_agent tool call.
func (t *RemoveAgentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	agentID := req.GetString("agent_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if agentID == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}

	removed, err := t.router.RemoveAgent(ctx, sessionID, agentID)
	if err != nil {
		return errorResult("failed to remove agent", err), nil
	}
	if !removed {
		return mcp.NewToolResultText(fmt.Sprintf("%q is not a member of %q", agentID, sessionID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%q removed from %q", agentID, sessionID)), nil
}

// ─── VisibleSessionsTool ────────────────────────────────────────────────────

// VisibleSessionsTool handles the chat_visible_sessions MCP tool.
type VisibleSessionsTool struct {
	router *router.Router
}

// NewVisibleSessionsTool creates a VisibleSessionsTool.
func NewVisibleSessionsTool(r *router.Router) *VisibleSessionsTool {
	return &VisibleSessionsTool{router: r}
}

// Definition returns the MCP tool definition for chat_visible_sessions.
func (t *VisibleSessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_visible_sessions",
		mcp.WithDescription("List the sessions an agent belongs to."),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent to look up"),
		),
	)
}

// Handle processes the chat_visible_sessions tool call.
func (t *VisibleSessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}

	ids := t.router.GetVisibleSessions(agentID)
	if len(ids) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%q is not a member of any open session.", agentID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%q sees %d sessions: %s", agentID, len(ids), strings.Join(ids, ", "))), nil
}

// ─── StatusTool ─────────────────────────────────────────────────────────────

// StatusTool handles the chat_status MCP tool.
type StatusTool struct {
	router *router.Router
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(r *router.Router) *StatusTool {
	return &StatusTool{router: r}
}

// Definition returns the MCP tool definition for chat_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_status",
		mcp.WithDescription(
			"Router status as JSON: open sessions, known agents, message totals and "+
				"mirror/group-chat health.",
		),
	)
}

// Handle processes the chat_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.router.GetStatus(ctx))
}
