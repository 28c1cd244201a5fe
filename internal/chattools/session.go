package chattools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

// SessionCreateTool handles the chat_session_create MCP tool.
type SessionCreateTool struct {
	router *router.Router
}

// NewSessionCreateTool creates a SessionCreateTool.
func NewSessionCreateTool(r *router.Router) *SessionCreateTool {
	return &SessionCreateTool{router: r}
}

// Definition returns the MCP tool definition for chat_session_create.
func (t *SessionCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_session_create",
		mcp.WithDescription(
			"Open a shared conversation between agents running in different chats. "+
				"Every listed agent can see the session immediately.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Unique session identifier chosen by the caller"),
		),
		mcp.WithArray("agent_ids",
			mcp.Description("Agents that join the session at creation"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("kind",
			mcp.Description("Free-form session label (default: general)"),
		),
	)
}

// Handle processes the chat_session_create tool call.
func (t *SessionCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	s, err := t.router.CreateSession(ctx, id, stringsArg(req, "agent_ids"), req.GetString("kind", ""))
	if err != nil {
		return errorResult("failed to create session", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %q created (kind: %s)\n", s.ID, s.Kind)
	if len(s.MemberAgentIDs) > 0 {
		fmt.Fprintf(&b, "Members: %s\n", strings.Join(s.MemberAgentIDs, ", "))
	} else {
		b.WriteString("Members: none yet. Agents join by sending a message or via 'chat_add_agent'.\n")
	}
	if s.ExternalRef != nil {
		fmt.Fprintf(&b, "Group chat: %s\n", *s.ExternalRef)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── SessionCloseTool ───────────────────────────────────────────────────────

// SessionCloseTool handles the chat_session_close MCP tool.
type SessionCloseTool struct {
	router *router.Router
}

// NewSessionCloseTool creates a SessionCloseTool.
func NewSessionCloseTool(r *router.Router) *SessionCloseTool {
	return &SessionCloseTool{router: r}
}

// Definition returns the MCP tool definition for chat_session_close.
func (t *SessionCloseTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_session_close",
		mcp.WithDescription(
			"Close a session. It disappears for every member and its id can be reused.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to close"),
		),
	)
}

// Handle processes the chat_session_close tool call.
func (t *SessionCloseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	if _, err := t.router.CloseSession(ctx, id); err != nil {
		return errorResult("failed to close session", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %q closed", id)), nil
}

// ─── ListSessionsTool ───────────────────────────────────────────────────────

// ListSessionsTool handles the chat_list_sessions MCP tool.
type ListSessionsTool struct {
	router *router.Router
}

// NewListSessionsTool creates a ListSessionsTool.
func NewListSessionsTool(r *router.Router) *ListSessionsTool {
	return &ListSessionsTool{router: r}
}

// Definition returns the MCP tool definition for chat_list_sessions.
func (t *ListSessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_list_sessions",
		mcp.WithDescription("List every open session, oldest first, with members and message counts."),
	)
}

// Handle processes the chat_list_sessions tool call.
func (t *ListSessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := t.router.ListSessions()
	if len(infos) == 0 {
		return mcp.NewToolResultText("No open sessions."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d open sessions:\n\n", len(infos))
	for _, s := range infos {
		chat := ""
		if s.HasExternalRef {
			chat = " | group chat"
		}
		fmt.Fprintf(&b, "- %s (%s) | %d messages | members: %s%s\n",
			s.ID, s.Kind, s.MessageCount, strings.Join(s.MemberAgentIDs, ", "), chat)
	}
	return mcp.NewToolResultText(b.String()), nil
}
