package chattools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

const snippetLength = 300

// formatMessages renders messages oldest first, one block per message.
func formatMessages(b *strings.Builder, msgs []router.Message, withSession bool) {
	for i, m := range msgs {
		where := ""
		if withSession {
			where = fmt.Sprintf(" in %s", m.SessionID)
		}
		fmt.Fprintf(b, "[%d] %s%s (%s) at %s\n    %s\n",
			i+1, m.AgentID, where, m.Kind, m.CreatedAt.Format(time.RFC3339), snippet(m.Body))
	}
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLength {
		return s
	}
	return string(r[:snippetLength]) + "..."
}

// SendTool handles the chat_send MCP tool.
type SendTool struct {
	router *router.Router
}

// NewSendTool creates a SendTool.
func NewSendTool(r *router.Router) *SendTool {
	return &SendTool{router: r}
}

// Definition returns the MCP tool definition for chat_send.
func (t *SendTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_send",
		mcp.WithDescription(
			"Post a message to a session. A sender that is not a member joins the session first. "+
				"The message is appended even if mirroring or the group chat is down.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Target session"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Author of the message"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Message text"),
		),
		mcp.WithString("kind",
			mcp.Description("Message label (default: text)"),
		),
		mcp.WithObject("extra",
			mcp.Description("Free-form metadata stored with the message"),
		),
	)
}

// Handle processes the chat_send tool call.
func (t *SendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	agentID := req.GetString("agent_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if agentID == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}

	m, err := t.router.SendMessage(ctx, sessionID, agentID, req.GetString("body", ""), req.GetString("kind", ""), objectArg(req, "extra"))
	if err != nil {
		return errorResult("failed to send message", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Message %s sent to %q by %q", m.ID, m.SessionID, m.AgentID)
	if m.MirrorRef != nil {
		fmt.Fprintf(&b, "\nMirrored: %s", *m.MirrorRef)
	}
	if m.ForwardRef != nil {
		fmt.Fprintf(&b, "\nForwarded: %s", *m.ForwardRef)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── MessagesTool ───────────────────────────────────────────────────────────

// MessagesTool handles the chat_messages MCP tool.
type MessagesTool struct {
	router *router.Router
}

// NewMessagesTool creates a MessagesTool.
func NewMessagesTool(r *router.Router) *MessagesTool {
	return &MessagesTool{router: r}
}

// Definition returns the MCP tool definition for chat_messages.
func (t *MessagesTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_messages",
		mcp.WithDescription("Read the most recent messages of a session, oldest first."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to read"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max messages (default: %d)", router.DefaultLimit)),
		),
	)
}

// Handle processes the chat_messages tool call.
func (t *MessagesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	msgs, err := t.router.GetSessionMessages(sessionID, req.GetInt("limit", router.DefaultLimit))
	if err != nil {
		return errorResult("failed to read messages", err), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Session %q has no messages yet.", sessionID)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d messages in %q:\n\n", len(msgs), sessionID)
	formatMessages(&b, msgs, false)
	return mcp.NewToolResultText(b.String()), nil
}

// ─── AgentConversationsTool ─────────────────────────────────────────────────

// AgentConversationsTool handles the chat_agent_conversations MCP tool.
type AgentConversationsTool struct {
	router *router.Router
}

// NewAgentConversationsTool creates an AgentConversationsTool.
func NewAgentConversationsTool(r *router.Router) *AgentConversationsTool {
	return &AgentConversationsTool{router: r}
}

// Definition returns the MCP tool definition for chat_agent_conversations.
func (t *AgentConversationsTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_agent_conversations",
		mcp.WithDescription(
			"Everything an agent has said across all open sessions, oldest first.",
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Author to look up"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max messages (default: %d)", router.DefaultLimit)),
		),
	)
}

// Handle processes the chat_agent_conversations tool call.
func (t *AgentConversationsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}

	msgs := t.router.GetAgentConversations(agentID, req.GetInt("limit", router.DefaultLimit))
	if len(msgs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No messages from %q in open sessions.", agentID)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d messages from %q:\n\n", len(msgs), agentID)
	formatMessages(&b, msgs, true)
	return mcp.NewToolResultText(b.String()), nil
}

// ─── SearchTool ─────────────────────────────────────────────────────────────

// SearchTool handles the chat_search MCP tool.
type SearchTool struct {
	router *router.Router
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(r *router.Router) *SearchTool {
	return &SearchTool{router: r}
}

// Definition returns the MCP tool definition for chat_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("chat_search",
		mcp.WithDescription(
			"Search mirrored message content across sessions, including closed ones. "+
				"Returns nothing when no mirror store is configured.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Keywords to look for"),
		),
		mcp.WithString("session_id",
			mcp.Description("Only this session"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Only this author"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max results (default: %d)", router.DefaultSearchLimit)),
		),
	)
}

// Handle processes the chat_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	if !t.router.MirrorEnabled() {
		return mcp.NewToolResultText("Search is unavailable: no mirror store is configured."), nil
	}

	msgs, err := t.router.Search(ctx, query,
		req.GetString("session_id", ""),
		req.GetString("agent_id", ""),
		req.GetInt("limit", router.DefaultSearchLimit),
	)
	if err != nil {
		return errorResult("search failed", err), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultText("No messages found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d messages:\n\n", len(msgs))
	formatMessages(&b, msgs, true)
	return mcp.NewToolResultText(b.String()), nil
}
