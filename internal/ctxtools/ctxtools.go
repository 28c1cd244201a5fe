// Package ctxtools provides MCP tool handlers for the context bridge: role
// and task aware prompt composition, reply parsing and context summaries.
package ctxtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/agentrelay/internal/ctxbridge"
	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultComposeLimit is how many router messages ctx_compose_from_session
// feeds into the bridge when no limit is given.
const DefaultComposeLimit = 10

// processed is the ctx_process and ctx_compose_from_session payload.
type processed struct {
	SessionID     string              `json:"session_id"`
	AgentRole     ctxbridge.AgentRole `json:"agent_role"`
	TaskType      ctxbridge.TaskType  `json:"task_type"`
	HistoryLength int                 `json:"history_length"`
	Prompt        string              `json:"prompt"`
}

func processedResult(prompt string, c ctxbridge.ConversationContext) (*mcp.CallToolResult, error) {
	return jsonResult(processed{
		SessionID:     c.SessionID,
		AgentRole:     c.AgentRole,
		TaskType:      c.TaskType,
		HistoryLength: len(c.History),
		Prompt:        prompt,
	})
}

// ProcessTool handles the ctx_process MCP tool.
type ProcessTool struct {
	bridge *ctxbridge.Bridge
}

// NewProcessTool creates a ProcessTool.
func NewProcessTool(b *ctxbridge.Bridge) *ProcessTool {
	return &ProcessTool{bridge: b}
}

// Definition returns the MCP tool definition for ctx_process.
func (t *ProcessTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_process",
		mcp.WithDescription(
			"Annotate messages for an agent role and task, add them to a conversation context "+
				"and return a ready-to-send prompt. Omit session_id to start a new context; "+
				"reuse the returned session_id to continue it.",
		),
		mcp.WithArray("messages",
			mcp.Required(),
			mcp.Description("Messages as [{\"role\": \"user\", \"content\": \"...\"}]"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
			}),
		),
		mcp.WithString("agent_role",
			mcp.Description("coordinator, developer, reviewer, tester or user (default: developer)"),
		),
		mcp.WithString("task_type",
			mcp.Description("coding, review, testing or general (default: general)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Existing context to continue"),
		),
		mcp.WithObject("project_info",
			mcp.Description("Project facts such as name and tech_stack; keys merge into the context"),
		),
		mcp.WithObject("code_info",
			mcp.Description("Code facts; keys merge into the context"),
		),
	)
}

// Handle processes the ctx_process tool call.
func (t *ProcessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msgs, err := messagesArg(req, "messages")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultError("'messages' is required"), nil
	}

	prompt, c := t.bridge.ProcessMessages(msgs, ctxbridge.ProcessOptions{
		SessionID:   req.GetString("session_id", ""),
		AgentRole:   req.GetString("agent_role", ""),
		TaskType:    req.GetString("task_type", ""),
		ProjectInfo: objectArg(req, "project_info"),
		CodeInfo:    objectArg(req, "code_info"),
	})
	return processedResult(prompt, c)
}

// ─── ResponseTool ───────────────────────────────────────────────────────────

// ResponseTool handles the ctx_response MCP tool.
type ResponseTool struct {
	bridge *ctxbridge.Bridge
}

// NewResponseTool creates a ResponseTool.
func NewResponseTool(b *ctxbridge.Bridge) *ResponseTool {
	return &ResponseTool{bridge: b}
}

// Definition returns the MCP tool definition for ctx_response.
func (t *ResponseTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_response",
		mcp.WithDescription(
			"Clean a model reply, record it in the conversation context and report whether "+
				"it contains code, errors or questions.",
		),
		mcp.WithString("session_id",
			mcp.Description("Context the reply belongs to"),
		),
		mcp.WithString("raw_response",
			mcp.Required(),
			mcp.Description("The reply exactly as the model produced it"),
		),
	)
}

// Handle processes the ctx_response tool call.
func (t *ResponseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["raw_response"].(string)
	if !ok {
		return mcp.NewToolResultError("'raw_response' is required"), nil
	}
	return jsonResult(t.bridge.ProcessResponse(raw, req.GetString("session_id", "")))
}

// ─── SummaryTool ────────────────────────────────────────────────────────────

// SummaryTool handles the ctx_summary MCP tool.
type SummaryTool struct {
	bridge *ctxbridge.Bridge
}

// NewSummaryTool creates a SummaryTool.
func NewSummaryTool(b *ctxbridge.Bridge) *SummaryTool {
	return &SummaryTool{bridge: b}
}

// Definition returns the MCP tool definition for ctx_summary.
func (t *SummaryTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_summary",
		mcp.WithDescription("Summarize a conversation context: role, task, message counts and topics."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Context to summarize"),
		),
		mcp.WithBoolean("full",
			mcp.Description("Scan the whole history for topics instead of the recent messages"),
		),
	)
}

// Handle processes the ctx_summary tool call.
func (t *SummaryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	s, ok := t.bridge.GetSummary(id, req.GetBool("full", false))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no context for session %q. Start one with 'ctx_process'.", id)), nil
	}
	return jsonResult(s)
}

// ─── ComposeFromSessionTool ─────────────────────────────────────────────────

// ComposeFromSessionTool handles the ctx_compose_from_session MCP tool. It
// feeds the latest messages of a router session into the context of the
// same id.
type ComposeFromSessionTool struct {
	router *router.Router
	bridge *ctxbridge.Bridge
}

// NewComposeFromSessionTool creates a ComposeFromSessionTool.
func NewComposeFromSessionTool(r *router.Router, b *ctxbridge.Bridge) *ComposeFromSessionTool {
	return &ComposeFromSessionTool{router: r, bridge: b}
}

// Definition returns the MCP tool definition for ctx_compose_from_session.
func (t *ComposeFromSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_compose_from_session",
		mcp.WithDescription(
			"Build a prompt for an agent role from the latest messages of a chat session. "+
				"The messages are added to the context that shares the session's id.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Chat session to read"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Messages to include (default: %d)", DefaultComposeLimit)),
		),
		mcp.WithString("agent_role",
			mcp.Description("Role the prompt is written for"),
		),
		mcp.WithString("task_type",
			mcp.Description("coding, review, testing or general"),
		),
	)
}

// Handle processes the ctx_compose_from_session tool call.
func (t *ComposeFromSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	msgs, err := t.router.GetSessionMessages(id, req.GetInt("limit", DefaultComposeLimit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read session: %v", err)), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("session %q has no messages to compose from", id)), nil
	}

	inputs := make([]ctxbridge.InputMessage, len(msgs))
	for i, m := range msgs {
		inputs[i] = ctxbridge.InputMessage{
			Role:    "agent",
			Content: fmt.Sprintf("%s: %s", m.AgentID, strings.TrimSpace(m.Body)),
		}
	}

	prompt, c := t.bridge.ProcessMessages(inputs, ctxbridge.ProcessOptions{
		SessionID: id,
		AgentRole: req.GetString("agent_role", ""),
		TaskType:  req.GetString("task_type", ""),
	})
	return processedResult(prompt, c)
}
