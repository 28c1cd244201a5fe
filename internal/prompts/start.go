// Package prompts implements MCP prompt handlers for agentrelay.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the relay-start MCP prompt.
// It walks the AI through joining a cross-chat session.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("relay-start",
		mcp.WithPromptDescription(
			"Join or open a shared session with agents working in other chats. "+
				"Sets up the session, posts an introduction and reads what others said.",
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Session to join or create. Default: general"),
		),
		mcp.WithArgument("agent_id",
			mcp.ArgumentDescription("How this chat identifies itself to the others. Default: developer"),
		),
		mcp.WithArgument("role",
			mcp.ArgumentDescription("coordinator, developer, reviewer or tester. Default: developer"),
		),
	)
}

// Handle processes the relay-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sessionID := argOr(req, "session_id", "general")
	agentID := argOr(req, "agent_id", "developer")
	role := strings.ToLower(argOr(req, "role", "developer"))

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Join relay session: %s", sessionID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want this chat to work with the other agents in session '%s' as '%s' (%s role).\n\n"+
						"Please:\n"+
						"1. Run `chat_visible_sessions` with agent_id='%s' to see where I already belong\n"+
						"2. If '%s' is not listed, run `chat_session_create` with id='%s' and agent_ids=['%s'] "+
						"(if it already exists, run `chat_add_agent` instead)\n"+
						"3. Run `chat_messages` for '%s' and summarize what the others have said\n"+
						"4. Run `ctx_compose_from_session` with session_id='%s', agent_role='%s' to get a prompt "+
						"written from my role, and answer it\n"+
						"5. Post your answer with `chat_send` as agent_id='%s'\n\n"+
						"Use `chat_search` when you need something said in an older or closed session.",
					sessionID, agentID, role,
					agentID,
					sessionID, sessionID, agentID,
					sessionID,
					sessionID, role,
					agentID,
				)),
			},
		},
	}, nil
}

// argOr returns the named prompt argument, or def when it is missing or empty.
func argOr(req mcp.GetPromptRequest, name, def string) string {
	if v := strings.TrimSpace(req.Params.Arguments[name]); v != "" {
		return v
	}
	return def
}
