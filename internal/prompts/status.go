package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the relay-status MCP prompt.
// It instructs the AI to read and present the relay state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("relay-status",
		mcp.WithPromptDescription(
			"Show which sessions are open, who is in them and whether search "+
				"and the group chat are working.",
		),
	)
}

// Handle processes the relay-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Relay Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `chat_status` and `chat_list_sessions`.\n\n" +
						"Then:\n" +
						"1. Show the open sessions with their members and message counts\n" +
						"2. Call out any entries under `errors` and whether mirroring or the group chat is disabled\n" +
						"3. Point out sessions with no recent messages that could be closed",
				),
			},
		},
	}, nil
}
