package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, r *mcp.GetPromptResult) string {
	t.Helper()
	if r == nil || len(r.Messages) != 1 {
		t.Fatalf("unexpected result: %+v", r)
	}
	tc, ok := r.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", r.Messages[0].Content)
	}
	return tc.Text
}

func TestStartPrompt_Defaults(t *testing.T) {
	p := NewStartPrompt()
	if p.Definition().Name != "relay-start" {
		t.Errorf("name = %q", p.Definition().Name)
	}

	r, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text := promptText(t, r)
	for _, want := range []string{"session 'general'", "as 'developer'", "chat_session_create", "ctx_compose_from_session"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStartPrompt_Arguments(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"session_id": "auth", "agent_id": "cursor-2", "role": "Reviewer"}

	r, err := NewStartPrompt().Handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := promptText(t, r)
	if !strings.Contains(text, "agent_role='reviewer'") || !strings.Contains(text, "agent_id='cursor-2'") {
		t.Errorf("arguments not applied:\n%s", text)
	}
	if r.Description != "Join relay session: auth" {
		t.Errorf("Description = %q", r.Description)
	}
}

func TestStatusPrompt(t *testing.T) {
	p := NewStatusPrompt()
	if p.Definition().Name != "relay-status" {
		t.Errorf("name = %q", p.Definition().Name)
	}
	r, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(promptText(t, r), "chat_status") {
		t.Error("prompt does not mention chat_status")
	}
}
