package ctxtools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/HendryAvila/agentrelay/internal/ctxbridge"
	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestBridge(t *testing.T) *ctxbridge.Bridge {
	t.Helper()
	return ctxbridge.New(ctxbridge.Config{})
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if r == nil || r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

func mustToolError(t *testing.T, r *mcp.CallToolResult, err error, contains string) {
	t.Helper()
	if err != nil {
		t.Fatalf("domain failure surfaced as Go error: %v", err)
	}
	if r == nil || !r.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), contains) {
		t.Errorf("error %q does not mention %q", resultText(r), contains)
	}
}

func decode[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, resultText(r))
	}
	return v
}

// ─── ProcessTool ─────────────────────────────────────────────────────────────

func TestProcessTool_Definition(t *testing.T) {
	def := NewProcessTool(newTestBridge(t)).Definition()
	if def.Name != "ctx_process" {
		t.Errorf("tool name = %q", def.Name)
	}
	for _, p := range []string{"messages", "agent_role", "task_type", "session_id", "project_info"} {
		if _, ok := def.InputSchema.Properties[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}
}

func TestProcessTool_NewContext(t *testing.T) {
	b := newTestBridge(t)
	tool := NewProcessTool(b)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"messages": []interface{}{
			map[string]interface{}{"role": "assistant", "content": "func Login() error { return nil }"},
		},
		"agent_role":   "reviewer",
		"task_type":    "review",
		"project_info": map[string]interface{}{"name": "relay", "tech_stack": []interface{}{"Go", "SQLite"}},
	}))
	mustNotError(t, result, err)

	got := decode[processed](t, result)
	if got.SessionID == "" || got.AgentRole != ctxbridge.RoleReviewer || got.TaskType != ctxbridge.TaskReview {
		t.Errorf("payload = %+v", got)
	}
	if got.HistoryLength != 1 {
		t.Errorf("HistoryLength = %d, want 1", got.HistoryLength)
	}
	for _, want := range []string{"Project: relay", "Tech stack: Go, SQLite", "[Review focus:", "As the reviewer"} {
		if !strings.Contains(got.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, got.Prompt)
		}
	}
	if b.Len() != 1 {
		t.Errorf("bridge holds %d contexts", b.Len())
	}
}

func TestProcessTool_ContinuesContext(t *testing.T) {
	b := newTestBridge(t)
	tool := NewProcessTool(b)

	first := decode[processed](t, mustHandle(t, tool.Handle, map[string]interface{}{"messages": "hello"}))
	second := decode[processed](t, mustHandle(t, tool.Handle, map[string]interface{}{
		"messages":   "and again",
		"session_id": first.SessionID,
	}))

	if second.SessionID != first.SessionID || second.HistoryLength != 2 {
		t.Errorf("second = %+v", second)
	}
	if _, ok := b.Context(first.SessionID); !ok {
		t.Error("context missing")
	}
}

func mustHandle(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	r, err := h(context.Background(), makeReq(args))
	mustNotError(t, r, err)
	return r
}

func TestProcessTool_BadMessages(t *testing.T) {
	tool := NewProcessTool(newTestBridge(t))

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing", map[string]interface{}{}, "'messages' is required"},
		{"empty array", map[string]interface{}{"messages": []interface{}{}}, "'messages' is required"},
		{"not objects", map[string]interface{}{"messages": []interface{}{"hi"}}, "messages[0]"},
		{"wrong type", map[string]interface{}{"messages": float64(3)}, "array of messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tool.Handle(context.Background(), makeReq(tt.args))
			mustToolError(t, r, err, tt.want)
		})
	}
}

// ─── ResponseTool ────────────────────────────────────────────────────────────

func TestResponseTool(t *testing.T) {
	b := newTestBridge(t)
	start := decode[processed](t, mustHandle(t, NewProcessTool(b).Handle, map[string]interface{}{"messages": "write it"}))

	r := mustHandle(t, NewResponseTool(b).Handle, map[string]interface{}{
		"session_id":   start.SessionID,
		"raw_response": "<|im_start|>Here:\n```go\nfunc main() {}\n```\nDoes that work?<|im_end|>",
	})
	got := decode[ctxbridge.Result](t, r)

	if got.SessionID != start.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, start.SessionID)
	}
	if strings.Contains(got.Content, "im_start") {
		t.Errorf("markers not stripped: %q", got.Content)
	}
	if !got.ExtractedInfo.ContainsCode || !got.ExtractedInfo.ContainsQuestion || got.ExtractedInfo.CodeBlocks != 1 {
		t.Errorf("extracted = %+v", got.ExtractedInfo)
	}

	c, _ := b.Context(start.SessionID)
	if n := len(c.History); n != 2 || c.History[n-1].Role != "assistant" {
		t.Errorf("history = %+v", c.History)
	}
}

func TestResponseTool_RequiresRaw(t *testing.T) {
	r, err := NewResponseTool(newTestBridge(t)).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": "x"}))
	mustToolError(t, r, err, "'raw_response' is required")

	// An empty reply is still a reply.
	r, err = NewResponseTool(newTestBridge(t)).Handle(context.Background(), makeReq(map[string]interface{}{"raw_response": ""}))
	mustNotError(t, r, err)
}

// ─── SummaryTool ─────────────────────────────────────────────────────────────

func TestSummaryTool(t *testing.T) {
	b := newTestBridge(t)
	start := decode[processed](t, mustHandle(t, NewProcessTool(b).Handle, map[string]interface{}{
		"messages": "the login endpoint returns a database error",
	}))

	got := decode[ctxbridge.Summary](t, mustHandle(t, NewSummaryTool(b).Handle, map[string]interface{}{
		"session_id": start.SessionID,
		"full":       true,
	}))
	if got.MessageCount != 1 || got.RetainedMessages != 1 {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Topics) == 0 {
		t.Errorf("no topics detected: %+v", got)
	}

	r, err := NewSummaryTool(b).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": "ghost"}))
	mustToolError(t, r, err, "ctx_process")

	r, err = NewSummaryTool(b).Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustToolError(t, r, err, "'session_id' is required")
}

// ─── ComposeFromSessionTool ──────────────────────────────────────────────────

func TestComposeFromSessionTool(t *testing.T) {
	rt := router.New(router.Config{})
	b := newTestBridge(t)
	ctx := context.Background()

	if _, err := rt.CreateSession(ctx, "s1", []string{"dev", "rev"}, "review"); err != nil {
		t.Fatal(err)
	}
	for _, m := range []struct{ agent, body string }{
		{"dev", "old message"},
		{"dev", "I added func Refresh to the token service"},
		{"rev", "please check the expiry edge case"},
	} {
		if _, err := rt.SendMessage(ctx, "s1", m.agent, m.body, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewComposeFromSessionTool(rt, b)
	got := decode[processed](t, mustHandle(t, tool.Handle, map[string]interface{}{
		"session_id": "s1",
		"limit":      float64(2),
		"agent_role": "reviewer",
		"task_type":  "review",
	}))

	if got.SessionID != "s1" || got.HistoryLength != 2 {
		t.Errorf("payload = %+v", got)
	}
	if strings.Contains(got.Prompt, "old message") {
		t.Errorf("limit ignored:\n%s", got.Prompt)
	}
	if !strings.Contains(got.Prompt, "Agent: [Review focus") || !strings.Contains(got.Prompt, "rev: please check") {
		t.Errorf("prompt:\n%s", got.Prompt)
	}
	if strings.Index(got.Prompt, "dev: I added") > strings.Index(got.Prompt, "rev: please") {
		t.Errorf("session order not kept:\n%s", got.Prompt)
	}
}

func TestComposeFromSessionTool_Errors(t *testing.T) {
	rt := router.New(router.Config{})
	tool := NewComposeFromSessionTool(rt, newTestBridge(t))
	ctx := context.Background()

	r, err := tool.Handle(ctx, makeReq(map[string]interface{}{"session_id": "ghost"}))
	mustToolError(t, r, err, "not found")

	if _, err := rt.CreateSession(ctx, "empty", nil, ""); err != nil {
		t.Fatal(err)
	}
	r, err = tool.Handle(ctx, makeReq(map[string]interface{}{"session_id": "empty"}))
	mustToolError(t, r, err, "no messages")
}

func TestComposeFromSessionTool_IntegerLimit(t *testing.T) {
	rt := router.New(router.Config{})
	ctx := context.Background()
	if _, err := rt.CreateSession(ctx, "s1", []string{"dev"}, ""); err != nil {
		t.Fatal(err)
	}
	for _, body := range []string{"one", "two", "three"} {
		if _, err := rt.SendMessage(ctx, "s1", "dev", body, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	got := decode[processed](t, mustHandle(t, NewComposeFromSessionTool(rt, newTestBridge(t)).Handle, map[string]interface{}{
		"session_id": "s1",
		"limit":      1,
	}))
	if got.HistoryLength != 1 || !strings.Contains(got.Prompt, "dev: three") {
		t.Errorf("payload = %+v", got)
	}
}
