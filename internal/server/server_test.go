package server

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/HendryAvila/agentrelay/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, cleanup, err := New(context.Background(), cfg, zerolog.Nop())
	t.Cleanup(cleanup)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// call sends one JSON-RPC request through the MCP server and decodes the result.
func call(t *testing.T, s *Server, method string, params any, out any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.MCP.HandleMessage(context.Background(), raw)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error != nil {
		t.Fatalf("%s: %s", method, envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		t.Fatalf("%s result: %v\n%s", method, err, envelope.Result)
	}
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	var out map[string]any
	call(t, s, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
	}, &out)
}

func TestNew_RegistersTools(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	initialize(t, s)

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	call(t, s, "tools/list", map[string]any{}, &list)

	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	want := []string{
		"chat_session_create", "chat_session_close", "chat_list_sessions", "chat_send",
		"chat_messages", "chat_agent_conversations", "chat_search", "chat_add_agent",
		"chat_remove_agent", "chat_visible_sessions", "chat_status",
		"ctx_process", "ctx_response", "ctx_summary", "ctx_compose_from_session",
	}
	for _, w := range want {
		if !slices.Contains(names, w) {
			t.Errorf("tool %q not registered", w)
		}
	}
	if len(names) != len(want) {
		t.Errorf("got %d tools, want %d: %v", len(names), len(want), names)
	}
}

func TestNew_ToolRoundTrip(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	initialize(t, s)

	type toolResult struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	callTool := func(name string, args map[string]any) toolResult {
		t.Helper()
		var out toolResult
		call(t, s, "tools/call", map[string]any{"name": name, "arguments": args}, &out)
		return out
	}

	if r := callTool("chat_session_create", map[string]any{"id": "s1", "agent_ids": []string{"dev"}}); r.IsError {
		t.Fatalf("create: %+v", r)
	}
	if r := callTool("chat_send", map[string]any{"session_id": "s1", "agent_id": "dev", "body": "archived migration notes"}); r.IsError {
		t.Fatalf("send: %+v", r)
	}

	r := callTool("chat_search", map[string]any{"query": "migration"})
	if r.IsError || len(r.Content) == 0 || !strings.Contains(r.Content[0].Text, "Found 1") {
		t.Errorf("search through sqlite archive: %+v", r)
	}

	r = callTool("chat_send", map[string]any{"session_id": "ghost", "agent_id": "dev", "body": "x"})
	if !r.IsError {
		t.Errorf("unknown session accepted: %+v", r)
	}
}

func TestNew_StatusSnapshot(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	if _, err := s.Router.CreateSession(context.Background(), "s1", []string{"a"}, ""); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(s.Status(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	var st map[string]any
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatal(err)
	}
	if st["active_sessions"] != float64(1) || st["mirror_enabled"] != true {
		t.Errorf("status = %v", st)
	}
}

func TestNew_MirrorNone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mirror.Backend = config.MirrorNone
	s := newTestServer(t, cfg)
	if s.Router.MirrorEnabled() || s.Router.GroupChatEnabled() {
		t.Error("side channels enabled without configuration")
	}
}

func TestNew_RedisUnavailableDegrades(t *testing.T) {
	orig := dial
	t.Cleanup(func() { dial = orig })
	dial = func(context.Context, string) (*redis.Client, error) {
		return nil, errors.New("connection refused")
	}

	cfg := testConfig(t)
	cfg.Mirror.Backend = config.MirrorRedis
	cfg.Redis.URL = "redis://127.0.0.1:1"
	cfg.GroupChat.Enabled = true

	s := newTestServer(t, cfg)
	if s.Router.MirrorEnabled() || s.Router.GroupChatEnabled() {
		t.Error("failed redis left a side channel enabled")
	}
	if _, err := s.Router.CreateSession(context.Background(), "s1", nil, ""); err != nil {
		t.Errorf("router unusable after redis failure: %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mirror.Backend = "bogus"
	_, cleanup, err := New(context.Background(), cfg, zerolog.Nop())
	cleanup()
	if err == nil {
		t.Error("invalid config accepted")
	}

	_, cleanup, err = New(context.Background(), nil, zerolog.Nop())
	cleanup()
	if err == nil {
		t.Error("nil config accepted")
	}
}
