// Package chattools provides MCP tool handlers for the session router.
//
// Each tool follows the same shape:
// - A struct holding the *router.Router injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() validates arguments, calls the router and formats the result
//
// Handlers carry no routing rules of their own. Domain failures come back as
// tool errors, never as Go errors.
package chattools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

// stringsArg accepts a JSON array of strings or a comma-separated string.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}
	var out []string
	for _, v := range cast.ToStringSlice(raw) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// objectArg returns a JSON object argument, or nil when absent or not an object.
func objectArg(req mcp.CallToolRequest, key string) map[string]any {
	m, _ := req.GetArguments()[key].(map[string]any)
	return m
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult maps router errors onto tool errors the calling agent can act on.
func errorResult(action string, err error) *mcp.CallToolResult {
	var notFound *router.SessionNotFoundError
	switch {
	case errors.As(err, &notFound):
		return mcp.NewToolResultError(fmt.Sprintf("session %q does not exist. Use 'chat_list_sessions' to see open sessions.", notFound.ID))
	case errors.Is(err, router.ErrDuplicateSession):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v. Pick another id or close the existing session first.", action, err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
	}
}
