package ctxtools

import (
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/agentrelay/internal/ctxbridge"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

func objectArg(req mcp.CallToolRequest, key string) map[string]any {
	m, _ := req.GetArguments()[key].(map[string]any)
	return m
}

// messagesArg reads an array of {role, content} objects. A bare string is
// taken as a single user message.
func messagesArg(req mcp.CallToolRequest, key string) ([]ctxbridge.InputMessage, error) {
	switch raw := req.GetArguments()[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []ctxbridge.InputMessage{{Role: string(ctxbridge.RoleUser), Content: raw}}, nil
	case []any:
		out := make([]ctxbridge.InputMessage, 0, len(raw))
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("messages[%d] must be an object with 'role' and 'content'", i)
			}
			out = append(out, ctxbridge.InputMessage{
				Role:    cast.ToString(m["role"]),
				Content: cast.ToString(m["content"]),
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("'%s' must be an array of messages", key)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
