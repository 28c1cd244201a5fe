package ctxbridge

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// AgentRole is the perspective a context speaks from.
type AgentRole string

const (
	RoleCoordinator AgentRole = "coordinator"
	RoleDeveloper   AgentRole = "developer"
	RoleReviewer    AgentRole = "reviewer"
	RoleTester      AgentRole = "tester"
	RoleUser        AgentRole = "user"

	// RoleGeneralist stands in for roles the bridge does not know. It only
	// ever gets the general agent-role tag.
	RoleGeneralist AgentRole = "generalist"
)

// ParseAgentRole maps s onto a known role and reports whether it was
// recognized. Empty input yields RoleDeveloper, anything else unknown
// yields RoleGeneralist.
func ParseAgentRole(s string) (role AgentRole, ok bool) {
	r := AgentRole(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleCoordinator, RoleDeveloper, RoleReviewer, RoleTester, RoleUser, RoleGeneralist:
		return r, true
	case "":
		return RoleDeveloper, false
	}
	return RoleGeneralist, false
}

// TaskType is a free-form label. Only the four constants below have their
// own enrichment rule; anything else is handled like TaskGeneral.
type TaskType string

const (
	TaskCoding  TaskType = "coding"
	TaskReview  TaskType = "review"
	TaskTesting TaskType = "testing"
	TaskGeneral TaskType = "general"
)

func normalizeTask(s string) TaskType {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return TaskGeneral
	}
	return TaskType(t)
}

// InputMessage is one raw message handed to ProcessMessages.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextTags snapshots the context's role and task at processing time.
type ContextTags struct {
	TaskType  TaskType  `json:"task_type"`
	AgentRole AgentRole `json:"agent_role"`
}

// MessageMetadata describes how a ProcessedMessage was derived.
type MessageMetadata struct {
	OriginalRole string `json:"original_role"`
	Enhanced     bool   `json:"enhanced"`
	Length       int    `json:"length"`
}

// ProcessedMessage is one history entry.
type ProcessedMessage struct {
	Content     string          `json:"content"`
	Role        string          `json:"role"`
	ContextTags ContextTags     `json:"context_tags"`
	Metadata    MessageMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ConversationContext is the per-session enrichment state. Values returned
// by Bridge methods are copies; mutating them does not affect the bridge.
type ConversationContext struct {
	SessionID    string             `json:"session_id"`
	AgentRole    AgentRole          `json:"agent_role"`
	TaskType     TaskType           `json:"task_type"`
	History      []ProcessedMessage `json:"history"`
	ProjectInfo  map[string]any     `json:"project_info,omitempty"`
	CodeInfo     map[string]any     `json:"code_info,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActivity time.Time          `json:"last_activity"`

	// Processed counts every history entry ever appended, including ones
	// dropped by the history cap.
	Processed int `json:"processed"`
}

func (c *ConversationContext) clone() ConversationContext {
	out := *c
	out.History = slices.Clone(c.History)
	out.ProjectInfo = maps.Clone(c.ProjectInfo)
	out.CodeInfo = maps.Clone(c.CodeInfo)
	return out
}

// ProcessOptions parameterises ProcessMessages. Zero values mean "keep the
// context's current setting", or the default for a new context.
type ProcessOptions struct {
	SessionID   string
	AgentRole   string
	TaskType    string
	ProjectInfo map[string]any
	CodeInfo    map[string]any
}

// ExtractedInfo holds the lightweight signals read from a generator reply.
type ExtractedInfo struct {
	ContainsCode     bool `json:"contains_code"`
	ContainsError    bool `json:"contains_error"`
	ContainsQuestion bool `json:"contains_question"`
	WordCount        int  `json:"word_count"`
	CodeBlocks       int  `json:"code_blocks"`
}

// ResponseMetadata describes a processed reply.
type ResponseMetadata struct {
	AgentRole      AgentRole `json:"agent_role"`
	TaskType       TaskType  `json:"task_type"`
	OriginalLength int       `json:"original_length"`
	CleanedLength  int       `json:"cleaned_length"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Result is what ProcessResponse returns.
type Result struct {
	Content       string           `json:"content"`
	Metadata      ResponseMetadata `json:"metadata"`
	ExtractedInfo ExtractedInfo    `json:"extracted_info"`
	SessionID     string           `json:"session_id"`
}

// Summary is a compact description of one context.
type Summary struct {
	SessionID        string    `json:"session_id"`
	AgentRole        AgentRole `json:"agent_role"`
	TaskType         TaskType  `json:"task_type"`
	MessageCount     int       `json:"message_count"`
	RetainedMessages int       `json:"retained_messages"`
	StartedAt        time.Time `json:"started_at"`
	LastActivity     time.Time `json:"last_activity"`
	Topics           []string  `json:"topics"`
}
