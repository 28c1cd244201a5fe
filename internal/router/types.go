package router

import (
	"maps"
	"slices"
	"time"
)

// Default labels applied when the caller leaves kind empty.
const (
	DefaultSessionKind = "general"
	DefaultMessageKind = "text"
	DefaultLimit       = 50
	DefaultSearchLimit = 10
)

// Message is one authored entry in a session. Everything except MirrorRef
// and ForwardRef is fixed at creation; those two are set at most once,
// after the message has been appended.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id"`
	Body       string         `json:"body"`
	Kind       string         `json:"kind"`
	CreatedAt  time.Time      `json:"created_at"`
	Extra      map[string]any `json:"extra"`
	MirrorRef  *string        `json:"mirror_ref,omitempty"`
	ForwardRef *string        `json:"forward_ref,omitempty"`

	seq uint64
}

// Session is a snapshot of one multi-agent conversation thread.
type Session struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
	MemberAgentIDs []string  `json:"member_agent_ids"`
	Messages       []Message `json:"messages"`
	ExternalRef    *string   `json:"external_ref,omitempty"`
}

// SessionInfo is a compact view of a session without its messages.
type SessionInfo struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
	MemberAgentIDs []string  `json:"member_agent_ids"`
	MessageCount   int       `json:"message_count"`
	HasExternalRef bool      `json:"has_external_ref"`
}

// Status is a point-in-time summary of the router and its side channels.
// Sub-query failures land in Errors instead of failing the whole call.
type Status struct {
	ActiveSessions   int               `json:"active_sessions"`
	KnownAgents      int               `json:"known_agents"`
	TotalMessages    int               `json:"total_messages"`
	MirrorEnabled    bool              `json:"mirror_enabled"`
	GroupChatEnabled bool              `json:"group_chat_enabled"`
	Mirror           map[string]int    `json:"mirror,omitempty"`
	GroupChat        map[string]int    `json:"group_chat,omitempty"`
	Errors           map[string]string `json:"errors,omitempty"`
}

// session is the router-owned mutable record behind a Session snapshot.
type session struct {
	id          string
	kind        string
	createdAt   time.Time
	members     []string
	messages    []*Message
	externalRef *string
}

func (s *session) hasMember(agentID string) bool {
	return slices.Contains(s.members, agentID)
}

func (s *session) snapshot() Session {
	msgs := make([]Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.clone()
	}
	return Session{
		ID:             s.id,
		Kind:           s.kind,
		CreatedAt:      s.createdAt,
		MemberAgentIDs: slices.Clone(s.members),
		Messages:       msgs,
		ExternalRef:    cloneString(s.externalRef),
	}
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:             s.id,
		Kind:           s.kind,
		CreatedAt:      s.createdAt,
		MemberAgentIDs: slices.Clone(s.members),
		MessageCount:   len(s.messages),
		HasExternalRef: s.externalRef != nil,
	}
}

func (m *Message) clone() Message {
	c := *m
	c.Extra = maps.Clone(m.Extra)
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}
	c.MirrorRef = cloneString(m.MirrorRef)
	c.ForwardRef = cloneString(m.ForwardRef)
	return c
}

func (m *Message) mirrorRecord() MirrorRecord {
	return MirrorRecord{
		MessageID: m.ID,
		SessionID: m.SessionID,
		AgentID:   m.AgentID,
		Body:      m.Body,
		Kind:      m.Kind,
		Extra:     maps.Clone(m.Extra),
		CreatedAt: m.CreatedAt,
	}
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// tail returns the most recent limit entries in chronological order.
// limit <= 0 means everything.
func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}
