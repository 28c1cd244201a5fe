package router

import (
	"context"
	"time"
)

// MirrorRecord is the shape a message takes in the content-searchable mirror.
type MirrorRecord struct {
	MessageID string         `json:"message_id"`
	SessionID string         `json:"session_id"`
	AgentID   string         `json:"agent_id"`
	Body      string         `json:"body"`
	Kind      string         `json:"kind"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	MirrorRef string         `json:"mirror_ref,omitempty"`
}

// SearchFilter narrows a mirror search. Empty fields match everything.
type SearchFilter struct {
	SessionID string
	AgentID   string
	Limit     int
}

// Mirror is an optional content-searchable copy of every message.
// A nil Mirror is a valid configuration.
type Mirror interface {
	Store(ctx context.Context, rec MirrorRecord) (string, error)
	Search(ctx context.Context, query string, filter SearchFilter) ([]MirrorRecord, error)
}

// GroupChat is an optional external backend that runs its own multi-agent
// conversation alongside the router's bookkeeping. Adding an agent to an
// already-open chat is not part of the contract.
type GroupChat interface {
	Open(ctx context.Context, label string, agentIDs []string) (string, error)
	Forward(ctx context.Context, ref, agentID, body string) (string, error)
	Close(ctx context.Context, ref string) error
}

// StatsReporter is implemented by side channels that can summarize
// themselves for the status snapshot.
type StatsReporter interface {
	Stats(ctx context.Context) (map[string]int, error)
}
