// Package ctxbridge turns raw message batches into an enriched prompt for a
// downstream generator and folds the generator's reply back into a
// per-session ConversationContext.
//
// The bridge is independent of the session router: a context does not need
// a router session to exist, and the two only meet in callers that compose
// them.
package ctxbridge

import (
	"maps"
	"sync"
	"time"

	"github.com/HendryAvila/agentrelay/internal/metrics"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Defaults used when Config fields are zero.
const (
	DefaultMaxHistory   = 200
	DefaultRecentWindow = 5
)

// Config tunes history retention.
type Config struct {
	// MaxHistory caps retained history per context; oldest entries are
	// dropped first. Negative means unbounded, zero means DefaultMaxHistory.
	MaxHistory int

	// IdleTTL evicts contexts that have not been touched for this long.
	// Zero keeps contexts until Forget.
	IdleTTL time.Duration

	// RecentWindow is how many trailing history entries count as "recent"
	// for coding enrichment and non-full summaries.
	RecentWindow int

	Logger zerolog.Logger
}

// Bridge owns every ConversationContext. It is safe for concurrent use.
type Bridge struct {
	mu       sync.Mutex
	contexts *cache.Cache

	maxHistory   int
	recentWindow int
	logger       zerolog.Logger
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	maxHistory := cfg.MaxHistory
	switch {
	case maxHistory == 0:
		maxHistory = DefaultMaxHistory
	case maxHistory < 0:
		maxHistory = 0
	}
	recent := cfg.RecentWindow
	if recent <= 0 {
		recent = DefaultRecentWindow
	}

	var contexts *cache.Cache
	if cfg.IdleTTL > 0 {
		contexts = cache.New(cfg.IdleTTL, cfg.IdleTTL)
	} else {
		contexts = cache.New(cache.NoExpiration, 0)
	}

	return &Bridge{
		contexts:     contexts,
		maxHistory:   maxHistory,
		recentWindow: recent,
		logger:       cfg.Logger.With().Str("component", "ctxbridge").Logger(),
	}
}

// lookup returns the live context for id and refreshes its idle timer.
// Callers hold b.mu.
func (b *Bridge) lookup(id string) (*ConversationContext, bool) {
	v, ok := b.contexts.Get(id)
	if !ok {
		return nil, false
	}
	c := v.(*ConversationContext)
	b.contexts.SetDefault(id, c)
	return c, true
}

// obtain returns the context for id, creating it if needed.
// Callers hold b.mu.
func (b *Bridge) obtain(id string) *ConversationContext {
	if id == "" {
		id = uuid.NewString()
	}
	if c, ok := b.lookup(id); ok {
		return c
	}
	now := timeNow()
	c := &ConversationContext{
		SessionID:    id,
		AgentRole:    RoleDeveloper,
		TaskType:     TaskGeneral,
		ProjectInfo:  map[string]any{},
		CreatedAt:    now,
		LastActivity: now,
	}
	b.contexts.SetDefault(id, c)
	b.logger.Debug().Str("session_id", id).Msg("context created")
	return c
}

func (b *Bridge) appendHistory(c *ConversationContext, msgs ...ProcessedMessage) {
	c.History = append(c.History, msgs...)
	c.Processed += len(msgs)
	if b.maxHistory > 0 && len(c.History) > b.maxHistory {
		c.History = append([]ProcessedMessage(nil), c.History[len(c.History)-b.maxHistory:]...)
	}
	c.LastActivity = timeNow()
}

// ProcessMessages enriches msgs under the context for opts.SessionID
// (minting a fresh id when empty), appends them to its history and returns
// the composed prompt with a copy of the updated context.
//
// A non-empty AgentRole or TaskType replaces the context's current value;
// ProjectInfo and CodeInfo keys are merged in.
func (b *Bridge) ProcessMessages(msgs []InputMessage, opts ProcessOptions) (string, ConversationContext) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.obtain(opts.SessionID)
	if opts.AgentRole != "" {
		role, ok := ParseAgentRole(opts.AgentRole)
		if !ok {
			b.logger.Debug().Str("agent_role", opts.AgentRole).Msg("unknown agent role, using generalist")
		}
		c.AgentRole = role
	}
	if opts.TaskType != "" {
		c.TaskType = normalizeTask(opts.TaskType)
	}
	if len(opts.ProjectInfo) > 0 {
		if c.ProjectInfo == nil {
			c.ProjectInfo = map[string]any{}
		}
		maps.Copy(c.ProjectInfo, opts.ProjectInfo)
	}
	if len(opts.CodeInfo) > 0 {
		if c.CodeInfo == nil {
			c.CodeInfo = map[string]any{}
		}
		maps.Copy(c.CodeInfo, opts.CodeInfo)
	}

	tags := ContextTags{TaskType: c.TaskType, AgentRole: c.AgentRole}
	processed := make([]ProcessedMessage, 0, len(msgs))
	for _, in := range msgs {
		role := in.Role
		if role == "" {
			role = string(RoleUser)
		}
		content, enhanced := enrich(in.Content, c, b.recentWindow)
		pm := ProcessedMessage{
			Content:     content,
			Role:        role,
			ContextTags: tags,
			Metadata: MessageMetadata{
				OriginalRole: in.Role,
				Enhanced:     enhanced,
				Length:       len(in.Content),
			},
			CreatedAt: timeNow(),
		}
		processed = append(processed, pm)
		// Appended one at a time so later messages in the batch see earlier
		// ones as recent history.
		b.appendHistory(c, pm)
	}

	metrics.ContextMessagesProcessed.WithLabelValues(string(c.TaskType)).Add(float64(len(msgs)))
	return composePrompt(c, processed), c.clone()
}

// ProcessResponse cleans a generator reply, extracts text signals and
// appends the cleaned reply to the context as an assistant message. An
// unknown or empty sessionID gets a fresh context.
func (b *Bridge) ProcessResponse(raw, sessionID string) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.obtain(sessionID)
	content := cleanResponse(raw)

	b.appendHistory(c, ProcessedMessage{
		Content:     content,
		Role:        "assistant",
		ContextTags: ContextTags{TaskType: c.TaskType, AgentRole: c.AgentRole},
		Metadata: MessageMetadata{
			OriginalRole: "assistant",
			Length:       len(content),
		},
		CreatedAt: timeNow(),
	})

	return Result{
		Content: content,
		Metadata: ResponseMetadata{
			AgentRole:      c.AgentRole,
			TaskType:       c.TaskType,
			OriginalLength: len(raw),
			CleanedLength:  len(content),
			ProcessedAt:    c.LastActivity,
		},
		ExtractedInfo: extractInfo(content),
		SessionID:     c.SessionID,
	}
}

// GetSummary describes the context for sessionID. Topics come from the
// whole retained history when full is set, otherwise from the recent
// window. ok is false for an unknown id.
func (b *Bridge) GetSummary(sessionID string, full bool) (Summary, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.lookup(sessionID)
	if !ok {
		return Summary{}, false
	}

	scan := c.History
	if !full {
		scan = tail(scan, b.recentWindow)
	}
	topics := historyTopics(scan)
	if topics == nil {
		topics = []string{}
	}

	return Summary{
		SessionID:        c.SessionID,
		AgentRole:        c.AgentRole,
		TaskType:         c.TaskType,
		MessageCount:     c.Processed,
		RetainedMessages: len(c.History),
		StartedAt:        c.CreatedAt,
		LastActivity:     c.LastActivity,
		Topics:           topics,
	}, true
}

// Context returns a copy of the context for sessionID.
func (b *Bridge) Context(sessionID string) (ConversationContext, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.lookup(sessionID)
	if !ok {
		return ConversationContext{}, false
	}
	return c.clone(), true
}

// Forget drops the context for sessionID and reports whether it existed.
func (b *Bridge) Forget(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.contexts.Get(sessionID); !ok {
		return false
	}
	b.contexts.Delete(sessionID)
	return true
}

// Len returns the number of live contexts, including expired ones the
// janitor has not swept yet.
func (b *Bridge) Len() int {
	return b.contexts.ItemCount()
}
