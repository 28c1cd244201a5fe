// Package router owns multi-agent session state: session lifecycle,
// per-session message ordering, agent membership, and the agent-to-sessions
// visibility index used for cross-chat lookups.
//
// Two side channels are optional: a content-searchable Mirror and an
// external GroupChat backend. Both are best-effort. A failure in either is
// logged and counted, and the primary operation still succeeds with the
// corresponding reference left nil.
package router

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/HendryAvila/agentrelay/internal/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// DefaultSideEffectTimeout bounds each call into a side channel.
const DefaultSideEffectTimeout = 5 * time.Second

// Side channel labels used in logs, metrics and ExternalSideEffectError.
const (
	ChannelMirror    = "mirror"
	ChannelGroupChat = "groupchat"
)

// Config holds the router's optional collaborators.
type Config struct {
	Mirror            Mirror
	GroupChat         GroupChat
	Logger            zerolog.Logger
	SideEffectTimeout time.Duration
}

// Router is safe for concurrent use. Appends to a session are ordered by
// the point at which each call takes the router lock.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]*session
	visible  visibilityIndex
	seq      uint64

	mirror  Mirror
	chat    GroupChat
	logger  zerolog.Logger
	timeout time.Duration
}

// New creates a Router. Nil Mirror or GroupChat disables that channel.
func New(cfg Config) *Router {
	timeout := cfg.SideEffectTimeout
	if timeout <= 0 {
		timeout = DefaultSideEffectTimeout
	}
	return &Router{
		sessions: make(map[string]*session),
		visible:  make(visibilityIndex),
		mirror:   cfg.Mirror,
		chat:     cfg.GroupChat,
		logger:   cfg.Logger.With().Str("component", "router").Logger(),
		timeout:  timeout,
	}
}

// MirrorEnabled reports whether a mirror store is configured.
func (r *Router) MirrorEnabled() bool { return r.mirror != nil }

// GroupChatEnabled reports whether a group-chat backend is configured.
func (r *Router) GroupChatEnabled() bool { return r.chat != nil }

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// CreateSession registers a new session and makes it visible to every
// listed agent. Duplicate agent ids are dropped, first occurrence wins.
// An external group chat is opened best-effort; on failure ExternalRef
// stays nil and creation still succeeds.
func (r *Router) CreateSession(ctx context.Context, id string, agentIDs []string, kind string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("create session: empty id: %w", ErrInvalidArgument)
	}
	if kind == "" {
		kind = DefaultSessionKind
	}

	members := make([]string, 0, len(agentIDs))
	for _, a := range agentIDs {
		if a != "" && !slices.Contains(members, a) {
			members = append(members, a)
		}
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return Session{}, &DuplicateSessionError{ID: id}
	}
	s := &session{
		id:        id,
		kind:      kind,
		createdAt: timeNow(),
		members:   members,
	}
	r.sessions[id] = s
	for _, a := range members {
		r.visible.add(a, id)
	}
	r.mu.Unlock()

	metrics.SessionsCreated.Inc()
	r.logger.Info().Str("session_id", id).Str("kind", kind).Strs("agents", members).Msg("session created")

	if r.chat != nil {
		var ref string
		ok := r.sideEffect(ctx, ChannelGroupChat, "open", id, func(ctx context.Context) error {
			var err error
			ref, err = r.chat.Open(ctx, kind+":"+id, slices.Clone(members))
			return err
		})
		if ok {
			r.attachExternalRef(ctx, s, ref)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return s.snapshot(), nil
}

// attachExternalRef stores ref on s unless s was closed while the group
// chat was being opened, in which case the orphaned chat is torn down.
func (r *Router) attachExternalRef(ctx context.Context, s *session, ref string) {
	r.mu.Lock()
	live := r.sessions[s.id] == s
	if live {
		s.externalRef = &ref
	}
	r.mu.Unlock()

	if !live {
		r.sideEffect(ctx, ChannelGroupChat, "close", s.id, func(ctx context.Context) error {
			return r.chat.Close(ctx, ref)
		})
	}
}

// CloseSession removes the session, retracts it from every member's
// visibility entry and tears down its group chat best-effort.
func (r *Router) CloseSession(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false, &SessionNotFoundError{ID: id}
	}
	for _, a := range s.members {
		r.visible.remove(a, id)
	}
	delete(r.sessions, id)
	ref := cloneString(s.externalRef)
	r.mu.Unlock()

	metrics.SessionsClosed.Inc()
	r.logger.Info().Str("session_id", id).Int("messages", len(s.messages)).Msg("session closed")

	if ref != nil && r.chat != nil {
		r.sideEffect(ctx, ChannelGroupChat, "close", id, func(ctx context.Context) error {
			return r.chat.Close(ctx, *ref)
		})
	}
	return true, nil
}

// ─── Messages ────────────────────────────────────────────────────────────────

// SendMessage appends a message to the session. The append is the only
// ordering authority. A sender that is not yet a member joins the session
// first so membership always covers every author at send time.
//
// After the append the message is mirrored and, if the session has a group
// chat, forwarded. Each step is independent and best-effort.
func (r *Router) SendMessage(ctx context.Context, sessionID, agentID, body, kind string, extra map[string]any) (Message, error) {
	if agentID == "" {
		return Message{}, fmt.Errorf("send message: empty agent id: %w", ErrInvalidArgument)
	}
	if kind == "" {
		kind = DefaultMessageKind
	}
	extra = maps.Clone(extra)
	if extra == nil {
		extra = map[string]any{}
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Message{}, &SessionNotFoundError{ID: sessionID}
	}
	joined := false
	if !s.hasMember(agentID) {
		s.members = append(s.members, agentID)
		r.visible.add(agentID, sessionID)
		joined = true
	}
	r.seq++
	msg := &Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		AgentID:   agentID,
		Body:      body,
		Kind:      kind,
		CreatedAt: timeNow(),
		Extra:     extra,
		seq:       r.seq,
	}
	s.messages = append(s.messages, msg)
	rec := msg.mirrorRecord()
	externalRef := cloneString(s.externalRef)
	r.mu.Unlock()

	metrics.MessagesSent.Inc()
	if joined {
		r.logger.Info().Str("session_id", sessionID).Str("agent_id", agentID).Msg("sender joined session")
	}

	if r.mirror != nil {
		var ref string
		if r.sideEffect(ctx, ChannelMirror, "store", sessionID, func(ctx context.Context) error {
			var err error
			ref, err = r.mirror.Store(ctx, rec)
			return err
		}) {
			r.mu.Lock()
			msg.MirrorRef = &ref
			r.mu.Unlock()
		}
	}

	if externalRef != nil && r.chat != nil {
		var ack string
		if r.sideEffect(ctx, ChannelGroupChat, "forward", sessionID, func(ctx context.Context) error {
			var err error
			ack, err = r.chat.Forward(ctx, *externalRef, agentID, body)
			return err
		}) {
			r.mu.Lock()
			msg.ForwardRef = &ack
			r.mu.Unlock()
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return msg.clone(), nil
}

// GetSessionMessages returns the most recent limit messages of a session in
// chronological order. limit <= 0 returns all of them.
func (r *Router) GetSessionMessages(sessionID string, limit int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, &SessionNotFoundError{ID: sessionID}
	}
	return cloneMessages(tail(s.messages, limit)), nil
}

// GetAgentConversations returns the most recent limit messages authored by
// agentID across every live session, in chronological order. An unknown
// agent yields an empty slice.
func (r *Router) GetAgentConversations(agentID string, limit int) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var authored []*Message
	for _, s := range r.sessions {
		for _, m := range s.messages {
			if m.AgentID == agentID {
				authored = append(authored, m)
			}
		}
	}
	slices.SortFunc(authored, func(a, b *Message) int { return cmp.Compare(a.seq, b.seq) })
	return cloneMessages(tail(authored, limit))
}

// Search delegates to the mirror store. Without a mirror it returns an
// empty result. A failing mirror is reported as ExternalSideEffectError.
func (r *Router) Search(ctx context.Context, query, sessionID, agentID string, limit int) ([]Message, error) {
	if r.mirror == nil {
		return []Message{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	recs, err := r.mirror.Search(tctx, query, SearchFilter{SessionID: sessionID, AgentID: agentID, Limit: limit})
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues(ChannelMirror, "search").Inc()
		return nil, &ExternalSideEffectError{Channel: ChannelMirror, Op: "search", Err: err}
	}

	out := make([]Message, 0, len(recs))
	for _, rec := range recs {
		m := Message{
			ID:        rec.MessageID,
			SessionID: rec.SessionID,
			AgentID:   rec.AgentID,
			Body:      rec.Body,
			Kind:      rec.Kind,
			CreatedAt: rec.CreatedAt,
			Extra:     rec.Extra,
		}
		if m.Extra == nil {
			m.Extra = map[string]any{}
		}
		if rec.MirrorRef != "" {
			ref := rec.MirrorRef
			m.MirrorRef = &ref
		}
		out = append(out, m)
	}
	return out, nil
}

// ─── Membership ──────────────────────────────────────────────────────────────

// AddAgent appends agentID to the session's members. It returns false if
// the agent already belongs to the session.
func (r *Router) AddAgent(ctx context.Context, sessionID, agentID string) (bool, error) {
	if agentID == "" {
		return false, fmt.Errorf("add agent: empty agent id: %w", ErrInvalidArgument)
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return false, &SessionNotFoundError{ID: sessionID}
	}
	if s.hasMember(agentID) {
		r.mu.Unlock()
		return false, nil
	}
	s.members = append(s.members, agentID)
	r.visible.add(agentID, sessionID)
	hasChat := s.externalRef != nil
	r.mu.Unlock()

	r.logger.Info().Str("session_id", sessionID).Str("agent_id", agentID).Msg("agent added")
	if hasChat {
		r.logger.Warn().
			Str("session_id", sessionID).
			Str("agent_id", agentID).
			Str("channel", ChannelGroupChat).
			Msg("group chat backend cannot add agents to an open chat; agent tracked locally only")
	}
	return true, nil
}

// RemoveAgent drops agentID from the session's members. It returns false if
// the agent was not a member.
func (r *Router) RemoveAgent(ctx context.Context, sessionID, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false, &SessionNotFoundError{ID: sessionID}
	}
	i := slices.Index(s.members, agentID)
	if i < 0 {
		return false, nil
	}
	s.members = slices.Delete(s.members, i, i+1)
	r.visible.remove(agentID, sessionID)

	r.logger.Info().Str("session_id", sessionID).Str("agent_id", agentID).Msg("agent removed")
	return true, nil
}

// GetVisibleSessions returns the sorted ids of the sessions agentID belongs
// to. An unknown agent yields an empty slice.
func (r *Router) GetVisibleSessions(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visible.sessions(agentID)
}

// ─── Inspection ──────────────────────────────────────────────────────────────

// GetSession returns a snapshot of one session including its messages.
func (r *Router) GetSession(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, &SessionNotFoundError{ID: id}
	}
	return s.snapshot(), nil
}

// ListSessions returns every live session ordered by creation time.
func (r *Router) ListSessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.info())
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// VerifyVisibility rebuilds the visibility index from session membership
// and reports the first divergence from the incrementally maintained one.
func (r *Router) VerifyVisibility() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return diffVisibility(r.visible, rebuildVisibility(r.sessions))
}

// GetStatus never fails. Side-channel stats that cannot be fetched are
// reported in Status.Errors.
func (r *Router) GetStatus(ctx context.Context) Status {
	r.mu.RLock()
	st := Status{
		ActiveSessions:   len(r.sessions),
		KnownAgents:      len(r.visible),
		MirrorEnabled:    r.mirror != nil,
		GroupChatEnabled: r.chat != nil,
	}
	for _, s := range r.sessions {
		st.TotalMessages += len(s.messages)
	}
	if err := diffVisibility(r.visible, rebuildVisibility(r.sessions)); err != nil {
		st.Errors = map[string]string{"visibility": err.Error()}
	}
	r.mu.RUnlock()

	if sr, ok := r.mirror.(StatsReporter); ok {
		st.Mirror = r.collectStats(ctx, ChannelMirror, sr, &st)
	}
	if sr, ok := r.chat.(StatsReporter); ok {
		st.GroupChat = r.collectStats(ctx, ChannelGroupChat, sr, &st)
	}
	return st
}

func (r *Router) collectStats(ctx context.Context, channel string, sr StatsReporter, st *Status) map[string]int {
	var stats map[string]int
	err := r.guard(ctx, func(ctx context.Context) error {
		var err error
		stats, err = sr.Stats(ctx)
		return err
	})
	if err != nil {
		if st.Errors == nil {
			st.Errors = make(map[string]string)
		}
		st.Errors[channel] = err.Error()
		return nil
	}
	return stats
}

// ─── Side effects ────────────────────────────────────────────────────────────

// sideEffect runs fn under the side-effect timeout, detached from the
// caller's cancellation. Failures are logged and counted, never returned.
func (r *Router) sideEffect(ctx context.Context, channel, op, sessionID string, fn func(context.Context) error) bool {
	err := r.guard(ctx, fn)
	if err == nil {
		return true
	}

	wrapped := &ExternalSideEffectError{Channel: channel, Op: op, Err: err}
	metrics.SideEffectFailures.WithLabelValues(channel, op).Inc()
	r.logger.Warn().
		Err(wrapped).
		Str("session_id", sessionID).
		Str("channel", channel).
		Str("op", op).
		Msg("side effect failed")
	return false
}

// guard calls fn with a bounded context and turns panics into errors.
func (r *Router) guard(ctx context.Context, fn func(context.Context) error) (err error) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(tctx)
}

func cloneMessages(msgs []*Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}
