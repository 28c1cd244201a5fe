// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it builds the optional side channels from
// configuration, injects them into the router and registers tools, prompts
// and resources. No routing logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/HendryAvila/agentrelay/internal/chattools"
	"github.com/HendryAvila/agentrelay/internal/config"
	"github.com/HendryAvila/agentrelay/internal/ctxbridge"
	"github.com/HendryAvila/agentrelay/internal/ctxtools"
	"github.com/HendryAvila/agentrelay/internal/groupchat"
	"github.com/HendryAvila/agentrelay/internal/memory"
	"github.com/HendryAvila/agentrelay/internal/mirror"
	"github.com/HendryAvila/agentrelay/internal/prompts"
	"github.com/HendryAvila/agentrelay/internal/rediscli"
	"github.com/HendryAvila/agentrelay/internal/resources"
	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server bundles the MCP server with the services behind it.
type Server struct {
	MCP       *server.MCPServer
	Router    *router.Router
	Bridge    *ctxbridge.Bridge
	Resources *resources.Handler
}

// Status returns the relay status snapshot for the HTTP side listener.
func (s *Server) Status(ctx context.Context) any {
	return s.Resources.Snapshot(ctx)
}

// dial is a package-level var to allow test injection.
var dial = rediscli.Dial

// New creates and configures the MCP server with all tools, prompts and
// resources registered.
//
// The mirror and group chat are independent subsystems: if either fails to
// initialize, a warning is logged and the router runs without it. The
// returned cleanup function closes whatever was opened. It is always
// non-nil and safe to call even when New fails.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	if cfg == nil {
		return nil, noop, fmt.Errorf("server: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Redis (shared by the Redis mirror and the group chat) ---

	var rdb *redis.Client
	if cfg.Mirror.Backend == config.MirrorRedis || cfg.GroupChat.Enabled {
		client, err := dial(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; redis mirror and group chat disabled")
		} else {
			rdb = client
			closers = append(closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn().Err(err).Msg("redis close")
				}
			})
		}
	}

	// --- Mirror ---
	//
	// Interfaces are assigned only on success so a failed backend leaves
	// them nil rather than holding a typed nil pointer.

	var m router.Mirror
	switch cfg.Mirror.Backend {
	case config.MirrorSQLite:
		store, err := memory.New(memory.Config{
			DataDir:          cfg.DataDir,
			MaxBodyLength:    cfg.Mirror.MaxBodyLength,
			MaxSearchResults: cfg.Mirror.MaxSearchResults,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("message archive disabled")
		} else {
			closers = append(closers, func() {
				if err := store.Close(); err != nil {
					logger.Warn().Err(err).Msg("message archive close")
				}
			})
			m = mirror.NewArchive(store)
		}
	case config.MirrorRedis:
		if rdb != nil {
			m = mirror.NewRedis(rdb, cfg.GroupChat.ChannelPrefix, 0, logger)
		}
	}

	// --- Group chat ---

	var chat router.GroupChat
	if cfg.GroupChat.Enabled && rdb != nil {
		chat = groupchat.New(rdb, cfg.GroupChat.ChannelPrefix, logger)
	}

	// --- Core services ---

	rt := router.New(router.Config{
		Mirror:            m,
		GroupChat:         chat,
		Logger:            logger,
		SideEffectTimeout: cfg.SideEffectTimeout,
	})

	maxHistory := cfg.Context.MaxHistory
	if maxHistory == 0 {
		// 0 means unbounded in config; the bridge spells that as negative.
		maxHistory = -1
	}
	bridge := ctxbridge.New(ctxbridge.Config{
		MaxHistory:   maxHistory,
		IdleTTL:      cfg.Context.IdleTTL,
		RecentWindow: cfg.Context.RecentWindow,
		Logger:       logger,
	})

	logger.Info().
		Str("mirror", backendName(cfg.Mirror.Backend, m != nil)).
		Bool("group_chat", chat != nil).
		Msg("relay configured")

	// --- Create the MCP server ---

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		logger.Debug().Str("tool", req.Params.Name).Msg("tool call")
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Warn().Err(err).Str("method", string(method)).Msg("mcp request failed")
	})

	s := server.NewMCPServer(
		"agentrelay",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions(serverInstructions()),
	)

	registerChatTools(s, rt)
	registerContextTools(s, rt, bridge)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(rt, bridge)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)
	s.AddResource(resourceHandler.SessionsResource(), resourceHandler.HandleSessions)

	return &Server{
		MCP:       s,
		Router:    rt,
		Bridge:    bridge,
		Resources: resourceHandler,
	}, cleanup, nil
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

func backendName(configured string, ok bool) string {
	if !ok {
		return config.MirrorNone
	}
	return configured
}

// registerChatTools registers the 11 session router tools.
func registerChatTools(s *server.MCPServer, rt *router.Router) {
	// --- Session lifecycle ---
	create := chattools.NewSessionCreateTool(rt)
	s.AddTool(create.Definition(), create.Handle)

	closeTool := chattools.NewSessionCloseTool(rt)
	s.AddTool(closeTool.Definition(), closeTool.Handle)

	list := chattools.NewListSessionsTool(rt)
	s.AddTool(list.Definition(), list.Handle)

	// --- Messages ---
	send := chattools.NewSendTool(rt)
	s.AddTool(send.Definition(), send.Handle)

	messages := chattools.NewMessagesTool(rt)
	s.AddTool(messages.Definition(), messages.Handle)

	conversations := chattools.NewAgentConversationsTool(rt)
	s.AddTool(conversations.Definition(), conversations.Handle)

	search := chattools.NewSearchTool(rt)
	s.AddTool(search.Definition(), search.Handle)

	// --- Membership ---
	addAgent := chattools.NewAddAgentTool(rt)
	s.AddTool(addAgent.Definition(), addAgent.Handle)

	removeAgent := chattools.NewRemoveAgentTool(rt)
	s.AddTool(removeAgent.Definition(), removeAgent.Handle)

	visible := chattools.NewVisibleSessionsTool(rt)
	s.AddTool(visible.Definition(), visible.Handle)

	// --- Status ---
	status := chattools.NewStatusTool(rt)
	s.AddTool(status.Definition(), status.Handle)
}

// registerContextTools registers the context bridge tools.
func registerContextTools(s *server.MCPServer, rt *router.Router, b *ctxbridge.Bridge) {
	process := ctxtools.NewProcessTool(b)
	s.AddTool(process.Definition(), process.Handle)

	response := ctxtools.NewResponseTool(b)
	s.AddTool(response.Definition(), response.Handle)

	summary := ctxtools.NewSummaryTool(b)
	s.AddTool(summary.Definition(), summary.Handle)

	compose := ctxtools.NewComposeFromSessionTool(rt, b)
	s.AddTool(compose.Definition(), compose.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use agentrelay.
func serverInstructions() string {
	return `You have access to agentrelay, a message relay between AI agents running in separate chats.

## SESSIONS

A session is a shared conversation. Every chat that takes part identifies itself
with an agent_id (for example "developer", "reviewer", "cursor-2").

- chat_session_create opens a session and lists its first members
- chat_send posts a message; a sender that is not yet a member joins automatically
- chat_messages reads the latest messages of one session, oldest first
- chat_visible_sessions lists the sessions an agent belongs to
- chat_agent_conversations collects everything one agent said across sessions
- chat_add_agent / chat_remove_agent manage membership explicitly
- chat_session_close ends a session for everyone; its id can be reused

Check chat_visible_sessions at the start of a conversation so you pick up work
other agents left for you.

## SEARCH

chat_search looks through mirrored message content, including sessions that
were already closed. It returns nothing when no mirror is configured.

## CONTEXT BRIDGE

ctx_process turns raw messages into a prompt written for a role (coordinator,
developer, reviewer, tester) and task (coding, review, testing, general). Keep
the returned session_id and pass it back to continue the same context.
ctx_response records a model reply and reports code, errors and questions in it.
ctx_compose_from_session builds such a prompt directly from a chat session.
ctx_summary shows what a context has covered so far.

## STATUS

chat_status and the relay://status resource report open sessions, agents,
message totals and whether the mirror and group chat are healthy.`
}
