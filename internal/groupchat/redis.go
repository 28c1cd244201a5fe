// Package groupchat implements router.GroupChat on Redis pub/sub. Each open
// chat gets a hash describing it and an events channel that external agent
// runtimes subscribe to.
package groupchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrChatNotFound is returned when a ref does not name an open chat.
var ErrChatNotFound = errors.New("group chat not found")

// Event types published on a chat's channel.
const (
	EventOpened  = "opened"
	EventMessage = "message"
	EventClosed  = "closed"
)

// Event is the JSON payload published for every chat change.
type Event struct {
	Type       string    `json:"type"`
	Ref        string    `json:"ref"`
	Label      string    `json:"label,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	AgentIDs   []string  `json:"agent_ids,omitempty"`
	Body       string    `json:"body,omitempty"`
	Seq        int64     `json:"seq,omitempty"`
	InstanceID string    `json:"instance_id"`
	At         time.Time `json:"at"`
}

// Handler receives events delivered to Subscribe.
type Handler func(Event)

// Backend is a Redis pub/sub group-chat backend.
type Backend struct {
	client     *redis.Client
	prefix     string
	instanceID string
	logger     zerolog.Logger

	mu        sync.Mutex
	forwarded int
}

// New creates a Backend. An empty prefix defaults to "agentrelay".
func New(client *redis.Client, prefix string, logger zerolog.Logger) *Backend {
	if prefix == "" {
		prefix = "agentrelay"
	}
	return &Backend{
		client:     client,
		prefix:     prefix,
		instanceID: uuid.NewString(),
		logger:     logger.With().Str("component", "groupchat").Logger(),
	}
}

func (b *Backend) chatKey(ref string) string { return fmt.Sprintf("%s:chat:%s", b.prefix, ref) }

func (b *Backend) seqKey(ref string) string { return fmt.Sprintf("%s:chat:%s:seq", b.prefix, ref) }

func (b *Backend) openKey() string { return b.prefix + ":chats" }

// Channel returns the pub/sub channel carrying events for ref.
func (b *Backend) Channel(ref string) string {
	return fmt.Sprintf("%s:chat:%s:events", b.prefix, ref)
}

func (b *Backend) publish(ctx context.Context, ev Event) (int64, error) {
	ev.InstanceID = b.instanceID
	ev.At = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.Channel(ev.Ref), data).Result()
}

// Open registers a chat for agentIDs and announces it.
func (b *Backend) Open(ctx context.Context, label string, agentIDs []string) (string, error) {
	ref := "gc-" + uuid.NewString()
	members, err := json.Marshal(agentIDs)
	if err != nil {
		return "", fmt.Errorf("encode members: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.chatKey(ref), map[string]any{
		"label":     label,
		"agents":    string(members),
		"opened_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, b.openKey(), ref)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}

	if _, err := b.publish(ctx, Event{Type: EventOpened, Ref: ref, Label: label, AgentIDs: agentIDs}); err != nil {
		return "", err
	}
	b.logger.Debug().Str("ref", ref).Str("label", label).Msg("group chat opened")
	return ref, nil
}

// Forward publishes body to the chat and returns "<ref>#<seq>".
func (b *Backend) Forward(ctx context.Context, ref, agentID, body string) (string, error) {
	n, err := b.client.Exists(ctx, b.chatKey(ref)).Result()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s", ErrChatNotFound, ref)
	}

	seq, err := b.client.Incr(ctx, b.seqKey(ref)).Result()
	if err != nil {
		return "", err
	}
	receivers, err := b.publish(ctx, Event{Type: EventMessage, Ref: ref, AgentID: agentID, Body: body, Seq: seq})
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.forwarded++
	b.mu.Unlock()

	b.logger.Debug().Str("ref", ref).Int64("seq", seq).Int64("receivers", receivers).Msg("message forwarded")
	return fmt.Sprintf("%s#%d", ref, seq), nil
}

// Close announces the end of the chat and removes its keys.
func (b *Backend) Close(ctx context.Context, ref string) error {
	if _, err := b.publish(ctx, Event{Type: EventClosed, Ref: ref}); err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.chatKey(ref), b.seqKey(ref))
	pipe.SRem(ctx, b.openKey(), ref)
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe delivers events for ref to h until ctx is cancelled. Events
// published by this Backend are skipped.
func (b *Backend) Subscribe(ctx context.Context, ref string, h Handler) error {
	sub := b.client.Subscribe(ctx, b.Channel(ref))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed event")
					continue
				}
				if ev.InstanceID == b.instanceID {
					continue
				}
				h(ev)
			}
		}
	}()
	return nil
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" || ev.Ref == "" {
		return Event{}, fmt.Errorf("event missing type or ref")
	}
	return ev, nil
}

// Stats reports open chats and messages forwarded by this process.
func (b *Backend) Stats(ctx context.Context) (map[string]int, error) {
	open, err := b.client.SCard(ctx, b.openKey()).Result()
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	forwarded := b.forwarded
	b.mu.Unlock()
	return map[string]int{
		"open_chats": int(open),
		"forwarded":  forwarded,
	}, nil
}
