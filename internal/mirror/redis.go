package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultRedisTTL is how long mirrored messages and word indexes live.
	DefaultRedisTTL = 7 * 24 * time.Hour

	minWordLength = 3

	// searchPage is how many index entries Search reads per round trip
	// while it fills a filtered result.
	searchPage = 100
)

// wordRegex matches word characters for search indexing.
var wordRegex = regexp.MustCompile(`\w+`)

// Redis mirrors messages into Redis with a per-word sorted-set index.
//
// Key layout under prefix P:
//
//	P:msg:<message id>          JSON MirrorRecord
//	P:session:<id>:messages     ZSET of message ids scored by unix millis
//	P:words:<word>              ZSET of "<session id>:<message id>"
//	P:sessions, P:agents        SETs used for stats
//	P:messages                  counter used for stats
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis creates a Redis mirror. An empty prefix defaults to "agentrelay"
// and ttl <= 0 defaults to DefaultRedisTTL.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *Redis {
	if prefix == "" {
		prefix = "agentrelay"
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "mirror").Logger(),
	}
}

func (r *Redis) messageKey(id string) string { return fmt.Sprintf("%s:msg:%s", r.prefix, id) }

func (r *Redis) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s:messages", r.prefix, id)
}

func (r *Redis) wordKey(word string) string { return fmt.Sprintf("%s:words:%s", r.prefix, word) }

func (r *Redis) statsKey(name string) string { return fmt.Sprintf("%s:%s", r.prefix, name) }

// indexWords returns the distinct lowercase words of body worth indexing.
func indexWords(body string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordRegex.FindAllString(strings.ToLower(body), -1) {
		if len(w) < minWordLength || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func wordRef(sessionID, messageID string) string {
	return sessionID + ":" + messageID
}

// parseWordRef splits a word-index member. Session ids may contain ':'
// while ULID message ids never do, so the split is on the last colon.
func parseWordRef(ref string) (sessionID, messageID string, ok bool) {
	i := strings.LastIndexByte(ref, ':')
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// Store writes rec and its word index in one pipeline.
func (r *Redis) Store(ctx context.Context, rec router.MirrorRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	score := float64(rec.CreatedAt.UnixMilli())

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.messageKey(rec.MessageID), data, r.ttl)
	pipe.ZAdd(ctx, r.sessionKey(rec.SessionID), redis.Z{Score: score, Member: rec.MessageID})
	pipe.Expire(ctx, r.sessionKey(rec.SessionID), r.ttl)
	for _, w := range indexWords(rec.Body) {
		pipe.ZAdd(ctx, r.wordKey(w), redis.Z{Score: score, Member: wordRef(rec.SessionID, rec.MessageID)})
		pipe.Expire(ctx, r.wordKey(w), r.ttl)
	}
	pipe.SAdd(ctx, r.statsKey("sessions"), rec.SessionID)
	pipe.SAdd(ctx, r.statsKey("agents"), rec.AgentID)
	pipe.Incr(ctx, r.statsKey("messages"))

	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return r.messageKey(rec.MessageID), nil
}

// Search returns the newest messages containing every indexed query word.
// The index is read newest first in pages until limit messages pass the
// session and agent filters or the index runs out.
func (r *Redis) Search(ctx context.Context, query string, filter router.SearchFilter) ([]router.MirrorRecord, error) {
	words := indexWords(query)
	if len(words) == 0 {
		return []router.MirrorRecord{}, nil
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = router.DefaultSearchLimit
	}

	key, release, err := r.matchKey(ctx, words)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]router.MirrorRecord, 0, limit)
	for offset := int64(0); len(out) < limit; offset += searchPage {
		refs, err := r.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    "+inf",
			Offset: offset,
			Count:  searchPage,
		}).Result()
		if err != nil {
			return nil, err
		}

		for _, ref := range refs {
			sessionID, messageID, ok := parseWordRef(ref)
			if !ok {
				continue
			}
			if filter.SessionID != "" && sessionID != filter.SessionID {
				continue
			}

			rec, err := r.get(ctx, messageID)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				continue
			}
			if filter.AgentID != "" && rec.AgentID != filter.AgentID {
				continue
			}
			out = append(out, *rec)
			if len(out) >= limit {
				break
			}
		}
		if len(refs) < searchPage {
			break
		}
	}
	return out, nil
}

// matchKey returns the sorted set holding the references that contain every
// word. Several words are intersected into a short-lived temporary key,
// which release deletes.
func (r *Redis) matchKey(ctx context.Context, words []string) (key string, release func(), err error) {
	if len(words) == 1 {
		return r.wordKey(words[0]), func() {}, nil
	}

	keys := make([]string, len(words))
	for i, w := range words {
		keys[i] = r.wordKey(w)
	}

	tempKey := fmt.Sprintf("%s:search:tmp:%s", r.prefix, uuid.NewString())
	release = func() { r.client.Del(context.WithoutCancel(ctx), tempKey) }

	pipe := r.client.TxPipeline()
	pipe.ZInterStore(ctx, tempKey, &redis.ZStore{Keys: keys, Aggregate: "MIN"})
	pipe.Expire(ctx, tempKey, 30*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		release()
		return "", nil, err
	}
	return tempKey, release, nil
}

func (r *Redis) get(ctx context.Context, messageID string) (*router.MirrorRecord, error) {
	data, err := r.client.Get(ctx, r.messageKey(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec router.MirrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Warn().Err(err).Str("message_id", messageID).Msg("skip corrupt mirror record")
		return nil, nil
	}
	rec.MirrorRef = r.messageKey(messageID)
	return &rec, nil
}

// Stats reports mirror counts for the status snapshot.
func (r *Redis) Stats(ctx context.Context) (map[string]int, error) {
	pipe := r.client.Pipeline()
	msgs := pipe.Get(ctx, r.statsKey("messages"))
	sessions := pipe.SCard(ctx, r.statsKey("sessions"))
	agents := pipe.SCard(ctx, r.statsKey("agents"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	n, err := msgs.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return map[string]int{
		"archived_messages": n,
		"sessions":          int(sessions.Val()),
		"agents":            int(agents.Val()),
	}, nil
}
