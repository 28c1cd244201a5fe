package ctxbridge

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cast"
)

var (
	reviewPattern  = regexp.MustCompile(`(?i)\b(def|func|function|class|method)\b`)
	testingPattern = regexp.MustCompile(`(?i)(test|spec|assert|expect|mock)`)
	wordPattern    = regexp.MustCompile(`[a-z0-9_]+`)
)

// topicRules maps a topic to the word prefixes that signal it. Order is
// the order topics are reported in.
var topicRules = []struct {
	topic    string
	prefixes []string
}{
	{"authentication", []string{"auth", "login", "password", "oauth", "token", "session"}},
	{"database", []string{"database", "sql", "query", "schema", "migration", "postgres", "sqlite"}},
	{"api", []string{"api", "endpoint", "http", "rest", "grpc", "route"}},
	{"testing", []string{"test", "assert", "mock", "coverage", "fixture"}},
	{"performance", []string{"perf", "latency", "slow", "optimi", "cache", "benchmark"}},
	{"errors", []string{"error", "exception", "panic", "crash", "bug", "stacktrace"}},
	{"security", []string{"security", "vulnerab", "xss", "inject", "encrypt", "csrf"}},
	{"deployment", []string{"deploy", "docker", "kubernetes", "helm", "pipeline", "release"}},
	{"frontend", []string{"frontend", "css", "html", "react", "layout", "component"}},
	{"refactoring", []string{"refactor", "cleanup", "rename", "extract", "simplif"}},
}

// topicsOf returns the topics mentioned in text, in topicRules order.
func topicsOf(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	var out []string
	for _, rule := range topicRules {
		if mentions(words, rule.prefixes) {
			out = append(out, rule.topic)
		}
	}
	return out
}

func mentions(words, prefixes []string) bool {
	for _, w := range words {
		for _, p := range prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
	}
	return false
}

// historyTopics collects the distinct topics of a slice of history entries.
// Tag lines added by enrich are skipped so topics do not feed themselves.
func historyTopics(history []ProcessedMessage) []string {
	texts := make([]string, 0, len(history))
	for _, m := range history {
		text := m.Content
		if m.Metadata.Enhanced {
			if _, body, ok := strings.Cut(text, "\n"); ok {
				text = body
			}
		}
		texts = append(texts, text)
	}
	return topicsOf(strings.Join(texts, "\n"))
}

// techStack reads project_info["tech_stack"], accepting a list or a
// comma-separated string.
func techStack(info map[string]any) []string {
	raw, ok := info["tech_stack"]
	if !ok || raw == nil {
		return nil
	}
	var items []string
	if s, ok := raw.(string); ok {
		items = strings.Split(s, ",")
	} else {
		items = cast.ToStringSlice(raw)
	}
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func titleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// enricher decides whether a rule applies and which tags it adds.
type enricher func(content string, ctx *ConversationContext, recent []string) (tags []string, ok bool)

var enrichers = map[TaskType]enricher{
	TaskCoding:  enrichCoding,
	TaskReview:  enrichReview,
	TaskTesting: enrichTesting,
}

// enrich returns content with prefix tags for the context's task type.
// Content itself is never changed or reordered; user contexts pass through.
func enrich(content string, ctx *ConversationContext, recentWindow int) (string, bool) {
	if ctx.AgentRole == RoleUser {
		return content, false
	}

	recent := historyTopics(tail(ctx.History, recentWindow))

	var tags []string
	if fn, ok := enrichers[ctx.TaskType]; ok && ctx.AgentRole != RoleGeneralist {
		if t, ok := fn(content, ctx, recent); ok {
			tags = t
		}
	}
	if tags == nil {
		tags = []string{fmt.Sprintf("[Agent role: %s]", ctx.AgentRole)}
	}
	return strings.Join(tags, " ") + "\n" + content, true
}

func enrichCoding(content string, ctx *ConversationContext, recent []string) ([]string, bool) {
	overlap := slices.ContainsFunc(topicsOf(content), func(t string) bool {
		return slices.Contains(recent, t)
	})
	if ctx.AgentRole != RoleDeveloper && ctx.AgentRole != RoleReviewer && !overlap {
		return nil, false
	}

	tags := []string{fmt.Sprintf("[%s perspective]", titleCase(string(ctx.AgentRole)))}
	if stack := techStack(ctx.ProjectInfo); len(stack) > 0 {
		tags = append(tags, fmt.Sprintf("[Tech stack: %s]", strings.Join(stack, ", ")))
	}
	if len(recent) > 0 {
		tags = append(tags, fmt.Sprintf("[Recent topics: %s]", strings.Join(recent, ", ")))
	}
	return tags, true
}

func enrichReview(content string, ctx *ConversationContext, _ []string) ([]string, bool) {
	if ctx.AgentRole != RoleReviewer && !reviewPattern.MatchString(content) {
		return nil, false
	}
	return []string{"[Review focus: correctness, edge cases, readability]"}, true
}

func enrichTesting(content string, ctx *ConversationContext, _ []string) ([]string, bool) {
	if ctx.AgentRole != RoleTester && !testingPattern.MatchString(content) {
		return nil, false
	}
	return []string{"[Testing focus: coverage, edge cases, failure modes]"}, true
}

func tail[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
