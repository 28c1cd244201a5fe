package ctxbridge

import (
	"regexp"
	"strings"
)

// responseMarkers are chat-template tokens some generators leak into
// their output.
var responseMarkers = strings.NewReplacer(
	"<|im_start|>assistant", "",
	"<|im_start|>", "",
	"<|im_end|>", "",
	"<|endoftext|>", "",
	"<|assistant|>", "",
	"[INST]", "",
	"[/INST]", "",
	"<s>", "",
	"</s>", "",
	"### Response:", "",
)

var (
	blankLines   = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
	codeDefn     = regexp.MustCompile(`(?m)^\s*(def|func|function|class)\s+\w+`)
	errorKeyword = regexp.MustCompile(`(?i)\b(error|errors|exception|traceback|failed|failure|panic)\b`)
)

// cleanResponse strips template markers and collapses runs of blank lines.
func cleanResponse(raw string) string {
	s := responseMarkers.Replace(raw)
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// extractInfo never fails; empty input yields the zero value.
func extractInfo(text string) ExtractedInfo {
	fences := strings.Count(text, "```")
	return ExtractedInfo{
		ContainsCode:     fences > 0 || codeDefn.MatchString(text),
		ContainsError:    errorKeyword.MatchString(text),
		ContainsQuestion: strings.Contains(text, "?"),
		WordCount:        len(strings.Fields(text)),
		CodeBlocks:       fences / 2,
	}
}
