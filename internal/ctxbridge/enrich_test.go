package ctxbridge

import (
	"slices"
	"testing"
	"unicode/utf8"
)

func TestTopicsOf(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"nothing relevant here", nil},
		{"Login fails with a PANIC", []string{"authentication", "errors"}},
		{"add an HTTP endpoint and a migration", []string{"database", "api"}},
		{"Refactoring the deploy pipeline", []string{"deployment", "refactoring"}},
	}
	for _, tt := range tests {
		if got := topicsOf(tt.text); !slices.Equal(got, tt.want) {
			t.Errorf("topicsOf(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestTechStack(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want []string
	}{
		{"missing", map[string]any{}, nil},
		{"nil map", nil, nil},
		{"comma string", map[string]any{"tech_stack": "Go, Redis ,"}, []string{"Go", "Redis"}},
		{"string slice", map[string]any{"tech_stack": []string{"Go", "SQLite"}}, []string{"Go", "SQLite"}},
		{"any slice", map[string]any{"tech_stack": []any{"Go", 1}}, []string{"Go", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := techStack(tt.info); !slices.Equal(got, tt.want) {
				t.Errorf("techStack() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAgentRole(t *testing.T) {
	if r, ok := ParseAgentRole(" Reviewer "); !ok || r != RoleReviewer {
		t.Errorf("ParseAgentRole(Reviewer) = %q, %v", r, ok)
	}
	if r, ok := ParseAgentRole("bard"); ok || r != RoleGeneralist {
		t.Errorf("ParseAgentRole(bard) = %q, %v", r, ok)
	}
	if r, ok := ParseAgentRole("  "); ok || r != RoleDeveloper {
		t.Errorf("ParseAgentRole(blank) = %q, %v", r, ok)
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"user":     "User",
		"émetteur": "Émetteur",
		"日本":       "日本",
		"\xffab":   "\xffab",
	}
	for in, want := range tests {
		got := titleCase(in)
		if got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
		if utf8.ValidString(in) && !utf8.ValidString(got) {
			t.Errorf("titleCase(%q) produced invalid UTF-8 %q", in, got)
		}
	}
}
