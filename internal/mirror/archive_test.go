package mirror_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/agentrelay/internal/memory"
	"github.com/HendryAvila/agentrelay/internal/mirror"
	"github.com/HendryAvila/agentrelay/internal/router"
	"github.com/rs/zerolog"
)

func newArchive(t *testing.T) *mirror.Archive {
	t.Helper()
	store, err := memory.New(memory.Config{DataDir: t.TempDir(), MaxSearchResults: 20})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return mirror.NewArchive(store)
}

func TestArchive_StoreAndSearch(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	ref, err := a.Store(ctx, router.MirrorRecord{
		MessageID: "01J0000000000000000000000A",
		SessionID: "s1",
		AgentID:   "dev",
		Body:      "rollback the migration",
		Kind:      "text",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ref, "archive:") {
		t.Errorf("ref = %q", ref)
	}

	got, err := a.Search(ctx, "migration", router.SearchFilter{SessionID: "s1", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].AgentID != "dev" || got[0].MirrorRef != ref {
		t.Errorf("search = %+v", got)
	}

	got, _ = a.Search(ctx, "migration", router.SearchFilter{AgentID: "rev"})
	if len(got) != 0 {
		t.Errorf("agent filter leaked %d results", len(got))
	}
}

func TestArchive_Stats(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()
	for i, agent := range []string{"dev", "rev", "dev"} {
		if _, err := a.Store(ctx, router.MirrorRecord{
			MessageID: string(rune('a' + i)),
			SessionID: "s1",
			AgentID:   agent,
			Body:      "x",
		}); err != nil {
			t.Fatal(err)
		}
	}

	st, err := a.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st["archived_messages"] != 3 || st["agents"] != 2 || st["sessions"] != 1 {
		t.Errorf("stats = %v", st)
	}
}

func TestArchive_CancelledContext(t *testing.T) {
	a := newArchive(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Store(ctx, router.MirrorRecord{MessageID: "m", SessionID: "s"}); err == nil {
		t.Error("Store with cancelled context succeeded")
	}
}

// The archive plugged into a router: every send lands in SQLite and
// router.Search goes through FTS5.
func TestArchive_WithRouter(t *testing.T) {
	a := newArchive(t)
	r := router.New(router.Config{Mirror: a, Logger: zerolog.Nop()})
	ctx := context.Background()

	if _, err := r.CreateSession(ctx, "s1", []string{"dev"}, ""); err != nil {
		t.Fatal(err)
	}
	m, err := r.SendMessage(ctx, "s1", "dev", "cache invalidation strikes again", "", map[string]any{"ticket": "OPS-1"})
	if err != nil {
		t.Fatal(err)
	}
	if m.MirrorRef == nil {
		t.Fatal("MirrorRef is nil with a working archive")
	}

	hits, err := r.Search(ctx, "invalidation", "", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != m.ID || hits[0].Extra["ticket"] != "OPS-1" {
		t.Errorf("hits = %+v", hits)
	}

	// Archived copies outlive the session.
	if _, err := r.CloseSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	hits, _ = r.Search(ctx, "invalidation", "s1", "", 0)
	if len(hits) != 1 {
		t.Errorf("after close got %d hits, want 1", len(hits))
	}
}
