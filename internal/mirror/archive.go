// Package mirror holds the router.Mirror implementations: the SQLite
// archive (default) and a Redis word-index mirror.
package mirror

import (
	"context"
	"fmt"

	"github.com/HendryAvila/agentrelay/internal/memory"
	"github.com/HendryAvila/agentrelay/internal/router"
)

// Archive mirrors router messages into the SQLite message archive.
type Archive struct {
	store *memory.Store
}

// NewArchive wraps store. Callers must not pass a nil store.
func NewArchive(store *memory.Store) *Archive {
	return &Archive{store: store}
}

// Store archives rec and returns "archive:<row id>".
func (a *Archive) Store(ctx context.Context, rec router.MirrorRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := a.store.Add(memory.AddParams{
		MessageID: rec.MessageID,
		SessionID: rec.SessionID,
		AgentID:   rec.AgentID,
		Kind:      rec.Kind,
		Body:      rec.Body,
		Extra:     rec.Extra,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		return "", err
	}
	return archiveRef(id), nil
}

// Search runs an FTS5 query against the archive.
func (a *Archive) Search(ctx context.Context, query string, filter router.SearchFilter) ([]router.MirrorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := a.store.Search(query, memory.SearchOptions{
		SessionID: filter.SessionID,
		AgentID:   filter.AgentID,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]router.MirrorRecord, 0, len(results))
	for _, r := range results {
		out = append(out, recordFromArchive(r.Record))
	}
	return out, nil
}

// Stats reports archive counts for the status snapshot.
func (a *Archive) Stats(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := a.store.Stats()
	if err != nil {
		return nil, err
	}
	return map[string]int{
		"archived_messages": st.ArchivedMessages,
		"sessions":          st.Sessions,
		"agents":            st.Agents,
	}, nil
}

func archiveRef(id int64) string {
	return fmt.Sprintf("archive:%d", id)
}

func recordFromArchive(r memory.Record) router.MirrorRecord {
	return router.MirrorRecord{
		MessageID: r.MessageID,
		SessionID: r.SessionID,
		AgentID:   r.AgentID,
		Body:      r.Body,
		Kind:      r.Kind,
		Extra:     r.Extra,
		CreatedAt: r.CreatedAt,
		MirrorRef: archiveRef(r.ID),
	}
}
