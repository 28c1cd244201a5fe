// Package memory implements the persistent message archive for agentrelay.
//
// It uses SQLite with FTS5 full-text search to store and retrieve copies of
// session messages. The router treats it as an optional mirror: nothing in
// the live session state depends on it.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// Record is one archived message.
type Record struct {
	ID        int64          `json:"id"`
	MessageID string         `json:"message_id"`
	SessionID string         `json:"session_id"`
	AgentID   string         `json:"agent_id"`
	Kind      string         `json:"kind"`
	Body      string         `json:"body"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Truncated bool           `json:"truncated,omitempty"`
}

// SearchResult embeds a Record with its FTS5 rank score.
type SearchResult struct {
	Record
	Rank float64 `json:"rank"`
}

// SearchOptions holds filters for FTS5 search queries.
type SearchOptions struct {
	SessionID string `json:"session_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// AddParams holds the input for archiving one message.
type AddParams struct {
	MessageID string
	SessionID string
	AgentID   string
	Kind      string
	Body      string
	Extra     map[string]any
	CreatedAt time.Time
}

// Stats holds aggregate archive statistics.
type Stats struct {
	ArchivedMessages int      `json:"archived_messages"`
	Sessions         int      `json:"sessions"`
	Agents           int      `json:"agents"`
	RecentSessions   []string `json:"recent_sessions"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds archive configuration.
type Config struct {
	DataDir          string
	MaxBodyLength    int
	MaxSearchResults int
}

// DefaultConfig returns the default configuration for the archive.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".agentrelay"),
		MaxBodyLength:    8000,
		MaxSearchResults: 50,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the message archive backed by SQLite + FTS5.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type sqlRowScanner struct {
	rows *sql.Rows
}

func (r sqlRowScanner) Next() bool             { return r.rows.Next() }
func (r sqlRowScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowScanner) Err() error             { return r.rows.Err() }
func (r sqlRowScanner) Close() error           { return r.rows.Close() }

// storeHooks lets tests replace the database calls to force failures.
type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	queryIt func(db queryer, query string, args ...any) (rowScanner, error)
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryItHook(db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(db, query, args...)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowScanner{rows: rows}, nil
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = DefaultConfig().MaxSearchResults
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "relay.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id  TEXT    NOT NULL UNIQUE,
			session_id  TEXT    NOT NULL,
			agent_id    TEXT    NOT NULL,
			kind        TEXT    NOT NULL DEFAULT 'text',
			body        TEXT    NOT NULL,
			extra       TEXT,
			truncated   INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_msg_session ON messages(session_id, id);
		CREATE INDEX IF NOT EXISTS idx_msg_agent   ON messages(agent_id, id);
		CREATE INDEX IF NOT EXISTS idx_msg_created ON messages(created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			body,
			agent_id,
			kind,
			content='messages',
			content_rowid='id'
		);
	`
	if _, err := s.execHook(s.db, schema); err != nil {
		return err
	}

	// Create FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='msg_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER msg_fts_insert AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, body, agent_id, kind)
				VALUES (new.id, new.body, new.agent_id, new.kind);
			END;

			CREATE TRIGGER msg_fts_delete AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, body, agent_id, kind)
				VALUES ('delete', old.id, old.body, old.agent_id, old.kind);
			END;

			CREATE TRIGGER msg_fts_update AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, body, agent_id, kind)
				VALUES ('delete', old.id, old.body, old.agent_id, old.kind);
				INSERT INTO messages_fts(rowid, body, agent_id, kind)
				VALUES (new.id, new.body, new.agent_id, new.kind);
			END;
		`
		if _, err := s.execHook(s.db, triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Messages ────────────────────────────────────────────────────────────────

// Add archives one message and returns its row id. Archiving the same
// MessageID twice is a no-op that returns the existing row id.
func (s *Store) Add(p AddParams) (int64, error) {
	if p.MessageID == "" || p.SessionID == "" {
		return 0, fmt.Errorf("memory: add: message_id and session_id are required")
	}
	if p.Kind == "" {
		p.Kind = "text"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	body := p.Body
	truncated := false
	if s.cfg.MaxBodyLength > 0 && len(body) > s.cfg.MaxBodyLength {
		body = Truncate(body, s.cfg.MaxBodyLength)
		truncated = true
	}

	var extra *string
	if len(p.Extra) > 0 {
		raw, err := json.Marshal(p.Extra)
		if err != nil {
			return 0, fmt.Errorf("memory: encode extra: %w", err)
		}
		extra = nullableString(string(raw))
	}

	res, err := s.execHook(s.db,
		`INSERT INTO messages (message_id, session_id, agent_id, kind, body, extra, truncated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MessageID, p.SessionID, p.AgentID, p.Kind, body, extra, truncated, formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			var id int64
			if qerr := s.db.QueryRow("SELECT id FROM messages WHERE message_id = ?", p.MessageID).Scan(&id); qerr != nil {
				return 0, fmt.Errorf("memory: lookup existing %q: %w", p.MessageID, qerr)
			}
			return id, nil
		}
		return 0, fmt.Errorf("memory: add: %w", err)
	}
	return res.LastInsertId()
}

// Get retrieves a single archived message by row id.
func (s *Store) Get(id int64) (*Record, error) {
	recs, err := s.queryRecords(
		"SELECT "+recordColumns+" FROM messages WHERE id = ?", id,
	)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("memory: message #%d not found", id)
	}
	return &recs[0], nil
}

// SessionMessages returns the most recent limit archived messages of a
// session in chronological order. limit <= 0 returns all of them. Archived
// messages outlive the session that produced them.
func (s *Store) SessionMessages(sessionID string, limit int) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM messages WHERE session_id = ?"
	args := []any{sessionID}
	if limit > 0 {
		query = "SELECT * FROM (" + query + " ORDER BY id DESC LIMIT ?) ORDER BY id ASC"
		args = append(args, limit)
	} else {
		query += " ORDER BY id ASC"
	}

	recs, err := s.queryRecords(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: session messages: %w", err)
	}
	return recs, nil
}

// ─── Search (FTS5) ───────────────────────────────────────────────────────────

// Search performs full-text search across archived messages with filters.
// If the query is empty or whitespace-only, falls back to returning recent
// messages.
func (s *Store) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)

	// Empty or whitespace-only query: fall back to recent messages (no FTS).
	if ftsQuery == "" {
		return s.searchRecent(opts, limit)
	}

	sqlStr := `
		SELECT m.id, m.message_id, m.session_id, m.agent_id, m.kind, m.body, m.extra, m.truncated, m.created_at,
		       fts.rank
		FROM messages_fts fts
		JOIN messages m ON m.id = fts.rowid
		WHERE messages_fts MATCH ?
	`
	args := []any{ftsQuery}

	if opts.SessionID != "" {
		sqlStr += " AND m.session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.AgentID != "" {
		sqlStr += " AND m.agent_id = ?"
		args = append(args, opts.AgentID)
	}

	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	results, err := s.querySearch(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// searchRecent returns the most recent messages without FTS, used as
// fallback when the query is empty or whitespace-only.
func (s *Store) searchRecent(opts SearchOptions, limit int) ([]SearchResult, error) {
	sqlStr := "SELECT " + recordColumns + ", 0 AS rank FROM messages WHERE 1 = 1"
	var args []any

	if opts.SessionID != "" {
		sqlStr += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.AgentID != "" {
		sqlStr += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}

	sqlStr += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	results, err := s.querySearch(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search recent: %w", err)
	}
	return results, nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate archive statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{RecentSessions: []string{}}

	if err := s.db.QueryRow(
		"SELECT COUNT(*), COUNT(DISTINCT session_id), COUNT(DISTINCT agent_id) FROM messages",
	).Scan(&stats.ArchivedMessages, &stats.Sessions, &stats.Agents); err != nil {
		return nil, fmt.Errorf("memory: stats: %w", err)
	}

	rows, err := s.queryItHook(s.db, "SELECT session_id FROM messages GROUP BY session_id ORDER BY MAX(id) DESC LIMIT 10")
	if err != nil {
		return stats, nil
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			stats.RecentSessions = append(stats.RecentSessions, id)
		}
	}

	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const recordColumns = "id, message_id, session_id, agent_id, kind, body, extra, truncated, created_at"

// scanRecord reads recordColumns, plus any extra destinations, from rows.
func scanRecord(rows rowScanner, extraDest ...any) (Record, error) {
	var (
		r         Record
		extra     sql.NullString
		createdAt string
	)
	dest := append([]any{
		&r.ID, &r.MessageID, &r.SessionID, &r.AgentID, &r.Kind, &r.Body, &extra, &r.Truncated, &createdAt,
	}, extraDest...)
	if err := rows.Scan(dest...); err != nil {
		return Record{}, err
	}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &r.Extra); err != nil {
			return Record{}, fmt.Errorf("decode extra for %s: %w", r.MessageID, err)
		}
	}
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

func (s *Store) queryRecords(query string, args ...any) ([]Record, error) {
	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) querySearch(query string, args ...any) ([]SearchResult, error) {
	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var rank float64
		r, err := scanRecord(rows, &rank)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Record: r, Rank: rank})
	}
	return results, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Truncate shortens a string to at most max bytes plus an ellipsis. The
// cut backs off to a rune boundary so the result stays valid UTF-8.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		if w = strings.ReplaceAll(w, `"`, ""); w != "" {
			words = append(words, `"`+w+`"`)
		}
	}
	return strings.Join(words, " ")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
