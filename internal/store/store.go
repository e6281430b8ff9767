package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/mythmaker/internal"
	"github.com/valpere/mythmaker/internal/arbiter"
)

// ErrNotFound is returned when no session has the requested ID.
var ErrNotFound = errors.New("session not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		location_key TEXT NOT NULL,
		visuals TEXT NOT NULL,
		lore TEXT NOT NULL,
		final_myth TEXT NOT NULL,
		stop_reason TEXT NOT NULL,
		iterations INTEGER NOT NULL,
		final_score REAL,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- session_drafts keeps every draft with the critic's verdict on it
	CREATE TABLE IF NOT EXISTS session_drafts (
		session_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		draft_text TEXT NOT NULL,
		evaluation TEXT,
		PRIMARY KEY (session_id, iteration),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_location ON sessions(location_key);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSession archives a completed session together with its drafts.
func (s *Store) SaveSession(ctx context.Context, mem *internal.SessionMemory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var finalScore sql.NullFloat64
	if n := len(mem.Evaluations); n > 0 && mem.Evaluations[n-1].Outcome == arbiter.Evaluated {
		finalScore = sql.NullFloat64{Float64: mem.Evaluations[n-1].Score, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, location, location_key, visuals, lore, final_myth, stop_reason, iterations, final_score, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.Location, locationKey(mem.Location), mem.Visuals, mem.Lore, mem.FinalMyth,
		mem.StopReason, len(mem.Drafts), finalScore, mem.StartedAt, mem.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for i, draft := range mem.Drafts {
		var evaluation sql.NullString
		if i < len(mem.Evaluations) {
			data, err := json.Marshal(mem.Evaluations[i])
			if err != nil {
				return fmt.Errorf("encode evaluation %d: %w", i+1, err)
			}
			evaluation = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_drafts (session_id, iteration, draft_text, evaluation) VALUES (?, ?, ?, ?)`,
			mem.ID, i+1, draft, evaluation); err != nil {
			return fmt.Errorf("insert draft %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// GetSession loads an archived session with its drafts and evaluations.
func (s *Store) GetSession(ctx context.Context, id string) (*internal.SessionMemory, error) {
	mem := &internal.SessionMemory{}
	var durationMs int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, location, visuals, lore, final_myth, stop_reason, started_at, duration_ms FROM sessions WHERE id = ?`,
		id).Scan(&mem.ID, &mem.Location, &mem.Visuals, &mem.Lore, &mem.FinalMyth, &mem.StopReason, &mem.StartedAt, &durationMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	mem.Duration = time.Duration(durationMs) * time.Millisecond

	rows, err := s.db.QueryContext(ctx,
		`SELECT draft_text, evaluation FROM session_drafts WHERE session_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var draft string
		var evaluation sql.NullString
		if err := rows.Scan(&draft, &evaluation); err != nil {
			return nil, err
		}
		mem.Drafts = append(mem.Drafts, draft)
		if evaluation.Valid {
			var e arbiter.Evaluation
			if err := json.Unmarshal([]byte(evaluation.String), &e); err != nil {
				return nil, fmt.Errorf("decode evaluation: %w", err)
			}
			mem.Evaluations = append(mem.Evaluations, e)
		}
	}

	return mem, rows.Err()
}

// SessionEntry is a row of the session listing.
type SessionEntry struct {
	ID         string
	Location   string
	StopReason string
	Iterations int
	FinalScore sql.NullFloat64
	FinalMyth  string
	StartedAt  time.Time
	Duration   time.Duration
}

// ListOptions filters ListSessions. With Fuzzy > 0, locations whose
// similarity to Location is at least Fuzzy (0-1) also match.
type ListOptions struct {
	Location string
	Fuzzy    float64
	Limit    int
}

// ListSessions returns archived sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context, opts ListOptions) ([]SessionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location, location_key, stop_reason, iterations, final_score, final_myth, started_at, duration_ms FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	want := locationKey(opts.Location)

	var results []SessionEntry
	for rows.Next() {
		var e SessionEntry
		var key string
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.Location, &key, &e.StopReason, &e.Iterations, &e.FinalScore, &e.FinalMyth, &e.StartedAt, &durationMs); err != nil {
			return nil, err
		}
		if want != "" && !locationMatches(want, key, opts.Fuzzy) {
			continue
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, e)
		if opts.Limit > 0 && len(results) == opts.Limit {
			break
		}
	}

	return results, rows.Err()
}

// DeleteSession permanently removes a session and its drafts.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_drafts WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// ClearSessions removes every archived session.
func (s *Store) ClearSessions(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_drafts`); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// ArchiveStats summarises the archive.
type ArchiveStats struct {
	TotalSessions   int
	Locations       int
	Accepted        int
	ParseFailures   int
	IterationCapped int
	AvgIterations   float64
	AvgFinalScore   float64
}

// Stats returns summary statistics for the archive.
func (s *Store) Stats(ctx context.Context) (*ArchiveStats, error) {
	stats := &ArchiveStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT location_key),
			COALESCE(SUM(CASE WHEN stop_reason = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stop_reason = 'parse_failure' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stop_reason = 'iteration_cap' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(iterations), 0),
			COALESCE(AVG(final_score), 0)
		FROM sessions`).Scan(
		&stats.TotalSessions,
		&stats.Locations,
		&stats.Accepted,
		&stats.ParseFailures,
		&stats.IterationCapped,
		&stats.AvgIterations,
		&stats.AvgFinalScore,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// locationKey is the comparison form of a location name.
func locationKey(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(normalizeText(location)), " "))
}

func locationMatches(want, key string, fuzzy float64) bool {
	if key == want || strings.Contains(key, want) {
		return true
	}
	return fuzzy > 0 && stringSimilarity(want, key) >= fuzzy
}

// levenshtein returns the edit distance between two strings (rune-aware).
// Uses a space-optimized two-row DP implementation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = min(prev[j], prev[j-1], curr[j-1]) + 1
			}
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

// stringSimilarity returns a similarity score in [0, 1] (1 = identical).
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}
