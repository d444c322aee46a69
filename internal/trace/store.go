// Package trace persists an audit trail of what the system did to its
// knowledge and its tasks: every enrichment delta and every task lifecycle
// event lands in a local SQLite database. The trail answers "why does this
// node look like this" and "what happened in session X" after the fact.
package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"gala/internal/logging"
	"gala/internal/types"
)

// Store is the SQLite-backed trace store. Thread-safe; the planner, workers,
// and the enrichment engine all write concurrently.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// EnrichmentTrace is one recorded enrichment delta.
type EnrichmentTrace struct {
	ID          string         `json:"id"`
	NodeID      string         `json:"node_id"`
	Category    types.Category `json:"category"`
	BeforeScore float64        `json:"before_score"`
	AfterScore  float64        `json:"after_score"`
	FieldsAdded []string       `json:"fields_added,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TaskEvent is one recorded task lifecycle transition.
type TaskEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	TaskID    string         `json:"task_id"`
	TaskType  types.TaskType `json:"task_type"`
	Status    string         `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Open creates (or reopens) the trace database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open trace db %s: %w", dbPath, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace schema: %w", err)
	}
	logging.Trace("trace store ready at %s", dbPath)
	return s, nil
}

func (s *Store) ensureSchema() error {
	// created_at is second-granular; seq carries the within-second order.
	schema := `
	CREATE TABLE IF NOT EXISTS enrichment_traces (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		node_id TEXT NOT NULL,
		category TEXT NOT NULL,
		before_score REAL NOT NULL,
		after_score REAL NOT NULL,
		fields_added TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS task_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		task_type TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		elapsed_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_enrich_node ON enrichment_traces(node_id);
	CREATE INDEX IF NOT EXISTS idx_enrich_category ON enrichment_traces(category);
	CREATE INDEX IF NOT EXISTS idx_events_session ON task_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_task ON task_events(task_id);
	CREATE INDEX IF NOT EXISTS idx_events_created ON task_events(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// RecordEnrichment persists one enrichment delta. Satisfies the enrichment
// engine's Recorder interface.
func (s *Store) RecordEnrichment(nodeID string, category types.Category, before, after float64, fieldsAdded []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fieldsJSON, _ := json.Marshal(fieldsAdded)
	_, err := s.db.Exec(`
		INSERT INTO enrichment_traces (id, node_id, category, before_score, after_score, fields_added)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), nodeID, string(category), before, after, string(fieldsJSON))
	if err != nil {
		logging.TraceError("record enrichment %s: %v", nodeID, err)
		return
	}
	logging.TraceDebug("enrichment %s %s: %.2f -> %.2f (+%v)", category, nodeID, before, after, fieldsAdded)
}

// RecordTaskEvent persists one task lifecycle transition. Write failures only
// log: the trail is an audit aid, never a reason to fail a task.
func (s *Store) RecordTaskEvent(sessionID, taskID string, taskType types.TaskType, status, detail string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO task_events (id, session_id, task_id, task_type, status, detail, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, taskID, string(taskType), status, detail, elapsed.Milliseconds())
	if err != nil {
		logging.TraceError("record task event %s/%s: %v", sessionID, taskID, err)
	}
}

// =============================================================================
// READS
// =============================================================================

// RecentEnrichments returns the latest enrichment deltas, newest first.
func (s *Store) RecentEnrichments(limit int) ([]EnrichmentTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, node_id, category, before_score, after_score, fields_added, created_at
		FROM enrichment_traces
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnrichmentTrace
	for rows.Next() {
		var tr EnrichmentTrace
		var cat, fieldsJSON string
		if err := rows.Scan(&tr.ID, &tr.NodeID, &cat, &tr.BeforeScore, &tr.AfterScore, &fieldsJSON, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Category = types.Category(cat)
		if fieldsJSON != "" {
			json.Unmarshal([]byte(fieldsJSON), &tr.FieldsAdded)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// NodeHistory returns every enrichment recorded for a node, oldest first.
func (s *Store) NodeHistory(nodeID string) ([]EnrichmentTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, node_id, category, before_score, after_score, fields_added, created_at
		FROM enrichment_traces
		WHERE node_id = ?
		ORDER BY seq`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnrichmentTrace
	for rows.Next() {
		var tr EnrichmentTrace
		var cat, fieldsJSON string
		if err := rows.Scan(&tr.ID, &tr.NodeID, &cat, &tr.BeforeScore, &tr.AfterScore, &fieldsJSON, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Category = types.Category(cat)
		if fieldsJSON != "" {
			json.Unmarshal([]byte(fieldsJSON), &tr.FieldsAdded)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SessionEvents returns a session's task events in occurrence order.
func (s *Store) SessionEvents(sessionID string) ([]TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, session_id, task_id, task_type, status, detail, elapsed_ms, created_at
		FROM task_events
		WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskEvent
	for rows.Next() {
		var ev TaskEvent
		var tt string
		var detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.TaskID, &tt, &ev.Status, &detail, &ev.ElapsedMs, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.TaskType = types.TaskType(tt)
		ev.Detail = detail.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Stats summarizes the trail for the CLI.
type Stats struct {
	Enrichments int
	TaskEvents  int
	Sessions    int
}

// Summary counts the stored rows.
func (s *Store) Summary() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM enrichment_traces`).Scan(&st.Enrichments); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM task_events`).Scan(&st.TaskEvents); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT session_id) FROM task_events`).Scan(&st.Sessions); err != nil {
		return st, err
	}
	return st, nil
}
