// Package memory persists planner state across process restarts: per-session
// beliefs with a lifecycle status, and learned per-user budget weights. Both
// stores are single JSON files rewritten whole under a mutex; write volume is
// one planning session at a time, so atomic rewrite beats anything fancier.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gala/internal/logging"
	"gala/internal/types"
)

// Session lifecycle statuses. Archived sessions refuse further requests;
// inactive sessions can be corrected (which forks them) but not resumed.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

// SessionRecord is the persisted shape of one planning session.
type SessionRecord struct {
	SessionID     string      `json:"session_id"`
	UserID        string      `json:"user_id"`
	Status        string      `json:"status"`
	Beliefs       types.Value `json:"beliefs,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	LastActivity  time.Time   `json:"last_activity"`
	InactivatedAt *time.Time  `json:"inactivated_at,omitempty"`
	ArchivedAt    *time.Time  `json:"archived_at,omitempty"`
}

// SessionStore persists session records in session_memory.json.
type SessionStore struct {
	mu   sync.Mutex
	path string
}

// NewSessionStore creates a store writing under dir.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{path: filepath.Join(dir, "session_memory.json")}
}

func (s *SessionStore) load() map[string]*SessionRecord {
	out := make(map[string]*SessionRecord)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		logging.MemoryWarn("session memory corrupt, starting empty: %v", err)
		return make(map[string]*SessionRecord)
	}
	return out
}

func (s *SessionStore) persist(m map[string]*SessionRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("memory dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session memory: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Save upserts a session record. CreatedAt is preserved from an existing
// record; LastActivity is stamped now.
func (s *SessionStore) Save(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load()
	now := time.Now().UTC()
	if prev, ok := m[rec.SessionID]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	rec.LastActivity = now
	m[rec.SessionID] = &rec
	return s.persist(m)
}

// Get returns a session record by id.
func (s *SessionStore) Get(sessionID string) (SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.load()[sessionID]
	if !ok {
		return SessionRecord{}, false
	}
	return *rec, true
}

// Touch refreshes LastActivity on an active session.
func (s *SessionStore) Touch(sessionID string) error {
	return s.transition(sessionID, func(rec *SessionRecord) error {
		if rec.Status != StatusActive {
			return fmt.Errorf("session %s is %s", sessionID, rec.Status)
		}
		return nil
	})
}

// Inactivate marks a session inactive. Inactive sessions keep their beliefs
// so corrections can fork them later.
func (s *SessionStore) Inactivate(sessionID string) error {
	return s.transition(sessionID, func(rec *SessionRecord) error {
		if rec.Status == StatusArchived {
			return fmt.Errorf("session %s is archived", sessionID)
		}
		now := time.Now().UTC()
		rec.Status = StatusInactive
		rec.InactivatedAt = &now
		return nil
	})
}

// Archive marks a session archived. Archived sessions are terminal.
func (s *SessionStore) Archive(sessionID string) error {
	return s.transition(sessionID, func(rec *SessionRecord) error {
		now := time.Now().UTC()
		rec.Status = StatusArchived
		rec.ArchivedAt = &now
		return nil
	})
}

func (s *SessionStore) transition(sessionID string, mutate func(*SessionRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load()
	rec, ok := m[sessionID]
	if !ok {
		return fmt.Errorf("session %s not in memory", sessionID)
	}
	if err := mutate(rec); err != nil {
		return err
	}
	rec.LastActivity = time.Now().UTC()
	return s.persist(m)
}

// List returns all records, newest activity first.
func (s *SessionStore) List() []SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load()
	out := make([]SessionRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// ForUser returns the user's records, newest activity first.
func (s *SessionStore) ForUser(userID string) []SessionRecord {
	var out []SessionRecord
	for _, rec := range s.List() {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// =============================================================================
// USER PREFERENCE WEIGHTS
// =============================================================================

// PrefsStore persists learned per-user category weights in
// user_pref_memory.json. Weights always sum to 1.0 on disk.
type PrefsStore struct {
	mu   sync.Mutex
	path string
}

// NewPrefsStore creates a store writing under dir.
func NewPrefsStore(dir string) *PrefsStore {
	return &PrefsStore{path: filepath.Join(dir, "user_pref_memory.json")}
}

func (p *PrefsStore) load() map[string]map[types.Category]float64 {
	out := make(map[string]map[types.Category]float64)
	data, err := os.ReadFile(p.path)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		logging.MemoryWarn("user pref memory corrupt, starting empty: %v", err)
		return make(map[string]map[types.Category]float64)
	}
	return out
}

// Get returns the user's stored weights; ok is false for unknown users.
func (p *PrefsStore) Get(userID string) (map[types.Category]float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.load()[userID]
	if !ok {
		return nil, false
	}
	out := make(map[types.Category]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out, true
}

// Set stores the user's weights, normalized to sum to 1.0. All-zero weights
// are rejected.
func (p *PrefsStore) Set(userID string, weights map[types.Category]float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("negative weight for user %s", userID)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("weights for user %s sum to zero", userID)
	}

	norm := make(map[types.Category]float64, len(weights))
	for k, w := range weights {
		norm[k] = w / sum
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.load()
	m[userID] = norm
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("memory dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write user prefs: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return err
	}
	logging.MemoryDebug("user %s weights persisted: %v", userID, norm)
	return nil
}
