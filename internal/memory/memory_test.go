package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/types"
)

func TestSessionSaveAndGet(t *testing.T) {
	s := NewSessionStore(t.TempDir())

	require.NoError(t, s.Save(SessionRecord{
		SessionID: "sess-1",
		UserID:    "user-1",
		Beliefs:   types.Value{"total_budget": 20000.0, "style": "rustic"},
	}))

	rec, ok := s.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "rustic", rec.Beliefs.String("style"))
	assert.False(t, rec.CreatedAt.IsZero())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSessionSavePreservesCreatedAt(t *testing.T) {
	s := NewSessionStore(t.TempDir())
	require.NoError(t, s.Save(SessionRecord{SessionID: "sess-1", UserID: "u"}))
	first, _ := s.Get("sess-1")

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Save(SessionRecord{SessionID: "sess-1", UserID: "u", Beliefs: types.Value{"k": "v"}}))
	second, _ := s.Get("sess-1")

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.LastActivity.After(first.LastActivity) || second.LastActivity.Equal(first.LastActivity))
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSessionStore(t.TempDir())
	require.NoError(t, s.Save(SessionRecord{SessionID: "sess-1", UserID: "u"}))

	require.NoError(t, s.Inactivate("sess-1"))
	rec, _ := s.Get("sess-1")
	assert.Equal(t, StatusInactive, rec.Status)
	require.NotNil(t, rec.InactivatedAt)

	// Inactive sessions cannot be touched back to life.
	assert.Error(t, s.Touch("sess-1"))

	require.NoError(t, s.Archive("sess-1"))
	rec, _ = s.Get("sess-1")
	assert.Equal(t, StatusArchived, rec.Status)
	require.NotNil(t, rec.ArchivedAt)

	// Archived is terminal.
	assert.Error(t, s.Inactivate("sess-1"))
	assert.Error(t, s.Touch("sess-1"))
}

func TestSessionListOrdersByActivity(t *testing.T) {
	s := NewSessionStore(t.TempDir())
	require.NoError(t, s.Save(SessionRecord{SessionID: "old", UserID: "u1"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Save(SessionRecord{SessionID: "new", UserID: "u2"}))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].SessionID)

	forU1 := s.ForUser("u1")
	require.Len(t, forU1, 1)
	assert.Equal(t, "old", forU1[0].SessionID)
}

func TestSessionStoreSurvivesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session_memory.json"), []byte("{broken"), 0644))

	s := NewSessionStore(dir)
	require.NoError(t, s.Save(SessionRecord{SessionID: "sess-1", UserID: "u"}))
	_, ok := s.Get("sess-1")
	assert.True(t, ok)
}

func TestPrefsRoundTripAndNormalization(t *testing.T) {
	dir := t.TempDir()
	p := NewPrefsStore(dir)

	_, ok := p.Get("user-1")
	assert.False(t, ok)

	require.NoError(t, p.Set("user-1", map[types.Category]float64{
		types.CategoryVenue:    2,
		types.CategoryCatering: 1,
		types.CategoryDecor:    1,
	}))

	w, ok := p.Get("user-1")
	require.True(t, ok)
	assert.InDelta(t, 0.5, w[types.CategoryVenue], 1e-9)
	sum := 0.0
	for _, f := range w {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// A fresh store sees the file.
	w, ok = NewPrefsStore(dir).Get("user-1")
	require.True(t, ok)
	assert.InDelta(t, 0.25, w[types.CategoryDecor], 1e-9)
}

func TestPrefsRejectsDegenerateWeights(t *testing.T) {
	p := NewPrefsStore(t.TempDir())
	assert.Error(t, p.Set("u", map[types.Category]float64{types.CategoryVenue: 0}))
	assert.Error(t, p.Set("u", map[types.Category]float64{types.CategoryVenue: -1, types.CategoryCatering: 2}))
}
