package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/types"
)

func resetPlanFlags() {
	planUser, planStyle, planLocation, planDate, planDescription, planCriteria = "", "", "", "", "", ""
	planBudget, planGuests = 0, 0
	planKeywords, planSeedURLs, planConflicts = nil, nil, nil
	planCorrect = ""
}

func TestBuildCriteriaFromFlags(t *testing.T) {
	resetPlanFlags()
	t.Cleanup(resetPlanFlags)

	planUser = "ana"
	planBudget = 30000
	planGuests = 120
	planStyle = "rustic"
	planKeywords = []string{"barn", "outdoor"}
	planSeedURLs = []string{"venue=https://example.com/barn"}

	criteria, err := buildCriteria()
	require.NoError(t, err)

	assert.Equal(t, "ana", criteria.UserID)
	assert.Equal(t, 30000.0, criteria.TotalBudget)
	assert.Equal(t, 120, criteria.GuestCount)
	assert.Equal(t, "rustic event", criteria.Description)
	for _, cat := range types.Categories() {
		require.NotNil(t, criteria.Categories[cat])
		assert.Equal(t, []string{"barn", "outdoor"}, criteria.Categories[cat].Keywords)
	}
	assert.Equal(t, []string{"https://example.com/barn"}, criteria.SeedURLs[types.CategoryVenue])
}

func TestBuildCriteriaFlagsOverrideFile(t *testing.T) {
	resetPlanFlags()
	t.Cleanup(resetPlanFlags)

	base := types.Criteria{UserID: "file-user", TotalBudget: 10000, GuestCount: 80, Style: "classic"}
	data, err := json.Marshal(base)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "criteria.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	planCriteria = path
	planBudget = 25000

	criteria, err := buildCriteria()
	require.NoError(t, err)
	assert.Equal(t, "file-user", criteria.UserID)
	assert.Equal(t, 25000.0, criteria.TotalBudget)
	assert.Equal(t, 80, criteria.GuestCount)
	assert.Equal(t, "classic", criteria.Style)
}

func TestBuildCriteriaRejectsBadSeedURL(t *testing.T) {
	resetPlanFlags()
	t.Cleanup(resetPlanFlags)

	planSeedURLs = []string{"https://no-category.example"}
	_, err := buildCriteria()
	require.Error(t, err)

	planSeedURLs = []string{"ballroom=https://unknown-category.example"}
	_, err = buildCriteria()
	require.Error(t, err)
}

func TestCorrectionRequestCarriesConflicts(t *testing.T) {
	resetPlanFlags()
	t.Cleanup(resetPlanFlags)

	planCorrect = "sess-1"
	planUser = "ana"
	planConflicts = []string{"venue", " catering "}

	msg := correctionRequest()
	body, ok := msg.Body.(types.CorrectionBody)
	require.True(t, ok)
	assert.Equal(t, "sess-1", body.OriginalSessionID)
	assert.Equal(t, []types.Category{types.CategoryVenue, types.CategoryCatering}, body.Categories)
}

func TestRenderSummaryMarksDegradedCategories(t *testing.T) {
	best := &types.Candidate{Category: types.CategoryVenue, Name: "Old Barn", Score: 0.91, Price: 4000, Capacity: 150}
	sum := types.PlanSummary{
		SessionID:   "abcdef1234",
		State:       types.SessionCompleted,
		TotalBudget: 30000,
		UsedBudget:  4000,
		Degraded:    true,
		Notes:       []string{"decor: no results"},
		Selections: map[types.Category]*types.Selection{
			types.CategoryVenue: {Category: types.CategoryVenue, Best: best, Assigned: 12000},
			types.CategoryDecor: {Category: types.CategoryDecor, Assigned: 7500, Note: "no results"},
		},
	}

	out := renderSummary(sum)
	assert.Contains(t, out, "Old Barn")
	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "no results")
	assert.Contains(t, out, "assigned 12000")
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([][]string{
		{"CATEGORY", "NODES"},
		{"venue", "3"},
		{"catering", "12"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "CATEGORY  NODES"))
	assert.True(t, strings.HasPrefix(lines[2], "venue"))
}
