// Package types provides shared type definitions used across gala packages.
// This package exists to break import cycles between planner, bus, agents,
// and budget. Types in this package should be foundational data structures
// with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Category identifies one of the service families a plan is assembled from.
type Category string

const (
	CategoryVenue    Category = "venue"
	CategoryCatering Category = "catering"
	CategoryDecor    Category = "decor"
)

// Categories lists every planning category in canonical order. The order is
// load-bearing: budget residue assignment and result consolidation iterate it.
func Categories() []Category {
	return []Category{CategoryVenue, CategoryCatering, CategoryDecor}
}

// Valid reports whether c names a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryVenue, CategoryCatering, CategoryDecor:
		return true
	}
	return false
}

// GraphName returns the shared-data key under which the category's knowledge
// graph is registered on the bus ("venue_graph", "catering_graph", ...).
func (c Category) GraphName() string { return string(c) + "_graph" }

// =============================================================================
// TASKS
// =============================================================================

// TaskType discriminates the work a task message asks an endpoint to do.
type TaskType string

const (
	TaskBudgetDistribution TaskType = "budget_distribution"

	TaskVenueSearch    TaskType = "venue_search"
	TaskCateringSearch TaskType = "catering_search"
	TaskDecorSearch    TaskType = "decor_search"

	TaskVenueCorrection    TaskType = "venue_correction"
	TaskCateringCorrection TaskType = "catering_correction"
	TaskDecorCorrection    TaskType = "decor_correction"
)

// SearchTask returns the search task type for a category.
func SearchTask(c Category) TaskType { return TaskType(string(c) + "_search") }

// CorrectionTask returns the correction task type for a category.
func CorrectionTask(c Category) TaskType { return TaskType(string(c) + "_correction") }

// Category extracts the category a task type operates on. Budget distribution
// has no category and returns ("", false).
func (t TaskType) Category() (Category, bool) {
	switch t {
	case TaskVenueSearch, TaskVenueCorrection:
		return CategoryVenue, true
	case TaskCateringSearch, TaskCateringCorrection:
		return CategoryCatering, true
	case TaskDecorSearch, TaskDecorCorrection:
		return CategoryDecor, true
	}
	return "", false
}

// IsCorrection reports whether the task re-plans a category after a user
// objection rather than performing the initial search.
func (t TaskType) IsCorrection() bool {
	switch t {
	case TaskVenueCorrection, TaskCateringCorrection, TaskDecorCorrection:
		return true
	}
	return false
}

// Endpoint returns the bus endpoint responsible for the task type.
// Corrections route to the same worker as the category's search.
func (t TaskType) Endpoint() string {
	if t == TaskBudgetDistribution {
		return EndpointBudget
	}
	if c, ok := t.Category(); ok {
		return string(c)
	}
	return ""
}

// TaskStatus tracks a queued task through its lifecycle.
type TaskStatus string

const (
	TaskPending      TaskStatus = "pending"
	TaskInProgress   TaskStatus = "in_progress"
	TaskRetryPending TaskStatus = "retry_pending"
	TaskCompleted    TaskStatus = "completed"
	TaskFailed       TaskStatus = "failed"
)

// Task is a unit of work owned by a planning session. Tasks live in the
// session's FIFO queue; exactly one is in flight per session at a time.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Type      TaskType   `json:"type"`
	Priority  float64    `json:"priority"`
	Params    Value      `json:"params,omitempty"`
	Status    TaskStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
}

// =============================================================================
// WELL-KNOWN ENDPOINTS
// =============================================================================

// Endpoint names registered on the message bus. Worker endpoints reuse the
// category string so task routing stays a one-liner.
const (
	EndpointPlanner = "planner"
	EndpointBudget  = "budget_distributor"
	EndpointUser    = "user"
)

// =============================================================================
// DESIRES AND INTENTIONS
// =============================================================================

// Desire priorities. Corrections outrank everything except the root goal so
// user objections are serviced before pending first-pass work.
const (
	PriorityPlanEvent     = 1.0
	PriorityCorrection    = 0.95
	PriorityBudget        = 0.9
	PrioritySearch        = 0.8
	PriorityConsolidation = 0.7
)

// Desire is a goal a session wants satisfied. Desires are ordered by
// priority; ties break on insertion order.
type Desire struct {
	Key      string  `json:"key"`
	Priority float64 `json:"priority"`
}

// IntentionStatus tracks a committed desire.
type IntentionStatus string

const (
	IntentionActive    IntentionStatus = "active"
	IntentionSucceeded IntentionStatus = "succeeded"
	IntentionDropped   IntentionStatus = "dropped"
)

// Intention is a desire the planner has committed to, bound to the task that
// realizes it. Reconsideration may drop it before the task resolves.
type Intention struct {
	Desire Desire          `json:"desire"`
	TaskID string          `json:"task_id"`
	Status IntentionStatus `json:"status"`
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionState is the lifecycle state machine of a planning session.
// Transitions: initial → in_progress → (error_recovery ⇄ in_progress) → completed.
type SessionState string

const (
	SessionInitial       SessionState = "initial"
	SessionInProgress    SessionState = "in_progress"
	SessionErrorRecovery SessionState = "error_recovery"
	SessionCompleted     SessionState = "completed"
)

// ErrorRecord captures one task failure in a session's error history.
type ErrorRecord struct {
	TaskID   string    `json:"task_id"`
	TaskType TaskType  `json:"task_type"`
	Message  string    `json:"message"`
	Critical bool      `json:"critical"`
	At       time.Time `json:"at"`
}

// TimeoutReason is the error text the planner synthesizes when a task's
// reply never arrives.
const TimeoutReason = "Timeout esperando respuesta"

// CriticalError reports whether an error message or task type warrants
// intention reconsideration instead of a plain retry. Budget failures are
// always critical: every downstream search depends on the allocation.
func CriticalError(t TaskType, msg string) bool {
	if t == TaskBudgetDistribution {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "connection")
}

// =============================================================================
// RESULTS
// =============================================================================

// Candidate is one ranked service option produced by a category worker.
type Candidate struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	URL      string   `json:"url,omitempty"`
	Score    float64  `json:"score"`
	Price    float64  `json:"price,omitempty"`
	Capacity int      `json:"capacity,omitempty"`
	Location string   `json:"location,omitempty"`
	Data     Value    `json:"data,omitempty"`
}

// Selection is the per-category block of a final response: the top candidate
// plus the runners-up that survived filtering.
type Selection struct {
	Category     Category    `json:"type"`
	Best         *Candidate  `json:"best,omitempty"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
	Assigned     int         `json:"assigned_budget"`
	Note         string      `json:"note,omitempty"`
}

// PlanSummary is the roll-up of a completed (or degraded) session.
type PlanSummary struct {
	SessionID   string                  `json:"session_id"`
	State       SessionState            `json:"state"`
	TotalBudget float64                 `json:"total_budget"`
	UsedBudget  float64                 `json:"used_budget"`
	Selections  map[Category]*Selection `json:"selections"`
	Degraded    bool                    `json:"degraded,omitempty"`
	Notes       []string                `json:"notes,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// =============================================================================
// HELPERS
// =============================================================================

// IDString formats a short human-readable id for logs.
func IDString(prefix, id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s", prefix, id)
}
