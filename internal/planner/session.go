package planner

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"gala/internal/types"
)

// session is the in-memory state of one planning run: beliefs, desires,
// intentions, and the FIFO task queue. All access goes through the owning
// planner goroutine except the state field, which Receive reads under mu.
type session struct {
	id     string
	userID string
	state  types.SessionState

	criteria *types.Criteria

	// Beliefs.
	assigned map[types.Category]int               // budget distribution result
	results  map[types.Category][]types.Candidate // per-category ranked candidates
	failed   map[types.Category]string            // permanent failures with the last reason

	desires    []types.Desire
	intentions []types.Intention

	queue  []*types.Task
	errors []types.ErrorRecord

	// attempts counts correction rounds per original task type, indexing
	// into the strategy list for that failure.
	attempts map[types.TaskType]int

	// taskTypes remembers what each dispatched task id was for, so
	// reconsideration can find the intentions a failure invalidates.
	taskTypes map[string]types.TaskType

	// sem enforces one task in flight for this session.
	sem *semaphore.Weighted

	searchesPlanned bool
	correction      bool // forked from another session
}

func newSession(userID string) *session {
	return &session{
		id:        uuid.NewString(),
		userID:    userID,
		state:     types.SessionInitial,
		assigned:  make(map[types.Category]int),
		results:   make(map[types.Category][]types.Candidate),
		failed:    make(map[types.Category]string),
		attempts:  make(map[types.TaskType]int),
		taskTypes: make(map[string]types.TaskType),
		sem:       semaphore.NewWeighted(1),
	}
}

// =============================================================================
// QUEUE
// =============================================================================

func (s *session) enqueue(task *types.Task) {
	s.queue = append(s.queue, task)
}

// enqueueFront inserts a correction ahead of all pending work.
func (s *session) enqueueFront(task *types.Task) {
	s.queue = append([]*types.Task{task}, s.queue...)
}

func (s *session) dequeue() *types.Task {
	if len(s.queue) == 0 {
		return nil
	}
	task := s.queue[0]
	s.queue = s.queue[1:]
	return task
}

// hasQueued reports whether a task of the given type is already pending.
func (s *session) hasQueued(t types.TaskType) bool {
	for _, task := range s.queue {
		if task.Type == t {
			return true
		}
	}
	return false
}

func (s *session) newTask(t types.TaskType, priority float64, params types.Value) *types.Task {
	return &types.Task{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Type:      t,
		Priority:  priority,
		Params:    params,
		Status:    types.TaskPending,
		CreatedAt: time.Now().UTC(),
	}
}

// =============================================================================
// DESIRES AND INTENTIONS
// =============================================================================

func (s *session) addDesire(key string, priority float64) {
	for _, d := range s.desires {
		if d.Key == key {
			return
		}
	}
	s.desires = append(s.desires, types.Desire{Key: key, Priority: priority})
}

func (s *session) commit(desireKey string, taskID string) {
	for _, d := range s.desires {
		if d.Key == desireKey {
			s.intentions = append(s.intentions, types.Intention{
				Desire: d,
				TaskID: taskID,
				Status: types.IntentionActive,
			})
			return
		}
	}
}

func (s *session) resolveIntention(taskID string, status types.IntentionStatus) {
	for i := range s.intentions {
		if s.intentions[i].TaskID == taskID {
			s.intentions[i].Status = status
		}
	}
}

// dropIntentionsFor suspends every active intention bound to a task type.
// Reconsideration after a critical failure calls this before planning fixes.
func (s *session) dropIntentionsFor(t types.TaskType, tasks map[string]types.TaskType) int {
	dropped := 0
	for i := range s.intentions {
		if s.intentions[i].Status != types.IntentionActive {
			continue
		}
		if tasks[s.intentions[i].TaskID] == t {
			s.intentions[i].Status = types.IntentionDropped
			dropped++
		}
	}
	return dropped
}

// =============================================================================
// BELIEF QUERIES
// =============================================================================

// resolved reports whether a category reached a terminal belief: a non-empty
// result or a permanent failure.
func (s *session) resolved(cat types.Category) bool {
	if _, ok := s.failed[cat]; ok {
		return true
	}
	return len(s.results[cat]) > 0
}

func (s *session) allResolved() bool {
	if len(s.assigned) == 0 && len(s.failed) == 0 {
		return false
	}
	for _, cat := range types.Categories() {
		if !s.resolved(cat) {
			return false
		}
	}
	return true
}

func (s *session) recordError(task *types.Task, msg string, critical bool) {
	s.errors = append(s.errors, types.ErrorRecord{
		TaskID:   task.ID,
		TaskType: task.Type,
		Message:  msg,
		Critical: critical,
		At:       time.Now().UTC(),
	})
}

// beliefsValue snapshots the session beliefs for persistence.
func (s *session) beliefsValue() types.Value {
	v := types.Value{}
	if s.criteria != nil {
		v["criteria"] = s.criteria
	}
	if len(s.assigned) > 0 {
		v["assigned_budget"] = s.assigned
	}
	for cat, candidates := range s.results {
		if len(candidates) > 0 {
			v[string(cat)] = candidates[0]
		}
	}
	if len(s.failed) > 0 {
		v["failed"] = s.failed
	}
	return v
}
