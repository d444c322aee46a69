// Package planner is the BDI coordinator. It owns planning sessions, turns
// user criteria into beliefs, beliefs into desires, desires into intentions
// bound to tasks, and drives those tasks over the bus one at a time per
// session. Failures run through the retrieval strategy catalogue before a
// session is allowed to degrade.
package planner

import (
	"fmt"
	"sync"
	"time"

	"gala/internal/bus"
	"gala/internal/config"
	"gala/internal/logging"
	"gala/internal/memory"
	"gala/internal/metrics"
	"gala/internal/retrieval"
	"gala/internal/types"
)

// Tracer receives task lifecycle events. The trace store implements it; nil
// disables tracing.
type Tracer interface {
	RecordTaskEvent(sessionID, taskID string, taskType types.TaskType, status, detail string, elapsed time.Duration)
}

// Planner coordinates planning sessions over the bus.
type Planner struct {
	mu       sync.RWMutex
	bus      *bus.Bus
	cfg      *config.Config
	patterns *retrieval.Store
	store    *memory.SessionStore
	tracer   Tracer

	sessions map[string]*session
	wg       sync.WaitGroup
}

// New creates a planner. patterns, store, and tracer may be nil.
func New(b *bus.Bus, cfg *config.Config, patterns *retrieval.Store, store *memory.SessionStore, tracer Tracer) *Planner {
	return &Planner{
		bus:      b,
		cfg:      cfg,
		patterns: patterns,
		store:    store,
		tracer:   tracer,
		sessions: make(map[string]*session),
	}
}

// Attach registers the planner on its bus endpoint.
func (p *Planner) Attach() {
	p.bus.Register(types.EndpointPlanner, func(msg types.Message) *types.Message {
		return p.Receive(msg)
	})
}

// Wait blocks until every running session loop has finished. Tests and
// shutdown use it; callers keep serving until it returns.
func (p *Planner) Wait() {
	p.wg.Wait()
}

// CreateSession opens a fresh session for a user.
func (p *Planner) CreateSession(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("planner: user id is required")
	}
	s := newSession(userID)

	p.mu.Lock()
	p.sessions[s.id] = s
	p.mu.Unlock()

	metrics.SessionsActive.Inc()
	p.persist(s, memory.StatusActive)
	logging.Session("created %s for user %s", s.id, userID)
	logging.AuditWithSession(s.id).Event(logging.AuditSessionCreated, "user "+userID)
	return s.id, nil
}

// Session returns a snapshot of a session's state.
func (p *Planner) Session(sessionID string) (types.SessionState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return "", false
	}
	return s.state, true
}

// Receive is the bus entry point, routing by message kind. Task replies
// normally come back through SendAndWait waiters; a correlated reply landing
// here is stale and is logged and ignored.
func (p *Planner) Receive(msg types.Message) *types.Message {
	switch body := msg.Body.(type) {
	case types.UserRequestBody:
		return p.handleUserRequest(msg, body)
	case types.CorrectionBody:
		return p.handleCorrectionRequest(msg, body)
	case types.ResponseBody:
		logging.PlannerDebug("stray agent_response for task %s ignored", body.TaskID)
		return nil
	case types.ErrorBody:
		logging.PlannerDebug("stray error for task %s ignored: %s", body.TaskID, body.Reason)
		return nil
	}
	logging.PlannerWarn("unhandled %s message from %s", msg.Kind, msg.From)
	return nil
}

func (p *Planner) handleUserRequest(msg types.Message, body types.UserRequestBody) *types.Message {
	// A request addressed at an archived session is refused outright.
	if msg.SessionID != "" && p.store != nil {
		if rec, ok := p.store.Get(msg.SessionID); ok && rec.Status == memory.StatusArchived {
			reply := types.NewMessage(types.EndpointPlanner, msg.From, msg.SessionID, types.ErrorBody{
				Reason: fmt.Sprintf("session %s is archived", msg.SessionID),
			})
			return &reply
		}
	}

	criteria := body.Criteria
	if err := criteria.Validate(); err != nil {
		reply := types.NewMessage(types.EndpointPlanner, msg.From, msg.SessionID, types.ErrorBody{
			Reason: err.Error(),
		})
		return &reply
	}

	sessionID, err := p.CreateSession(criteria.UserID)
	if err != nil {
		reply := types.NewMessage(types.EndpointPlanner, msg.From, msg.SessionID, types.ErrorBody{Reason: err.Error()})
		return &reply
	}

	p.mu.RLock()
	s := p.sessions[sessionID]
	p.mu.RUnlock()
	s.criteria = &criteria

	p.start(s)

	reply := types.NewMessage(types.EndpointPlanner, msg.From, sessionID, types.AckBody{
		SessionID: sessionID,
		Note:      "planning started",
	})
	return &reply
}

func (p *Planner) handleCorrectionRequest(msg types.Message, body types.CorrectionBody) *types.Message {
	newID, err := p.HandleCorrection(body.OriginalSessionID, body.UserID, body.Categories)
	if err != nil {
		reply := types.NewMessage(types.EndpointPlanner, msg.From, msg.SessionID, types.ErrorBody{Reason: err.Error()})
		return &reply
	}
	reply := types.NewMessage(types.EndpointPlanner, msg.From, newID, types.AckBody{
		SessionID: newID,
		Note:      "correction started",
	})
	return &reply
}

// HandleCorrection forks a finished session: the original is archived, the
// fork keeps the criteria and every belief outside the conflicting
// categories, and only the conflicting categories are re-planned.
func (p *Planner) HandleCorrection(origID, userID string, conflicts []types.Category) (string, error) {
	p.mu.Lock()
	orig, ok := p.sessions[origID]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("planner: session %s not found", origID)
	}
	if orig.criteria == nil {
		return "", fmt.Errorf("planner: session %s has no criteria to correct", origID)
	}
	if userID != "" && orig.userID != userID {
		return "", fmt.Errorf("planner: session %s belongs to another user", origID)
	}

	conflict := make(map[types.Category]bool, len(conflicts))
	for _, c := range conflicts {
		conflict[c] = true
	}

	fork := newSession(orig.userID)
	fork.correction = true
	fork.criteria = orig.criteria.Clone()
	for cat, amount := range orig.assigned {
		fork.assigned[cat] = amount
	}
	for cat, candidates := range orig.results {
		if !conflict[cat] {
			fork.results[cat] = candidates
		}
	}

	p.mu.Lock()
	p.sessions[fork.id] = fork
	delete(p.sessions, origID)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Archive(origID); err != nil {
			logging.SessionWarn("archive %s: %v", origID, err)
		}
	}
	metrics.Corrections.Inc()
	metrics.SessionsActive.Inc()
	p.persist(fork, memory.StatusActive)
	logging.Session("forked %s from %s (conflicts %v)", fork.id, origID, conflicts)
	logging.AuditWithSession(origID).Event(logging.AuditSessionArchived, "superseded by correction")
	logging.AuditWithSession(fork.id).Event(logging.AuditSessionForked, "from "+origID)

	p.startCorrection(fork, conflicts)
	return fork.id, nil
}

// persist mirrors the session into durable memory.
func (p *Planner) persist(s *session, status string) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(memory.SessionRecord{
		SessionID: s.id,
		UserID:    s.userID,
		Status:    status,
		Beliefs:   s.beliefsValue(),
	}); err != nil {
		logging.SessionWarn("persist %s: %v", s.id, err)
	}
}

func (p *Planner) trace(s *session, task *types.Task, status, detail string, elapsed time.Duration) {
	if p.tracer != nil {
		p.tracer.RecordTaskEvent(s.id, task.ID, task.Type, status, detail, elapsed)
	}

	audit := logging.AuditWithTask(s.id, task.ID, logging.CategoryPlanner)
	switch status {
	case "dispatched":
		audit.Event(logging.AuditTaskDispatch, string(task.Type))
	case "completed":
		audit.Timed(logging.AuditTaskCompleted, string(task.Type), elapsed, true)
	case "failed":
		event := logging.AuditTaskFailed
		if detail == types.TimeoutReason {
			event = logging.AuditTaskTimeout
		}
		audit.Log(logging.AuditEvent{
			EventType:  event,
			Target:     string(task.Type),
			Error:      detail,
			DurationMs: elapsed.Milliseconds(),
		})
	}
}
