package planner

import (
	"context"
	"fmt"
	"time"

	"gala/internal/agents"
	"gala/internal/logging"
	"gala/internal/memory"
	"gala/internal/metrics"
	"gala/internal/retrieval"
	"gala/internal/types"
)

// =============================================================================
// BDI CYCLE
// =============================================================================

// start seeds a fresh session's beliefs, desires, and first intention, then
// launches its loop.
func (p *Planner) start(s *session) {
	p.seedBeliefs(s)

	s.addDesire("complete_event_planning", types.PriorityPlanEvent)
	for _, cat := range types.Categories() {
		s.addDesire("find_"+string(cat), types.PrioritySearch)
	}

	// The only initial intention: distribute the budget. Category searches
	// wait until amounts exist.
	task := s.newTask(types.TaskBudgetDistribution, types.PriorityBudget, types.Value{
		"user_id":      s.criteria.UserID,
		"total_budget": int(s.criteria.TotalBudget),
		"description":  s.describe(),
	})
	s.taskTypes[task.ID] = task.Type
	s.commit("complete_event_planning", task.ID)
	s.enqueue(task)

	p.run(s)
}

// startCorrection launches a forked session that only re-plans the
// conflicting categories; everything else was copied as beliefs.
func (p *Planner) startCorrection(s *session, conflicts []types.Category) {
	s.addDesire("complete_event_planning", types.PriorityPlanEvent)
	for _, cat := range conflicts {
		key := "fix_" + string(cat)
		s.addDesire(key, types.PriorityCorrection)
		task := s.newTask(types.CorrectionTask(cat), types.PriorityCorrection, p.searchParams(s, cat))
		s.taskTypes[task.ID] = task.Type
		s.commit(key, task.ID)
		s.enqueue(task)
	}
	p.run(s)
}

// seedBeliefs installs the criteria and a retrieval-recommended provisional
// budget split, refined later by the distributor.
func (p *Planner) seedBeliefs(s *session) {
	if p.patterns != nil && s.criteria.TotalBudget > 0 {
		split := p.patterns.RecommendSplit(s.criteria.Style)
		for cat, frac := range split {
			s.assigned[cat] = int(frac * s.criteria.TotalBudget)
		}
	}
}

func (s *session) describe() string {
	if s.criteria.Description != "" {
		return s.criteria.Description
	}
	return fmt.Sprintf("%s event for %d guests", s.criteria.Style, s.criteria.GuestCount)
}

func (p *Planner) run(s *session) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			task := s.dequeue()
			if task == nil {
				break
			}
			p.act(s, task)
		}
		p.finish(s)
	}()
}

// =============================================================================
// ACT
// =============================================================================

// act dispatches one task over the bus and senses the reply. The session
// semaphore keeps exactly one task in flight.
func (p *Planner) act(s *session, task *types.Task) {
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	if s.state == types.SessionInitial {
		s.state = types.SessionInProgress
	}
	task.Status = types.TaskInProgress
	task.Attempts++

	msg := types.NewMessage(types.EndpointPlanner, task.Type.Endpoint(), s.id, types.TaskBody{
		TaskID: task.ID,
		Type:   task.Type,
		Params: task.Params,
	})

	metrics.TasksDispatched.WithLabelValues(string(task.Type)).Inc()
	p.trace(s, task, "dispatched", "", 0)
	logging.Planner("%s: dispatch %s (%s)", s.id, task.Type, task.ID)

	start := time.Now()
	reply := p.bus.SendAndWait(msg, p.cfg.GetTaskTimeout())
	elapsed := time.Since(start)

	if reply == nil {
		p.handleFailure(s, task, types.TimeoutReason, elapsed)
		return
	}
	switch body := reply.Body.(type) {
	case types.ResponseBody:
		p.sense(s, task, body, elapsed)
	case types.ErrorBody:
		p.handleFailure(s, task, body.Reason, elapsed)
	default:
		p.handleFailure(s, task, fmt.Sprintf("unexpected %s reply", reply.Kind), elapsed)
	}
}

// =============================================================================
// SENSE
// =============================================================================

func (p *Planner) sense(s *session, task *types.Task, body types.ResponseBody, elapsed time.Duration) {
	switch {
	case task.Type == types.TaskBudgetDistribution:
		p.senseBudget(s, task, body, elapsed)
	default:
		p.senseSearch(s, task, body, elapsed)
	}
}

func (p *Planner) senseBudget(s *session, task *types.Task, body types.ResponseBody, elapsed time.Duration) {
	assigned, ok := body.Result.(map[types.Category]int)
	if !ok {
		p.handleFailure(s, task, "budget result has unexpected shape", elapsed)
		return
	}
	for cat, amount := range assigned {
		s.assigned[cat] = amount
	}
	task.Status = types.TaskCompleted
	s.state = types.SessionInProgress
	s.resolveIntention(task.ID, types.IntentionSucceeded)
	p.trace(s, task, "completed", "", elapsed)
	logging.Planner("%s: budget assigned %v", s.id, assigned)

	p.planSearches(s)
	p.persist(s, memory.StatusActive)
}

// planSearches synthesizes the category search tasks once amounts exist.
// Idempotent: a second budget completion adds nothing.
func (p *Planner) planSearches(s *session) {
	if s.searchesPlanned {
		return
	}
	s.searchesPlanned = true
	for _, cat := range types.Categories() {
		if s.resolved(cat) || s.hasQueued(types.SearchTask(cat)) {
			continue
		}
		task := s.newTask(types.SearchTask(cat), types.PrioritySearch, p.searchParams(s, cat))
		s.taskTypes[task.ID] = task.Type
		s.commit("find_"+string(cat), task.ID)
		s.enqueue(task)
	}
}

// searchParams builds the worker request for one category from the criteria
// beliefs plus the assigned amount.
func (p *Planner) searchParams(s *session, cat types.Category) types.Value {
	cc := s.criteria.For(cat)
	mandatory := cc.Mandatory.Clone()
	if cat == types.CategoryVenue && s.criteria.GuestCount > 0 && !mandatory.Has("capacity") {
		if mandatory == nil {
			mandatory = types.Value{}
		}
		mandatory["capacity"] = s.criteria.GuestCount
	}
	budget := float64(s.assigned[cat])
	if budget == 0 && cc.Budget > 0 {
		budget = cc.Budget
	}
	return agents.Request{
		UserID:     s.criteria.UserID,
		Budget:     budget,
		GuestCount: s.criteria.GuestCount,
		Style:      s.criteria.Style,
		Location:   s.criteria.Location,
		Mandatory:  mandatory,
		Optional:   cc.Optional,
		Keywords:   cc.Keywords,
		SeedURLs:   s.criteria.SeedURLs[cat],
	}.Params()
}

func (p *Planner) senseSearch(s *session, task *types.Task, body types.ResponseBody, elapsed time.Duration) {
	cat, ok := task.Type.Category()
	if !ok {
		p.handleFailure(s, task, "task has no category", elapsed)
		return
	}
	candidates, _ := body.Result.([]types.Candidate)
	if len(candidates) == 0 {
		p.handleFailure(s, task, "no results", elapsed)
		return
	}

	s.results[cat] = candidates
	delete(s.failed, cat)
	task.Status = types.TaskCompleted
	s.state = types.SessionInProgress
	s.resolveIntention(task.ID, types.IntentionSucceeded)
	p.trace(s, task, "completed", fmt.Sprintf("%d candidates", len(candidates)), elapsed)
	logging.Planner("%s: %s resolved with %d candidates", s.id, cat, len(candidates))
	p.persist(s, memory.StatusActive)
}

// =============================================================================
// FAILURES
// =============================================================================

// canonicalType folds correction task types back onto the search type that
// owns the attempt counter and strategy list.
func canonicalType(t types.TaskType) types.TaskType {
	if t.IsCorrection() {
		if cat, ok := t.Category(); ok {
			return types.SearchTask(cat)
		}
	}
	return t
}

func (p *Planner) maxCorrections() int {
	if p.cfg.Planner.MaxCorrections > 0 {
		return p.cfg.Planner.MaxCorrections
	}
	return 3
}

// handleFailure records the error, reconsiders intentions on critical
// failures, and either queues the next correction strategy at the front of
// the queue or marks the category permanently failed.
func (p *Planner) handleFailure(s *session, task *types.Task, reason string, elapsed time.Duration) {
	critical := types.CriticalError(task.Type, reason)
	s.recordError(task, reason, critical)
	s.state = types.SessionErrorRecovery
	metrics.TasksFailed.WithLabelValues(string(task.Type)).Inc()
	p.trace(s, task, "failed", reason, elapsed)
	logging.PlannerWarn("%s: %s failed: %s (critical=%v)", s.id, task.Type, reason, critical)

	canonical := canonicalType(task.Type)

	if critical {
		p.reconsider(s, canonical)
	}

	var strategies []retrieval.Strategy
	if p.patterns != nil {
		strategies = p.patterns.SuggestErrorCorrection(canonical, reason)
	}

	attempt := s.attempts[canonical]
	if len(strategies) == 0 || attempt >= len(strategies) || attempt >= p.maxCorrections() {
		task.Status = types.TaskFailed
		p.failPermanently(s, task, reason)
		return
	}

	strategy := strategies[attempt]
	s.attempts[canonical]++
	task.Status = types.TaskRetryPending

	correctionType := task.Type
	if cat, ok := task.Type.Category(); ok {
		correctionType = types.CorrectionTask(cat)
	}
	correction := s.newTask(correctionType, types.PriorityCorrection, task.Params.Merge(strategy.Params))
	s.taskTypes[correction.ID] = correction.Type
	s.commit("complete_event_planning", correction.ID)
	s.enqueueFront(correction)
	metrics.Corrections.Inc()
	logging.Planner("%s: correction %s via %s (attempt %d)", s.id, correctionType, strategy.Name, attempt+1)
}

// reconsider suspends the intentions invalidated by a critical failure and
// raises fix desires in their place.
func (p *Planner) reconsider(s *session, t types.TaskType) {
	dropped := s.dropIntentionsFor(t, s.taskTypes)
	if cat, ok := t.Category(); ok {
		s.addDesire("fix_"+string(cat), types.PriorityCorrection)
	} else {
		s.addDesire("fix_budget", types.PriorityCorrection)
	}
	logging.PlannerDebug("%s: reconsideration dropped %d intentions for %s", s.id, dropped, t)
}

// failPermanently closes a category (or the whole budget phase) after the
// strategy catalogue is exhausted.
func (p *Planner) failPermanently(s *session, task *types.Task, reason string) {
	if cat, ok := task.Type.Category(); ok {
		s.failed[cat] = reason
		s.resolveIntention(task.ID, types.IntentionDropped)
		logging.PlannerWarn("%s: %s permanently failed: %s", s.id, cat, reason)
		return
	}
	// Budget exhaustion starves every unresolved category.
	for _, cat := range types.Categories() {
		if !s.resolved(cat) {
			s.failed[cat] = "budget distribution failed: " + reason
		}
	}
	logging.PlannerWarn("%s: budget permanently failed: %s", s.id, reason)
}

// =============================================================================
// COMPLETION
// =============================================================================

// finish runs when the queue drains: consolidate whatever resolved into a
// final response. Degraded completions still complete.
func (p *Planner) finish(s *session) {
	summary := types.PlanSummary{
		SessionID:   s.id,
		State:       types.SessionCompleted,
		TotalBudget: 0,
		Selections:  make(map[types.Category]*types.Selection, len(types.Categories())),
		GeneratedAt: time.Now().UTC(),
	}
	if s.criteria != nil {
		summary.TotalBudget = s.criteria.TotalBudget
	}

	used := 0.0
	for _, cat := range types.Categories() {
		sel := &types.Selection{Category: cat, Assigned: s.assigned[cat]}
		if candidates := s.results[cat]; len(candidates) > 0 {
			best := candidates[0]
			sel.Best = &best
			if len(candidates) > 1 {
				alts := candidates[1:]
				if len(alts) > 5 {
					alts = alts[:5]
				}
				sel.Alternatives = alts
			}
			used += best.Price
		} else if reason, ok := s.failed[cat]; ok {
			sel.Note = reason
			summary.Degraded = true
			summary.Notes = append(summary.Notes, fmt.Sprintf("%s: %s", cat, reason))
		} else {
			sel.Note = "not planned"
			summary.Degraded = true
			summary.Notes = append(summary.Notes, fmt.Sprintf("%s: not planned", cat))
		}
		summary.Selections[cat] = sel
	}
	summary.UsedBudget = used

	s.state = types.SessionCompleted
	outcome := "completed"
	if summary.Degraded {
		outcome = "degraded"
	}
	metrics.SessionsCompleted.WithLabelValues(outcome).Inc()
	metrics.SessionsActive.Dec()
	p.persist(s, memory.StatusInactive)
	if p.store != nil {
		if err := p.store.Inactivate(s.id); err != nil {
			logging.SessionWarn("inactivate %s: %v", s.id, err)
		}
	}
	logging.Session("%s finished (%s, used %.0f of %.0f)", s.id, outcome, used, summary.TotalBudget)
	logging.AuditWithSession(s.id).Event(logging.AuditSessionCompleted, outcome)

	final := types.NewMessage(types.EndpointPlanner, types.EndpointUser, s.id, types.FinalBody{
		Summary:    summary,
		Correction: s.correction,
	})
	if err := p.bus.Send(final); err != nil {
		logging.PlannerWarn("%s: final response not delivered: %v", s.id, err)
	}
}
