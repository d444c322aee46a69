package planner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/agents"
	"gala/internal/budget"
	"gala/internal/bus"
	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/llm"
	"gala/internal/logging"
	"gala/internal/memory"
	"gala/internal/retrieval"
	"gala/internal/types"
)

// eventLog captures task lifecycle events in order.
type eventLog struct {
	mu     sync.Mutex
	events []loggedEvent
}

type loggedEvent struct {
	TaskType types.TaskType
	Status   string
	Detail   string
}

func (l *eventLog) RecordTaskEvent(sessionID, taskID string, taskType types.TaskType, status, detail string, elapsed time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, loggedEvent{TaskType: taskType, Status: status, Detail: detail})
}

func (l *eventLog) all() []loggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]loggedEvent(nil), l.events...)
}

// system wires a planner, bus, workers, and distributor over in-memory
// graphs for scenario tests.
type system struct {
	planner *Planner
	bus     *bus.Bus
	store   *memory.SessionStore
	finals  chan types.Message
	log     *eventLog
}

func filledGraphs(t *testing.T) map[types.Category]*graph.Graph {
	t.Helper()
	graphs := map[types.Category]*graph.Graph{
		types.CategoryVenue:    graph.New(types.CategoryVenue),
		types.CategoryCatering: graph.New(types.CategoryCatering),
		types.CategoryDecor:    graph.New(types.CategoryDecor),
	}
	graphs[types.CategoryVenue].Insert(graph.Record{
		URL:  "https://venues.example/barn",
		Name: "Old Oak Barn",
		Data: types.Value{
			"capacity": 150, "price": types.Value{"space_rental": 4000},
			"location": "Valley Road 3", "venue_type": "Barn",
			"atmosphere": []string{"rustic", "outdoor"},
		},
	})
	graphs[types.CategoryVenue].Insert(graph.Record{
		URL:  "https://venues.example/ballroom",
		Name: "Crystal Ballroom",
		Data: types.Value{
			"capacity": 400, "price": types.Value{"space_rental": 12000},
			"location": "Center Plaza 1", "venue_type": "Ballroom",
		},
	})
	graphs[types.CategoryCatering].Insert(graph.Record{
		URL:  "https://caterers.example/farm",
		Name: "Farm Table Catering",
		Data: types.Value{
			"price": types.Value{"per_person": 90}, "location": "Main St 5",
			"services": []string{"catering"}, "meal_types": []string{"Family Style", "Buffet"},
		},
	})
	graphs[types.CategoryDecor].Insert(graph.Record{
		URL:  "https://decor.example/wild",
		Name: "Wildflower Studio",
		Data: types.Value{
			"price": types.Value{"base_package": 1500}, "location": "Oak Ave 2",
			"service_levels":      []string{"Partial Styling"},
			"floral_arrangements": []string{"Wildflower Centerpieces", "Bouquets"},
		},
	})
	return graphs
}

func newSystem(t *testing.T, graphs map[types.Category]*graph.Graph) *system {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Planner.TaskTimeout = "2s"

	b := bus.New(bus.DefaultConfig())
	b.Start()
	t.Cleanup(b.Stop)

	dir := t.TempDir()
	patterns := retrieval.NewStore(dir)
	store := memory.NewSessionStore(dir)
	prefs := memory.NewPrefsStore(dir)

	dist := budget.New(cfg.Budget, llm.NewSimulated(1), time.Second, prefs, patterns,
		func(cat types.Category) *graph.Graph { return graphs[cat] }, 1)
	b.Register(types.EndpointBudget, dist.Handler())

	for cat, g := range graphs {
		w := agents.NewWorker(cat, cfg.Workers, g, "", nil, nil, patterns)
		b.Register(string(cat), w.Handler())
	}

	finals := make(chan types.Message, 16)
	b.Register(types.EndpointUser, func(msg types.Message) *types.Message {
		if msg.Kind == types.KindFinalResponse {
			finals <- msg
		}
		return nil
	})

	log := &eventLog{}
	p := New(b, cfg, patterns, store, log)
	p.Attach()

	return &system{planner: p, bus: b, store: store, finals: finals, log: log}
}

func userRequest(userID string, total float64, guests int, style string) types.Message {
	return types.NewMessage(types.EndpointUser, types.EndpointPlanner, "", types.UserRequestBody{
		Criteria: types.Criteria{
			UserID:      userID,
			TotalBudget: total,
			GuestCount:  guests,
			Style:       style,
			Description: style + " wedding",
		},
	})
}

func (sys *system) waitFinal(t *testing.T) types.FinalBody {
	t.Helper()
	select {
	case msg := <-sys.finals:
		body, ok := msg.Body.(types.FinalBody)
		require.True(t, ok)
		return body
	case <-time.After(10 * time.Second):
		t.Fatal("no final response")
		return types.FinalBody{}
	}
}

func TestHappyPathCompletesEveryCategory(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))

	ack := sys.planner.Receive(userRequest("user-1", 30000, 120, "rustic"))
	require.NotNil(t, ack)
	ackBody, ok := ack.Body.(types.AckBody)
	require.True(t, ok)
	require.NotEmpty(t, ackBody.SessionID)

	final := sys.waitFinal(t)
	assert.False(t, final.Summary.Degraded)
	assert.Equal(t, types.SessionCompleted, final.Summary.State)

	assignedTotal := 0
	for _, cat := range types.Categories() {
		sel := final.Summary.Selections[cat]
		require.NotNil(t, sel, "missing selection for %s", cat)
		require.NotNil(t, sel.Best, "no pick for %s", cat)
		assignedTotal += sel.Assigned
	}
	assert.Equal(t, 30000, assignedTotal, "distribution must sum to the total")
	assert.Equal(t, "Old Oak Barn", final.Summary.Selections[types.CategoryVenue].Best.Name,
		"rustic style and 120 guests should pick the barn")
	assert.Greater(t, final.Summary.UsedBudget, 0.0)
	assert.LessOrEqual(t, final.Summary.UsedBudget, final.Summary.TotalBudget)

	sys.planner.Wait()
	rec, ok := sys.store.Get(ackBody.SessionID)
	require.True(t, ok)
	assert.Equal(t, memory.StatusInactive, rec.Status)
}

func TestInfeasibleBudgetDegradesButCompletes(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))

	sys.planner.Receive(userRequest("user-2", 1000, 120, "rustic"))
	final := sys.waitFinal(t)

	assert.True(t, final.Summary.Degraded)
	assert.Equal(t, types.SessionCompleted, final.Summary.State)
	venue := final.Summary.Selections[types.CategoryVenue]
	require.NotNil(t, venue)
	assert.Nil(t, venue.Best, "no venue fits a four-figure total")
	assert.NotEmpty(t, venue.Note)
	assert.NotEmpty(t, final.Summary.Notes)
}

func TestRejectsInvalidCriteria(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))

	msg := types.NewMessage(types.EndpointUser, types.EndpointPlanner, "", types.UserRequestBody{
		Criteria: types.Criteria{UserID: "user-3", TotalBudget: -500},
	})
	reply := sys.planner.Receive(msg)
	require.NotNil(t, reply)
	_, isErr := reply.Body.(types.ErrorBody)
	assert.True(t, isErr)
}

func TestZeroBudgetRequestGetsAllZeroSplit(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))

	ack := sys.planner.Receive(userRequest("user-zero", 0, 50, "rustic"))
	require.NotNil(t, ack)
	_, isAck := ack.Body.(types.AckBody)
	require.True(t, isAck, "a zero budget is plannable")

	final := sys.waitFinal(t)
	sys.planner.Wait()
	for _, cat := range types.Categories() {
		sel := final.Summary.Selections[cat]
		require.NotNil(t, sel)
		assert.Zero(t, sel.Assigned, "category %s must get a zero assignment", cat)
	}
}

func TestConcurrentSessionsStayIndependent(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))

	ack1 := sys.planner.Receive(userRequest("user-a", 30000, 100, "rustic"))
	ack2 := sys.planner.Receive(userRequest("user-b", 25000, 80, "elegant"))
	id1 := ack1.Body.(types.AckBody).SessionID
	id2 := ack2.Body.(types.AckBody).SessionID
	require.NotEqual(t, id1, id2)

	first := sys.waitFinal(t)
	second := sys.waitFinal(t)
	got := map[string]bool{first.Summary.SessionID: true, second.Summary.SessionID: true}
	assert.True(t, got[id1])
	assert.True(t, got[id2])
}

func TestCorrectionLoopOrderAndExhaustion(t *testing.T) {
	// Venue graph is empty and there is no crawler: every venue search
	// legitimately returns nothing.
	graphs := filledGraphs(t)
	graphs[types.CategoryVenue] = graph.New(types.CategoryVenue)

	var mu sync.Mutex
	var venueRequests []agents.Request

	sys := newSystem(t, graphs)
	sys.bus.Register("venue", func(msg types.Message) *types.Message {
		task := msg.Body.(types.TaskBody)
		mu.Lock()
		venueRequests = append(venueRequests, agents.ParseRequest(task.Params))
		mu.Unlock()
		reply := types.NewMessage("venue", msg.From, msg.SessionID, types.ResponseBody{
			TaskID: task.TaskID,
			Type:   task.Type,
			Result: []types.Candidate{},
		})
		return &reply
	})

	sys.planner.Receive(userRequest("user-4", 30000, 120, "rustic"))
	final := sys.waitFinal(t)
	sys.planner.Wait()

	assert.True(t, final.Summary.Degraded)
	assert.Nil(t, final.Summary.Selections[types.CategoryVenue].Best)
	require.NotNil(t, final.Summary.Selections[types.CategoryCatering].Best,
		"other categories must survive the venue failure")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, venueRequests, 3, "original search plus two correction rounds")
	assert.Zero(t, venueRequests[0].RelaxFactor)
	assert.InDelta(t, 0.8, venueRequests[1].RelaxFactor, 1e-9, "first correction relaxes constraints")
	assert.Zero(t, venueRequests[1].BudgetIncrease)
	assert.InDelta(t, 0.2, venueRequests[2].BudgetIncrease, 1e-9, "second correction raises the budget")
}

func TestTimeoutTriggersCriticalRecovery(t *testing.T) {
	graphs := filledGraphs(t)
	sys := newSystem(t, graphs)

	var mu sync.Mutex
	calls := 0
	sys.bus.Register("venue", func(msg types.Message) *types.Message {
		task := msg.Body.(types.TaskBody)
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			// Past the 100ms task timeout, but short enough that the
			// follow-up correction still gets a prompt answer.
			time.Sleep(150 * time.Millisecond)
			return nil
		}
		reply := types.NewMessage("venue", msg.From, msg.SessionID, types.ResponseBody{
			TaskID: task.TaskID,
			Type:   task.Type,
			Result: []types.Candidate{{Category: types.CategoryVenue, Name: "Backup Hall", Price: 3000}},
		})
		return &reply
	})
	sys.planner.cfg.Planner.TaskTimeout = "100ms"

	sys.planner.Receive(userRequest("user-5", 30000, 120, "rustic"))
	final := sys.waitFinal(t)
	sys.planner.Wait()

	require.NotNil(t, final.Summary.Selections[types.CategoryVenue].Best)
	assert.Equal(t, "Backup Hall", final.Summary.Selections[types.CategoryVenue].Best.Name)

	var timeoutDetail string
	for _, ev := range sys.log.all() {
		if ev.Status == "failed" && ev.TaskType == types.TaskVenueSearch {
			timeoutDetail = ev.Detail
		}
	}
	assert.Equal(t, "Timeout esperando respuesta", timeoutDetail)
}

func TestHandleCorrectionForksAndArchives(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))

	ack := sys.planner.Receive(userRequest("user-6", 30000, 120, "rustic"))
	origID := ack.Body.(types.AckBody).SessionID
	sys.waitFinal(t)
	sys.planner.Wait()

	newID, err := sys.planner.HandleCorrection(origID, "user-6", []types.Category{types.CategoryVenue})
	require.NoError(t, err)
	require.NotEqual(t, origID, newID)

	final := sys.waitFinal(t)
	sys.planner.Wait()
	assert.True(t, final.Correction)
	assert.Equal(t, newID, final.Summary.SessionID)
	require.NotNil(t, final.Summary.Selections[types.CategoryVenue].Best)
	require.NotNil(t, final.Summary.Selections[types.CategoryCatering].Best,
		"non-conflicting beliefs are carried over")

	rec, ok := sys.store.Get(origID)
	require.True(t, ok)
	assert.Equal(t, memory.StatusArchived, rec.Status)

	// The archived session refuses further requests.
	msg := userRequest("user-6", 10000, 50, "modern")
	msg.SessionID = origID
	reply := sys.planner.Receive(msg)
	require.NotNil(t, reply)
	errBody, isErr := reply.Body.(types.ErrorBody)
	require.True(t, isErr)
	assert.Contains(t, errBody.Reason, "archived")
}

func TestSessionLifecycleIsAudited(t *testing.T) {
	var mu sync.Mutex
	var events []logging.AuditEvent
	logging.SetAuditSink(func(e logging.AuditEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer logging.SetAuditSink(nil)

	sys := newSystem(t, filledGraphs(t))
	ack := sys.planner.Receive(userRequest("user-7", 30000, 120, "rustic"))
	require.NotNil(t, ack)
	id := ack.Body.(types.AckBody).SessionID
	sys.waitFinal(t)
	sys.planner.Wait()

	mu.Lock()
	defer mu.Unlock()
	seen := map[logging.AuditEventType]bool{}
	for _, e := range events {
		if e.SessionID == id {
			seen[e.EventType] = true
		}
	}
	assert.True(t, seen[logging.AuditSessionCreated], "session creation must be audited")
	assert.True(t, seen[logging.AuditTaskDispatch], "task dispatch must be audited")
	assert.True(t, seen[logging.AuditTaskCompleted], "task completion must be audited")
	assert.True(t, seen[logging.AuditSessionCompleted], "session completion must be audited")
}

func TestStrayResponsesAreIgnored(t *testing.T) {
	sys := newSystem(t, filledGraphs(t))
	msg := types.NewMessage("venue", types.EndpointPlanner, "sess-x", types.ResponseBody{
		TaskID: "unknown-task",
		Type:   types.TaskVenueSearch,
		Result: []types.Candidate{},
	})
	assert.Nil(t, sys.planner.Receive(msg))
}
