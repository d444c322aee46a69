// Package bus implements gala's in-process typed message broker. Every
// exchange between the planner, the budget distributor, and the category
// workers goes through one Bus instance: named endpoints register handler
// functions, senders correlate replies by task id, and a process-wide
// shared-data registry carries the live knowledge graphs into outgoing task
// messages so workers never hold their own graph references.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/types"
)

// =============================================================================
// HANDLERS AND ERRORS
// =============================================================================

// Handler processes one inbound message and optionally returns a synchronous
// reply. A nil return means "no reply"; non-nil replies are routed through
// the response loop to any waiter correlated on the reply's task id.
//
// Handlers must be reentrant: the bus runs one dispatch goroutine per
// endpoint, but the same handler may serve messages from many sessions.
type Handler func(msg types.Message) *types.Message

var (
	// ErrStopped is returned when the bus is not running.
	ErrStopped = errors.New("bus is stopped")

	// ErrUnknownEndpoint is returned by Send when the destination was never
	// registered. Messages routed to unknown endpoints by the dispatch loop
	// itself are logged and dropped instead.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrQueueFull is returned when an endpoint's FIFO cannot accept more.
	ErrQueueFull = errors.New("endpoint queue full")
)

// =============================================================================
// BUS
// =============================================================================

// Config sizes the bus queues and bounds its shutdown drain.
type Config struct {
	QueueSize         int
	ResponseQueueSize int
	EndpointQueueSize int
	DrainTimeout      time.Duration
}

// DefaultConfig returns queue sizes suitable for a single planning process.
func DefaultConfig() Config {
	return Config{
		QueueSize:         256,
		ResponseQueueSize: 256,
		EndpointQueueSize: 64,
		DrainTimeout:      5 * time.Second,
	}
}

// endpoint is one registered destination with its own FIFO. A dedicated
// goroutine drains the FIFO, which gives per-destination enqueue ordering
// while letting distinct endpoints run in parallel.
type endpoint struct {
	name    string
	handler Handler
	queue   chan types.Message
}

// Bus is the broker. Zero value is not usable; construct with New and call
// Start before sending.
type Bus struct {
	cfg Config

	mu        sync.RWMutex
	endpoints map[string]*endpoint
	waiters   map[string]chan types.Message
	shared    map[string]any
	running   bool

	inbound   chan types.Message
	responses chan types.Message
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a bus with the given queue sizes. Zero fields fall back to
// defaults.
func New(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ResponseQueueSize <= 0 {
		cfg.ResponseQueueSize = def.ResponseQueueSize
	}
	if cfg.EndpointQueueSize <= 0 {
		cfg.EndpointQueueSize = def.EndpointQueueSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	return &Bus{
		cfg:       cfg,
		endpoints: make(map[string]*endpoint),
		waiters:   make(map[string]chan types.Message),
		shared:    make(map[string]any),
	}
}

// Start launches the dispatch and response loops. Calling Start on a running
// bus is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.inbound = make(chan types.Message, b.cfg.QueueSize)
	b.responses = make(chan types.Message, b.cfg.ResponseQueueSize)
	b.stopCh = make(chan struct{})

	b.wg.Add(2)
	go b.dispatchLoop()
	go b.responseLoop()

	for _, ep := range b.endpoints {
		b.startEndpoint(ep)
	}

	logging.Bus("bus started: %d endpoints, queue=%d", len(b.endpoints), b.cfg.QueueSize)
}

// Stop shuts the bus down, waiting up to DrainTimeout for loops to finish.
// Pending waiters are released with a nil delivery (their channels close).
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	for id, ch := range b.waiters {
		close(ch)
		delete(b.waiters, id)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Bus("bus stopped")
	case <-time.After(b.cfg.DrainTimeout):
		logging.BusWarn("bus drain timeout exceeded, some messages may be lost")
	}
}

// Running reports whether the loops are live.
func (b *Bus) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register binds a handler to an endpoint name. Registering an existing name
// replaces the handler; in-flight messages already queued for the old handler
// are served by the new one.
func (b *Bus) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep, ok := b.endpoints[name]; ok {
		ep.handler = h
		logging.BusDebug("endpoint %s: handler replaced", name)
		return
	}
	ep := &endpoint{
		name:    name,
		handler: h,
		queue:   make(chan types.Message, b.cfg.EndpointQueueSize),
	}
	b.endpoints[name] = ep
	if b.running {
		b.startEndpoint(ep)
	}
	logging.BusDebug("endpoint %s: registered", name)
}

// Endpoints returns the registered endpoint names.
func (b *Bus) Endpoints() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.endpoints))
	for name := range b.endpoints {
		names = append(names, name)
	}
	return names
}

// startEndpoint launches the per-endpoint drain goroutine. Caller holds b.mu.
func (b *Bus) startEndpoint(ep *endpoint) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.stopCh:
				return
			case msg := <-ep.queue:
				b.invoke(ep, msg)
			}
		}
	}()
}

// =============================================================================
// SENDING
// =============================================================================

// Send enqueues a message and returns once it is queued. The destination is
// resolved by the dispatch loop; sending to an endpoint that is never
// registered gets the message logged and dropped there.
func (b *Bus) Send(msg types.Message) error {
	b.mu.RLock()
	running := b.running
	inbound := b.inbound
	b.mu.RUnlock()
	if !running {
		return ErrStopped
	}

	b.attachSharedData(&msg)

	select {
	case inbound <- msg:
		metrics.MessagesSent.WithLabelValues(string(msg.Kind)).Inc()
		return nil
	case <-b.stopCh:
		return ErrStopped
	}
}

// SendAndWait enqueues msg and blocks until a reply correlated on the
// message's task id arrives or timeout elapses. Timeout (and a non-positive
// timeout) returns nil; the pending waiter is deregistered either way, so a
// late reply for the same id is counted and dropped by the response loop.
func (b *Bus) SendAndWait(msg types.Message, timeout time.Duration) *types.Message {
	taskID, ok := types.Correlation(msg)
	if !ok {
		logging.BusWarn("send_and_wait on uncorrelated %s message from %s, falling back to send", msg.Kind, msg.From)
		_ = b.Send(msg)
		return nil
	}

	if timeout <= 0 {
		_ = b.Send(msg)
		metrics.WaitTimeouts.Inc()
		return nil
	}

	ch := make(chan types.Message, 1)
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.waiters[taskID] = ch
	b.mu.Unlock()

	if err := b.Send(msg); err != nil {
		b.removeWaiter(taskID)
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply, open := <-ch:
		if !open {
			return nil
		}
		return &reply
	case <-timer.C:
		b.removeWaiter(taskID)
		metrics.WaitTimeouts.Inc()
		logging.BusDebug("send_and_wait timeout for task %s after %v", taskID, timeout)
		return nil
	}
}

// Broadcast fans a message out to every registered endpoint except the
// sender. Delivery is best-effort; full endpoint queues are skipped.
func (b *Bus) Broadcast(from, sessionID string, body types.Body) {
	b.mu.RLock()
	targets := make([]string, 0, len(b.endpoints))
	for name := range b.endpoints {
		if name != from {
			targets = append(targets, name)
		}
	}
	b.mu.RUnlock()

	for _, to := range targets {
		msg := types.NewMessage(from, to, sessionID, body)
		if err := b.Send(msg); err != nil {
			logging.BusWarn("broadcast to %s failed: %v", to, err)
		}
	}
}

func (b *Bus) removeWaiter(taskID string) {
	b.mu.Lock()
	delete(b.waiters, taskID)
	b.mu.Unlock()
}

// =============================================================================
// SHARED DATA
// =============================================================================

// SetSharedData registers a process-wide value under key. Task messages sent
// afterwards carry a snapshot of the registry in their GraphData field.
func (b *Bus) SetSharedData(key string, value any) {
	b.mu.Lock()
	b.shared[key] = value
	b.mu.Unlock()
}

// SharedData returns a copy of the registry. Values are shared references:
// graphs guard their own state, so handing the same instance to every worker
// is safe for reads and serialized for writes.
func (b *Bus) SharedData() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.shared))
	for k, v := range b.shared {
		out[k] = v
	}
	return out
}

// attachSharedData stamps the registry snapshot onto outgoing task bodies.
func (b *Bus) attachSharedData(msg *types.Message) {
	body, ok := msg.Body.(types.TaskBody)
	if !ok {
		return
	}
	if body.GraphData == nil {
		body.GraphData = b.SharedData()
		msg.Body = body
	}
}

// =============================================================================
// LOOPS
// =============================================================================

// dispatchLoop routes inbound messages to their endpoint FIFO. Routing is
// single-threaded so per-destination enqueue order is preserved; handler
// invocation happens on the endpoint goroutines.
func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case msg := <-b.inbound:
			b.route(msg)
		}
	}
}

func (b *Bus) route(msg types.Message) {
	b.mu.RLock()
	ep, ok := b.endpoints[msg.To]
	b.mu.RUnlock()
	if !ok {
		metrics.MessagesDropped.WithLabelValues("unknown_endpoint").Inc()
		logging.BusWarn("dropping %s message for unknown endpoint %q (from %s)", msg.Kind, msg.To, msg.From)
		return
	}
	select {
	case ep.queue <- msg:
	default:
		metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
		logging.BusError("endpoint %s queue full, dropping %s message from %s", msg.To, msg.Kind, msg.From)
	}
}

// invoke runs the endpoint handler, converting panics into error replies so
// one broken worker cannot take the loops down.
func (b *Bus) invoke(ep *endpoint, msg types.Message) {
	b.mu.RLock()
	h := ep.handler
	b.mu.RUnlock()
	if h == nil {
		return
	}

	reply := b.safeHandle(ep.name, h, msg)
	if reply == nil {
		return
	}
	select {
	case b.responses <- *reply:
	case <-b.stopCh:
	}
}

func (b *Bus) safeHandle(name string, h Handler, msg types.Message) (reply *types.Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.BusError("handler %s panicked on %s message: %v", name, msg.Kind, r)
			taskID, _ := types.Correlation(msg)
			var taskType types.TaskType
			if tb, ok := msg.Body.(types.TaskBody); ok {
				taskType = tb.Type
			}
			m := types.NewMessage(name, msg.From, msg.SessionID, types.ErrorBody{
				TaskID: taskID,
				Type:   taskType,
				Reason: fmt.Sprintf("handler panic: %v", r),
			})
			reply = &m
		}
	}()
	return h(msg)
}

// responseLoop pairs handler replies with send_and_wait waiters. The first
// reply for a task id wins; later replies for the same id are dropped.
// Replies with no waiter (the waiter timed out, or the reply was addressed
// to a plain endpoint) are routed like ordinary messages.
func (b *Bus) responseLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case reply := <-b.responses:
			b.deliver(reply)
		}
	}
}

func (b *Bus) deliver(reply types.Message) {
	taskID, ok := types.Correlation(reply)
	if !ok {
		b.route(reply)
		return
	}

	b.mu.Lock()
	ch, waiting := b.waiters[taskID]
	if waiting {
		delete(b.waiters, taskID)
	}
	b.mu.Unlock()

	if waiting {
		ch <- reply
		metrics.MessagesSent.WithLabelValues(string(reply.Kind)).Inc()
		return
	}

	// No waiter means the sender already timed out or a duplicate reply
	// arrived for an id that was served. First reply wins; this one drops.
	metrics.MessagesDropped.WithLabelValues("stale_reply").Inc()
	logging.BusDebug("dropping stale %s reply for task %s", reply.Kind, taskID)
}
