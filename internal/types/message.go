package types

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE ENVELOPE
// =============================================================================

// Kind discriminates message payloads on the bus. Every Kind has exactly one
// Body struct; the envelope's Kind field always matches Body.MessageKind().
type Kind string

const (
	KindTask          Kind = "task"
	KindAgentResponse Kind = "agent_response"
	KindError         Kind = "error"
	KindUserRequest   Kind = "user_request"
	KindCorrection    Kind = "correction_request"
	KindAck           Kind = "ack"
	KindFinalResponse Kind = "final_response"
	KindEvent         Kind = "event"
)

// Body is the typed payload of a message. One struct per Kind; receivers
// switch on the concrete type instead of digging through nested maps.
type Body interface {
	MessageKind() Kind
}

// Correlated is implemented by bodies that belong to a task exchange. The bus
// response loop uses the correlation id to pair replies with waiting senders.
type Correlated interface {
	CorrelationID() string
}

// Message is the envelope every bus exchange uses.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	SessionID string    `json:"session_id,omitempty"`
	Body      Body      `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// NewMessage builds an envelope around body, stamping id, kind, and time.
func NewMessage(from, to, sessionID string, body Body) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      body.MessageKind(),
		From:      from,
		To:        to,
		SessionID: sessionID,
		Body:      body,
		SentAt:    time.Now(),
	}
}

// Correlation extracts the task id a message replies to, when it has one.
func Correlation(m Message) (string, bool) {
	if m.Body == nil {
		return "", false
	}
	c, ok := m.Body.(Correlated)
	if !ok {
		return "", false
	}
	id := c.CorrelationID()
	return id, id != ""
}

// =============================================================================
// BODY VARIANTS
// =============================================================================

// TaskBody asks an endpoint to perform one unit of work. GraphData is the
// shared-data snapshot the bus attaches at send time so workers operate on
// the live knowledge graphs without holding their own references.
type TaskBody struct {
	TaskID    string         `json:"task_id"`
	Type      TaskType       `json:"task_type"`
	Params    Value          `json:"params,omitempty"`
	GraphData map[string]any `json:"-"`
}

func (TaskBody) MessageKind() Kind { return KindTask }
func (b TaskBody) CorrelationID() string { return b.TaskID }

// ResponseBody carries a successful task result back to the sender. Result is
// opaque at the envelope level; receivers assert the concrete type they
// dispatched for ([]Candidate for searches, map[Category]int for budget).
type ResponseBody struct {
	TaskID  string        `json:"task_id"`
	Type    TaskType      `json:"task_type"`
	Result  any           `json:"result"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

func (ResponseBody) MessageKind() Kind { return KindAgentResponse }
func (b ResponseBody) CorrelationID() string { return b.TaskID }

// ErrorBody reports a failed task. Reason keeps the handler's error text
// verbatim so the planner's criticality check sees the original words.
type ErrorBody struct {
	TaskID string   `json:"task_id"`
	Type   TaskType `json:"task_type"`
	Reason string   `json:"reason"`
}

func (ErrorBody) MessageKind() Kind { return KindError }
func (b ErrorBody) CorrelationID() string { return b.TaskID }

// UserRequestBody opens a new planning session.
type UserRequestBody struct {
	Criteria Criteria `json:"criteria"`
}

func (UserRequestBody) MessageKind() Kind { return KindUserRequest }

// CorrectionBody asks for a re-plan of specific categories in a finished
// session. Categories listed here are treated as in conflict: their beliefs
// are not copied into the forked session.
type CorrectionBody struct {
	OriginalSessionID string     `json:"original_session_id"`
	UserID            string     `json:"user_id"`
	Categories        []Category `json:"categories"`
	Note              string     `json:"note,omitempty"`
}

func (CorrectionBody) MessageKind() Kind { return KindCorrection }

// AckBody acknowledges a user request before the session completes.
type AckBody struct {
	SessionID string `json:"session_id"`
	Note      string `json:"note,omitempty"`
}

func (AckBody) MessageKind() Kind { return KindAck }

// FinalBody delivers the consolidated plan for a session.
type FinalBody struct {
	Summary    PlanSummary `json:"summary"`
	Correction bool        `json:"correction,omitempty"`
}

func (FinalBody) MessageKind() Kind { return KindFinalResponse }

// EventBody is a broadcast notification (shutdown, graph reload, etc.).
type EventBody struct {
	Event   string `json:"event"`
	Payload Value  `json:"payload,omitempty"`
}

func (EventBody) MessageKind() Kind { return KindEvent }
