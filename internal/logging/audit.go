// Audit logging for gala: structured JSON-line events covering session
// lifecycle, task dispatch, and knowledge mutations. The audit file is the
// flat-file twin of the trace store; an optional sink forwards events to it.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Session lifecycle events
	AuditSessionCreated   AuditEventType = "session_created"
	AuditSessionCompleted AuditEventType = "session_completed"
	AuditSessionRecovery  AuditEventType = "session_recovery"
	AuditSessionArchived  AuditEventType = "session_archived"
	AuditSessionForked    AuditEventType = "session_forked"

	// Task events
	AuditTaskQueued    AuditEventType = "task_queued"
	AuditTaskDispatch  AuditEventType = "task_dispatch"
	AuditTaskCompleted AuditEventType = "task_completed"
	AuditTaskFailed    AuditEventType = "task_failed"
	AuditTaskTimeout   AuditEventType = "task_timeout"

	// Bus events
	AuditMessageSent    AuditEventType = "message_sent"
	AuditMessageDropped AuditEventType = "message_dropped"

	// Budget events
	AuditBudgetDistributed AuditEventType = "budget_distributed"
	AuditBudgetFallback    AuditEventType = "budget_fallback"

	// Knowledge events
	AuditGraphPersisted   AuditEventType = "graph_persisted"
	AuditNodeEnriched     AuditEventType = "node_enriched"
	AuditEnrichmentFailed AuditEventType = "enrichment_failed"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`                // Unix milliseconds
	EventType  AuditEventType         `json:"event"`             // What happened
	Category   string                 `json:"cat,omitempty"`     // Log category
	SessionID  string                 `json:"session,omitempty"` // Session correlation
	TaskID     string                 `json:"task,omitempty"`    // Task correlation
	Target     string                 `json:"target,omitempty"`  // Target of operation
	Success    bool                   `json:"success"`           // Operation succeeded
	DurationMs int64                  `json:"dur_ms,omitempty"`  // Duration in milliseconds
	Error      string                 `json:"error,omitempty"`   // Error message if failed
	Message    string                 `json:"msg,omitempty"`     // Human-readable message
	Fields     map[string]interface{} `json:"fields,omitempty"`  // Additional structured fields
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile *os.File
	auditMu   sync.Mutex
	auditSink func(AuditEvent)
)

// AuditLogger handles structured audit logging scoped to a session or task.
type AuditLogger struct {
	sessionID string
	category  Category
	taskID    string
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// SetAuditSink registers a callback invoked for every audit event regardless
// of debug mode. Embedders use this to forward events to their own journal.
func SetAuditSink(sink func(AuditEvent)) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditSink = sink
}

// Audit returns an unscoped audit logger
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithSession creates an audit logger scoped to a session
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// AuditWithTask creates a fully-scoped audit logger
func AuditWithTask(sessionID, taskID string, category Category) *AuditLogger {
	return &AuditLogger{
		sessionID: sessionID,
		taskID:    taskID,
		category:  category,
	}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	// Fill in defaults
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" && a.sessionID != "" {
		event.SessionID = a.sessionID
	}
	if event.TaskID == "" && a.taskID != "" {
		event.TaskID = a.taskID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	auditMu.Lock()
	sink := auditSink
	if auditFile != nil {
		if data, err := json.Marshal(event); err == nil {
			auditFile.WriteString(string(data) + "\n")
		}
	}
	auditMu.Unlock()

	if sink != nil {
		sink(event)
	}
}

// Event is shorthand for a successful event with a message.
func (a *AuditLogger) Event(t AuditEventType, msg string) {
	a.Log(AuditEvent{EventType: t, Message: msg, Success: true})
}

// Failure is shorthand for a failed event carrying the error text.
func (a *AuditLogger) Failure(t AuditEventType, errMsg string) {
	a.Log(AuditEvent{EventType: t, Error: errMsg, Success: false})
}

// Timed logs an event with its duration.
func (a *AuditLogger) Timed(t AuditEventType, target string, d time.Duration, ok bool) {
	a.Log(AuditEvent{EventType: t, Target: target, DurationMs: d.Milliseconds(), Success: ok})
}
