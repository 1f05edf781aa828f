package agent

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventToolCall         EventKind = "tool_call"
	EventToolResult       EventKind = "tool_result"
	EventPermissionDenied EventKind = "permission_denied"
	EventLLMError         EventKind = "llm_error"
	EventIterationLimit   EventKind = "iteration_limit_reached"
	EventTokenLimit       EventKind = "token_limit_reached"
	EventLoopDetected     EventKind = "loop_detected"
	EventFinished         EventKind = "finished"
)

// LoopEvent is a typed event yielded by the conversation loop. Fields are
// populated per kind: tool events carry ToolName/ToolUseID and, for results,
// Content/IsError/WasCached; llm_error and loop_detected carry Content;
// finished carries Iterations and TotalTokens.
type LoopEvent struct {
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	ToolName    string    `json:"tool_name,omitempty"`
	ToolUseID   string    `json:"tool_use_id,omitempty"`
	Content     string    `json:"content,omitempty"`
	IsError     bool      `json:"is_error,omitempty"`
	WasCached   bool      `json:"was_cached,omitempty"`
	Iterations  int       `json:"iterations,omitempty"`
	TotalTokens int       `json:"total_tokens,omitempty"`
}

// EventEmitter delivers loop events to the caller via a buffered channel.
type EventEmitter struct {
	sessionID string
	ch        chan LoopEvent
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan LoopEvent, bufferSize),
	}
}

// Emit sends an event to the channel. If the emitter is closed, the event
// is silently dropped.
func (e *EventEmitter) Emit(event LoopEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event.Timestamp = time.Now()
	event.SessionID = e.sessionID
	select {
	case e.ch <- event:
	default:
		// Channel full; drop event to avoid blocking the loop.
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan LoopEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
