package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of workflow event being streamed.
type Type string

// Event types emitted by agentic workflows.
const (
	TypeWorkflowStarted      Type = "workflow_started"
	TypeWorkflowCompleted    Type = "workflow_completed"
	TypeWorkflowInterruption Type = "workflow_interruption"
	TypeStepStarted          Type = "step_started"
	TypeStepProgress         Type = "step_progress"
	TypeStepCompleted        Type = "step_completed"
	TypeStepFailed           Type = "step_failed"
	TypeToolExecuted         Type = "tool_executed"
	TypeToolCompleted        Type = "tool_completed"
	TypeError                Type = "error"
	TypeHeartbeat            Type = "heartbeat"
	TypeAgentMessage         Type = "agent_message"
	TypeTokenChunk           Type = "token_chunk"
	TypeReasoningChunk       Type = "reasoning_chunk"
	TypeUserDecision         Type = "user_decision"
)

var knownTypes = map[Type]struct{}{
	TypeWorkflowStarted:      {},
	TypeWorkflowCompleted:    {},
	TypeWorkflowInterruption: {},
	TypeStepStarted:          {},
	TypeStepProgress:         {},
	TypeStepCompleted:        {},
	TypeStepFailed:           {},
	TypeToolExecuted:         {},
	TypeToolCompleted:        {},
	TypeError:                {},
	TypeHeartbeat:            {},
	TypeAgentMessage:         {},
	TypeTokenChunk:           {},
	TypeReasoningChunk:       {},
	TypeUserDecision:         {},
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Visibility defines the audience of a stream event.
type Visibility string

// Visibility levels.
const (
	// VisibilityUserFacing targets both the user's chat UI and the model's
	// conversation history.
	VisibilityUserFacing Visibility = "user_facing"
	// VisibilityModelOnly targets the model's persistent memory, not the UI.
	VisibilityModelOnly Visibility = "model_only"
	// VisibilityLiveUIOnly targets the real-time UI stream only
	// (e.g. reasoning tokens).
	VisibilityLiveUIOnly Visibility = "live_ui_only"
	// VisibilityInternalOnly targets server logs and debugging.
	VisibilityInternalOnly Visibility = "internal_only"
)

// Valid reports whether v is a known visibility level.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityUserFacing, VisibilityModelOnly, VisibilityLiveUIOnly, VisibilityInternalOnly:
		return true
	}
	return false
}

// Event is a single stream event. Field names on the wire match the
// StreamWeaver client protocol.
type Event struct {
	ID         string         `json:"eventId,omitempty"`
	SessionID  string         `json:"sessionId"`
	Seq        uint64         `json:"seq,omitempty"`
	Type       Type           `json:"type"`
	Visibility Visibility     `json:"visibility"`
	Timestamp  time.Time      `json:"timestamp"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`

	Step       *int     `json:"step,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
	Tool       string   `json:"tool,omitempty"`
	DurationMs int64    `json:"duration,omitempty"`
	Success    bool     `json:"success"`
}

// New returns an event with a fresh unique ID and the current timestamp.
// The sequence number is assigned later by the dispatcher.
func New(sessionID string, t Type) *Event {
	return &Event{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Type:       t,
		Visibility: VisibilityUserFacing,
		Timestamp:  time.Now().UTC(),
		Success:    true,
	}
}

// Synthetic returns an event generated by the delivery pipeline itself
// (heartbeats, connection markers). It carries no ID and no sequence so
// clients never use it as a replay cursor.
func Synthetic(sessionID string, t Type, message string) *Event {
	return &Event{
		SessionID:  sessionID,
		Type:       t,
		Visibility: VisibilityUserFacing,
		Timestamp:  time.Now().UTC(),
		Message:    message,
		Success:    true,
	}
}
