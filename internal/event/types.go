package event

import (
	"time"

	"github.com/Iron-Ham/paragent/internal/task"
)

// Event types published during a run.
const (
	TypeLayerStarted   = "layer.started"
	TypeLayerCompleted = "layer.completed"
	TypeTaskStarted    = "task.started"
	TypeTaskCompleted  = "task.completed"
	TypeTaskSkipped    = "task.skipped"
	TypeTaskProgress   = "task.progress"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.started", "layer.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// TaskEvent is an event about a single task.
type TaskEvent interface {
	Event
	Task() string
}

// Publisher accepts events. *Bus implements it.
type Publisher interface {
	Publish(Event)
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Layer Events
// -----------------------------------------------------------------------------

// LayerStartedEvent is emitted before a layer's tasks are launched.
type LayerStartedEvent struct {
	baseEvent
	Layer   int      // Zero-based layer index
	TaskIDs []string // Tasks of the layer in input order
}

// NewLayerStartedEvent creates a LayerStartedEvent.
func NewLayerStartedEvent(layer int, taskIDs []string) LayerStartedEvent {
	return LayerStartedEvent{
		baseEvent: newBaseEvent(TypeLayerStarted),
		Layer:     layer,
		TaskIDs:   taskIDs,
	}
}

// LayerCompletedEvent is emitted once every task of a layer is terminal.
type LayerCompletedEvent struct {
	baseEvent
	Layer     int
	Succeeded int
	Failed    int // Every non-success terminal status, skips included
	Duration  time.Duration
}

// NewLayerCompletedEvent creates a LayerCompletedEvent.
func NewLayerCompletedEvent(layer, succeeded, failed int, duration time.Duration) LayerCompletedEvent {
	return LayerCompletedEvent{
		baseEvent: newBaseEvent(TypeLayerCompleted),
		Layer:     layer,
		Succeeded: succeeded,
		Failed:    failed,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskStartedEvent is emitted when a task's process is about to launch.
type TaskStartedEvent struct {
	baseEvent
	TaskID  string
	Layer   int
	Backend string
}

// NewTaskStartedEvent creates a TaskStartedEvent.
func (e TaskStartedEvent) Task() string { return e.TaskID }

func NewTaskStartedEvent(taskID string, layer int, backend string) TaskStartedEvent {
	return TaskStartedEvent{
		baseEvent: newBaseEvent(TypeTaskStarted),
		TaskID:    taskID,
		Layer:     layer,
		Backend:   backend,
	}
}

// TaskCompletedEvent is emitted when an executed task reaches a terminal
// status.
type TaskCompletedEvent struct {
	baseEvent
	TaskID   string
	Layer    int
	Status   task.Status
	ExitCode int
	Duration time.Duration
}

// NewTaskCompletedEvent creates a TaskCompletedEvent from a final result.
func (e TaskCompletedEvent) Task() string { return e.TaskID }

func NewTaskCompletedEvent(result task.Result) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent(TypeTaskCompleted),
		TaskID:    result.TaskID,
		Layer:     result.Layer,
		Status:    result.Status,
		ExitCode:  result.ExitCode,
		Duration:  time.Duration(result.DurationMs) * time.Millisecond,
	}
}

// TaskSkippedEvent is emitted when a task is skipped without running.
type TaskSkippedEvent struct {
	baseEvent
	TaskID string
	Layer  int
	Reason string
}

// NewTaskSkippedEvent creates a TaskSkippedEvent.
func (e TaskSkippedEvent) Task() string { return e.TaskID }

func NewTaskSkippedEvent(taskID string, layer int, reason string) TaskSkippedEvent {
	return TaskSkippedEvent{
		baseEvent: newBaseEvent(TypeTaskSkipped),
		TaskID:    taskID,
		Layer:     layer,
		Reason:    reason,
	}
}

// TaskProgressEvent carries one [PROGRESS] line reported by a backend.
type TaskProgressEvent struct {
	baseEvent
	TaskID  string
	Message string
}

// NewTaskProgressEvent creates a TaskProgressEvent.
func (e TaskProgressEvent) Task() string { return e.TaskID }

func NewTaskProgressEvent(taskID, message string) TaskProgressEvent {
	return TaskProgressEvent{
		baseEvent: newBaseEvent(TypeTaskProgress),
		TaskID:    taskID,
		Message:   message,
	}
}
