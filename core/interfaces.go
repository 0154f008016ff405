package core

import (
	"context"
	"time"
)

// Logger is the logging interface used across the gateway.
// Implementations must be safe for concurrent use. The *WithContext
// variants attach trace correlation fields when a span is active.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger is implemented by loggers that can scope their
// output to a named component (e.g. "executor", "oss").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry interface - optional telemetry support
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a telemetry span
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// TaskStore persists tasks keyed by id. Values are compressed JSON with a
// TTL that is refreshed on every write.
type TaskStore interface {
	// Set serializes, compresses and stores the task under task.ID.
	Set(ctx context.Context, task *Task) error
	// SetRaw stores an already-compressed payload under id.
	SetRaw(ctx context.Context, id string, value []byte) error
	// Get returns the task or (nil, nil) when the key is absent or expired.
	Get(ctx context.Context, id string) (*Task, error)
}

// TaskQueue is the FIFO queue of task ids awaiting a worker.
type TaskQueue interface {
	// Enqueue pushes a task id onto the queue.
	Enqueue(ctx context.Context, id string) error
	// Dequeue blocks up to timeout for the next id. Returns ("", nil)
	// when the timeout elapses with no work.
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
}

// StreamFunc receives one completion chunk. Returning an error aborts the
// stream and is surfaced by ChatModel.Stream.
type StreamFunc func(chunk Completion) error

// ChatModel is the capability exposed by an OpenAI-compatible model
// endpoint: one-shot completion and chunked streaming.
type ChatModel interface {
	Complete(ctx context.Context, message *Message) (*Completion, error)
	Stream(ctx context.Context, message *Message, fn StreamFunc) error
}

// ModelResolver routes a request to a configured model instance.
type ModelResolver interface {
	// Resolve returns the model registered under the given alias.
	Resolve(name string) (ChatModel, error)
	// ForMessage applies the routing rule: text-only prompts go to the
	// text model, prompts carrying media to the multimodal one.
	ForMessage(message *Message) ChatModel
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry provides a no-op telemetry implementation
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan provides a no-op span implementation
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}
