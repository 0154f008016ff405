// Package core defines the shared types and contracts of the inference
// gateway: tasks and their lifecycle, chat messages, model capabilities,
// storage interfaces, configuration, and errors.
//
// The package has no dependencies on the concrete Redis, model, or object
// store implementations; those live in executor, model, and oss and are
// wired together in cmd/infergate.
package core

import (
	"github.com/google/uuid"
)

// Status is the lifecycle state of a task. Transitions are strictly
// pending -> running -> {finished, failed}; terminal tasks are immutable
// for the remainder of their TTL.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// IsTerminal returns true for finished and failed.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusFinished, StatusFailed:
		return true
	}
	return false
}

// Usage carries the token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the model output. During streaming the same shape carries
// individual chunks: any subset of the fields may be populated per chunk,
// with usage arriving on the final one.
type Completion struct {
	ReasoningContent string `json:"reasoning_content"`
	Content          string `json:"content"`
	Usage            *Usage `json:"usage"`
}

// Task is the unit of asynchronous work. Completion is present only when
// status is finished, ErrMsg only when failed. FinishTime serializes as
// null until the task reaches a terminal state.
type Task struct {
	ID         string      `json:"id"`
	Status     Status      `json:"status"`
	Model      string      `json:"model,omitempty"`
	Message    *Message    `json:"message"`
	Completion *Completion `json:"completion,omitempty"`
	ErrMsg     string      `json:"err_msg,omitempty"`
	CreateTime DateTime    `json:"create_time"`
	FinishTime *DateTime   `json:"finish_time"`
}

// NewTask creates a pending task with a fresh UUID and the current local
// time. An empty model defers model selection to the payload routing rule.
func NewTask(model string, message *Message) *Task {
	return &Task{
		ID:         uuid.New().String(),
		Status:     StatusPending,
		Model:      model,
		Message:    message,
		CreateTime: Now(),
	}
}
