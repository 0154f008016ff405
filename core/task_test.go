package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	msg := &Message{Text: "hello"}
	task := NewTask("", msg)

	_, err := uuid.Parse(task.ID)
	assert.NoError(t, err, "task ID should be a valid UUID")

	assert.Equal(t, StatusPending, task.Status)
	assert.Empty(t, task.Model)
	assert.Same(t, msg, task.Message)
	assert.Nil(t, task.Completion)
	assert.Empty(t, task.ErrMsg)
	assert.Nil(t, task.FinishTime)
	assert.WithinDuration(t, time.Now(), task.CreateTime.Time, 2*time.Second)

	t.Run("ids are unique", func(t *testing.T) {
		other := NewTask("", msg)
		assert.NotEqual(t, task.ID, other.ID)
	})

	t.Run("model override is recorded", func(t *testing.T) {
		task := NewTask("qwen-vl-plus-2025-08-15", msg)
		assert.Equal(t, "qwen-vl-plus-2025-08-15", task.Model)
	})
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusFinished.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRunning, StatusFinished, StatusFailed} {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}
	assert.False(t, Status("cancelled").Valid())
	assert.False(t, Status("").Valid())
}

func TestTaskJSONShape(t *testing.T) {
	t.Run("pending task", func(t *testing.T) {
		task := NewTask("", &Message{Text: "hi"})

		data, err := json.Marshal(task)
		require.NoError(t, err)

		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &raw))

		assert.Contains(t, raw, "id")
		assert.Contains(t, raw, "status")
		assert.Contains(t, raw, "message")
		assert.Contains(t, raw, "create_time")

		// finish_time is always present, null until terminal
		require.Contains(t, raw, "finish_time")
		assert.Equal(t, "null", string(raw["finish_time"]))

		// terminal-only fields stay off the wire
		assert.NotContains(t, raw, "completion")
		assert.NotContains(t, raw, "err_msg")
		assert.NotContains(t, raw, "model")
	})

	t.Run("finished task", func(t *testing.T) {
		task := NewTask("", &Message{Text: "hi"})
		task.Status = StatusFinished
		task.Completion = &Completion{
			ReasoningContent: "thinking",
			Content:          "hello there",
			Usage:            &Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
		}
		now := Now()
		task.FinishTime = &now

		data, err := json.Marshal(task)
		require.NoError(t, err)

		var parsed Task
		require.NoError(t, json.Unmarshal(data, &parsed))

		assert.Equal(t, task.ID, parsed.ID)
		assert.Equal(t, StatusFinished, parsed.Status)
		require.NotNil(t, parsed.Completion)
		assert.Equal(t, "hello there", parsed.Completion.Content)
		require.NotNil(t, parsed.Completion.Usage)
		assert.Equal(t, 8, parsed.Completion.Usage.TotalTokens)
		require.NotNil(t, parsed.FinishTime)
	})

	t.Run("failed task", func(t *testing.T) {
		task := NewTask("", &Message{Text: "hi"})
		task.Status = StatusFailed
		task.ErrMsg = "model unavailable"
		now := Now()
		task.FinishTime = &now

		data, err := json.Marshal(task)
		require.NoError(t, err)

		var parsed Task
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.Equal(t, StatusFailed, parsed.Status)
		assert.Equal(t, "model unavailable", parsed.ErrMsg)
		assert.Nil(t, parsed.Completion)
	})
}

func TestCompletionUsageNullOnWire(t *testing.T) {
	data, err := json.Marshal(Completion{Content: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reasoning_content":"","content":"hi","usage":null}`, string(data))
}
