package executor

import (
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/infergate/core"
)

func decodeRecord(t *testing.T, value []byte) *core.Task {
	t.Helper()
	decoder, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer decoder.Close()

	data, err := decoder.DecodeAll(value, nil)
	require.NoError(t, err)

	var task core.Task
	require.NoError(t, json.Unmarshal(data, &task), "record is not valid JSON: %s", data)
	return &task
}

func finishedTask(text string) *core.Task {
	task := core.NewTask("qwen3", &core.Message{Text: text})
	task.Status = core.StatusFinished
	now := core.Now()
	task.FinishTime = &now
	return task
}

func TestCompletionRecorderAssemblesRecord(t *testing.T) {
	rec, err := newCompletionRecorder(finishedTask("q"))
	require.NoError(t, err)

	require.NoError(t, rec.Write(core.Completion{ReasoningContent: "step 1"}))
	require.NoError(t, rec.Write(core.Completion{ReasoningContent: ", step 2"}))
	require.NoError(t, rec.Write(core.Completion{Content: "the "}))
	require.NoError(t, rec.Write(core.Completion{Content: "answer"}))
	require.NoError(t, rec.Write(core.Completion{Usage: &core.Usage{TotalTokens: 10}}))

	value, err := rec.Finish()
	require.NoError(t, err)

	got := decodeRecord(t, value)
	assert.Equal(t, core.StatusFinished, got.Status)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "step 1, step 2", got.Completion.ReasoningContent)
	assert.Equal(t, "the answer", got.Completion.Content)
	require.NotNil(t, got.Completion.Usage)
	assert.Equal(t, 10, got.Completion.Usage.TotalTokens)
}

func TestCompletionRecorderEscapesChunks(t *testing.T) {
	rec, err := newCompletionRecorder(finishedTask("q"))
	require.NoError(t, err)

	require.NoError(t, rec.Write(core.Completion{ReasoningContent: "a \"quoted\"\nthought"}))
	require.NoError(t, rec.Write(core.Completion{Content: "tab\there\\done"}))

	value, err := rec.Finish()
	require.NoError(t, err)

	got := decodeRecord(t, value)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "a \"quoted\"\nthought", got.Completion.ReasoningContent)
	assert.Equal(t, "tab\there\\done", got.Completion.Content)
}

func TestCompletionRecorderNoContent(t *testing.T) {
	// A stream can end after reasoning only; the record must still parse.
	rec, err := newCompletionRecorder(finishedTask("q"))
	require.NoError(t, err)
	require.NoError(t, rec.Write(core.Completion{ReasoningContent: "only thinking"}))

	value, err := rec.Finish()
	require.NoError(t, err)

	got := decodeRecord(t, value)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "only thinking", got.Completion.ReasoningContent)
	assert.Empty(t, got.Completion.Content)
	assert.Nil(t, got.Completion.Usage)
}

func TestCompletionRecorderEmptyStream(t *testing.T) {
	rec, err := newCompletionRecorder(finishedTask("q"))
	require.NoError(t, err)

	value, err := rec.Finish()
	require.NoError(t, err)

	got := decodeRecord(t, value)
	require.NotNil(t, got.Completion)
	assert.Empty(t, got.Completion.ReasoningContent)
	assert.Empty(t, got.Completion.Content)
}

func TestEscapeJSONString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"quote", `say "hi"`, `say \"hi\"`},
		{"backslash", `a\b`, `a\\b`},
		{"newline", "a\nb", `a\nb`},
		{"carriage return", "a\r\nb", `a\r\nb`},
		{"tab", "a\tb", `a\tb`},
		{"control", "a\x01b", `a\u0001b`},
		{"unicode untouched", "模型输出", "模型输出"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeJSONString(tt.in))
		})
	}
}
