package executor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/infergate/core"
)

func newTestStore(t *testing.T) (*RedisTaskStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisTaskStore(client, nil)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisTaskStoreRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := core.NewTask("qwen3", &core.Message{Text: "hello"})
	require.NoError(t, store.Set(ctx, task))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Equal(t, "qwen3", got.Model)
	require.NotNil(t, got.Message)
	assert.Equal(t, "hello", got.Message.Text)
	assert.Nil(t, got.FinishTime)
}

func TestRedisTaskStoreGetAbsent(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), "no-such-task")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisTaskStoreExpiration(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	task := core.NewTask("", &core.Message{Text: "hi"})
	require.NoError(t, store.Set(ctx, task))
	assert.Equal(t, 1*time.Hour, mr.TTL(task.ID))

	mr.FastForward(2 * time.Hour)

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisTaskStoreWriteRefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	task := core.NewTask("", &core.Message{Text: "hi"})
	require.NoError(t, store.Set(ctx, task))

	mr.FastForward(30 * time.Minute)

	task.Status = core.StatusRunning
	require.NoError(t, store.Set(ctx, task))
	assert.Equal(t, 1*time.Hour, mr.TTL(task.ID))
}

func TestRedisTaskStoreRepairsRawNewlines(t *testing.T) {
	// Records written by older producers can contain raw newlines
	// inside JSON string literals. Get must repair them before parsing.
	store, mr := newTestStore(t)
	ctx := context.Background()

	record := `{"id":"t-legacy","status":"finished","message":{"text":"hi"},` +
		`"create_time":"2024-01-15 10:30:45","finish_time":"2024-01-15 10:30:46",` +
		"\"completion\":{\"reasoning_content\":\"\",\"content\":\"line1\nline2\",\"usage\":null}}"

	encoder, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	mr.Set("t-legacy", string(encoder.EncodeAll([]byte(record), nil)))

	got, err := store.Get(ctx, "t-legacy")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "line1\nline2", got.Completion.Content)
}

func TestRedisTaskQueueFIFO(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, "a"))
	require.NoError(t, store.Enqueue(ctx, "b"))
	require.NoError(t, store.Enqueue(ctx, "c"))

	for _, want := range []string{"a", "b", "c"} {
		id, err := store.Dequeue(ctx, 1*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestRedisTaskQueueDequeueTimeout(t *testing.T) {
	store, _ := newTestStore(t)

	start := time.Now()
	id, err := store.Dequeue(context.Background(), 1*time.Second)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestRedisTaskStoreSetRawRecorderOutput(t *testing.T) {
	// SetRaw + Get is the path the streaming finalizer takes.
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := core.NewTask("qwen3", &core.Message{Text: "question"})
	task.Status = core.StatusFinished
	now := core.Now()
	task.FinishTime = &now

	rec, err := newCompletionRecorder(task)
	require.NoError(t, err)
	require.NoError(t, rec.Write(core.Completion{ReasoningContent: "thinking"}))
	require.NoError(t, rec.Write(core.Completion{Content: "answer"}))
	require.NoError(t, rec.Write(core.Completion{Usage: &core.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}}))
	value, err := rec.Finish()
	require.NoError(t, err)

	require.NoError(t, store.SetRaw(ctx, task.ID, value))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.StatusFinished, got.Status)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "thinking", got.Completion.ReasoningContent)
	assert.Equal(t, "answer", got.Completion.Content)
	require.NotNil(t, got.Completion.Usage)
	assert.Equal(t, 8, got.Completion.Usage.TotalTokens)
}
