package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/infergate/core"
)

// fakeModel is a scripted core.ChatModel.
type fakeModel struct {
	chunks []core.Completion
	err    error
	delay  time.Duration

	calls         atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
	completedRuns atomic.Int32
}

func (m *fakeModel) Complete(ctx context.Context, message *core.Message) (*core.Completion, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	var out core.Completion
	for _, c := range m.chunks {
		out.ReasoningContent += c.ReasoningContent
		out.Content += c.Content
		if c.Usage != nil {
			out.Usage = c.Usage
		}
	}
	return &out, nil
}

func (m *fakeModel) Stream(ctx context.Context, message *core.Message, fn core.StreamFunc) error {
	m.calls.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	for _, c := range m.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	m.completedRuns.Add(1)
	return nil
}

// fakeResolver routes between a text and a multimodal fake model.
type fakeResolver struct {
	text       *fakeModel
	multimodal *fakeModel
	named      map[string]*fakeModel
}

func (r *fakeResolver) Resolve(name string) (core.ChatModel, error) {
	if m, ok := r.named[name]; ok {
		return m, nil
	}
	return nil, core.ErrModelNotFound
}

func (r *fakeResolver) ForMessage(message *core.Message) core.ChatModel {
	if message != nil && message.IsMultimodal() {
		return r.multimodal
	}
	return r.text
}

func newTestExecutor(t *testing.T, resolver *fakeResolver, maxWorkers int) *Executor {
	t.Helper()
	store, _ := newTestStore(t)
	cfg := core.ExecutorConfig{
		MaxWorkers:     maxWorkers,
		WorkerLifetime: 1 * time.Second,
	}
	return New(store, store, resolver, cfg, nil)
}

func TestExecutorSubmitAndResult(t *testing.T) {
	text := &fakeModel{chunks: []core.Completion{
		{ReasoningContent: "thinking"},
		{Content: "hello"},
		{Usage: &core.Usage{TotalTokens: 5}},
	}}
	resolver := &fakeResolver{text: text, multimodal: &fakeModel{}}
	exec := newTestExecutor(t, resolver, 2)
	ctx := context.Background()

	task, err := exec.Submit(ctx, "", &core.Message{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, task.Status)
	assert.NotEmpty(t, task.ID)

	got, err := exec.Result(ctx, task.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFinished, got.Status)
	require.NotNil(t, got.Completion)
	assert.Equal(t, "thinking", got.Completion.ReasoningContent)
	assert.Equal(t, "hello", got.Completion.Content)
	require.NotNil(t, got.Completion.Usage)
	assert.Equal(t, 5, got.Completion.Usage.TotalTokens)
	require.NotNil(t, got.FinishTime)
}

func TestExecutorSubmitUnknownModel(t *testing.T) {
	resolver := &fakeResolver{text: &fakeModel{}, multimodal: &fakeModel{}}
	exec := newTestExecutor(t, resolver, 1)

	_, err := exec.Submit(context.Background(), "no-such-model", &core.Message{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelNotFound)
}

func TestExecutorSubmitNilMessage(t *testing.T) {
	resolver := &fakeResolver{text: &fakeModel{}, multimodal: &fakeModel{}}
	exec := newTestExecutor(t, resolver, 1)

	_, err := exec.Submit(context.Background(), "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestExecutorExplicitModelRouting(t *testing.T) {
	named := &fakeModel{chunks: []core.Completion{{Content: "named"}}}
	resolver := &fakeResolver{
		text:       &fakeModel{},
		multimodal: &fakeModel{},
		named:      map[string]*fakeModel{"qwen3": named},
	}
	exec := newTestExecutor(t, resolver, 1)
	ctx := context.Background()

	task, err := exec.Submit(ctx, "qwen3", &core.Message{Text: "hi"})
	require.NoError(t, err)

	got, err := exec.Result(ctx, task.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFinished, got.Status)
	assert.Equal(t, "named", got.Completion.Content)
	assert.EqualValues(t, 1, named.calls.Load())
	assert.Zero(t, resolver.text.calls.Load())
}

func TestExecutorMultimodalRouting(t *testing.T) {
	text := &fakeModel{chunks: []core.Completion{{Content: "text"}}}
	mm := &fakeModel{chunks: []core.Completion{{Content: "vision"}}}
	resolver := &fakeResolver{text: text, multimodal: mm}
	exec := newTestExecutor(t, resolver, 2)
	ctx := context.Background()

	task, err := exec.Submit(ctx, "", &core.Message{
		Text:   "what is this",
		Images: []string{"https://example.com/cat.jpg"},
	})
	require.NoError(t, err)

	got, err := exec.Result(ctx, task.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "vision", got.Completion.Content)
	assert.EqualValues(t, 1, mm.calls.Load())
	assert.Zero(t, text.calls.Load())
}

func TestExecutorFailedTask(t *testing.T) {
	text := &fakeModel{err: errors.New("upstream exploded")}
	resolver := &fakeResolver{text: text, multimodal: &fakeModel{}}
	exec := newTestExecutor(t, resolver, 1)
	ctx := context.Background()

	task, err := exec.Submit(ctx, "", &core.Message{Text: "hi"})
	require.NoError(t, err)

	got, err := exec.Result(ctx, task.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.ErrMsg, "upstream exploded")
	assert.Nil(t, got.Completion)
	require.NotNil(t, got.FinishTime)
}

func TestExecutorResultAbsentTask(t *testing.T) {
	resolver := &fakeResolver{text: &fakeModel{}, multimodal: &fakeModel{}}
	exec := newTestExecutor(t, resolver, 1)

	_, err := exec.Result(context.Background(), "ghost", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
	assert.Equal(t, "Task 'ghost' not existed", err.Error())
}

func TestExecutorResultZeroTimeout(t *testing.T) {
	// With a zero timeout Result returns the current state after one
	// poll, even when the task has not reached a terminal state.
	resolver := &fakeResolver{text: &fakeModel{}, multimodal: &fakeModel{}}
	store, _ := newTestStore(t)
	exec := New(store, store, resolver, core.ExecutorConfig{MaxWorkers: 1, WorkerLifetime: 1 * time.Second}, nil)
	ctx := context.Background()

	task := core.NewTask("", &core.Message{Text: "hi"})
	require.NoError(t, store.Set(ctx, task))

	start := time.Now()
	got, err := exec.Result(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecutorResultContextCancellation(t *testing.T) {
	resolver := &fakeResolver{text: &fakeModel{}, multimodal: &fakeModel{}}
	store, _ := newTestStore(t)
	exec := New(store, store, resolver, core.ExecutorConfig{MaxWorkers: 1, WorkerLifetime: 1 * time.Second}, nil)

	task := core.NewTask("", &core.Message{Text: "hi"})
	require.NoError(t, store.Set(context.Background(), task))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := exec.Result(ctx, task.ID, 30*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutorWorkerPoolBound(t *testing.T) {
	const maxWorkers = 4
	const taskCount = 40

	text := &fakeModel{
		chunks: []core.Completion{{Content: "ok"}},
		delay:  30 * time.Millisecond,
	}
	resolver := &fakeResolver{text: text, multimodal: &fakeModel{}}
	exec := newTestExecutor(t, resolver, maxWorkers)
	ctx := context.Background()

	for i := 0; i < taskCount; i++ {
		_, err := exec.Submit(ctx, "", &core.Message{Text: "go"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return text.completedRuns.Load() == taskCount
	}, 15*time.Second, 50*time.Millisecond, "all tasks should drain")

	assert.LessOrEqual(t, text.maxInFlight.Load(), int32(maxWorkers))
	assert.LessOrEqual(t, exec.ActiveWorkers(), maxWorkers)
}
