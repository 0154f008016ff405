// Asynchronous task executor.
//
// Submission persists the task, pushes its id onto the pending queue
// and opportunistically spawns a worker goroutine. A process-wide
// semaphore bounds the pool at MaxWorkers; each worker holds one permit
// for its lifetime and exits when the queue stays empty for
// WorkerLifetime, so the pool grows under load and shrinks back to
// zero when submissions stop.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/itsneelabh/infergate/core"
)

// Executor drives asynchronous inference tasks.
type Executor struct {
	store  core.TaskStore
	queue  core.TaskQueue
	models core.ModelResolver
	config core.ExecutorConfig
	logger core.Logger

	permits *semaphore.Weighted

	workerIDCounter atomic.Int32
	activeWorkers   atomic.Int32
}

// New creates an executor. The store and queue are typically the same
// *RedisTaskStore; they are separate parameters so tests can fake one
// side independently.
func New(store core.TaskStore, queue core.TaskQueue, models core.ModelResolver, config core.ExecutorConfig, logger core.Logger) *Executor {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 8
	}
	if config.WorkerLifetime <= 0 {
		config.WorkerLifetime = 60 * time.Second
	}

	e := &Executor{
		store:   store,
		queue:   queue,
		models:  models,
		config:  config,
		permits: semaphore.NewWeighted(int64(config.MaxWorkers)),
		logger:  logger,
	}

	if e.logger == nil {
		e.logger = &core.NoOpLogger{}
	} else if cal, ok := e.logger.(core.ComponentAwareLogger); ok {
		e.logger = cal.WithComponent("executor")
	}

	return e
}

// Submit persists the task in pending state, enqueues its id and
// returns without waiting for execution. A new worker is spawned only
// when a permit is free; otherwise the running workers are assumed
// sufficient to drain the queue.
func (e *Executor) Submit(ctx context.Context, model string, message *core.Message) (*core.Task, error) {
	if message == nil {
		return nil, &core.GatewayError{
			Op:      "executor.Submit",
			Kind:    "task",
			Message: "message is required",
			Err:     core.ErrInvalidInput,
		}
	}
	if model != "" {
		// Fail fast on unknown model names instead of at execution time.
		if _, err := e.models.Resolve(model); err != nil {
			return nil, err
		}
	}

	task := core.NewTask(model, message)

	if err := e.store.Set(ctx, task); err != nil {
		return nil, err
	}
	if err := e.queue.Enqueue(ctx, task.ID); err != nil {
		return nil, err
	}

	EmitTaskSubmitted(ctx, task)
	e.logger.InfoWithContext(ctx, "Task submitted", map[string]interface{}{
		"operation": "task_submit",
		"task_id":   task.ID,
		"model":     task.Model,
	})

	if e.permits.TryAcquire(1) {
		workerID := fmt.Sprintf("worker-%d", e.workerIDCounter.Add(1))
		go e.runWorker(workerID)
	}

	return task, nil
}

// Get returns the current state of a task, or (nil, nil) when the id is
// unknown or expired.
func (e *Executor) Get(ctx context.Context, id string) (*core.Task, error) {
	return e.store.Get(ctx, id)
}

// Result long-polls a task at 1 Hz until it reaches a terminal state or
// timeout elapses, whichever comes first. A zero timeout returns the
// current state after the first poll. A task id that is absent, or that
// expires while polling, yields the task-not-existed error.
func (e *Executor) Result(ctx context.Context, id string, timeout time.Duration) (*core.Task, error) {
	start := time.Now()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		task, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, core.NewTaskNotExisted("executor.Result", id)
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
		if time.Since(start) >= timeout {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ActiveWorkers returns the number of workers currently holding a
// permit.
func (e *Executor) ActiveWorkers() int {
	return int(e.activeWorkers.Load())
}

// runWorker is the loop of one worker goroutine. The context is fresh:
// workers outlive the request that spawned them.
func (e *Executor) runWorker(workerID string) {
	ctx := context.Background()

	EmitWorkerStarted(workerID, int(e.activeWorkers.Add(1)))
	e.logger.Info("Worker started", map[string]interface{}{
		"operation": "worker_start",
		"worker_id": workerID,
	})

	defer func() {
		e.permits.Release(1)
		EmitWorkerStopped(workerID, int(e.activeWorkers.Add(-1)))
		e.logger.Info("Worker stopped", map[string]interface{}{
			"operation": "worker_stop",
			"worker_id": workerID,
		})
	}()

	for {
		id, err := e.queue.Dequeue(ctx, e.config.WorkerLifetime)
		if err != nil {
			// Redis hiccup: log and keep draining. The task that was
			// being popped, if any, stays queued or is reaped by TTL.
			e.logger.Error("Dequeue failed", map[string]interface{}{
				"operation": "task_dequeue",
				"worker_id": workerID,
				"error":     err.Error(),
			})
			// Avoid hammering Redis while it is down.
			time.Sleep(1 * time.Second)
			continue
		}
		if id == "" {
			// Idle for a full lifetime: exit and release the permit.
			return
		}

		e.processTask(ctx, workerID, id)
	}
}

// processTask executes one popped task id through to a terminal state.
func (e *Executor) processTask(ctx context.Context, workerID, id string) {
	task, err := e.store.Get(ctx, id)
	if err != nil {
		e.logger.Error("Failed to load task", map[string]interface{}{
			"operation": "task_load",
			"worker_id": workerID,
			"task_id":   id,
			"error":     err.Error(),
		})
		return
	}
	if task == nil {
		// Popped id with no record: the task expired between submit and
		// pop. Nothing to execute.
		e.logger.Error("Task not existed", map[string]interface{}{
			"operation": "task_load",
			"worker_id": workerID,
			"task_id":   id,
			"error":     core.NewTaskNotExisted("executor.processTask", id).Error(),
		})
		return
	}

	start := time.Now()
	if !task.CreateTime.IsZero() {
		EmitQueueWaitTime(ctx, task, start.Sub(task.CreateTime.Time))
	}
	EmitTaskStarted(ctx, task, workerID)

	task.Status = core.StatusRunning
	if err := e.store.Set(ctx, task); err != nil {
		e.logger.Error("Failed to mark task running", map[string]interface{}{
			"operation": "task_update",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}

	model, err := e.resolveModel(task)
	if err != nil {
		e.failTask(ctx, task, start, err)
		return
	}

	if err := e.execute(ctx, task, model); err != nil {
		e.failTask(ctx, task, start, err)
		return
	}

	duration := time.Since(start)
	EmitTaskCompleted(ctx, task, duration)
	e.logger.Info("Task finished", map[string]interface{}{
		"operation":   "task_finish",
		"task_id":     task.ID,
		"worker_id":   workerID,
		"duration_ms": duration.Milliseconds(),
	})
}

// resolveModel applies the routing rule: an explicit model name wins,
// otherwise payloads carrying media go to the multimodal model and
// plain text to the text model.
func (e *Executor) resolveModel(task *core.Task) (core.ChatModel, error) {
	if task.Model != "" {
		return e.models.Resolve(task.Model)
	}
	return e.models.ForMessage(task.Message), nil
}

// execute streams the completion into the store. The finished record is
// assembled incrementally (see stream.go) and persisted once the model
// stream ends. Panics in the model client are recovered and surfaced as
// task failure.
func (e *Executor) execute(ctx context.Context, task *core.Task, model core.ChatModel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panic: %v", r)
			EmitWorkerPanic(ctx, task.ID, r)
			e.logger.Error("Model panicked", map[string]interface{}{
				"operation": "task_execute",
				"task_id":   task.ID,
				"panic":     r,
				"stack":     string(debug.Stack()),
			})
		}
	}()

	task.Status = core.StatusFinished
	now := core.Now()
	task.FinishTime = &now

	recorder, err := newCompletionRecorder(task)
	if err != nil {
		return err
	}

	if err := model.Stream(ctx, task.Message, recorder.Write); err != nil {
		return err
	}

	value, err := recorder.Finish()
	if err != nil {
		return err
	}
	return e.store.SetRaw(ctx, task.ID, value)
}

// failTask persists the failed terminal state. Failed tasks are never
// re-enqueued.
func (e *Executor) failTask(ctx context.Context, task *core.Task, start time.Time, cause error) {
	duration := time.Since(start)

	task.Status = core.StatusFailed
	task.ErrMsg = cause.Error()
	task.Completion = nil
	now := core.Now()
	task.FinishTime = &now

	if err := e.store.Set(ctx, task); err != nil {
		e.logger.Error("Failed to persist failed task", map[string]interface{}{
			"operation": "task_update",
			"task_id":   task.ID,
			"error":     err.Error(),
		})
	}

	EmitTaskFailed(ctx, task, duration, cause)
	e.logger.Error("Task failed", map[string]interface{}{
		"operation":   "task_fail",
		"task_id":     task.ID,
		"duration_ms": duration.Milliseconds(),
		"error":       cause.Error(),
	})
}
