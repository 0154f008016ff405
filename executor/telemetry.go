package executor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/itsneelabh/infergate/core"
	"github.com/itsneelabh/infergate/telemetry"
)

// Metric emission helpers for the task lifecycle. All helpers go through
// the global meter; with no provider installed they are no-ops, so the
// executor never needs a telemetry handle.

func modelLabel(task *core.Task) string {
	if task.Model != "" {
		return task.Model
	}
	if task.Message != nil && task.Message.IsMultimodal() {
		return "multimodal"
	}
	return "text"
}

// EmitTaskSubmitted records a task entering the queue.
func EmitTaskSubmitted(ctx context.Context, task *core.Task) {
	telemetry.Counter("infergate.tasks.submitted", "model", modelLabel(task))
	telemetry.AddSpanEvent(ctx, "task.submitted",
		attribute.String("task.id", task.ID),
		attribute.String("task.model", modelLabel(task)),
	)
}

// EmitTaskStarted records a worker picking a task up.
func EmitTaskStarted(ctx context.Context, task *core.Task, workerID string) {
	telemetry.Counter("infergate.tasks.started", "model", modelLabel(task))
	telemetry.AddSpanEvent(ctx, "task.started",
		attribute.String("task.id", task.ID),
		attribute.String("worker.id", workerID),
	)
}

// EmitTaskCompleted records successful completion and its duration.
func EmitTaskCompleted(ctx context.Context, task *core.Task, duration time.Duration) {
	telemetry.Counter("infergate.tasks.completed", "model", modelLabel(task))
	telemetry.Histogram("infergate.tasks.duration_ms", float64(duration.Milliseconds()),
		"model", modelLabel(task), "status", string(core.StatusFinished))
	telemetry.AddSpanEvent(ctx, "task.completed",
		attribute.String("task.id", task.ID),
		attribute.Int64("task.duration_ms", duration.Milliseconds()),
	)
}

// EmitTaskFailed records terminal failure with its cause.
func EmitTaskFailed(ctx context.Context, task *core.Task, duration time.Duration, err error) {
	telemetry.Counter("infergate.tasks.failed", "model", modelLabel(task))
	telemetry.Histogram("infergate.tasks.duration_ms", float64(duration.Milliseconds()),
		"model", modelLabel(task), "status", string(core.StatusFailed))
	telemetry.RecordSpanError(ctx, err)
	telemetry.AddSpanEvent(ctx, "task.failed",
		attribute.String("task.id", task.ID),
		attribute.String("task.error", err.Error()),
	)
}

// EmitQueueWaitTime records how long a task sat queued before a worker
// picked it up.
func EmitQueueWaitTime(ctx context.Context, task *core.Task, wait time.Duration) {
	telemetry.Histogram("infergate.queue.wait_ms", float64(wait.Milliseconds()),
		"model", modelLabel(task))
}

// EmitWorkerStarted records a worker goroutine spawning.
func EmitWorkerStarted(workerID string, active int) {
	telemetry.Counter("infergate.workers.started", "worker_id", workerID)
	telemetry.Gauge("infergate.workers.active", float64(active))
}

// EmitWorkerStopped records a worker exiting after its idle lifetime.
func EmitWorkerStopped(workerID string, active int) {
	telemetry.Counter("infergate.workers.stopped", "worker_id", workerID)
	telemetry.Gauge("infergate.workers.active", float64(active))
}

// EmitWorkerPanic records a recovered panic during task execution.
func EmitWorkerPanic(ctx context.Context, taskID string, value interface{}) {
	telemetry.Counter("infergate.workers.panics")
	telemetry.AddSpanEvent(ctx, "worker.panic",
		attribute.String("task.id", taskID),
		attribute.String("panic.value", fmt.Sprintf("%v", value)),
	)
}
