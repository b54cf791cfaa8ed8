package temporalrarv

import (
	"context"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// TaskQueue is the Temporal task queue this worker polls and the client
// side dispatches workflow executions onto.
const TaskQueue = "loki-rarv-task-queue"

// StartWorker connects to Temporal and starts the RARV task queue worker.
// deps are the already-wired component dependencies (C1, C2, C6, C7, C9,
// C11) the activities call into.
func StartWorker(hostPort string, deps Activities, logger *slog.Logger) error {
	if hostPort == "" {
		hostPort = "127.0.0.1:7233"
	}
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	a := &deps
	w.RegisterWorkflow(LokiAgentWorkflow)
	w.RegisterActivity(a.PlanActivity)
	w.RegisterActivity(a.ExecuteActivity)
	w.RegisterActivity(a.ReviewActivity)
	w.RegisterActivity(a.ChecklistActivity)
	w.RegisterActivity(a.RecordOutcomeActivity)

	logger.Info("temporalrarv: worker started", "task_queue", TaskQueue)
	return w.Run(worker.InterruptCh())
}

// StartWorkflow kicks off one LokiAgentWorkflow execution from the client
// side, under the workflow ID "rarv-<task id>". The orchestrator's tick
// loop does not call it; it runs the RARV cycle in-process.
func StartWorkflow(ctx context.Context, c client.Client, req TaskRequest) (client.WorkflowRun, error) {
	opts := client.StartWorkflowOptions{
		ID:        "rarv-" + req.TaskID,
		TaskQueue: TaskQueue,
	}
	return c.ExecuteWorkflow(ctx, opts, LokiAgentWorkflow, req)
}
