// Package main provides the Sagaflow worker: it consumes workflow request
// events and executes the requested workflows out-of-band.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/events"
	"github.com/ispforge/sagaflow/pkg/saga"
	"github.com/ispforge/sagaflow/pkg/services"
)

const (
	// maxDeliveryAttempts bounds in-process retries of transport-level
	// failures. Step failures are never retried here; the workflow row has
	// already captured them.
	maxDeliveryAttempts = 3

	initialBackoff = time.Second
)

type Worker struct {
	workerID      string
	logger        *slog.Logger
	orchestration *services.Orchestration
	eventBus      eventbus.EventBus
	cron          *cron.Cron
}

func NewWorker(workerID string, logger *slog.Logger, orchestration *services.Orchestration, eventBus eventbus.EventBus) *Worker {
	return &Worker{
		workerID:      workerID,
		logger:        logger.With("worker_id", workerID),
		orchestration: orchestration,
		eventBus:      eventBus,
	}
}

// Start subscribes to workflow request events and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	err := w.eventBus.Handle(events.WorkflowRequestedEvent, w.handleWorkflowRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	if w.cron != nil {
		cronCtx := w.cron.Stop()
		<-cronCtx.Done()
	}

	w.logger.Info("Worker stopped")

	return nil
}

// handleWorkflowRequested runs the requested workflow. Returning an error
// nacks the message so the bus redelivers it; returning nil acks.
func (w *Worker) handleWorkflowRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.WorkflowRequested)
	if !ok {
		w.logger.WarnContext(ctx, "Dropping event with unexpected payload type")

		return nil
	}

	logger := w.logger.With("tenant_id", requested.TenantID, "workflow_id", requested.WorkflowID)

	backoff := initialBackoff

	var lastErr error

	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		workflow, err := w.orchestration.RunWorkflow(ctx, requested.TenantID, requested.WorkflowID)

		switch {
		case err == nil:
			logger.InfoContext(ctx, "Workflow finished", "status", workflow.Status)

			return nil
		case saga.IsHandlerError(err):
			// The workflow row captured the step failure; nothing to redeliver.
			logger.InfoContext(ctx, "Workflow failed and was unwound", "error", err)

			return nil
		case errors.Is(err, saga.ErrWorkflowNotPending):
			// Duplicate delivery; another run already consumed this request.
			logger.InfoContext(ctx, "Skipping non-pending workflow")

			return nil
		case errors.Is(err, saga.ErrWorkflowLocked):
			logger.InfoContext(ctx, "Workflow is locked by another worker")

			return nil
		}

		lastErr = err
		logger.WarnContext(ctx, "Workflow run attempt failed", "attempt", attempt, "error", err)

		if attempt == maxDeliveryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}

	return lastErr
}

// ScheduleSuspensionSweep registers a cron job that submits suspension
// workflows for the given subscribers, attributed to the scheduler initiator.
func (w *Worker) ScheduleSuspensionSweep(tenantID, schedule, subscribers string) error {
	ids := splitList(subscribers)
	if len(ids) == 0 {
		return nil
	}

	w.cron = cron.New()

	_, err := w.cron.AddFunc(schedule, func() {
		ctx := context.Background()

		for _, subscriberID := range ids {
			submitted, err := w.orchestration.SubmitSuspendService(ctx, services.SuspendServiceRequest{
				TenantID:      tenantID,
				SubscriberID:  subscriberID,
				Reason:        "scheduled suspension sweep",
				InitiatorID:   w.workerID,
				InitiatorType: "scheduler",
			})
			if err != nil {
				w.logger.ErrorContext(ctx, "Failed to submit suspension", "subscriber_id", subscriberID, "error", err)

				continue
			}

			w.logger.InfoContext(ctx, "Suspension submitted", "subscriber_id", subscriberID, "workflow_id", submitted.WorkflowID)
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()

	return nil
}

func splitList(value string) []string {
	var out []string

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}

	return out
}
