package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/queue"
)

// TaskQueue hands encode tasks to remote workers and takes their results.
type TaskQueue interface {
	Claim(ctx context.Context, workerID, queue string) (*models.Job, error)
	Complete(ctx context.Context, id models.ULID, workerErr error) (*models.Job, error)
}

// TaskHandler serves the worker-facing task endpoints.
type TaskHandler struct {
	queue TaskQueue
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(q TaskQueue) *TaskHandler {
	return &TaskHandler{queue: q}
}

// Register registers the task routes with the API.
func (h *TaskHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "claimTask",
		Method:      "POST",
		Path:        "/api/v1/queues/{queue}/claim",
		Summary:     "Claim an encode task",
		Description: "Claims the next encode task on a queue; 204 when the queue is empty",
		Tags:        []string{"Tasks"},
	}, h.Claim)

	huma.Register(api, huma.Operation{
		OperationID: "completeTask",
		Method:      "POST",
		Path:        "/api/v1/tasks/{id}/complete",
		Summary:     "Report an encode result",
		Description: "Records a worker's result; a success queues delivery of the encode",
		Tags:        []string{"Tasks"},
	}, h.Complete)
}

// ClaimTaskInput is the input for claiming a task.
type ClaimTaskInput struct {
	Queue string `path:"queue" doc:"Queue name"`
	Body  struct {
		WorkerID string `json:"worker_id" minLength:"1" doc:"Identifier of the claiming worker"`
	}
}

// ClaimTaskOutput is the output for claiming a task.
type ClaimTaskOutput struct {
	Status int
	Body   *TaskResponse
}

// Claim hands the next task on the queue to a worker.
func (h *TaskHandler) Claim(ctx context.Context, input *ClaimTaskInput) (*ClaimTaskOutput, error) {
	job, err := h.queue.Claim(ctx, input.Body.WorkerID, input.Queue)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to claim task", err)
	}
	if job == nil {
		return &ClaimTaskOutput{Status: http.StatusNoContent}, nil
	}
	task := TaskFromModel(job)
	return &ClaimTaskOutput{Status: http.StatusOK, Body: &task}, nil
}

// CompleteTaskInput is the input for reporting a task result.
type CompleteTaskInput struct {
	ID   string `path:"id" doc:"Task ID (ULID)"`
	Body struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty" doc:"Failure description when success is false"`
	}
}

// CompleteTaskOutput is the output for reporting a task result.
type CompleteTaskOutput struct {
	Body struct {
		Delivery *JobResponse `json:"delivery,omitempty" doc:"Deliver job queued for a successful encode"`
	}
}

// Complete records a worker's result.
func (h *TaskHandler) Complete(ctx context.Context, input *CompleteTaskInput) (*CompleteTaskOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	var workerErr error
	if !input.Body.Success {
		msg := input.Body.Error
		if msg == "" {
			msg = "worker reported failure"
		}
		workerErr = errors.New(msg)
	}

	deliver, err := h.queue.Complete(ctx, id, workerErr)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		return nil, huma.Error404NotFound("task not found")
	case errors.Is(err, queue.ErrNotEncodeTask), errors.Is(err, queue.ErrNotClaimed):
		return nil, huma.Error409Conflict("task cannot be completed", err)
	case err != nil:
		return nil, huma.Error500InternalServerError("failed to complete task", err)
	}

	resp := &CompleteTaskOutput{}
	if deliver != nil {
		j := JobFromModel(deliver)
		resp.Body.Delivery = &j
	}
	return resp, nil
}
