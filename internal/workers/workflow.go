package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/runtime"
)

// Job data payloads. Only identifiers and user-provided inputs travel
// through the ledger; everything else is re-read from the record store.

type AddDocumentsData struct {
	WorkspaceID uint             `json:"workspaceId"`
	Documents   []DocumentUpload `json:"documents"`
}

type DocumentUpload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type DeleteDocumentData struct {
	DocumentID uint `json:"documentId"`
}

type DeleteFragmentData struct {
	DocumentVectorID uint `json:"documentVectorId"`
}

type CloneWorkspaceData struct {
	WorkspaceID      uint   `json:"workspaceId"`
	NewWorkspaceName string `json:"newWorkspaceName"`
}

type MigrateData struct {
	DestinationOrganizationID uint `json:"destinationOrganizationId"`
}

// workflowFn is one workflow body. It returns the success result, or an
// error that the boundary turns into the failure result. A non-nil result
// alongside an error customizes the failure record.
type workflowFn func(ctx context.Context, job *queue.Job) (queue.Result, error)

// retryableError marks failures an operator may re-submit.
type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

// retryable wraps err so the failure result carries canRetry.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// handle wraps a workflow body into a runtime handler with the terminal
// write boundary: every delivery of a pending job produces exactly one
// Complete or Fail, including panics.
func (s *Service) handle(fn workflowFn) runtime.Handler {
	return func(ctx context.Context, payload []byte) error {
		var env queue.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		job, err := s.ledger.Get(ctx, env.JobID)
		if err != nil {
			return fmt.Errorf("load job %d: %w", env.JobID, err)
		}
		if job.Status != queue.StatusPending {
			s.log.Warn("skipping job not in pending state",
				zap.Uint("job_id", job.ID),
				zap.String("status", job.Status))
			return nil
		}
		s.execute(ctx, job, fn)
		return nil
	}
}

// execute runs fn and records the single terminal outcome.
func (s *Service) execute(ctx context.Context, job *queue.Job, fn workflowFn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("workflow panicked",
				zap.Uint("job_id", job.ID),
				zap.String("task", job.TaskName),
				zap.Any("panic", r))
			s.fail(ctx, job.ID, queue.Result{
				Message: "Job raised an unexpected error.",
				Error:   fmt.Sprint(r),
			})
		}
	}()

	result, err := fn(ctx, job)
	if err != nil {
		if result.Message == "" {
			result.Message = "Job failed. Check the error for details."
		}
		result.Error = err.Error()
		var r retryableError
		if errors.As(err, &r) {
			result.CanRetry = true
		}
		s.fail(ctx, job.ID, result)
		return
	}
	if err := s.ledger.Complete(ctx, job.ID, result); err != nil {
		s.log.Error("failed to record job completion",
			zap.Uint("job_id", job.ID), zap.Error(err))
	}
}

func (s *Service) fail(ctx context.Context, jobID uint, result queue.Result) {
	if err := s.ledger.Fail(ctx, jobID, result); err != nil {
		s.log.Error("failed to record job failure",
			zap.Uint("job_id", jobID), zap.Error(err))
	}
}

// decodeData parses job.Data into the workflow's payload type.
func decodeData(job *queue.Job, v any) error {
	if err := json.Unmarshal(job.Data, v); err != nil {
		return fmt.Errorf("decode job %d data: %w", job.ID, err)
	}
	return nil
}
