package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
)

// Admission errors surfaced to the HTTP layer as user-facing messages.
var (
	ErrSelfMigration   = errors.New("cannot migrate an organization into itself")
	ErrNoConnector     = errors.New("organization has no vector database connection")
	ErrPendingJobs     = errors.New("organization has pending jobs")
	ErrNotRetryable    = errors.New("job result does not allow retry")
	ErrJobStillPending = errors.New("job has not finished")
)

// providerTask builds the task name for an organization's provider.
func (s *Service) providerTask(ctx context.Context, orgID uint, op string) (string, error) {
	conn, err := s.store.ConnectionForOrganization(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("%w (organization %d)", ErrNoConnector, orgID)
	}
	return conn.Type + "/" + op, nil
}

// SubmitAddDocuments admits and dispatches a document ingestion job.
func (s *Service) SubmitAddDocuments(ctx context.Context, orgID, userID uint, data AddDocumentsData) (*queue.Job, error) {
	task, err := s.providerTask(ctx, orgID, opAddDocument)
	if err != nil {
		return nil, err
	}
	return s.ledger.Submit(ctx, task, data, orgID, userID)
}

// SubmitDeleteDocument admits and dispatches a document deletion job.
func (s *Service) SubmitDeleteDocument(ctx context.Context, orgID, userID uint, documentID uint) (*queue.Job, error) {
	task, err := s.providerTask(ctx, orgID, opDeleteDocument)
	if err != nil {
		return nil, err
	}
	return s.ledger.Submit(ctx, task, DeleteDocumentData{DocumentID: documentID}, orgID, userID)
}

// SubmitDeleteFragment admits and dispatches a fragment deletion job.
func (s *Service) SubmitDeleteFragment(ctx context.Context, orgID, userID uint, documentVectorID uint) (*queue.Job, error) {
	task, err := s.providerTask(ctx, orgID, opDeleteFragment)
	if err != nil {
		return nil, err
	}
	return s.ledger.Submit(ctx, task, DeleteFragmentData{DocumentVectorID: documentVectorID}, orgID, userID)
}

// SubmitCloneWorkspace admits and dispatches a workspace clone job.
func (s *Service) SubmitCloneWorkspace(ctx context.Context, orgID, userID uint, data CloneWorkspaceData) (*queue.Job, error) {
	task, err := s.providerTask(ctx, orgID, opCloneWorkspace)
	if err != nil {
		return nil, err
	}
	return s.ledger.Submit(ctx, task, data, orgID, userID)
}

// SubmitMigrate validates migration preconditions and dispatches the job:
// distinct organizations, both with connections, and no pending migration
// touching either side.
func (s *Service) SubmitMigrate(ctx context.Context, sourceOrgID, destOrgID, userID uint) (*queue.Job, error) {
	if sourceOrgID == destOrgID {
		return nil, ErrSelfMigration
	}
	for _, orgID := range []uint{sourceOrgID, destOrgID} {
		if _, err := s.store.ConnectionForOrganization(ctx, orgID); err != nil {
			return nil, fmt.Errorf("%w (organization %d)", ErrNoConnector, orgID)
		}
		pending, err := s.ledger.Where(ctx, queue.Filter{
			TaskName:       TaskMigrate,
			Status:         queue.StatusPending,
			OrganizationID: orgID,
		})
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return nil, fmt.Errorf("%w: migration already pending for organization %d", ErrPendingJobs, orgID)
		}
	}
	return s.ledger.Submit(ctx, TaskMigrate, MigrateData{DestinationOrganizationID: destOrgID}, sourceOrgID, userID)
}

// SubmitReset validates reset preconditions and dispatches the job. A reset
// is refused while ANY job is pending for the organization, whatever its
// task family.
func (s *Service) SubmitReset(ctx context.Context, orgID, userID uint) (*queue.Job, error) {
	if _, err := s.store.ConnectionForOrganization(ctx, orgID); err != nil {
		return nil, fmt.Errorf("%w (organization %d)", ErrNoConnector, orgID)
	}
	pending, err := s.ledger.ListPending(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: %d jobs pending", ErrPendingJobs, len(pending))
	}
	return s.ledger.Submit(ctx, TaskReset, struct{}{}, orgID, userID)
}

// Retry re-submits a failed job whose result allows it. Retries are new
// jobs with the original task and data; the failed row stays terminal.
func (s *Service) Retry(ctx context.Context, jobID, userID uint) (*queue.Job, error) {
	job, err := s.ledger.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == queue.StatusPending {
		return nil, ErrJobStillPending
	}
	var result queue.Result
	if len(job.Result) > 0 {
		if err := json.Unmarshal(job.Result, &result); err != nil {
			return nil, fmt.Errorf("decode job %d result: %w", jobID, err)
		}
	}
	if job.Status != queue.StatusFailed || !result.CanRetry {
		return nil, ErrNotRetryable
	}
	var data any
	if len(job.Data) > 0 {
		data = json.RawMessage(job.Data)
	}
	return s.ledger.Submit(ctx, job.TaskName, data, job.OrganizationID, userID)
}
