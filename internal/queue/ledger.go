package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates no job row matched the lookup.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicatePending indicates an identical pending job already
	// exists for the organization. Admit returns it alongside the
	// pre-existing job so callers can surface it without a second read.
	ErrDuplicatePending = errors.New("identical job already pending for organization")

	// ErrTerminal indicates an attempt to rewrite a complete or failed job.
	ErrTerminal = errors.New("job already in terminal state")
)

// Ledger is the durable job store plus its dispatch edge.
type Ledger struct {
	db         *gorm.DB
	dispatcher Dispatcher
	log        *zap.Logger
	metrics    *Metrics
}

// NewLedger wires the ledger over an open gorm handle. The dispatcher may
// be nil when only read paths are needed, for example the HTTP job list.
func NewLedger(db *gorm.DB, dispatcher Dispatcher, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, dispatcher: dispatcher, log: log, metrics: NewMetrics()}
}

// Migrate creates the jobs table.
func (l *Ledger) Migrate() error {
	return l.db.AutoMigrate(&Job{})
}

// Admit records a pending job for {taskName, organizationID}. At most one
// pending job per pair may exist: when one already does, Admit returns that
// job together with ErrDuplicatePending and writes nothing.
func (l *Ledger) Admit(ctx context.Context, taskName string, data any, organizationID, userID uint) (*Job, error) {
	var existing Job
	err := l.db.WithContext(ctx).
		Where("task_name = ? AND organization_id = ? AND status = ?", taskName, organizationID, StatusPending).
		First(&existing).Error
	switch {
	case err == nil:
		return &existing, ErrDuplicatePending
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("check pending jobs: %w", err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job data: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		TaskName:       taskName,
		Status:         StatusPending,
		Data:           datatypes.JSON(raw),
		OrganizationID: organizationID,
		UserID:         userID,
		CreatedAt:      now,
		LastUpdatedAt:  now,
	}
	if err := l.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	l.metrics.JobsAdmitted.WithLabelValues(taskName).Inc()
	l.log.Info("job admitted",
		zap.Uint("job_id", job.ID),
		zap.String("task", taskName),
		zap.Uint("organization_id", organizationID))
	return job, nil
}

// Dispatch hands the job to the runtime. The payload is the bare job id;
// workflows re-read Data from the ledger.
func (l *Ledger) Dispatch(ctx context.Context, job *Job) error {
	if l.dispatcher == nil {
		return errors.New("ledger has no dispatcher")
	}
	payload, err := json.Marshal(Envelope{JobID: job.ID})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := l.dispatcher.Publish(ctx, Task{Name: job.TaskName, Payload: payload}); err != nil {
		return fmt.Errorf("dispatch job %d: %w", job.ID, err)
	}
	return nil
}

// Submit is Admit followed by Dispatch. On ErrDuplicatePending nothing is
// dispatched and the existing job is returned with the error.
func (l *Ledger) Submit(ctx context.Context, taskName string, data any, organizationID, userID uint) (*Job, error) {
	job, err := l.Admit(ctx, taskName, data, organizationID, userID)
	if err != nil {
		return job, err
	}
	if err := l.Dispatch(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// Complete marks the job complete with the given result. Terminal jobs
// are never rewritten.
func (l *Ledger) Complete(ctx context.Context, jobID uint, result Result) error {
	task, err := l.finish(ctx, jobID, StatusComplete, result)
	if err != nil {
		return err
	}
	l.metrics.JobsCompleted.WithLabelValues(task).Inc()
	return nil
}

// Fail marks the job failed with the given result.
func (l *Ledger) Fail(ctx context.Context, jobID uint, result Result) error {
	task, err := l.finish(ctx, jobID, StatusFailed, result)
	if err != nil {
		return err
	}
	l.metrics.JobsFailed.WithLabelValues(task).Inc()
	return nil
}

// finish records the terminal write and returns the job's task name for
// metric labeling.
func (l *Ledger) finish(ctx context.Context, jobID uint, status string, result Result) (string, error) {
	var job Job
	if err := l.db.WithContext(ctx).Select("task_name", "status").First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job.Status != StatusPending {
		return "", fmt.Errorf("job %d is %s: %w", jobID, job.Status, ErrTerminal)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	tx := l.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, StatusPending).
		Updates(map[string]any{
			"status":          status,
			"result":          datatypes.JSON(raw),
			"last_updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return "", fmt.Errorf("update job %d: %w", jobID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		// Lost a race with another terminal write.
		return "", fmt.Errorf("job %d is no longer pending: %w", jobID, ErrTerminal)
	}
	l.log.Info("job finished", zap.Uint("job_id", jobID), zap.String("status", status))
	return job.TaskName, nil
}

// Kill force-fails a pending job from the operator surface.
func (l *Ledger) Kill(ctx context.Context, jobID uint) error {
	return l.Fail(ctx, jobID, Result{
		Message: "Job was aborted by an administrator.",
		Error:   "killed",
	})
}

// Get returns a job by id.
func (l *Ledger) Get(ctx context.Context, jobID uint) (*Job, error) {
	var job Job
	if err := l.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job %d: %w", jobID, err)
	}
	return &job, nil
}

// Where lists jobs matching the filter, newest first.
func (l *Ledger) Where(ctx context.Context, filter Filter) ([]Job, error) {
	q := l.db.WithContext(ctx).Model(&Job{})
	if filter.TaskName != "" {
		q = q.Where("task_name = ?", filter.TaskName)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.OrganizationID != 0 {
		q = q.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var jobs []Job
	if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListPending lists every pending job for an organization.
func (l *Ledger) ListPending(ctx context.Context, organizationID uint) ([]Job, error) {
	return l.Where(ctx, Filter{Status: StatusPending, OrganizationID: organizationID})
}
