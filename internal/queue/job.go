// Package queue is the durable job ledger: it records intent, enforces
// single-flight execution per tenant, dispatches work to the execution
// runtime and records terminal outcomes.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Job statuses. A job is created pending and transitions exactly once to
// complete or failed; terminal rows are immutable. Retries are new rows.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Job is one unit of asynchronous work.
type Job struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	TaskName       string `gorm:"index;not null" json:"taskName"`
	Status         string `gorm:"index;not null" json:"status"`
	Data           datatypes.JSON `json:"data"`
	Result         datatypes.JSON `json:"result"`
	OrganizationID uint   `gorm:"index;not null" json:"organizationId"`
	UserID         uint   `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
}

// Result is the terminal outcome persisted to Job.Result. CanRetry is
// the only signal that surfaces a retry action to an operator.
type Result struct {
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
	Details  any    `json:"details,omitempty"`
	CanRetry bool   `json:"canRetry,omitempty"`
}

// Envelope is the minimal dispatch payload. Large objects live in the
// job's Data field and are re-read by the workflow, never re-transmitted.
type Envelope struct {
	JobID uint `json:"jobId"`
}

// Task is what travels through the dispatch channel.
type Task struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"data"`
}

// Dispatcher hands tasks to the execution runtime. Implemented by
// runtime.Dispatcher; faked in tests.
type Dispatcher interface {
	Publish(ctx context.Context, task Task) error
}

// Filter selects jobs by equality on its non-zero fields. Limit caps the
// result set; zero means unbounded.
type Filter struct {
	TaskName       string
	Status         string
	OrganizationID uint
	Limit          int
}
