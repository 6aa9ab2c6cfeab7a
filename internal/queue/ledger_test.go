package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeDispatcher struct {
	published []Task
	err       error
}

func (f *fakeDispatcher) Publish(_ context.Context, task Task) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, task)
	return nil
}

func newTestLedger(t *testing.T, d Dispatcher) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	l := NewLedger(db, d, zap.NewNop())
	require.NoError(t, l.Migrate())
	return l
}

func TestAdmitSingleFlight(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	first, err := l.Admit(ctx, "pinecone/deleteDocument", map[string]any{"documentId": 7}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)

	second, err := l.Admit(ctx, "pinecone/deleteDocument", map[string]any{"documentId": 8}, 1, 1)
	require.ErrorIs(t, err, ErrDuplicatePending)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	jobs, err := l.Where(ctx, Filter{TaskName: "pinecone/deleteDocument"})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestAdmitScopedByOrganizationAndTask(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	_, err := l.Admit(ctx, "workspace/reset", nil, 1, 1)
	require.NoError(t, err)

	// Different organization, same task.
	_, err = l.Admit(ctx, "workspace/reset", nil, 2, 1)
	require.NoError(t, err)

	// Same organization, different task.
	_, err = l.Admit(ctx, "workspace/migrate", nil, 1, 1)
	require.NoError(t, err)
}

func TestAdmitAfterTerminalAllowsNewJob(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	first, err := l.Admit(ctx, "qdrant/cloneWorkspace", nil, 3, 1)
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, first.ID, Result{Message: "boom", Error: "boom", CanRetry: true}))

	second, err := l.Admit(ctx, "qdrant/cloneWorkspace", nil, 3, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTerminalImmutability(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	job, err := l.Admit(ctx, "chroma/addDocument", nil, 1, 1)
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, job.ID, Result{Message: "done"}))

	err = l.Fail(ctx, job.ID, Result{Message: "late failure"})
	require.ErrorIs(t, err, ErrTerminal)

	got, err := l.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)

	var res Result
	require.NoError(t, json.Unmarshal(got.Result, &res))
	assert.Equal(t, "done", res.Message)
}

func TestSubmitDispatchesEnvelopeOnly(t *testing.T) {
	d := &fakeDispatcher{}
	l := newTestLedger(t, d)
	ctx := context.Background()

	job, err := l.Submit(ctx, "weaviate/deleteFragment", map[string]any{"vectorIds": []string{"a", "b"}}, 5, 2)
	require.NoError(t, err)
	require.Len(t, d.published, 1)
	assert.Equal(t, "weaviate/deleteFragment", d.published[0].Name)

	var env Envelope
	require.NoError(t, json.Unmarshal(d.published[0].Payload, &env))
	assert.Equal(t, job.ID, env.JobID)

	// The payload carries nothing but the job id.
	var generic map[string]any
	require.NoError(t, json.Unmarshal(d.published[0].Payload, &generic))
	assert.Len(t, generic, 1)
}

func TestSubmitDuplicateDoesNotDispatch(t *testing.T) {
	d := &fakeDispatcher{}
	l := newTestLedger(t, d)
	ctx := context.Background()

	_, err := l.Submit(ctx, "workspace/migrate", nil, 9, 1)
	require.NoError(t, err)
	_, err = l.Submit(ctx, "workspace/migrate", nil, 9, 1)
	require.ErrorIs(t, err, ErrDuplicatePending)
	assert.Len(t, d.published, 1)
}

func TestKillFailsPendingJob(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	job, err := l.Admit(ctx, "pinecone/addDocument", nil, 4, 1)
	require.NoError(t, err)
	require.NoError(t, l.Kill(ctx, job.ID))

	got, err := l.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestGetMissing(t *testing.T) {
	l := newTestLedger(t, nil)
	_, err := l.Get(context.Background(), 424242)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteCountsUnderTaskLabel(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	before := testutil.ToFloat64(l.metrics.JobsCompleted.WithLabelValues("qdrant/cloneWorkspace"))

	job, err := l.Admit(ctx, "qdrant/cloneWorkspace", nil, 9, 1)
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, job.ID, Result{Message: "done"}))

	after := testutil.ToFloat64(l.metrics.JobsCompleted.WithLabelValues("qdrant/cloneWorkspace"))
	assert.Equal(t, before+1, after)
}

func TestFinishMissingJob(t *testing.T) {
	l := newTestLedger(t, nil)
	err := l.Complete(context.Background(), 424242, Result{Message: "done"})
	require.ErrorIs(t, err, ErrNotFound)
}
