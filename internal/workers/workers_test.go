package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/embeddings"
	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
	"github.com/fyrsmithlabs/vectoradmin/internal/vectordb"
)

// fakeConnector is an in-memory vectordb.Connector. It records upsert batch
// sizes so tests can assert batching behavior.
type fakeConnector struct {
	mu         sync.Mutex
	typ        string
	dimensions int
	namespaces map[string]map[string]vectordb.Vector
	batchSizes []int
	failUpsert bool
}

func newFakeConnector(typ string, dimensions int) *fakeConnector {
	return &fakeConnector{
		typ:        typ,
		dimensions: dimensions,
		namespaces: make(map[string]map[string]vectordb.Vector),
	}
}

func (f *fakeConnector) Type() string                  { return f.typ }
func (f *fakeConnector) Connect(context.Context) error { return nil }
func (f *fakeConnector) Close() error                  { return nil }

func (f *fakeConnector) NamespaceExists(_ context.Context, namespace string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, ok := f.namespaces[namespace]
	return ok && len(ns) > 0, nil
}

func (f *fakeConnector) IndexDimensions(context.Context, string) (int, error) {
	return f.dimensions, nil
}

func (f *fakeConnector) Upsert(_ context.Context, namespace string, vectors []vectordb.Vector) error {
	if f.failUpsert {
		return fmt.Errorf("provider rejected upsert")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, ok := f.namespaces[namespace]
	if !ok {
		ns = make(map[string]vectordb.Vector)
		f.namespaces[namespace] = ns
	}
	for _, v := range vectors {
		ns[v.ID] = v
	}
	f.batchSizes = append(f.batchSizes, len(vectors))
	return nil
}

func (f *fakeConnector) DeleteByIDs(_ context.Context, namespace string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns := f.namespaces[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

func (f *fakeConnector) DeleteNamespace(_ context.Context, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.namespaces, namespace)
	return nil
}

func (f *fakeConnector) SimilarityQuery(_ context.Context, namespace string, _ []float32, topK int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.namespaces[namespace] {
		if len(ids) == topK {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeConnector) count(namespace string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.namespaces[namespace])
}

func (f *fakeConnector) has(namespace, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.namespaces[namespace][id]
	return ok
}

// fakeEmbedder produces deterministic vectors of a fixed width.
type fakeEmbedder struct{ width int }

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.width)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return make([]float32, f.width), nil
}

func (f *fakeEmbedder) Dimensions() int { return f.width }

type fakeDispatcher struct{ published []queue.Task }

func (f *fakeDispatcher) Publish(_ context.Context, task queue.Task) error {
	f.published = append(f.published, task)
	return nil
}

type fixture struct {
	svc        *Service
	store      *records.Store
	ledger     *queue.Ledger
	cache      vcache.Store
	connector  *fakeConnector
	dispatcher *fakeDispatcher
	org        *records.Organization
	workspace  *records.OrganizationWorkspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := records.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	store := records.NewStore(db)

	dispatcher := &fakeDispatcher{}
	ledger := queue.NewLedger(db, dispatcher, zap.NewNop())
	require.NoError(t, ledger.Migrate())

	cache, err := vcache.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	connector := newFakeConnector(vectordb.TypePinecone, 1536)

	svc := NewService(store, ledger, cache, config.EmbeddingsConfig{
		Model:      "text-embedding-ada-002",
		Dimensions: 1536,
		APIKey:     "sk-test",
	},
		func(string, []byte, *zap.Logger) (vectordb.Connector, error) { return connector, nil },
		func(config.EmbeddingsConfig, string) (embeddings.Embedder, error) {
			return &fakeEmbedder{width: 1536}, nil
		},
		zap.NewNop(),
	)

	org, err := store.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	require.NoError(t, store.CreateConnection(ctx, &records.OrganizationConnection{
		Type:           vectordb.TypePinecone,
		OrganizationID: org.ID,
		Settings:       datatypes.JSON(`{"environment":"us-east-1","index":"main","apiKey":"key"}`),
	}))
	workspace, err := store.CreateWorkspace(ctx, "Docs", org.ID)
	require.NoError(t, err)

	return &fixture{
		svc:        svc,
		store:      store,
		ledger:     ledger,
		cache:      cache,
		connector:  connector,
		dispatcher: dispatcher,
		org:        org,
		workspace:  workspace,
	}
}

// runJob drives a dispatched job through its registered handler the way the
// runtime would.
func (fx *fixture) runJob(t *testing.T, job *queue.Job) *queue.Job {
	t.Helper()
	handler, ok := fx.svc.BuildRegistry()[job.TaskName]
	require.True(t, ok, "no handler for task %s", job.TaskName)

	payload, err := json.Marshal(queue.Envelope{JobID: job.ID})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), payload))

	final, err := fx.ledger.Get(context.Background(), job.ID)
	require.NoError(t, err)
	return final
}

func (fx *fixture) result(t *testing.T, job *queue.Job) queue.Result {
	t.Helper()
	var res queue.Result
	require.NoError(t, json.Unmarshal(job.Result, &res))
	return res
}

func (fx *fixture) ingestDocument(t *testing.T, name, content string) *records.WorkspaceDocument {
	t.Helper()
	ctx := context.Background()
	job, err := fx.svc.SubmitAddDocuments(ctx, fx.org.ID, 1, AddDocumentsData{
		WorkspaceID: fx.workspace.ID,
		Documents:   []DocumentUpload{{Name: name, Content: content}},
	})
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	doc, err := fx.store.DocumentByName(ctx, name, fx.workspace.ID)
	require.NoError(t, err)
	return doc
}

func TestAddDocumentsIngests(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")

	vectors, err := fx.store.VectorsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, vectors)
	assert.Equal(t, len(vectors), fx.connector.count(fx.workspace.Fname))

	cached, ok, err := fx.cache.Read(vcache.CacheKey(doc.DocID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, cached, len(vectors))
}

func TestAddDocumentsSkipsExisting(t *testing.T) {
	fx := newFixture(t)
	fx.ingestDocument(t, "manual.txt", "first version")

	job, err := fx.svc.SubmitAddDocuments(context.Background(), fx.org.ID, 1, AddDocumentsData{
		WorkspaceID: fx.workspace.ID,
		Documents:   []DocumentUpload{{Name: "manual.txt", Content: "second version"}},
	})
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	res := fx.result(t, final)
	details := res.Details.(map[string]any)
	assert.Equal(t, float64(0), details["added"])
	assert.Equal(t, float64(1), details["skipped"])
}

func TestDimensionGateAbortsBeforeUpsert(t *testing.T) {
	fx := newFixture(t)
	fx.connector.dimensions = 768

	job, err := fx.svc.SubmitAddDocuments(context.Background(), fx.org.ID, 1, AddDocumentsData{
		WorkspaceID: fx.workspace.ID,
		Documents:   []DocumentUpload{{Name: "doc.txt", Content: "some content"}},
	})
	require.NoError(t, err)
	final := fx.runJob(t, job)

	assert.Equal(t, queue.StatusFailed, final.Status)
	assert.Empty(t, fx.connector.batchSizes, "nothing may reach the provider")

	res := fx.result(t, final)
	assert.False(t, res.CanRetry)
	assert.Contains(t, res.Error, "dimensions")
}

func TestDeleteDocumentRemovesEverything(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")
	vectors, err := fx.store.VectorsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, vectors)

	job, err := fx.svc.SubmitDeleteDocument(ctx, fx.org.ID, 1, doc.ID)
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	remaining, err := fx.store.VectorsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	for _, v := range vectors {
		assert.False(t, fx.connector.has(fx.workspace.Fname, v.VectorID))
	}
	assert.False(t, fx.cache.Exists(vcache.CacheKey(doc.DocID)))

	// Second delete is a no-op, not a crash.
	job2, err := fx.svc.SubmitDeleteDocument(ctx, fx.org.ID, 1, doc.ID)
	require.NoError(t, err)
	final2 := fx.runJob(t, job2)
	assert.Equal(t, queue.StatusComplete, final2.Status)
}

func TestDeleteDocumentAbsentNamespaceFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := &records.WorkspaceDocument{
		Name:           "ghost.txt",
		WorkspaceID:    fx.workspace.ID,
		OrganizationID: fx.org.ID,
	}
	require.NoError(t, fx.store.CreateDocument(ctx, doc))

	job, err := fx.svc.SubmitDeleteDocument(ctx, fx.org.ID, 1, doc.ID)
	require.NoError(t, err)
	final := fx.runJob(t, job)

	assert.Equal(t, queue.StatusFailed, final.Status)
	res := fx.result(t, final)
	assert.Contains(t, res.Message, "Nothing to do")
}

func TestDeleteFragment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")
	vectors, err := fx.store.VectorsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, vectors)
	target := vectors[0]

	job, err := fx.svc.SubmitDeleteFragment(ctx, fx.org.ID, 1, target.ID)
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	assert.False(t, fx.connector.has(fx.workspace.Fname, target.VectorID))
	_, err = fx.store.VectorByID(ctx, target.ID)
	assert.ErrorIs(t, err, records.ErrNotFound)

	cached, ok, err := fx.cache.Read(vcache.CacheKey(doc.DocID))
	require.NoError(t, err)
	require.True(t, ok)
	for _, cv := range cached {
		assert.NotEqual(t, target.VectorID, cv.VectorDBID)
	}
}

func TestCloneWorkspaceRoundTrip(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")
	sourceVectors, err := fx.store.VectorsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	n := len(sourceVectors)
	require.NotZero(t, n)

	job, err := fx.svc.SubmitCloneWorkspace(ctx, fx.org.ID, 1, CloneWorkspaceData{
		WorkspaceID:      fx.workspace.ID,
		NewWorkspaceName: "Docs Copy",
	})
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	res := fx.result(t, final)
	details := res.Details.(map[string]any)
	destID := uint(details["newWorkspaceId"].(float64))

	dest, err := fx.store.WorkspaceByID(ctx, destID)
	require.NoError(t, err)

	destDocs, err := fx.store.DocumentsForWorkspace(ctx, dest.ID)
	require.NoError(t, err)
	require.Len(t, destDocs, 1)
	assert.NotEqual(t, doc.DocID, destDocs[0].DocID)

	destVectors, err := fx.store.VectorsForDocument(ctx, destDocs[0].ID)
	require.NoError(t, err)
	assert.Len(t, destVectors, n)

	// Fresh ids, disjoint from the source.
	sourceIDs := make(map[string]bool, n)
	for _, v := range sourceVectors {
		sourceIDs[v.VectorID] = true
	}
	for _, v := range destVectors {
		assert.False(t, sourceIDs[v.VectorID], "clone reused a source vector id")
		assert.True(t, fx.connector.has(dest.Fname, v.VectorID))
	}

	// Values and metadata preserved in the destination cache.
	destCache, ok, err := fx.cache.Read(vcache.CacheKey(destDocs[0].DocID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, destCache, n)
	sourceCache, _, err := fx.cache.Read(vcache.CacheKey(doc.DocID))
	require.NoError(t, err)
	assert.Equal(t, sourceCache[0].Values, destCache[0].Values)
	assert.Equal(t, sourceCache[0].Metadata["text"], destCache[0].Metadata["text"])
}

func TestCloneSkipsUncachedDocuments(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.ingestDocument(t, "a.txt", "first document content")
	fx.ingestDocument(t, "b.txt", "second document content")

	// A document whose cache file never existed.
	uncached := &records.WorkspaceDocument{
		Name:           "c.txt",
		WorkspaceID:    fx.workspace.ID,
		OrganizationID: fx.org.ID,
	}
	require.NoError(t, fx.store.CreateDocument(ctx, uncached))

	job, err := fx.svc.SubmitCloneWorkspace(ctx, fx.org.ID, 1, CloneWorkspaceData{
		WorkspaceID:      fx.workspace.ID,
		NewWorkspaceName: "Partial Copy",
	})
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	res := fx.result(t, final)
	details := res.Details.(map[string]any)
	assert.Equal(t, float64(2), details["cloned"])
	assert.Equal(t, float64(1), details["skipped"])

	destID := uint(details["newWorkspaceId"].(float64))
	destDocs, err := fx.store.DocumentsForWorkspace(ctx, destID)
	require.NoError(t, err)
	assert.Len(t, destDocs, 2)
}

func TestCloneRollsBackOnWorkflowFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")
	fx.connector.failUpsert = true

	job, err := fx.svc.SubmitCloneWorkspace(ctx, fx.org.ID, 1, CloneWorkspaceData{
		WorkspaceID:      fx.workspace.ID,
		NewWorkspaceName: "Doomed Copy",
	})
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	res := fx.result(t, final)
	details := res.Details.(map[string]any)
	assert.Equal(t, float64(0), details["cloned"])
	assert.Contains(t, details["failed"], doc.Name)

	destID := uint(details["newWorkspaceId"].(float64))
	destDocs, err := fx.store.DocumentsForWorkspace(ctx, destID)
	require.NoError(t, err)
	assert.Empty(t, destDocs, "failed document rows must be rolled back")
}

func TestMigrateOrganization(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.ingestDocument(t, "manual.txt", "hello vector world")

	destOrg, err := fx.store.CreateOrganization(ctx, "Globex")
	require.NoError(t, err)
	require.NoError(t, fx.store.CreateConnection(ctx, &records.OrganizationConnection{
		Type:           vectordb.TypePinecone,
		OrganizationID: destOrg.ID,
		Settings:       datatypes.JSON(`{"environment":"us-east-1","index":"other","apiKey":"key"}`),
	}))

	job, err := fx.svc.SubmitMigrate(ctx, fx.org.ID, destOrg.ID, 1)
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	destWorkspaces, err := fx.store.WorkspacesForOrganization(ctx, destOrg.ID)
	require.NoError(t, err)
	require.Len(t, destWorkspaces, 1)

	destDocs, err := fx.store.DocumentsForWorkspace(ctx, destWorkspaces[0].ID)
	require.NoError(t, err)
	assert.Len(t, destDocs, 1)
}

func TestSelfMigrationRefused(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.SubmitMigrate(context.Background(), fx.org.ID, fx.org.ID, 1)
	require.ErrorIs(t, err, ErrSelfMigration)

	jobs, err := fx.ledger.Where(context.Background(), queue.Filter{OrganizationID: fx.org.ID})
	require.NoError(t, err)
	assert.Empty(t, jobs, "refused admission must not create a job row")
}

func TestResetRefusedWhilePendingJobs(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Park any pending job for the org.
	_, err := fx.svc.SubmitDeleteDocument(ctx, fx.org.ID, 1, 999)
	require.NoError(t, err)

	_, err = fx.svc.SubmitReset(ctx, fx.org.ID, 1)
	require.ErrorIs(t, err, ErrPendingJobs)
}

func TestResetOrganization(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")

	job, err := fx.svc.SubmitReset(ctx, fx.org.ID, 1)
	require.NoError(t, err)
	final := fx.runJob(t, job)
	require.Equal(t, queue.StatusComplete, final.Status)

	workspaces, err := fx.store.WorkspacesForOrganization(ctx, fx.org.ID)
	require.NoError(t, err)
	assert.Empty(t, workspaces)
	assert.Equal(t, 0, fx.connector.count(fx.workspace.Fname))
	assert.False(t, fx.cache.Exists(vcache.CacheKey(doc.DocID)))
}

func TestDoubleAdmissionReturnsExistingJob(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.SubmitDeleteDocument(ctx, fx.org.ID, 1, 7)
	require.NoError(t, err)

	second, err := fx.svc.SubmitDeleteDocument(ctx, fx.org.ID, 1, 8)
	require.ErrorIs(t, err, queue.ErrDuplicatePending)
	assert.Equal(t, first.ID, second.ID)

	jobs, err := fx.ledger.Where(ctx, queue.Filter{OrganizationID: fx.org.ID})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRetryOnlyWhenAllowed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	job, err := fx.ledger.Admit(ctx, "pinecone/deleteDocument", DeleteDocumentData{DocumentID: 1}, fx.org.ID, 1)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.Fail(ctx, job.ID, queue.Result{Message: "boom", Error: "boom"}))

	_, err = fx.svc.Retry(ctx, job.ID, 1)
	require.ErrorIs(t, err, ErrNotRetryable)

	again, err := fx.ledger.Admit(ctx, "pinecone/cloneWorkspace", CloneWorkspaceData{WorkspaceID: 1}, fx.org.ID, 1)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.Fail(ctx, again.ID, queue.Result{Message: "boom", Error: "boom", CanRetry: true}))

	fresh, err := fx.svc.Retry(ctx, again.ID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, again.ID, fresh.ID)
	assert.Equal(t, again.TaskName, fresh.TaskName)
}

func TestWorkflowPanicFailsJob(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	job, err := fx.ledger.Admit(ctx, "pinecone/addDocument", nil, fx.org.ID, 1)
	require.NoError(t, err)

	handler := fx.svc.handle(func(context.Context, *queue.Job) (queue.Result, error) {
		panic("boom")
	})
	payload, err := json.Marshal(queue.Envelope{JobID: job.ID})
	require.NoError(t, err)
	require.NoError(t, handler(ctx, payload))

	final, err := fx.ledger.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, final.Status)

	res := fx.result(t, final)
	assert.Contains(t, res.Error, "boom")
}

func TestWorkspaceSimilaritySearch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	doc := fx.ingestDocument(t, "manual.txt", "hello vector world")

	matches, err := fx.svc.WorkspaceSimilaritySearch(ctx, fx.org.ID, fx.workspace.ID, "hello", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, doc.Name, matches[0].DocumentName)
}

func TestBuildRegistryCoversAllTasks(t *testing.T) {
	fx := newFixture(t)
	registry := fx.svc.BuildRegistry()

	assert.Len(t, registry, 4*4+2)
	for _, provider := range []string{"pinecone", "chroma", "qdrant", "weaviate"} {
		for _, op := range []string{"addDocument", "deleteDocument", "deleteFragment", "cloneWorkspace"} {
			assert.Contains(t, registry, provider+"/"+op)
		}
	}
	assert.Contains(t, registry, TaskMigrate)
	assert.Contains(t, registry, TaskReset)
}
