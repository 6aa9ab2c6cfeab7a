package records_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
)

func newTestStore(t *testing.T) *records.Store {
	t.Helper()
	db, err := records.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	return records.NewStore(db)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Workspace", "my-workspace"},
		{"  Research (2024)  ", "research-2024"},
		{"already-safe", "already-safe"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, records.Slugify(tt.in))
	}
}

func TestOrganizationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	org, err := store.CreateOrganization(ctx, "Acme Corp")
	require.NoError(t, err)
	assert.NotZero(t, org.ID)
	assert.Contains(t, org.Slug, "acme-corp-")

	got, err := store.OrganizationBySlug(ctx, org.Slug)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	_, err = store.OrganizationBySlug(ctx, "missing")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestDeleteDocument_CascadesVectors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	org, err := store.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	ws, err := store.CreateWorkspace(ctx, "Main", org.ID)
	require.NoError(t, err)

	doc := &records.WorkspaceDocument{Name: "paper.pdf", WorkspaceID: ws.ID, OrganizationID: org.ID}
	require.NoError(t, store.CreateDocument(ctx, doc))

	vectors := []records.DocumentVector{
		{DocID: doc.DocID, VectorID: "v1", DocumentID: doc.ID, WorkspaceID: ws.ID, OrganizationID: org.ID},
		{DocID: doc.DocID, VectorID: "v2", DocumentID: doc.ID, WorkspaceID: ws.ID, OrganizationID: org.ID},
	}
	require.NoError(t, store.CreateDocumentVectors(ctx, vectors))

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))

	remaining, err := store.VectorsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Deleting again is a no-op, not an error.
	require.NoError(t, store.DeleteDocument(ctx, doc.ID))
}

func TestDeleteWorkspace_CascadesDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	org, err := store.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	ws, err := store.CreateWorkspace(ctx, "Main", org.ID)
	require.NoError(t, err)

	doc := &records.WorkspaceDocument{Name: "a.txt", WorkspaceID: ws.ID, OrganizationID: org.ID}
	require.NoError(t, store.CreateDocument(ctx, doc))

	require.NoError(t, store.DeleteWorkspace(ctx, ws.ID))

	docs, err := store.DocumentsForWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSettings_Upsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Setting(ctx, "open_ai_api_key")
	assert.ErrorIs(t, err, records.ErrNotFound)

	require.NoError(t, store.UpdateSetting(ctx, "open_ai_api_key", "sk-one"))
	require.NoError(t, store.UpdateSetting(ctx, "open_ai_api_key", "sk-two"))

	setting, err := store.Setting(ctx, "open_ai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-two", setting.Value)
}
