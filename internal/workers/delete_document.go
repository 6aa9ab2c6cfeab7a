package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
)

// errNamespaceGone marks the delete-document case where the provider scope
// no longer exists. The job fails with an operator-visible explanation.
var errNamespaceGone = errors.New("namespace does not exist in the vector database")

// deleteDocument removes a document from the provider store, then its
// record rows and cache file. Provider deletion precedes every local write
// so a provider failure leaves the records intact for a retry.
func (s *Service) deleteDocument(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var data DeleteDocumentData
	if err := decodeData(job, &data); err != nil {
		return queue.Result{}, err
	}

	doc, err := s.store.DocumentByID(ctx, data.DocumentID)
	if errors.Is(err, records.ErrNotFound) {
		// Already deleted. Nothing to undo.
		return queue.Result{Message: "Document was already removed."}, nil
	}
	if err != nil {
		return queue.Result{}, err
	}

	workspace, err := s.store.WorkspaceByID(ctx, doc.WorkspaceID)
	if err != nil {
		return queue.Result{}, err
	}

	conn, err := s.connector(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{Message: "Could not connect to the vector database."}, retryable(err)
	}
	defer conn.Close()

	exists, err := conn.NamespaceExists(ctx, workspace.Fname)
	if err != nil {
		return queue.Result{}, retryable(err)
	}
	if !exists {
		return queue.Result{
			Message: fmt.Sprintf("Workspace %s has no data in the vector database. Nothing to do.", workspace.Name),
		}, errNamespaceGone
	}

	vectors, err := s.store.VectorsForDocument(ctx, doc.ID)
	if err != nil {
		return queue.Result{}, err
	}
	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = v.VectorID
	}

	if err := conn.DeleteByIDs(ctx, workspace.Fname, ids); err != nil {
		return queue.Result{}, retryable(err)
	}

	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return queue.Result{}, err
	}
	if err := s.cache.Delete(vcache.CacheKey(doc.DocID)); err != nil {
		return queue.Result{}, err
	}

	return queue.Result{
		Message: fmt.Sprintf("Deleted document %s and %d vectors.", doc.Name, len(ids)),
		Details: map[string]any{"vectorsDeleted": len(ids)},
	}, nil
}
