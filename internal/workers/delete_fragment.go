package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
)

// deleteFragment removes a single embedded fragment: one provider vector,
// its DocumentVector row and its cache entry.
func (s *Service) deleteFragment(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var data DeleteFragmentData
	if err := decodeData(job, &data); err != nil {
		return queue.Result{}, err
	}

	row, err := s.store.VectorByID(ctx, data.DocumentVectorID)
	if errors.Is(err, records.ErrNotFound) {
		return queue.Result{Message: "Fragment was already removed."}, nil
	}
	if err != nil {
		return queue.Result{}, err
	}

	workspace, err := s.store.WorkspaceByID(ctx, row.WorkspaceID)
	if err != nil {
		return queue.Result{}, err
	}

	conn, err := s.connector(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{Message: "Could not connect to the vector database."}, retryable(err)
	}
	defer conn.Close()

	if err := conn.DeleteByIDs(ctx, workspace.Fname, []string{row.VectorID}); err != nil {
		return queue.Result{}, retryable(err)
	}
	if err := s.store.DeleteDocumentVector(ctx, row.ID); err != nil {
		return queue.Result{}, err
	}
	s.pruneCachedVector(row.DocID, row.VectorID)

	return queue.Result{
		Message: fmt.Sprintf("Deleted fragment %s.", row.VectorID),
	}, nil
}

// pruneCachedVector drops one vector from a document's cache file. Cache
// maintenance is best effort; a stale entry only costs a clone some extra
// provider writes.
func (s *Service) pruneCachedVector(docID, vectorID string) {
	key := vcache.CacheKey(docID)
	cached, ok, err := s.cache.Read(key)
	if err != nil || !ok {
		return
	}
	kept := cached[:0]
	for _, cv := range cached {
		if cv.VectorDBID != vectorID {
			kept = append(kept, cv)
		}
	}
	_ = s.cache.Write(key, kept)
}
