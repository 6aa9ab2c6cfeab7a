package workers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
	"github.com/fyrsmithlabs/vectoradmin/internal/vectordb"
)

// cloneWorkspace copies a workspace's documents into a new workspace in the
// same organization, replaying cached vectors with fresh provider ids. No
// re-embedding happens; documents without a cache file are skipped.
func (s *Service) cloneWorkspace(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var data CloneWorkspaceData
	if err := decodeData(job, &data); err != nil {
		return queue.Result{}, err
	}

	source, err := s.store.WorkspaceByID(ctx, data.WorkspaceID)
	if err != nil {
		return queue.Result{}, fmt.Errorf("load workspace %d: %w", data.WorkspaceID, err)
	}

	conn, err := s.connector(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{Message: "Could not connect to the vector database."}, retryable(err)
	}
	defer conn.Close()

	dest, err := s.store.CreateWorkspace(ctx, data.NewWorkspaceName, source.OrganizationID)
	if err != nil {
		return queue.Result{}, err
	}

	docs, err := s.store.DocumentsForWorkspace(ctx, source.ID)
	if err != nil {
		s.rollbackWorkspace(ctx, dest.ID)
		return queue.Result{}, err
	}

	cloned, skipped, failed, err := s.cloneDocumentsInto(ctx, conn, docs, dest)
	if err != nil {
		s.rollbackWorkspace(ctx, dest.ID)
		return queue.Result{Message: "Workspace clone failed and was rolled back."}, err
	}

	// Skipped documents do not fail the clone; the new workspace simply
	// holds what could be replayed.
	return queue.Result{
		Message: fmt.Sprintf("Cloned workspace %s into %s with %d documents.", source.Name, dest.Name, cloned),
		Details: map[string]any{
			"newWorkspaceId": dest.ID,
			"cloned":         cloned,
			"skipped":        skipped,
			"failed":         failed,
		},
	}, nil
}

// rollbackWorkspace removes a partially built destination workspace.
func (s *Service) rollbackWorkspace(ctx context.Context, workspaceID uint) {
	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		s.log.Error("failed to roll back workspace",
			zap.Uint("workspace_id", workspaceID), zap.Error(err))
	}
}

// cloneDocumentsInto replays cached vectors for each source document into
// the destination workspace. Every clone gets a fresh document id and fresh
// provider vector ids; provider writes precede record and cache writes.
// A document-level failure rolls back that document and continues.
func (s *Service) cloneDocumentsInto(
	ctx context.Context,
	conn vectordb.Connector,
	docs []records.WorkspaceDocument,
	dest *records.OrganizationWorkspace,
) (cloned, skipped int, failed []string, err error) {
	for _, doc := range docs {
		cached, ok, rerr := s.cache.Read(vcache.CacheKey(doc.DocID))
		if rerr != nil {
			return cloned, skipped, failed, rerr
		}
		if !ok || len(cached) == 0 {
			s.log.Warn("no cached vectors for document, skipping clone",
				zap.String("document", doc.Name),
				zap.String("doc_id", doc.DocID))
			s.metrics.DocumentsSkipped.WithLabelValues(conn.Type(), "no_cache").Inc()
			skipped++
			continue
		}

		newDoc := &records.WorkspaceDocument{
			Name:           doc.Name,
			WorkspaceID:    dest.ID,
			OrganizationID: dest.OrganizationID,
		}
		if cerr := s.store.CreateDocument(ctx, newDoc); cerr != nil {
			return cloned, skipped, failed, cerr
		}

		if cerr := s.replayVectors(ctx, conn, cached, dest, newDoc); cerr != nil {
			s.log.Warn("document clone failed",
				zap.String("document", doc.Name), zap.Error(cerr))
			if derr := s.store.DeleteDocument(ctx, newDoc.ID); derr != nil {
				s.log.Error("failed to roll back cloned document row",
					zap.Uint("document_id", newDoc.ID), zap.Error(derr))
			}
			failed = append(failed, doc.Name)
			continue
		}
		cloned++
	}
	return cloned, skipped, failed, nil
}

// replayVectors writes one document's cached vectors under fresh ids.
func (s *Service) replayVectors(
	ctx context.Context,
	conn vectordb.Connector,
	cached []vcache.CachedVector,
	dest *records.OrganizationWorkspace,
	doc *records.WorkspaceDocument,
) error {
	vectors := make([]vectordb.Vector, len(cached))
	newCache := make([]vcache.CachedVector, len(cached))
	rows := make([]records.DocumentVector, len(cached))
	for i, cv := range cached {
		id := uuid.NewString()
		metadata := make(map[string]any, len(cv.Metadata))
		for k, v := range cv.Metadata {
			metadata[k] = v
		}
		metadata["docId"] = doc.DocID
		vectors[i] = vectordb.Vector{ID: id, Values: cv.Values, Metadata: metadata}
		newCache[i] = vcache.CachedVector{VectorDBID: id, Values: cv.Values, Metadata: metadata}
		rows[i] = records.DocumentVector{
			DocID:          doc.DocID,
			VectorID:       id,
			DocumentID:     doc.ID,
			WorkspaceID:    dest.ID,
			OrganizationID: dest.OrganizationID,
		}
	}

	for start := 0; start < len(vectors); start += vectorBatchSize {
		end := start + vectorBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := conn.Upsert(ctx, dest.Fname, vectors[start:end]); err != nil {
			return err
		}
	}

	if err := s.store.CreateDocumentVectors(ctx, rows); err != nil {
		return err
	}
	if err := s.cache.Write(vcache.CacheKey(doc.DocID), newCache); err != nil {
		return err
	}

	s.metrics.DocumentsProcessed.WithLabelValues(conn.Type()).Inc()
	s.metrics.VectorsUpserted.WithLabelValues(conn.Type()).Add(float64(len(vectors)))
	return nil
}
