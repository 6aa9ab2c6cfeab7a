package workers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/vectoradmin/internal/embeddings"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
	"github.com/fyrsmithlabs/vectoradmin/internal/vectordb"
)

const (
	chunkSize    = 1000
	chunkOverlap = 20

	// vectorBatchSize caps one provider upsert during ingestion and clone.
	vectorBatchSize = 500
)

// processDocument chunks, embeds and stores one document's content into the
// workspace scope. Provider writes happen first; DocumentVector rows and
// the cache file are recorded only after the provider accepted every batch.
// Returns the number of vectors written.
func (s *Service) processDocument(
	ctx context.Context,
	conn vectordb.Connector,
	workspace *records.OrganizationWorkspace,
	doc *records.WorkspaceDocument,
	content string,
	embedder embeddings.Embedder,
) (int, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := splitter.SplitText(content)
	if err != nil {
		return 0, fmt.Errorf("split document %s: %w", doc.Name, err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s produced no chunks", doc.Name)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	values, err := embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, retryable(fmt.Errorf("embed document %s: %w", doc.Name, err))
	}

	vectors := make([]vectordb.Vector, len(chunks))
	cached := make([]vcache.CachedVector, len(chunks))
	rows := make([]records.DocumentVector, len(chunks))
	for i, chunk := range chunks {
		id := uuid.NewString()
		metadata := map[string]any{
			"text":  chunk,
			"name":  doc.Name,
			"docId": doc.DocID,
		}
		vectors[i] = vectordb.Vector{ID: id, Values: values[i], Metadata: metadata}
		cached[i] = vcache.CachedVector{VectorDBID: id, Values: values[i], Metadata: metadata}
		rows[i] = records.DocumentVector{
			DocID:          doc.DocID,
			VectorID:       id,
			DocumentID:     doc.ID,
			WorkspaceID:    workspace.ID,
			OrganizationID: workspace.OrganizationID,
		}
	}

	for start := 0; start < len(vectors); start += vectorBatchSize {
		end := start + vectorBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := conn.Upsert(ctx, workspace.Fname, vectors[start:end]); err != nil {
			return 0, retryable(err)
		}
	}

	if err := s.store.CreateDocumentVectors(ctx, rows); err != nil {
		return 0, err
	}
	if err := s.cache.Write(vcache.CacheKey(doc.DocID), cached); err != nil {
		return 0, err
	}

	s.metrics.DocumentsProcessed.WithLabelValues(conn.Type()).Inc()
	s.metrics.VectorsUpserted.WithLabelValues(conn.Type()).Add(float64(len(vectors)))
	return len(vectors), nil
}
