package workers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
)

// addDocuments ingests uploaded documents into a workspace. Documents
// already present by name are skipped; a failing document is rolled back
// and does not abort the rest of the batch.
func (s *Service) addDocuments(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var data AddDocumentsData
	if err := decodeData(job, &data); err != nil {
		return queue.Result{}, err
	}
	if len(data.Documents) == 0 {
		return queue.Result{Message: "No documents to add."}, nil
	}

	workspace, err := s.store.WorkspaceByID(ctx, data.WorkspaceID)
	if err != nil {
		return queue.Result{}, fmt.Errorf("load workspace %d: %w", data.WorkspaceID, err)
	}

	embedder, err := s.embedder(ctx)
	if err != nil {
		return queue.Result{Message: "No OpenAI API key is configured for this instance."}, err
	}

	conn, err := s.connector(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{Message: "Could not connect to the vector database."}, retryable(err)
	}
	defer conn.Close()

	if err := s.dimensionGate(ctx, conn, workspace.Fname, embedder.Dimensions()); err != nil {
		return queue.Result{Message: "The connected index does not accept this embedding model's dimensions."}, err
	}

	added, skipped := 0, 0
	var failed []string
	for _, upload := range data.Documents {
		if _, err := s.store.DocumentByName(ctx, upload.Name, workspace.ID); err == nil {
			skipped++
			s.metrics.DocumentsSkipped.WithLabelValues(conn.Type(), "exists").Inc()
			continue
		} else if !errors.Is(err, records.ErrNotFound) {
			return queue.Result{}, err
		}

		doc := &records.WorkspaceDocument{
			Name:           upload.Name,
			WorkspaceID:    workspace.ID,
			OrganizationID: workspace.OrganizationID,
		}
		if err := s.store.CreateDocument(ctx, doc); err != nil {
			return queue.Result{}, err
		}
		if _, err := s.processDocument(ctx, conn, workspace, doc, upload.Content, embedder); err != nil {
			s.log.Warn("document ingestion failed",
				zap.String("document", upload.Name),
				zap.Uint("workspace_id", workspace.ID),
				zap.Error(err))
			if derr := s.store.DeleteDocument(ctx, doc.ID); derr != nil {
				s.log.Error("failed to roll back document row",
					zap.Uint("document_id", doc.ID), zap.Error(derr))
			}
			failed = append(failed, upload.Name)
			continue
		}
		added++
	}

	return queue.Result{
		Message: fmt.Sprintf("Added %d documents to workspace %s.", added, workspace.Name),
		Details: map[string]any{
			"added":   added,
			"skipped": skipped,
			"failed":  failed,
		},
	}, nil
}
