package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
)

// resetOrganization wipes every workspace of the organization: provider
// scopes first, then document rows, vector mappings and cache files. The
// operation is destructive and irreversible.
func (s *Service) resetOrganization(ctx context.Context, job *queue.Job) (queue.Result, error) {
	conn, err := s.connector(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{Message: "Could not connect to the vector database."}, retryable(err)
	}
	defer conn.Close()

	workspaces, err := s.store.WorkspacesForOrganization(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{}, err
	}

	deleted := 0
	for _, ws := range workspaces {
		if err := conn.DeleteNamespace(ctx, ws.Fname); err != nil {
			// Keep the rows for whatever the provider still holds.
			return queue.Result{
				Message: fmt.Sprintf("Reset aborted while deleting workspace %s.", ws.Name),
			}, retryable(err)
		}

		docs, err := s.store.DocumentsForWorkspace(ctx, ws.ID)
		if err != nil {
			return queue.Result{}, err
		}
		for _, doc := range docs {
			if err := s.cache.Delete(vcache.CacheKey(doc.DocID)); err != nil {
				s.log.Warn("failed to delete cache file",
					zap.String("doc_id", doc.DocID), zap.Error(err))
			}
		}
		if err := s.store.DeleteWorkspace(ctx, ws.ID); err != nil {
			return queue.Result{}, err
		}
		deleted++
	}

	return queue.Result{
		Message: fmt.Sprintf("Reset organization: removed %d workspaces.", deleted),
		Details: map[string]any{"workspacesDeleted": deleted},
	}, nil
}
