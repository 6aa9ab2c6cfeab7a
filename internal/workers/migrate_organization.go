package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
)

// migrateOrganization copies every workspace of the source organization
// into the destination organization's vector store, replaying cached
// vectors document by document. A failing workspace is recorded and the
// migration moves on to the next one.
func (s *Service) migrateOrganization(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var data MigrateData
	if err := decodeData(job, &data); err != nil {
		return queue.Result{}, err
	}

	destOrg, err := s.store.OrganizationByID(ctx, data.DestinationOrganizationID)
	if err != nil {
		return queue.Result{}, fmt.Errorf("load destination organization %d: %w", data.DestinationOrganizationID, err)
	}

	destConn, err := s.connector(ctx, destOrg.ID)
	if err != nil {
		return queue.Result{Message: "Could not connect to the destination vector database."}, retryable(err)
	}
	defer destConn.Close()

	workspaces, err := s.store.WorkspacesForOrganization(ctx, job.OrganizationID)
	if err != nil {
		return queue.Result{}, err
	}

	migrated, totalCloned, totalSkipped := 0, 0, 0
	var failedWorkspaces []string
	for _, ws := range workspaces {
		docs, err := s.store.DocumentsForWorkspace(ctx, ws.ID)
		if err != nil {
			return queue.Result{}, err
		}

		dest, err := s.store.CreateWorkspace(ctx, ws.Name, destOrg.ID)
		if err != nil {
			return queue.Result{}, err
		}

		cloned, skipped, failed, err := s.cloneDocumentsInto(ctx, destConn, docs, dest)
		if err != nil {
			s.log.Warn("workspace migration failed",
				zap.String("workspace", ws.Name), zap.Error(err))
			s.rollbackWorkspace(ctx, dest.ID)
			failedWorkspaces = append(failedWorkspaces, ws.Name)
			continue
		}
		migrated++
		totalCloned += cloned
		totalSkipped += skipped
		if len(failed) > 0 {
			s.log.Warn("documents failed during migration",
				zap.String("workspace", ws.Name), zap.Strings("documents", failed))
		}
	}

	return queue.Result{
		Message: fmt.Sprintf("Migrated %d of %d workspaces to %s.", migrated, len(workspaces), destOrg.Name),
		Details: map[string]any{
			"workspacesMigrated": migrated,
			"documentsCloned":    totalCloned,
			"documentsSkipped":   totalSkipped,
			"failedWorkspaces":   failedWorkspaces,
		},
	}, nil
}
