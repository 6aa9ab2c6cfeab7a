package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vectoradmin/internal/records"
)

const defaultSearchTopK = 10

// SearchMatch is one resolved fragment from a similarity search.
type SearchMatch struct {
	VectorID     string `json:"vectorId"`
	DocumentID   uint   `json:"documentId"`
	DocumentName string `json:"documentName"`
}

// WorkspaceSimilaritySearch embeds the query, runs it against the
// workspace's provider scope and resolves the matched ids back to their
// document fragments. Synchronous; this is the one provider read path that
// does not go through the ledger.
func (s *Service) WorkspaceSimilaritySearch(ctx context.Context, orgID, workspaceID uint, query string, topK int) ([]SearchMatch, error) {
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	workspace, err := s.store.WorkspaceByID(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace %d: %w", workspaceID, err)
	}
	if workspace.OrganizationID != orgID {
		return nil, fmt.Errorf("workspace %d does not belong to organization %d", workspaceID, orgID)
	}

	embedder, err := s.embedder(ctx)
	if err != nil {
		return nil, err
	}
	queryVector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	conn, err := s.connector(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ids, err := conn.SimilarityQuery(ctx, workspace.Fname, queryVector, topK)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.store.VectorsByVectorIDs(ctx, ids, 0, topK)
	if err != nil {
		return nil, err
	}

	docNames := make(map[uint]string)
	matches := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		name, ok := docNames[row.DocumentID]
		if !ok {
			doc, err := s.store.DocumentByID(ctx, row.DocumentID)
			if err != nil {
				if errors.Is(err, records.ErrNotFound) {
					continue
				}
				return nil, err
			}
			name = doc.Name
			docNames[row.DocumentID] = name
		}
		matches = append(matches, SearchMatch{
			VectorID:     row.VectorID,
			DocumentID:   row.DocumentID,
			DocumentName: name,
		})
	}
	return matches, nil
}
