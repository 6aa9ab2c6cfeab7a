package records

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned by Get-style accessors when no row matches.
var ErrNotFound = errors.New("record not found")

// Store provides keyed-record access to the relational models. All
// methods are context-first and return ErrNotFound (never a nil pointer)
// when a single-row lookup misses.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that share the database,
// such as the job ledger.
func (s *Store) DB() *gorm.DB { return s.db }

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a human-readable name into a filename-safe
// lowercase identifier.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// Organizations

func (s *Store) OrganizationByID(ctx context.Context, id uint) (*Organization, error) {
	var org Organization
	err := s.db.WithContext(ctx).First(&org, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Store) OrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	var org Organization
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Store) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org := &Organization{
		Name: name,
		Slug: Slugify(name) + "-" + uuid.NewString()[:8],
	}
	if err := s.db.WithContext(ctx).Create(org).Error; err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// Connections

func (s *Store) ConnectionForOrganization(ctx context.Context, orgID uint) (*OrganizationConnection, error) {
	var conn OrganizationConnection
	err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *Store) CreateConnection(ctx context.Context, conn *OrganizationConnection) error {
	if err := s.db.WithContext(ctx).Create(conn).Error; err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// Workspaces

func (s *Store) WorkspaceByID(ctx context.Context, id uint) (*OrganizationWorkspace, error) {
	var ws OrganizationWorkspace
	err := s.db.WithContext(ctx).First(&ws, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *Store) WorkspacesForOrganization(ctx context.Context, orgID uint) ([]OrganizationWorkspace, error) {
	var out []OrganizationWorkspace
	if err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWorkspace creates a workspace with a freshly derived slug and
// provider-side fname.
func (s *Store) CreateWorkspace(ctx context.Context, name string, orgID uint) (*OrganizationWorkspace, error) {
	suffix := uuid.NewString()[:8]
	ws := &OrganizationWorkspace{
		Name:           name,
		Slug:           Slugify(name) + "-" + suffix,
		Fname:          Slugify(name) + "-" + suffix,
		OrganizationID: orgID,
	}
	if err := s.db.WithContext(ctx).Create(ws).Error; err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return ws, nil
}

// DeleteWorkspace removes a workspace row along with its documents and
// their vector mappings.
func (s *Store) DeleteWorkspace(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", id).Delete(&DocumentVector{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workspace_id = ?", id).Delete(&WorkspaceDocument{}).Error; err != nil {
			return err
		}
		return tx.Delete(&OrganizationWorkspace{}, id).Error
	})
}

// Documents

func (s *Store) DocumentByID(ctx context.Context, id uint) (*WorkspaceDocument, error) {
	var doc WorkspaceDocument
	err := s.db.WithContext(ctx).First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) DocumentByName(ctx context.Context, name string, workspaceID uint) (*WorkspaceDocument, error) {
	var doc WorkspaceDocument
	err := s.db.WithContext(ctx).
		Where("name = ? AND workspace_id = ?", name, workspaceID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) DocumentsForWorkspace(ctx context.Context, workspaceID uint) ([]WorkspaceDocument, error) {
	var out []WorkspaceDocument
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *WorkspaceDocument) error {
	if doc.DocID == "" {
		doc.DocID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// DeleteDocument removes a document row cascading its vector mappings.
// Deleting a missing document is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&DocumentVector{}).Error; err != nil {
			return err
		}
		return tx.Delete(&WorkspaceDocument{}, id).Error
	})
}

// Document vectors

func (s *Store) VectorsForDocument(ctx context.Context, documentID uint) ([]DocumentVector, error) {
	var out []DocumentVector
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) VectorByID(ctx context.Context, id uint) (*DocumentVector, error) {
	var dv DocumentVector
	err := s.db.WithContext(ctx).First(&dv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dv, nil
}

// VectorsByVectorIDs resolves provider vector ids back to fragment rows,
// optionally restricted to one document.
func (s *Store) VectorsByVectorIDs(ctx context.Context, vectorIDs []string, documentID uint, limit int) ([]DocumentVector, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Where("vector_id IN ?", vectorIDs)
	if documentID != 0 {
		q = q.Where("document_id = ?", documentID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []DocumentVector
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateDocumentVectors(ctx context.Context, vectors []DocumentVector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(vectors, 500).Error; err != nil {
		return fmt.Errorf("failed to create document vectors: %w", err)
	}
	return nil
}

func (s *Store) DeleteDocumentVector(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&DocumentVector{}, id).Error
}

// System settings

func (s *Store) Setting(ctx context.Context, label string) (*SystemSetting, error) {
	var setting SystemSetting
	err := s.db.WithContext(ctx).Where("label = ?", label).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (s *Store) UpdateSetting(ctx context.Context, label, value string) error {
	var setting SystemSetting
	err := s.db.WithContext(ctx).Where("label = ?", label).First(&setting).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(&SystemSetting{Label: label, Value: value}).Error
	case err != nil:
		return err
	default:
		setting.Value = value
		return s.db.WithContext(ctx).Save(&setting).Error
	}
}
