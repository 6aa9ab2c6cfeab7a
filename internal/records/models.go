package records

import (
	"time"

	"gorm.io/datatypes"
)

// Organization is a tenant. Each organization binds at most one vector
// database connection.
type Organization struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Slug      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrganizationConnection is the connector descriptor binding an
// organization to one vector database provider. The organization-level
// uniqueness enforces one active descriptor per tenant.
type OrganizationConnection struct {
	ID             uint   `gorm:"primaryKey"`
	Type           string `gorm:"not null"` // pinecone | chroma | qdrant | weaviate
	OrganizationID uint   `gorm:"uniqueIndex;not null"`
	Settings       datatypes.JSON
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrganizationWorkspace is a named partition inside a tenant's vector
// store. Fname is the stable filename-safe identifier used as the
// provider-side namespace/collection/class name; Name is human-readable.
type OrganizationWorkspace struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Fname          string `gorm:"index;not null"`
	Slug           string `gorm:"index;not null"`
	OrganizationID uint   `gorm:"index;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WorkspaceDocument is one logical ingested unit owned by a workspace.
// DocID is the stable external identifier used to derive the vector
// cache key.
type WorkspaceDocument struct {
	ID             uint   `gorm:"primaryKey"`
	DocID          string `gorm:"uniqueIndex;not null"`
	Name           string `gorm:"not null"`
	WorkspaceID    uint   `gorm:"index;not null"`
	OrganizationID uint   `gorm:"index;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentVector maps one embedded fragment of a document to its
// provider-side vector identifier. Every row's VectorID must exist in
// the provider store for as long as the row exists.
type DocumentVector struct {
	ID             uint   `gorm:"primaryKey"`
	DocID          string `gorm:"index;not null"`
	VectorID       string `gorm:"index;not null"`
	DocumentID     uint   `gorm:"index;not null"`
	WorkspaceID    uint   `gorm:"index;not null"`
	OrganizationID uint   `gorm:"index;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SystemSetting is an instance-level key/value setting, e.g. the
// open_ai_api_key used for embedding.
type SystemSetting struct {
	ID        uint   `gorm:"primaryKey"`
	Label     string `gorm:"uniqueIndex;not null"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
