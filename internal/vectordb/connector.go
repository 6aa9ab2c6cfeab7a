// Package vectordb provides provider-neutral access to the vector databases
// an organization can connect: Pinecone, Chroma, Qdrant and Weaviate. All
// workflows operate through the Connector interface; nothing outside this
// package branches on provider identity.
package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Provider type identifiers, stored on OrganizationConnection.Type.
const (
	TypePinecone = "pinecone"
	TypeChroma   = "chroma"
	TypeQdrant   = "qdrant"
	TypeWeaviate = "weaviate"
)

// Sentinel errors for connector operations.
var (
	// ErrConnection indicates the provider could not be reached or
	// rejected the credentials.
	ErrConnection = errors.New("vector database connection failed")

	// ErrNamespaceNotFound indicates the target namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrDimensionMismatch indicates the embedding width does not match
	// the connected index.
	ErrDimensionMismatch = errors.New("embedding dimensions do not match index")

	// ErrUnsupportedProvider indicates an unknown connection type.
	ErrUnsupportedProvider = errors.New("unsupported vector database provider")

	// ErrInvalidSettings indicates malformed or incomplete connection settings.
	ErrInvalidSettings = errors.New("invalid connection settings")
)

// Vector is one embedded chunk ready for storage.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

// Settings holds provider credentials decoded from
// OrganizationConnection.Settings. Fields are provider-specific; unused
// ones stay empty.
type Settings struct {
	// Pinecone
	Environment string `json:"environment,omitempty"`
	Index       string `json:"index,omitempty"`

	// Chroma
	InstanceURL string `json:"instanceURL,omitempty"`

	// Qdrant and Weaviate
	ClusterURL string `json:"clusterUrl,omitempty"`

	// Shared credential field.
	APIKey string `json:"apiKey,omitempty"`
}

// ParseSettings decodes the stored settings blob.
func ParseSettings(raw []byte) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, fmt.Errorf("%w: empty settings", ErrInvalidSettings)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return s, nil
}

// Connector is the uniform surface over one organization's vector database.
//
// Namespace is the provider-neutral name for the per-workspace scope:
// a Pinecone namespace, a Chroma or Qdrant collection, a Weaviate class.
// Each adapter normalizes names internally; callers always pass the
// workspace fname unmodified.
type Connector interface {
	// Type returns the provider identifier.
	Type() string

	// Connect verifies reachability and credentials. Returns an error
	// wrapping ErrConnection on failure.
	Connect(ctx context.Context) error

	// Close releases the underlying client.
	Close() error

	// NamespaceExists reports whether the namespace holds any data.
	NamespaceExists(ctx context.Context, namespace string) (bool, error)

	// IndexDimensions returns the vector width enforced for the namespace,
	// or 0 when the scope does not exist yet and imposes no constraint.
	IndexDimensions(ctx context.Context, namespace string) (int, error)

	// Upsert writes vectors into the namespace, creating it if needed.
	// Writes are idempotent by vector id.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error

	// DeleteByIDs removes vectors by id. Missing ids are not an error.
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error

	// DeleteNamespace removes the namespace and everything in it.
	DeleteNamespace(ctx context.Context, namespace string) error

	// SimilarityQuery returns the ids of the topK nearest vectors.
	SimilarityQuery(ctx context.Context, namespace string, queryVector []float32, topK int) ([]string, error)
}
