// Package workers implements the background workflows behind every admitted
// job: document ingestion, deletion, workspace cloning, organization
// migration and reset. All provider access goes through vectordb.Connector
// and every workflow records exactly one terminal ledger outcome.
package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/embeddings"
	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
	"github.com/fyrsmithlabs/vectoradmin/internal/vectordb"
)

// openAIKeySetting is the system setting label holding the instance-wide
// OpenAI key. Falls back to the static embeddings config when absent.
const openAIKeySetting = "open_ai_api_key"

// ConnectorFactory builds a provider connector from a stored connection.
type ConnectorFactory func(connectionType string, rawSettings []byte, log *zap.Logger) (vectordb.Connector, error)

// EmbedderFactory builds the embedding client.
type EmbedderFactory func(cfg config.EmbeddingsConfig, apiKey string) (embeddings.Embedder, error)

// Service holds the dependencies shared by all workflows.
type Service struct {
	store    *records.Store
	ledger   *queue.Ledger
	cache    vcache.Store
	embedCfg config.EmbeddingsConfig

	connectorFor ConnectorFactory
	embedderFor  EmbedderFactory

	// limiter throttles embedding API calls across concurrent workflows.
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *Metrics
}

// NewService wires the workflow service. Nil factories default to the real
// vectordb and embeddings constructors.
func NewService(
	store *records.Store,
	ledger *queue.Ledger,
	cache vcache.Store,
	embedCfg config.EmbeddingsConfig,
	connectorFor ConnectorFactory,
	embedderFor EmbedderFactory,
	log *zap.Logger,
) *Service {
	if connectorFor == nil {
		connectorFor = vectordb.NewFromRaw
	}
	if embedderFor == nil {
		embedderFor = func(cfg config.EmbeddingsConfig, apiKey string) (embeddings.Embedder, error) {
			return embeddings.New(cfg, apiKey)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:        store,
		ledger:       ledger,
		cache:        cache,
		embedCfg:     embedCfg,
		connectorFor: connectorFor,
		embedderFor:  embedderFor,
		limiter:      rate.NewLimiter(rate.Limit(2), 5),
		log:          log,
		metrics:      NewMetrics(),
	}
}

// Ledger exposes the job ledger to the HTTP layer.
func (s *Service) Ledger() *queue.Ledger { return s.ledger }

// Store exposes the record store to the HTTP layer.
func (s *Service) Store() *records.Store { return s.store }

// connector resolves, builds and connects the organization's provider
// connector. Callers own Close.
func (s *Service) connector(ctx context.Context, orgID uint) (vectordb.Connector, error) {
	conn, err := s.store.ConnectionForOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("organization %d has no vector database connection: %w", orgID, err)
	}
	vdb, err := s.connectorFor(conn.Type, conn.Settings, s.log)
	if err != nil {
		return nil, err
	}
	if err := vdb.Connect(ctx); err != nil {
		return nil, err
	}
	return vdb, nil
}

// openAIKey resolves the embedding credential, preferring the system
// setting over static config.
func (s *Service) openAIKey(ctx context.Context) string {
	setting, err := s.store.Setting(ctx, openAIKeySetting)
	if err == nil && setting.Value != "" {
		return setting.Value
	}
	return s.embedCfg.APIKey
}

// embedder builds the embedding client with the resolved credential.
func (s *Service) embedder(ctx context.Context) (embeddings.Embedder, error) {
	return s.embedderFor(s.embedCfg, s.openAIKey(ctx))
}

// dimensionGate verifies the provider scope accepts vectors of the
// embedder's width before anything is written. A zero provider width means
// the scope does not exist yet and imposes no constraint.
func (s *Service) dimensionGate(ctx context.Context, conn vectordb.Connector, namespace string, want int) error {
	have, err := conn.IndexDimensions(ctx, namespace)
	if err != nil {
		return err
	}
	if have != 0 && have != want {
		return fmt.Errorf("%w: index expects %d dimensions, embedder produces %d",
			vectordb.ErrDimensionMismatch, have, want)
	}
	return nil
}
