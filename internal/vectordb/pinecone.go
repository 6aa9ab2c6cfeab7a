package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConnector stores all workspaces of an organization as namespaces
// within a single Pinecone index.
type PineconeConnector struct {
	settings Settings
	log      *zap.Logger

	client *pinecone.Client
	index  *pinecone.Index

	mu    sync.Mutex
	conns map[string]*pinecone.IndexConnection
}

func newPineconeConnector(settings Settings, log *zap.Logger) (*PineconeConnector, error) {
	if settings.APIKey == "" || settings.Index == "" {
		return nil, fmt.Errorf("%w: pinecone requires apiKey and index", ErrInvalidSettings)
	}
	return &PineconeConnector{
		settings: settings,
		log:      log,
		conns:    make(map[string]*pinecone.IndexConnection),
	}, nil
}

func (p *PineconeConnector) Type() string { return TypePinecone }

func (p *PineconeConnector) Connect(ctx context.Context) error {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: p.settings.APIKey})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	index, err := client.DescribeIndex(ctx, p.settings.Index)
	if err != nil {
		return fmt.Errorf("%w: describe index %s: %v", ErrConnection, p.settings.Index, err)
	}
	p.client = client
	p.index = index
	p.log.Debug("pinecone connected",
		zap.String("index", p.settings.Index),
		zap.Int32("dimension", index.Dimension))
	return nil
}

func (p *PineconeConnector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, conn := range p.conns {
		_ = conn.Close()
		delete(p.conns, name)
	}
	return nil
}

// indexConn returns a cached connection scoped to the namespace.
func (p *PineconeConnector) indexConn(namespace string) (*pinecone.IndexConnection, error) {
	if p.index == nil {
		return nil, fmt.Errorf("%w: not connected", ErrConnection)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[namespace]; ok {
		return conn, nil
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      p.index.Host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open index connection: %v", ErrConnection, err)
	}
	p.conns[namespace] = conn
	return conn, nil
}

func (p *PineconeConnector) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	conn, err := p.indexConn(namespace)
	if err != nil {
		return false, err
	}
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return false, fmt.Errorf("describe index stats: %w", err)
	}
	summary, ok := stats.Namespaces[namespace]
	return ok && summary != nil && summary.VectorCount > 0, nil
}

// IndexDimensions is index-wide on Pinecone; the namespace argument only
// matters for collection-scoped providers.
func (p *PineconeConnector) IndexDimensions(_ context.Context, _ string) (int, error) {
	if p.index == nil {
		return 0, fmt.Errorf("%w: not connected", ErrConnection)
	}
	return int(p.index.Dimension), nil
}

func (p *PineconeConnector) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	conn, err := p.indexConn(namespace)
	if err != nil {
		return err
	}
	for _, chunk := range toChunks(vectors, upsertBatchSize) {
		points := make([]*pinecone.Vector, len(chunk))
		for i, v := range chunk {
			metadata, err := structpb.NewStruct(v.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for vector %s: %w", v.ID, err)
			}
			points[i] = &pinecone.Vector{
				Id:       v.ID,
				Values:   v.Values,
				Metadata: metadata,
			}
		}
		if _, err := conn.UpsertVectors(ctx, points); err != nil {
			return fmt.Errorf("upsert %d vectors into namespace %s: %w", len(chunk), namespace, err)
		}
	}
	return nil
}

func (p *PineconeConnector) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	conn, err := p.indexConn(namespace)
	if err != nil {
		return err
	}
	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("delete %d vectors from namespace %s: %w", len(ids), namespace, err)
	}
	return nil
}

func (p *PineconeConnector) DeleteNamespace(ctx context.Context, namespace string) error {
	conn, err := p.indexConn(namespace)
	if err != nil {
		return err
	}
	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (p *PineconeConnector) SimilarityQuery(ctx context.Context, namespace string, queryVector []float32, topK int) ([]string, error) {
	conn, err := p.indexConn(namespace)
	if err != nil {
		return nil, err
	}
	res, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          queryVector,
		TopK:            uint32(topK),
		IncludeValues:   false,
		IncludeMetadata: false,
	})
	if err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", namespace, err)
	}
	ids := make([]string, 0, len(res.Matches))
	for _, match := range res.Matches {
		if match.Vector != nil {
			ids = append(ids, match.Vector.Id)
		}
	}
	return ids, nil
}

var _ Connector = (*PineconeConnector)(nil)
