package vectordb

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"
	"go.uber.org/zap"
)

// chromaDimensionsKey stores the vector width in collection metadata at
// creation time so the dimension gate can read it back without sampling
// stored embeddings.
const chromaDimensionsKey = "dimensions"

// ChromaConnector maps each workspace to a Chroma collection.
type ChromaConnector struct {
	settings Settings
	log      *zap.Logger
	client   *chromago.Client
}

func newChromaConnector(settings Settings, log *zap.Logger) (*ChromaConnector, error) {
	if settings.InstanceURL == "" {
		return nil, fmt.Errorf("%w: chroma requires instanceURL", ErrInvalidSettings)
	}
	return &ChromaConnector{settings: settings, log: log}, nil
}

func (c *ChromaConnector) Type() string { return TypeChroma }

func (c *ChromaConnector) Connect(ctx context.Context) error {
	opts := []chromago.ClientOption{chromago.WithBasePath(c.settings.InstanceURL)}
	if c.settings.APIKey != "" {
		opts = append(opts, chromago.WithAuth(types.NewTokenAuthCredentialsProvider(c.settings.APIKey, types.AuthorizationTokenHeader)))
	}
	client, err := chromago.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if _, err := client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: heartbeat: %v", ErrConnection, err)
	}
	c.client = client
	c.log.Debug("chroma connected", zap.String("instance", c.settings.InstanceURL))
	return nil
}

func (c *ChromaConnector) Close() error { return nil }

// collection returns the named collection, or nil when it does not exist.
// Chroma reports a missing collection as a plain error, indistinguishable
// from a transport failure, so existence is checked against the collection
// list and every other failure propagates.
func (c *ChromaConnector) collection(ctx context.Context, name string) (*chromago.Collection, error) {
	cols, err := c.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", ErrConnection, err)
	}
	found := false
	for _, col := range cols {
		if col.Name == name {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}
	col, err := c.client.GetCollection(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	return col, nil
}

func (c *ChromaConnector) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	col, err := c.collection(ctx, namespace)
	if err != nil {
		return false, err
	}
	return col != nil, nil
}

func (c *ChromaConnector) IndexDimensions(ctx context.Context, namespace string) (int, error) {
	col, err := c.collection(ctx, namespace)
	if err != nil || col == nil {
		return 0, err
	}
	if raw, ok := col.Metadata[chromaDimensionsKey]; ok {
		switch v := raw.(type) {
		case float64:
			return int(v), nil
		case int:
			return v, nil
		}
	}
	return 0, nil
}

func (c *ChromaConnector) ensureCollection(ctx context.Context, name string, vectorSize int) (*chromago.Collection, error) {
	col, err := c.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if col != nil {
		return col, nil
	}
	metadata := map[string]any{chromaDimensionsKey: vectorSize}
	col, err = c.client.CreateCollection(ctx, name, metadata, true, nil, types.COSINE)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return col, nil
}

func (c *ChromaConnector) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	col, err := c.ensureCollection(ctx, namespace, len(vectors[0].Values))
	if err != nil {
		return err
	}
	for _, chunk := range toChunks(vectors, upsertBatchSize) {
		ids := make([]string, len(chunk))
		embeddings := make([]*types.Embedding, len(chunk))
		metadatas := make([]map[string]any, len(chunk))
		documents := make([]string, len(chunk))
		for i, v := range chunk {
			ids[i] = v.ID
			embeddings[i] = types.NewEmbeddingFromFloat32(v.Values)
			metadatas[i] = v.Metadata
			if text, ok := v.Metadata["text"].(string); ok {
				documents[i] = text
			}
		}
		if _, err := col.Add(ctx, embeddings, metadatas, documents, ids); err != nil {
			return fmt.Errorf("add %d embeddings to collection %s: %w", len(chunk), namespace, err)
		}
	}
	return nil
}

func (c *ChromaConnector) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := c.collection(ctx, namespace)
	if err != nil {
		return err
	}
	if col == nil {
		return nil
	}
	if _, err := col.Delete(ctx, ids, nil, nil); err != nil {
		return fmt.Errorf("delete %d embeddings from collection %s: %w", len(ids), namespace, err)
	}
	return nil
}

func (c *ChromaConnector) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := c.client.DeleteCollection(ctx, namespace); err != nil {
		return fmt.Errorf("delete collection %s: %w", namespace, err)
	}
	return nil
}

func (c *ChromaConnector) SimilarityQuery(ctx context.Context, namespace string, queryVector []float32, topK int) ([]string, error) {
	col, err := c.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
	}
	results, err := col.QueryWithOptions(ctx,
		types.WithQueryEmbeddings([]*types.Embedding{types.NewEmbeddingFromFloat32(queryVector)}),
		types.WithNResults(int32(topK)),
	)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", namespace, err)
	}
	var ids []string
	if len(results.Ids) > 0 {
		ids = append(ids, results.Ids[0]...)
	}
	return ids, nil
}

var _ Connector = (*ChromaConnector)(nil)
