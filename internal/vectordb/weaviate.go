package vectordb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"
)

// WeaviateConnector maps each workspace to a Weaviate class. Weaviate
// forces GraphQL-safe class names, so every namespace passes through
// toClassName before reaching the wire.
type WeaviateConnector struct {
	settings Settings
	log      *zap.Logger
	client   *weaviate.Client
}

func newWeaviateConnector(settings Settings, log *zap.Logger) (*WeaviateConnector, error) {
	if settings.ClusterURL == "" {
		return nil, fmt.Errorf("%w: weaviate requires clusterUrl", ErrInvalidSettings)
	}
	return &WeaviateConnector{settings: settings, log: log}, nil
}

// toClassName normalizes a workspace fname into Weaviate class case:
// non-alphanumeric separators collapse into camelCase and the first rune
// is uppercased. "my workspace-2" becomes "MyWorkspace2". The mapping is
// applied consistently so reads and writes always agree on the class.
func toClassName(namespace string) string {
	parts := strings.FieldsFunc(namespace, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, part := range parts {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

func (w *WeaviateConnector) Type() string { return TypeWeaviate }

func (w *WeaviateConnector) Connect(ctx context.Context) error {
	u, err := url.Parse(w.settings.ClusterURL)
	if err != nil {
		return fmt.Errorf("%w: parse cluster url: %v", ErrInvalidSettings, err)
	}
	cfg := weaviate.Config{
		Host:   u.Host,
		Scheme: u.Scheme,
	}
	if w.settings.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: w.settings.APIKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	ready, err := client.Misc().ReadyChecker().Do(ctx)
	if err != nil || !ready {
		return fmt.Errorf("%w: cluster not ready: %v", ErrConnection, err)
	}
	w.client = client
	w.log.Debug("weaviate connected", zap.String("host", u.Host))
	return nil
}

func (w *WeaviateConnector) Close() error { return nil }

func (w *WeaviateConnector) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	exists, err := w.client.Schema().ClassExistenceChecker().
		WithClassName(toClassName(namespace)).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("check class %s: %w", toClassName(namespace), err)
	}
	return exists, nil
}

// IndexDimensions samples one stored vector; Weaviate classes with
// externally supplied vectors do not record a width in the schema.
func (w *WeaviateConnector) IndexDimensions(ctx context.Context, namespace string) (int, error) {
	exists, err := w.NamespaceExists(ctx, namespace)
	if err != nil || !exists {
		return 0, err
	}
	className := toClassName(namespace)
	res, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithFields(graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "vector"}},
		}).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("sample class %s: %w", className, err)
	}
	for _, obj := range graphqlObjects(res, className) {
		additional, _ := obj["_additional"].(map[string]any)
		vector, _ := additional["vector"].([]any)
		return len(vector), nil
	}
	return 0, nil
}

func (w *WeaviateConnector) ensureClass(ctx context.Context, namespace string) (string, error) {
	className := toClassName(namespace)
	exists, err := w.client.Schema().ClassExistenceChecker().
		WithClassName(className).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("check class %s: %w", className, err)
	}
	if !exists {
		err := w.client.Schema().ClassCreator().
			WithClass(&models.Class{Class: className, Vectorizer: "none"}).
			Do(ctx)
		if err != nil {
			return "", fmt.Errorf("create class %s: %w", className, err)
		}
	}
	return className, nil
}

func (w *WeaviateConnector) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	className, err := w.ensureClass(ctx, namespace)
	if err != nil {
		return err
	}
	for _, chunk := range toChunks(vectors, upsertBatchSize) {
		objects := make([]*models.Object, len(chunk))
		for i, v := range chunk {
			properties := make(map[string]any, len(v.Metadata))
			for key, value := range v.Metadata {
				properties[key] = value
			}
			objects[i] = &models.Object{
				Class:      className,
				ID:         strfmt.UUID(v.ID),
				Properties: properties,
				Vector:     models.C11yVector(v.Values),
			}
		}
		res, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch %d objects into class %s: %w", len(chunk), className, err)
		}
		for _, obj := range res {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch object %s into class %s: %s", obj.ID, className, obj.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (w *WeaviateConnector) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	className := toClassName(namespace)
	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithWhere(filters.Where().
			WithPath([]string{"id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(ids...)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete %d objects from class %s: %w", len(ids), className, err)
	}
	return nil
}

func (w *WeaviateConnector) DeleteNamespace(ctx context.Context, namespace string) error {
	className := toClassName(namespace)
	if err := w.client.Schema().ClassDeleter().WithClassName(className).Do(ctx); err != nil {
		return fmt.Errorf("delete class %s: %w", className, err)
	}
	return nil
}

func (w *WeaviateConnector) SimilarityQuery(ctx context.Context, namespace string, queryVector []float32, topK int) ([]string, error) {
	className := toClassName(namespace)
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)
	res, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithFields(graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "id"}},
		}).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("query class %s: %w", className, err)
	}
	var ids []string
	for _, obj := range graphqlObjects(res, className) {
		additional, _ := obj["_additional"].(map[string]any)
		if id, ok := additional["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// graphqlObjects unpacks the Get envelope for one class.
func graphqlObjects(res *models.GraphQLResponse, className string) []map[string]any {
	if res == nil {
		return nil
	}
	get, _ := res.Data["Get"].(map[string]any)
	raw, _ := get[className].([]any)
	objects := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			objects = append(objects, obj)
		}
	}
	return objects
}

var _ Connector = (*WeaviateConnector)(nil)
