package vectordb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const qdrantDefaultGRPCPort = 6334

// QdrantConnector maps each workspace to a Qdrant collection, reached over
// the native gRPC transport.
type QdrantConnector struct {
	settings Settings
	log      *zap.Logger
	client   *qdrant.Client
}

func newQdrantConnector(settings Settings, log *zap.Logger) (*QdrantConnector, error) {
	if settings.ClusterURL == "" {
		return nil, fmt.Errorf("%w: qdrant requires clusterUrl", ErrInvalidSettings)
	}
	return &QdrantConnector{settings: settings, log: log}, nil
}

func (q *QdrantConnector) Type() string { return TypeQdrant }

func (q *QdrantConnector) Connect(ctx context.Context) error {
	u, err := url.Parse(q.settings.ClusterURL)
	if err != nil {
		return fmt.Errorf("%w: parse cluster url: %v", ErrInvalidSettings, err)
	}
	port := qdrantDefaultGRPCPort
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return fmt.Errorf("%w: parse cluster port: %v", ErrInvalidSettings, err)
		}
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: q.settings.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: health check: %v", ErrConnection, err)
	}
	q.client = client
	q.log.Debug("qdrant connected", zap.String("host", u.Hostname()))
	return nil
}

func (q *QdrantConnector) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func (q *QdrantConnector) collectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	return info, nil
}

func (q *QdrantConnector) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	info, err := q.collectionInfo(ctx, namespace)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

func (q *QdrantConnector) IndexDimensions(ctx context.Context, namespace string) (int, error) {
	info, err := q.collectionInfo(ctx, namespace)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, nil
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, nil
	}
	return int(params.GetSize()), nil
}

func (q *QdrantConnector) ensureCollection(ctx context.Context, name string, vectorSize int) error {
	exists, err := q.NamespaceExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (q *QdrantConnector) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, namespace, len(vectors[0].Values)); err != nil {
		return err
	}
	for _, chunk := range toChunks(vectors, upsertBatchSize) {
		points := make([]*qdrant.PointStruct, len(chunk))
		for i, v := range chunk {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(v.ID),
				Vectors: qdrant.NewVectors(v.Values...),
				Payload: qdrant.NewValueMap(v.Metadata),
			}
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: namespace,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert %d points into collection %s: %w", len(chunk), namespace, err)
		}
	}
	return nil
}

func (q *QdrantConnector) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespace,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %d points from collection %s: %w", len(ids), namespace, err)
	}
	return nil
}

func (q *QdrantConnector) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := q.client.DeleteCollection(ctx, namespace); err != nil {
		return fmt.Errorf("delete collection %s: %w", namespace, err)
	}
	return nil
}

func (q *QdrantConnector) SimilarityQuery(ctx context.Context, namespace string, queryVector []float32, topK int) ([]string, error) {
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", namespace, err)
	}
	ids := make([]string, 0, len(results))
	for _, point := range results {
		if uuid := point.GetId().GetUuid(); uuid != "" {
			ids = append(ids, uuid)
		}
	}
	return ids, nil
}

var _ Connector = (*QdrantConnector)(nil)
