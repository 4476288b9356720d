package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"studyqa/internal/contextutil"
)

// QdrantStore implements IndexStore with one Qdrant collection per namespace.
// Point ids are the caller's vector indexes; collections use Euclid distance so
// scores are L2 distances like FlatStore's.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
	}, nil
}

// grpcAddress derives the gRPC host and port from a Qdrant HTTP URL.
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Add upserts vectors as points, creating the collection on first use.
func (s *QdrantStore) Add(ctx context.Context, namespace string, ids []int64, vectors [][]float32) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx, namespace, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i, id := range ids {
		if id < 0 {
			return fmt.Errorf("vector id %d must not be negative", id)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(id)),
			Vectors: qdrant.NewVectors(vectors[i]...),
		})
	}

	// wait=true so the points are searchable once Add returns
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", namespace, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", namespace, "count", len(points))
	return nil
}

// Search returns up to k neighbors ordered by ascending Euclid distance.
func (s *QdrantStore) Search(ctx context.Context, namespace string, query []float32, k int) ([]Neighbor, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, nil
	}

	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, nil
	}

	limit := uint64(k)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", namespace, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]Neighbor, 0, len(scoredPoints))
	for _, p := range scoredPoints {
		if p.Id == nil {
			continue
		}
		results = append(results, Neighbor{
			ID:       int64(p.Id.GetNum()),
			Distance: p.Score,
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", namespace, "k", k, "results", len(results))
	return results, nil
}

// Stats reports the vector size and point count of a namespace's collection.
func (s *QdrantStore) Stats(ctx context.Context, namespace string) (IndexStats, error) {
	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		return IndexStats{}, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return IndexStats{}, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, namespace)
	if err != nil {
		return IndexStats{}, fmt.Errorf("failed to get collection info: %w", err)
	}

	var stats IndexStats
	stats.Dimension = vectorSize(info)
	if info.PointsCount != nil {
		stats.Count = int(*info.PointsCount)
	}
	return stats, nil
}

// Drop deletes a namespace's collection.
func (s *QdrantStore) Drop(ctx context.Context, namespace string) error {
	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, namespace); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection dropped", "collection", namespace)
	return nil
}

// ensureCollection creates the collection if missing and otherwise validates its vector size.
func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, size int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", size)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(size),
				Distance: qdrant.Distance_Euclid,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}
	if actual := vectorSize(info); actual != size {
		return fmt.Errorf("%w: collection %s has %d, got %d", ErrDimensionMismatch, collection, actual, size)
	}
	return nil
}

func vectorSize(info *qdrant.CollectionInfo) int {
	if config := info.GetConfig(); config != nil && config.GetParams() != nil {
		if vectorsConfig := config.GetParams().GetVectorsConfig(); vectorsConfig != nil {
			if params := vectorsConfig.GetParams(); params != nil {
				return int(params.GetSize())
			}
		}
	}
	return 0
}
