package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/repoinsight/repoinsight/internal/config"
	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// pointNamespace derives deterministic point UUIDs from chunk ids, so
// re-upserting the same chunk overwrites instead of duplicating.
var pointNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// QdrantStore implements Store on a Qdrant gRPC client.
type QdrantStore struct {
	client *qdrant.Client
	logger *slog.Logger
}

// NewQdrantStore connects to Qdrant, retrying the health check with a
// fixed delay up to cfg.MaxRetries times.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeVectorStoreUnavailable, "create qdrant client", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryDelay()), uint64(cfg.MaxRetries)),
		ctx)
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if _, err := client.HealthCheck(ctx); err != nil {
			logger.Warn("qdrant health check failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		_ = client.Close()
		return nil, apperr.New(apperr.ErrCodeVectorStoreUnavailable,
			fmt.Sprintf("qdrant unreachable at %s:%d", cfg.Host, cfg.Port), err)
	}

	logger.Info("connected to qdrant", "host", cfg.Host, "port", cfg.Port)
	return &QdrantStore{client: client, logger: logger}, nil
}

// EnsureCollection creates the collection if missing. Existing
// collections are left untouched, whatever their parameters.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return apperr.New(apperr.ErrCodeVectorStoreUnavailable, "check collection", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dimensions),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return apperr.New(apperr.ErrCodeVectorStoreUnavailable, "create collection "+name, err)
	}
	s.logger.Info("created collection", "collection", name, "dimensions", dimensions)
	return nil
}

// HealthCheck verifies the qdrant connection is alive.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return apperr.New(apperr.ErrCodeVectorStoreUnavailable, "qdrant health check", err)
	}
	return nil
}

// ListCollections returns all collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeVectorStoreUnavailable, "list collections", err)
	}
	return names, nil
}

// CollectionExists reports whether the collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, apperr.New(apperr.ErrCodeVectorStoreUnavailable, "check collection", err)
	}
	return exists, nil
}

// Count returns the number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context, name string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: name})
	if err != nil {
		return 0, apperr.New(apperr.ErrCodeVectorStoreUnavailable, "count collection "+name, err)
	}
	return int(count), nil
}

// AddDocuments upserts documents. Point ids are UUIDv5 of the chunk
// id, so the operation is idempotent per chunk.
func (s *QdrantStore) AddDocuments(ctx context.Context, name string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		payload := map[string]*qdrant.Value{
			"chunk_id": qdrant.NewValueString(doc.ID),
			"content":  qdrant.NewValueString(doc.Content),
		}
		for key, value := range sanitizeMetadata(doc.Metadata) {
			payload[key] = toQdrantValue(value)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(doc.ID)).String()),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         points,
	})
	if err != nil {
		return apperr.New(apperr.ErrCodeVectorStoreUnavailable,
			fmt.Sprintf("upsert %d points into %s", len(points), name), err)
	}
	return nil
}

// Search returns the topK nearest documents by cosine similarity.
func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, topK int) ([]ScoredDocument, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeVectorStoreUnavailable, "query collection "+name, err)
	}

	out := make([]ScoredDocument, 0, len(results))
	for _, point := range results {
		doc := documentFromPayload(point.Payload)
		// Cosine similarity maps to a distance in [0, 2].
		distance := 1 - float64(point.Score)
		if distance < 0 {
			distance = 0
		}
		out = append(out, ScoredDocument{
			Document: doc,
			Distance: distance,
			Score:    1 / (1 + distance),
		})
	}
	return out, nil
}

const scrollPageSize = 256

// AllDocuments scrolls the whole collection, payload only.
func (s *QdrantStore) AllDocuments(ctx context.Context, name string) ([]Document, error) {
	var out []Document
	var offset *qdrant.PointId

	points := s.client.GetPointsClient()
	limit := uint32(scrollPageSize)
	for {
		resp, err := points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, apperr.New(apperr.ErrCodeVectorStoreUnavailable, "scroll collection "+name, err)
		}
		for _, point := range resp.GetResult() {
			out = append(out, documentFromPayload(point.Payload))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	return out, nil
}

// DeleteCollection removes the collection. Missing collections are
// not an error.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return apperr.New(apperr.ErrCodeVectorStoreUnavailable, "check collection", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return apperr.New(apperr.ErrCodeVectorStoreUnavailable, "delete collection "+name, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func documentFromPayload(payload map[string]*qdrant.Value) Document {
	doc := Document{Metadata: make(map[string]any, len(payload))}
	for key, value := range payload {
		switch key {
		case "chunk_id":
			doc.ID = value.GetStringValue()
		case "content":
			doc.Content = value.GetStringValue()
		default:
			doc.Metadata[key] = fromQdrantValue(value)
		}
	}
	return doc
}

// sanitizeMetadata flattens metadata for storage: nil becomes the
// empty string, scalars pass through, everything else is JSON.
func sanitizeMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for key, value := range meta {
		switch v := value.(type) {
		case nil:
			out[key] = ""
		case string, bool, int, int32, int64, float32, float64:
			out[key] = v
		default:
			if encoded, err := json.Marshal(v); err == nil {
				out[key] = string(encoded)
			} else {
				out[key] = fmt.Sprintf("%v", v)
			}
		}
	}
	return out
}

func toQdrantValue(value any) *qdrant.Value {
	switch v := value.(type) {
	case string:
		return qdrant.NewValueString(v)
	case bool:
		return qdrant.NewValueBool(v)
	case int:
		return qdrant.NewValueInt(int64(v))
	case int32:
		return qdrant.NewValueInt(int64(v))
	case int64:
		return qdrant.NewValueInt(v)
	case float32:
		return qdrant.NewValueDouble(float64(v))
	case float64:
		return qdrant.NewValueDouble(v)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", v))
	}
}

func fromQdrantValue(value *qdrant.Value) any {
	switch value.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return value.GetStringValue()
	case *qdrant.Value_BoolValue:
		return value.GetBoolValue()
	case *qdrant.Value_IntegerValue:
		return value.GetIntegerValue()
	case *qdrant.Value_DoubleValue:
		return value.GetDoubleValue()
	default:
		return ""
	}
}
