package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// QdrantConfig holds connection settings for the Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantStore implements Store on top of the official Qdrant Go client.
type QdrantStore struct {
	api      *qdrant.Client
	embedder Embedder
	log      *zap.Logger
}

// NewQdrantStore connects to Qdrant and fails fast if the server is not
// reachable.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder, log *zap.Logger) (*QdrantStore, error) {
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to initialize client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	health, err := client.HealthCheck(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[Qdrant] health check failed: %w", err)
	}
	log.Info("connected to qdrant",
		zap.String("host", cfg.Host),
		zap.Int("port", port),
		zap.String("version", health.GetVersion()))

	return &QdrantStore{api: client, embedder: embedder, log: log}, nil
}

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.api.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("[Qdrant] collection exists %q: %w", name, err)
	}
	return exists, nil
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.api.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] list collections: %w", err)
	}
	return names, nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dims int, metric Distance) error {
	err := s.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrantDistance(metric),
		}),
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to create collection %q: %w", name, err)
	}
	s.log.Info("created collection", zap.String("collection", name), zap.Int("dims", dims), zap.String("metric", string(metric)))
	return nil
}

func (s *QdrantStore) CreatePayloadIndex(ctx context.Context, name, field string, fieldType FieldType) error {
	wait := true
	_, err := s.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      field,
		FieldType:      qdrantFieldType(fieldType).Enum(),
		Wait:           &wait,
	})
	if err != nil {
		if isAlreadyExists(err) {
			s.log.Debug("payload index already present", zap.String("collection", name), zap.String("field", field))
			return nil
		}
		return fmt.Errorf("[Qdrant] failed to index %q on %q: %w", field, name, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(r.Page.Payload()),
		})
	}

	wait := true
	if _, err := s.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("[Qdrant] upsert into %q failed: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) SimilaritySearch(ctx context.Context, name, queryText string, k int, filter *Filter) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] embed query: %w", err)
	}

	limit := uint64(k)
	resp, err := s.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qdrantFilter(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] search in %q failed: %w", name, err)
	}

	records := make([]Record, 0, len(resp))
	for _, p := range resp {
		records = append(records, Record{
			ID:    pointIDString(p.GetId()),
			Page:  pageFromQdrant(p.GetPayload()),
			Score: p.GetScore(),
		})
	}
	return records, nil
}

func (s *QdrantStore) Scroll(ctx context.Context, name string, limit int, cursor string) ([]Record, string, error) {
	points, next, err := s.api.ScrollAndOffset(ctx, scrollRequest(name, limit, cursor))
	if err != nil {
		return nil, "", fmt.Errorf("[Qdrant] scroll %q failed: %w", name, err)
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		records = append(records, Record{
			ID:   pointIDString(p.GetId()),
			Page: pageFromQdrant(p.GetPayload()),
		})
	}
	return records, pointIDString(next), nil
}

// scrollRequest starts at the point whose id is cursor; an empty cursor
// starts at the beginning of the collection.
func scrollRequest(name string, limit int, cursor string) *qdrant.ScrollPoints {
	size := uint32(limit)
	req := &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          &size,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if cursor != "" {
		req.Offset = pointID(cursor)
	}
	return req
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.api.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("[Qdrant] failed to delete collection %q: %w", name, err)
	}
	s.log.Info("deleted collection", zap.String("collection", name))
	return nil
}

func (s *QdrantStore) Close() error {
	return s.api.Close()
}

func qdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case Dot:
		return qdrant.Distance_Dot
	case Euclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func qdrantFieldType(t FieldType) qdrant.FieldType {
	if t == IntegerField {
		return qdrant.FieldType_FieldTypeInteger
	}
	return qdrant.FieldType_FieldTypeKeyword
}

func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.AnyOf) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords(f.Field, f.AnyOf...)},
	}
}

// pointID accepts either a UUID or an unsigned integer id.
func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewID(id)
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	default:
		return ""
	}
}

func pageFromQdrant(payload map[string]*qdrant.Value) models.SummarizedPage {
	return models.SummarizedPage{
		PageNumber: valueString(payload[models.PayloadPageNumber]),
		TotalPages: int(payload[models.PayloadTotalPages].GetIntegerValue()),
		Source:     payload[models.PayloadSource].GetStringValue(),
		Summary:    payload[models.PayloadSummary].GetStringValue(),
		Content:    payload[models.PayloadContent].GetStringValue(),
	}
}

// valueString reads a payload value as text. Page numbers written by older
// tooling may be stored as integers.
func valueString(v *qdrant.Value) string {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'f', -1, 64)
	default:
		return ""
	}
}

func isAlreadyExists(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
