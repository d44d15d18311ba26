package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// ChromaStore implements Store against a Chroma server. Chroma indexes
// metadata on its own, so payload index creation is a no-op, and scrolling
// is offset based with the offset carried as the cursor.
type ChromaStore struct {
	client   chromago.Client
	embedder Embedder
	log      *zap.Logger
}

// NewChromaStore creates an HTTP client for the Chroma server at baseURL.
func NewChromaStore(baseURL string, embedder Embedder, log *zap.Logger) (*ChromaStore, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	log.Info("connected to chroma", zap.String("url", baseURL))
	return &ChromaStore{client: client, embedder: embedder, log: log}, nil
}

func (s *ChromaStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list chroma collections: %w", err)
	}
	for _, c := range collections {
		if c.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *ChromaStore) ListCollections(ctx context.Context) ([]string, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chroma collections: %w", err)
	}
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name())
	}
	return names, nil
}

func (s *ChromaStore) CreateCollection(ctx context.Context, name string, dims int, metric Distance) error {
	_, err := s.client.CreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", chromaSpace(metric)),
				chromago.NewIntAttribute("dimensions", int64(dims)),
				chromago.NewStringAttribute("created_by", "pdf-chat"),
			),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create chroma collection %q: %w", name, err)
	}
	s.log.Info("created collection", zap.String("collection", name), zap.Int("dims", dims), zap.String("metric", string(metric)))
	return nil
}

func (s *ChromaStore) CreatePayloadIndex(ctx context.Context, name, field string, fieldType FieldType) error {
	s.log.Debug("chroma indexes metadata implicitly", zap.String("collection", name), zap.String("field", field))
	return nil
}

func (s *ChromaStore) Upsert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	collection, err := s.client.GetCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to open chroma collection %q: %w", name, err)
	}

	ids := make([]chromago.DocumentID, 0, len(records))
	texts := make([]string, 0, len(records))
	vectors := make([]embeddings.Embedding, 0, len(records))
	metadatas := make([]chromago.DocumentMetadata, 0, len(records))
	for _, r := range records {
		ids = append(ids, chromago.DocumentID(r.ID))
		texts = append(texts, r.Page.Summary)
		vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(r.Vector))
		metadatas = append(metadatas, chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(models.PayloadPageNumber, r.Page.PageNumber),
			chromago.NewIntAttribute(models.PayloadTotalPages, int64(r.Page.TotalPages)),
			chromago.NewStringAttribute(models.PayloadSource, r.Page.Source),
			chromago.NewStringAttribute(models.PayloadSummary, r.Page.Summary),
			chromago.NewStringAttribute(models.PayloadContent, r.Page.Content),
		))
	}

	err = collection.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metadatas...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert into chroma collection %q: %w", name, err)
	}
	return nil
}

func (s *ChromaStore) SimilaritySearch(ctx context.Context, name, queryText string, k int, filter *Filter) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	collection, err := s.client.GetCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open chroma collection %q: %w", name, err)
	}

	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}

	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	}
	if where := chromaWhere(filter); where != nil {
		opts = append(opts, chromago.WithWhereQuery(where))
	}

	results, err := collection.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chroma collection %q: %w", name, err)
	}

	var records []Record
	metadataGroups := results.GetMetadatasGroups()
	if len(metadataGroups) == 0 {
		return records, nil
	}
	for _, metadata := range metadataGroups[0] {
		page, err := pageFromMetadata(metadata)
		if err != nil {
			s.log.Warn("skipping record with unreadable metadata", zap.String("collection", name), zap.Error(err))
			continue
		}
		records = append(records, Record{Page: page})
	}
	return records, nil
}

func (s *ChromaStore) Scroll(ctx context.Context, name string, limit int, cursor string) ([]Record, string, error) {
	offset, err := parseChromaCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	collection, err := s.client.GetCollection(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open chroma collection %q: %w", name, err)
	}

	results, err := collection.Get(ctx, chromago.WithLimitGet(limit), chromago.WithOffsetGet(offset))
	if err != nil {
		return nil, "", fmt.Errorf("failed to get documents from chroma collection %q: %w", name, err)
	}

	ids := results.GetIDs()
	metadatas := results.GetMetadatas()
	records := make([]Record, 0, len(metadatas))
	for i, metadata := range metadatas {
		page, err := pageFromMetadata(metadata)
		if err != nil {
			s.log.Warn("skipping record with unreadable metadata", zap.String("collection", name), zap.Error(err))
			continue
		}
		record := Record{Page: page}
		if i < len(ids) {
			record.ID = string(ids[i])
		}
		records = append(records, record)
	}

	return records, nextChromaCursor(offset, limit, len(metadatas)), nil
}

// parseChromaCursor reads the decimal offset a previous Scroll returned.
func parseChromaCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid chroma scroll cursor %q", cursor)
	}
	return n, nil
}

// nextChromaCursor is empty once a page comes back short.
func nextChromaCursor(offset, limit, got int) string {
	if limit <= 0 || got < limit {
		return ""
	}
	return strconv.Itoa(offset + limit)
}

func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete chroma collection %q: %w", name, err)
	}
	s.log.Info("deleted collection", zap.String("collection", name))
	return nil
}

func (s *ChromaStore) Close() error {
	return s.client.Close()
}

func chromaSpace(d Distance) string {
	switch d {
	case Dot:
		return "ip"
	case Euclidean:
		return "l2"
	default:
		return "cosine"
	}
}

// chromaWhere builds an equality clause, or an $or of them for several values.
func chromaWhere(f *Filter) chromago.WhereFilter {
	if f == nil || len(f.AnyOf) == 0 {
		return nil
	}
	if len(f.AnyOf) == 1 {
		return chromago.EqString(f.Field, f.AnyOf[0])
	}
	clauses := make([]chromago.WhereClause, 0, len(f.AnyOf))
	for _, v := range f.AnyOf {
		clauses = append(clauses, chromago.EqString(f.Field, v))
	}
	return chromago.Or(clauses...)
}

// pageFromMetadata decodes chroma document metadata. DocumentMetadata has no
// map accessor, so it is round-tripped through JSON.
func pageFromMetadata(metadata chromago.DocumentMetadata) (models.SummarizedPage, error) {
	var page models.SummarizedPage
	if metadata == nil {
		return page, fmt.Errorf("missing metadata")
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return page, err
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return page, err
	}
	return page, nil
}
