package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

const (
	defaultIngestConcurrency = 5
	maxIngestConcurrency     = 50
)

// recordNamespace seeds the deterministic record ids.
var recordNamespace = uuid.MustParse("8f14e45f-ceea-4f6a-9e1b-7c6d2b9a1f3e")

// IngestionService turns a document into summarized, embedded page records in
// a collection.
type IngestionService struct {
	loader      DocumentLoader
	summarizer  *Summarizer
	store       vectorstore.Store
	embedder    vectorstore.Embedder
	concurrency int
	metric      vectorstore.Distance
	log         *zap.Logger
	metrics     *Metrics
}

// NewIngestionService clamps concurrency to [1, 50]; zero means the default of 5.
func NewIngestionService(
	loader DocumentLoader,
	summarizer *Summarizer,
	store vectorstore.Store,
	embedder vectorstore.Embedder,
	concurrency int,
	log *zap.Logger,
	metrics *Metrics,
) *IngestionService {
	switch {
	case concurrency == 0:
		concurrency = defaultIngestConcurrency
	case concurrency < 1:
		concurrency = 1
	case concurrency > maxIngestConcurrency:
		concurrency = maxIngestConcurrency
	}
	return &IngestionService{
		loader:      loader,
		summarizer:  summarizer,
		store:       store,
		embedder:    embedder,
		concurrency: concurrency,
		metric:      vectorstore.Cosine,
		log:         log,
		metrics:     metrics,
	}
}

// Ingest loads, summarizes, embeds and writes every page of the document at
// path into collection, returning the number of pages indexed. Nothing is
// written to the store unless every page was summarized.
func (s *IngestionService) Ingest(ctx context.Context, path, collection string) (int, error) {
	start := time.Now()
	n, err := s.ingest(ctx, path, collection)
	if s.metrics != nil {
		s.metrics.Ingestions.WithLabelValues(outcome(err)).Inc()
		s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.log.Error("Ingestion failed", zap.String("collection", collection), zap.Error(err))
		return 0, err
	}
	s.log.Info("Stored summarized pages",
		zap.String("collection", collection),
		zap.Int("pages", n),
		zap.Duration("took", time.Since(start)))
	return n, nil
}

func (s *IngestionService) ingest(ctx context.Context, path, collection string) (int, error) {
	fail := func(stage string, err error) (int, error) {
		return 0, &IngestionError{Stage: stage, Collection: collection, Err: err}
	}

	pages, err := s.loader.Load(ctx, path)
	if err != nil {
		return fail(StageLoad, err)
	}
	if len(pages) == 0 {
		return fail(StageLoad, ErrEmptyDocument)
	}
	s.log.Info("Loaded document", zap.String("collection", collection), zap.Int("pages", len(pages)))

	summaries, err := s.summarizeAll(ctx, pages)
	if err != nil {
		return fail(StageSummarize, err)
	}

	if err := vectorstore.EnsureCollection(ctx, s.store, collection, s.embedder.Dimensions(), s.metric); err != nil {
		return fail(StageCollection, err)
	}
	if err := s.store.CreatePayloadIndex(ctx, collection, models.PayloadPageNumber, vectorstore.KeywordField); err != nil {
		return fail(StageIndex, err)
	}

	texts := make([]string, len(summaries))
	for i, p := range summaries {
		texts[i] = p.Summary
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fail(StageEmbed, err)
	}
	if len(vectors) != len(summaries) {
		return fail(StageEmbed, fmt.Errorf("got %d vectors for %d pages", len(vectors), len(summaries)))
	}

	records := make([]vectorstore.Record, len(summaries))
	for i, p := range summaries {
		records[i] = vectorstore.Record{
			ID:     RecordID(collection, p.PageNumber),
			Vector: vectors[i],
			Page:   p,
		}
	}
	if err := s.store.Upsert(ctx, collection, records); err != nil {
		return fail(StageWrite, err)
	}
	return len(records), nil
}

// summarizeAll runs at most s.concurrency summarizations at once. The first
// failure cancels the rest. Results keep page order.
func (s *IngestionService) summarizeAll(ctx context.Context, pages []models.Page) ([]models.SummarizedPage, error) {
	results := make([]models.SummarizedPage, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, page := range pages {
		g.Go(func() error {
			summary, err := s.summarizer.Summarize(gctx, page, i)
			if err != nil {
				return err
			}
			results[i] = summary
			if s.metrics != nil {
				s.metrics.PagesSummarized.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RecordID derives a stable point id for a page so re-ingesting a document
// into the same collection overwrites its records.
func RecordID(collection, pageNumber string) string {
	return uuid.NewSHA1(recordNamespace, []byte(collection+"/"+pageNumber)).String()
}
