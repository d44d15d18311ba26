package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// pageGenerator summarizes by echoing the page text, and fails for any page
// whose text contains failOn.
type pageGenerator struct {
	failOn   string
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
}

func (g *pageGenerator) Generate(ctx context.Context, _, userMessage string) (string, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if g.hold > 0 {
		select {
		case <-time.After(g.hold):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.failOn != "" && strings.HasSuffix(userMessage, g.failOn) {
		return "", errors.New("quota exceeded")
	}
	return "summary: " + strings.TrimPrefix(userMessage, "Summarize this page:\n\n"), nil
}

func (g *pageGenerator) GenerateStructured(ctx context.Context, sys, user string, _ *genai.Schema) (string, error) {
	return g.Generate(ctx, sys, user)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestIngestion(t *testing.T, loader DocumentLoader, gen Generator, store *memoryStore, concurrency int) *IngestionService {
	t.Helper()
	pool, err := NewClientPool(gen)
	require.NoError(t, err)
	summarizer := NewSummarizer(pool, DefaultRetryPolicy(), zap.NewNop(),
		WithSleep(noSleep), WithJitter(fixedJitter(0)))
	return NewIngestionService(loader, summarizer, store, &fakeEmbedder{dims: 8}, concurrency, zap.NewNop(), NewMetrics("test"))
}

func TestIngestWritesOneRecordPerPage(t *testing.T) {
	store := newMemoryStore()
	svc := newTestIngestion(t, &staticLoader{pages: makePages("doc.pdf", 12)}, &pageGenerator{}, store, 5)

	n, err := svc.Ingest(context.Background(), "doc.pdf", "session_a")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	pages := makePages("doc.pdf", 12)
	records := store.records("session_a")
	require.Len(t, records, 12)
	for i, r := range records {
		want := models.SummarizedPage{
			PageNumber: strconv.Itoa(i + 1),
			TotalPages: 12,
			Source:     "doc.pdf",
			Summary:    "summary: " + pages[i].RawContent,
			Content:    pages[i].RawContent,
		}
		assert.Equal(t, want, r.Page)
		assert.Len(t, r.Vector, 8)
		assert.Equal(t, RecordID("session_a", want.PageNumber), r.ID)
	}
	assert.Equal(t, []string{models.PayloadPageNumber}, store.indexes["session_a"])
	assert.Equal(t, 1, store.upserts)
}

func TestIngestFailsFastWithoutWrites(t *testing.T) {
	store := newMemoryStore()
	gen := &pageGenerator{failOn: "content of page 3"}
	svc := newTestIngestion(t, &staticLoader{pages: makePages("doc.pdf", 6)}, gen, store, 2)

	_, err := svc.Ingest(context.Background(), "doc.pdf", "session_b")
	require.Error(t, err)

	var ingestErr *IngestionError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, StageSummarize, ingestErr.Stage)
	assert.Equal(t, "session_b", ingestErr.Collection)

	var sumErr *SummarizationError
	require.ErrorAs(t, err, &sumErr)
	assert.Equal(t, 3, sumErr.Page)

	exists, _ := store.CollectionExists(context.Background(), "session_b")
	assert.False(t, exists)
	assert.Zero(t, store.creates)
	assert.Zero(t, store.upserts)
}

func TestIngestRespectsConcurrencyLimit(t *testing.T) {
	gen := &pageGenerator{hold: 20 * time.Millisecond}
	svc := newTestIngestion(t, &staticLoader{pages: makePages("doc.pdf", 10)}, gen, newMemoryStore(), 3)

	_, err := svc.Ingest(context.Background(), "doc.pdf", "session_c")
	require.NoError(t, err)
	assert.LessOrEqual(t, gen.peak.Load(), int32(3))
	assert.Equal(t, int32(10), gen.calls.Load())
}

func TestIngestEmptyDocument(t *testing.T) {
	store := newMemoryStore()
	svc := newTestIngestion(t, &staticLoader{}, &pageGenerator{}, store, 5)

	_, err := svc.Ingest(context.Background(), "empty.pdf", "session_d")
	var ingestErr *IngestionError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, StageLoad, ingestErr.Stage)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestStageErrors(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*memoryStore, *fakeEmbedder)
		stage string
	}{
		{"collection", func(s *memoryStore, _ *fakeEmbedder) { s.failOn["exists"] = errors.New("down") }, StageCollection},
		{"embed", func(_ *memoryStore, e *fakeEmbedder) { e.err = errors.New("embed down") }, StageEmbed},
		{"write", func(s *memoryStore, _ *fakeEmbedder) { s.failOn["upsert"] = errors.New("disk full") }, StageWrite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryStore()
			embedder := &fakeEmbedder{dims: 4}
			tc.setup(store, embedder)

			pool, err := NewClientPool(&pageGenerator{})
			require.NoError(t, err)
			summarizer := NewSummarizer(pool, DefaultRetryPolicy(), zap.NewNop(), WithSleep(noSleep))
			svc := NewIngestionService(&staticLoader{pages: makePages("doc.pdf", 2)}, summarizer, store, embedder, 5, zap.NewNop(), nil)

			_, err = svc.Ingest(context.Background(), "doc.pdf", "session_e")
			var ingestErr *IngestionError
			require.ErrorAs(t, err, &ingestErr)
			assert.Equal(t, tc.stage, ingestErr.Stage)
		})
	}
}

func TestIngestTwiceOverwritesRecords(t *testing.T) {
	store := newMemoryStore()
	svc := newTestIngestion(t, &staticLoader{pages: makePages("doc.pdf", 3)}, &pageGenerator{}, store, 5)

	_, err := svc.Ingest(context.Background(), "doc.pdf", "session_f")
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), "doc.pdf", "session_f")
	require.NoError(t, err)

	assert.Len(t, store.records("session_f"), 3)
	assert.Equal(t, 1, store.creates)
}

func TestConcurrencyClamp(t *testing.T) {
	assert.Equal(t, 5, NewIngestionService(nil, nil, nil, nil, 0, zap.NewNop(), nil).concurrency)
	assert.Equal(t, 1, NewIngestionService(nil, nil, nil, nil, -2, zap.NewNop(), nil).concurrency)
	assert.Equal(t, 50, NewIngestionService(nil, nil, nil, nil, 500, zap.NewNop(), nil).concurrency)
}
