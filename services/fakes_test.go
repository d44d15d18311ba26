package services

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

type staticLoader struct {
	pages []models.Page
	err   error
}

func (l *staticLoader) Load(context.Context, string) ([]models.Page, error) {
	return l.pages, l.err
}

func makePages(source string, n int) []models.Page {
	pages := make([]models.Page, n)
	for i := range pages {
		pages[i] = models.Page{
			SourceID:   source,
			PageNumber: i + 1,
			TotalPages: n,
			RawContent: "content of page " + strconv.Itoa(i+1),
		}
	}
	return pages
}

type fakeEmbedder struct {
	dims int
	err  error
}

func (e *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return make([]float32, e.dims), e.err
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, e.dims)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }

// memoryStore keeps collections in insertion order. SimilaritySearch returns
// records in that order, optionally ranked by the search hook.
type memoryStore struct {
	mu          sync.Mutex
	collections map[string][]vectorstore.Record
	indexes     map[string][]string
	creates     int
	upserts     int
	searches    []searchCall
	scrollLimit []int

	failOn map[string]error
}

type searchCall struct {
	collection string
	query      string
	k          int
	filter     *vectorstore.Filter
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		collections: map[string][]vectorstore.Record{},
		indexes:     map[string][]string{},
		failOn:      map[string]error{},
	}
}

func (s *memoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["exists"]; err != nil {
		return false, err
	}
	_, ok := s.collections[name]
	return ok, nil
}

func (s *memoryStore) ListCollections(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["list"]; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *memoryStore) CreateCollection(_ context.Context, name string, _ int, _ vectorstore.Distance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["create"]; err != nil {
		return err
	}
	s.creates++
	s.collections[name] = nil
	return nil
}

func (s *memoryStore) CreatePayloadIndex(_ context.Context, name, field string, _ vectorstore.FieldType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.indexes[name], field) {
		s.indexes[name] = append(s.indexes[name], field)
	}
	return nil
}

func (s *memoryStore) Upsert(_ context.Context, name string, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["upsert"]; err != nil {
		return err
	}
	s.upserts++
	existing := s.collections[name]
	for _, r := range records {
		i := slices.IndexFunc(existing, func(e vectorstore.Record) bool { return e.ID == r.ID })
		if i >= 0 {
			existing[i] = r
			continue
		}
		existing = append(existing, r)
	}
	s.collections[name] = existing
	return nil
}

func (s *memoryStore) SimilaritySearch(_ context.Context, name, query string, k int, filter *vectorstore.Filter) ([]vectorstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, searchCall{collection: name, query: query, k: k, filter: filter})
	if err := s.failOn["search"]; err != nil {
		return nil, err
	}
	var out []vectorstore.Record
	for _, r := range s.collections[name] {
		if filter != nil && !slices.Contains(filter.AnyOf, r.Page.PageNumber) {
			continue
		}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Scroll(_ context.Context, name string, limit int, cursor string) ([]vectorstore.Record, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollLimit = append(s.scrollLimit, limit)
	if err := s.failOn["scroll"]; err != nil {
		return nil, "", err
	}
	offset := 0
	if cursor != "" {
		var err error
		if offset, err = strconv.Atoi(cursor); err != nil {
			return nil, "", errors.New("bad cursor")
		}
	}
	all := s.collections[name]
	end := min(offset+limit, len(all))
	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return slices.Clone(all[offset:end]), next, nil
}

func (s *memoryStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["delete"]; err != nil {
		return err
	}
	delete(s.collections, name)
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) put(name string, pages ...models.SummarizedPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = nil
	}
	for _, p := range pages {
		s.collections[name] = append(s.collections[name], vectorstore.Record{ID: RecordID(name, p.PageNumber), Page: p})
	}
}

func (s *memoryStore) records(name string) []vectorstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.collections[name])
}
