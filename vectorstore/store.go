// Package vectorstore holds the vector store contract used by ingestion and
// retrieval, together with its Qdrant and Chroma implementations and the
// embedders that turn text into vectors for them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// Distance is the similarity metric a collection is created with.
type Distance string

const (
	Cosine    Distance = "cosine"
	Dot       Distance = "dot"
	Euclidean Distance = "euclid"
)

// FieldType is the type of a payload index.
type FieldType string

const (
	KeywordField FieldType = "keyword"
	IntegerField FieldType = "integer"
)

// Record is one stored page: its vector plus the page payload.
type Record struct {
	ID     string
	Vector []float32
	Page   models.SummarizedPage
	// Score is set on similarity search results only.
	Score float32
}

// Filter restricts a search to records whose Field equals any of AnyOf.
// Values are compared as exact strings.
type Filter struct {
	Field string
	AnyOf []string
}

// MatchAny builds a Filter over field.
func MatchAny(field string, values ...string) *Filter {
	return &Filter{Field: field, AnyOf: values}
}

// Store is the subset of vector database operations the engine relies on.
// A collection holds the pages of exactly one document.
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, dims int, metric Distance) error
	// CreatePayloadIndex is idempotent: an index that already exists is not an error.
	CreatePayloadIndex(ctx context.Context, name, field string, fieldType FieldType) error
	Upsert(ctx context.Context, name string, records []Record) error
	SimilaritySearch(ctx context.Context, name, queryText string, k int, filter *Filter) ([]Record, error)
	// Scroll returns up to limit records starting at cursor. An empty next
	// cursor means the collection is exhausted.
	Scroll(ctx context.Context, name string, limit int, cursor string) (records []Record, next string, err error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

// Embedder turns text into vectors. Queries and documents may be embedded
// with different task hints.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EnsureCollection creates name with the given vector size and metric unless
// it already exists. The check is not atomic; callers give every document its
// own collection name so concurrent creation of the same name is not expected.
func EnsureCollection(ctx context.Context, store Store, name string, dims int, metric Distance) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	exists, err := store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := store.CreateCollection(ctx, name, dims, metric); err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	return nil
}
