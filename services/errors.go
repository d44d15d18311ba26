package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is returned for unknown sessions and for sessions whose
	// collection no longer exists.
	ErrInvalidSession = errors.New("invalid session")
	// ErrEmptyDocument is returned when a document yields no pages.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrMalformedClassification is wrapped by ClassificationError when the
	// classifier output does not match the expected structure.
	ErrMalformedClassification = errors.New("malformed classification")
)

// SummarizationError means one page could not be summarized within the
// retry budget. It fails the whole ingestion batch.
type SummarizationError struct {
	Page     int
	Attempts int
	Err      error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarize page %d failed after %d attempt(s): %v", e.Page, e.Attempts, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// Ingestion stages reported by IngestionError.
const (
	StageLoad       = "load"
	StageSummarize  = "summarize"
	StageCollection = "collection"
	StageIndex      = "index"
	StageEmbed      = "embed"
	StageWrite      = "write"
)

// IngestionError wraps whichever ingestion stage failed.
type IngestionError struct {
	Stage      string
	Collection string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest into %q failed at %s: %v", e.Collection, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// ClassificationError means the query could not be classified. There is no
// fallback classification.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify query: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// RetrievalError is a vector store failure while answering a query.
type RetrievalError struct {
	Collection string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve from %q: %v", e.Collection, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError is a failed answer generation call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
