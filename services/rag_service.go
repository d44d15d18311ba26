package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

const (
	generalTopK     = 10
	wholeDocScroll  = 100
	maxScrollRounds = 10000
)

// Handler answers a classified query and stores the result in state.Response.
type Handler interface {
	Handle(ctx context.Context, state *models.QueryState) error
}

// Route picks the branch for a classification. General wins over whole
// document, which wins over explicit pages. With no signal at all the query
// is treated as general.
func Route(c models.QueryClassification) models.Branch {
	switch {
	case c.GeneralQuery:
		return models.BranchGeneral
	case c.WholeDocQuery:
		return models.BranchWholeDocument
	case len(c.PageQuery) > 0:
		return models.BranchPage
	default:
		return models.BranchGeneral
	}
}

// QueryEngine classifies a query, routes it to exactly one handler and
// returns that handler's response.
type QueryEngine struct {
	classifier *Classifier
	handlers   map[models.Branch]Handler
	timeout    time.Duration
	log        *zap.Logger
	metrics    *Metrics
}

// NewQueryEngine wires the three retrieval handlers around store, using
// generator for answers. timeout bounds each Answer call when positive.
func NewQueryEngine(
	classifier *Classifier,
	generator Generator,
	store vectorstore.Store,
	assembler *ContextAssembler,
	timeout time.Duration,
	log *zap.Logger,
	metrics *Metrics,
) *QueryEngine {
	return &QueryEngine{
		classifier: classifier,
		handlers: map[models.Branch]Handler{
			models.BranchGeneral:       &generalHandler{store: store, generator: generator, assembler: assembler},
			models.BranchPage:          &pageHandler{store: store, generator: generator, assembler: assembler},
			models.BranchWholeDocument: &wholeDocumentHandler{store: store, generator: generator, assembler: assembler},
		},
		timeout: timeout,
		log:     log,
		metrics: metrics,
	}
}

// Answer runs one query against collection.
func (e *QueryEngine) Answer(ctx context.Context, query, collection string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	state := &models.QueryState{Query: query, CollectionName: collection}
	err := e.run(ctx, state)

	branch := string(state.Branch)
	if branch == "" {
		branch = "unclassified"
	}
	if e.metrics != nil {
		e.metrics.Queries.WithLabelValues(branch, outcome(err)).Inc()
		e.metrics.QueryDuration.WithLabelValues(branch).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.log.Error("Query failed", zap.String("collection", collection), zap.String("branch", branch), zap.Error(err))
		return "", err
	}
	e.log.Info("Query answered", zap.String("collection", collection), zap.String("branch", branch), zap.Duration("took", time.Since(start)))
	return state.Response, nil
}

func (e *QueryEngine) run(ctx context.Context, state *models.QueryState) error {
	classification, err := e.classifier.Classify(ctx, state.Query)
	if err != nil {
		return err
	}
	state.Classification = classification
	state.Branch = Route(classification)

	handler, ok := e.handlers[state.Branch]
	if !ok {
		return fmt.Errorf("no handler for branch %q", state.Branch)
	}
	return handler.Handle(ctx, state)
}

type generalHandler struct {
	store     vectorstore.Store
	generator Generator
	assembler *ContextAssembler
}

func (h *generalHandler) Handle(ctx context.Context, state *models.QueryState) error {
	records, err := h.store.SimilaritySearch(ctx, state.CollectionName, state.Query, generalTopK, nil)
	if err != nil {
		return &RetrievalError{Collection: state.CollectionName, Err: err}
	}
	return generateAnswer(ctx, h.generator, GetAnswerPrompt(h.assembler.FormatContentContext(records)), state)
}

type pageHandler struct {
	store     vectorstore.Store
	generator Generator
	assembler *ContextAssembler
}

func (h *pageHandler) Handle(ctx context.Context, state *models.QueryState) error {
	pages := state.Classification.PageQuery
	values := make([]string, len(pages))
	for i, p := range pages {
		values[i] = strconv.Itoa(p)
	}

	filter := vectorstore.MatchAny(models.PayloadPageNumber, values...)
	records, err := h.store.SimilaritySearch(ctx, state.CollectionName, state.Query, len(pages), filter)
	if err != nil {
		return &RetrievalError{Collection: state.CollectionName, Err: err}
	}
	if len(records) == 0 {
		state.Response = noPageContentResponse
		return nil
	}
	return generateAnswer(ctx, h.generator, GetAnswerPrompt(h.assembler.FormatContentContext(records)), state)
}

type wholeDocumentHandler struct {
	store     vectorstore.Store
	generator Generator
	assembler *ContextAssembler
}

func (h *wholeDocumentHandler) Handle(ctx context.Context, state *models.QueryState) error {
	records, err := scrollAll(ctx, h.store, state.CollectionName)
	if err != nil {
		return &RetrievalError{Collection: state.CollectionName, Err: err}
	}
	SortByPageNumber(records)
	return generateAnswer(ctx, h.generator, GetWholeDocumentPrompt(h.assembler.FormatSummaryContext(records)), state)
}

// scrollAll pages through the whole collection until the store reports no
// further cursor.
func scrollAll(ctx context.Context, store vectorstore.Store, collection string) ([]vectorstore.Record, error) {
	var (
		all    []vectorstore.Record
		cursor string
	)
	for range maxScrollRounds {
		records, next, err := store.Scroll(ctx, collection, wholeDocScroll, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if next == "" {
			return all, nil
		}
		if next == cursor {
			return nil, fmt.Errorf("scroll cursor %q did not advance", next)
		}
		cursor = next
	}
	return nil, fmt.Errorf("scroll exceeded %d pages", maxScrollRounds)
}

func generateAnswer(ctx context.Context, generator Generator, systemPrompt string, state *models.QueryState) error {
	response, err := generator.Generate(ctx, systemPrompt, state.Query)
	if err != nil {
		return &GenerationError{Err: err}
	}
	state.Response = response
	return nil
}
