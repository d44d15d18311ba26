package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// Classifier decides which retrieval strategy a query needs.
type Classifier struct {
	generator Generator
	log       *zap.Logger
}

func NewClassifier(generator Generator, log *zap.Logger) *Classifier {
	return &Classifier{generator: generator, log: log}
}

// Classify makes one structured generation call. Any failure, including
// output that does not parse, is a *ClassificationError.
func (c *Classifier) Classify(ctx context.Context, query string) (models.QueryClassification, error) {
	raw, err := c.generator.GenerateStructured(ctx, classifierSystemPrompt, query, GetClassificationSchema())
	if err != nil {
		return models.QueryClassification{}, &ClassificationError{Err: err}
	}
	classification, err := ParseClassification(raw)
	if err != nil {
		c.log.Warn("Unusable classifier output", zap.String("raw", raw), zap.Error(err))
		return models.QueryClassification{}, err
	}
	c.log.Debug("Classified query",
		zap.Bool("general", classification.GeneralQuery),
		zap.Ints("pages", classification.PageQuery),
		zap.Bool("whole_doc", classification.WholeDocQuery))
	return classification, nil
}

// rawClassification uses pointers so absent keys can be told apart from
// zero values.
type rawClassification struct {
	GeneralQuery  *bool  `json:"general_query"`
	PageQuery     *[]int `json:"page_query"`
	WholeDocQuery *bool  `json:"whole_doc_query"`
}

// ParseClassification validates classifier output. It accepts a JSON object,
// optionally wrapped in a markdown code fence, with exactly the three
// classification keys. Page numbers must be positive; they are returned
// sorted and without duplicates.
func ParseClassification(raw string) (models.QueryClassification, error) {
	malformed := func(format string, args ...any) (models.QueryClassification, error) {
		return models.QueryClassification{}, &ClassificationError{
			Err: fmt.Errorf("%w: %s", ErrMalformedClassification, fmt.Sprintf(format, args...)),
		}
	}

	body := extractJSON(raw)
	if body == "" {
		return malformed("no JSON object in %q", raw)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var parsed rawClassification
	if err := dec.Decode(&parsed); err != nil {
		return malformed("%v", err)
	}

	var missing []string
	if parsed.GeneralQuery == nil {
		missing = append(missing, "general_query")
	}
	if parsed.PageQuery == nil {
		missing = append(missing, "page_query")
	}
	if parsed.WholeDocQuery == nil {
		missing = append(missing, "whole_doc_query")
	}
	if len(missing) > 0 {
		return malformed("missing %s", strings.Join(missing, ", "))
	}

	pages := slices.Clone(*parsed.PageQuery)
	for _, p := range pages {
		if p <= 0 {
			return malformed("page number %d is not positive", p)
		}
	}
	slices.Sort(pages)
	pages = slices.Compact(pages)

	return models.QueryClassification{
		GeneralQuery:  *parsed.GeneralQuery,
		PageQuery:     pages,
		WholeDocQuery: *parsed.WholeDocQuery,
	}, nil
}

// extractJSON returns the outermost {...} span of s, which also drops any
// surrounding code fence.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
