package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

const noPageContentResponse = "No content found for the requested pages."

// ContextAssembler renders retrieved records into the context block of an
// answer prompt.
type ContextAssembler struct {
	// maxPageChars bounds the raw content taken from one page. Zero disables clipping.
	maxPageChars int
}

func NewContextAssembler(maxPageChars int) *ContextAssembler {
	return &ContextAssembler{maxPageChars: maxPageChars}
}

// FormatContentContext renders "Page {n}: {content}" blocks in the given
// order, separated by a blank line.
func (a *ContextAssembler) FormatContentContext(records []vectorstore.Record) string {
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		blocks = append(blocks, fmt.Sprintf("Page %s: %s", r.Page.PageNumber, a.clip(r.Page.Content)))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatSummaryContext renders "Page {n}: {summary}" blocks in the given
// order, separated by a blank line.
func (a *ContextAssembler) FormatSummaryContext(records []vectorstore.Record) string {
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		blocks = append(blocks, fmt.Sprintf("Page %s: %s", r.Page.PageNumber, r.Page.Summary))
	}
	return strings.Join(blocks, "\n\n")
}

// clip keeps the first chunk of content as cut by the recursive character
// splitter, which prefers paragraph and sentence boundaries.
func (a *ContextAssembler) clip(content string) string {
	if a.maxPageChars <= 0 || len([]rune(content)) <= a.maxPageChars {
		return content
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(a.maxPageChars),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(content)
	if err != nil || len(chunks) == 0 {
		return string([]rune(content)[:a.maxPageChars])
	}
	return chunks[0]
}

// SortByPageNumber orders records by numeric page number. Records whose page
// number does not parse keep their relative order after all others.
func SortByPageNumber(records []vectorstore.Record) {
	slices.SortStableFunc(records, func(a, b vectorstore.Record) int {
		an, aok := a.Page.PageNum()
		bn, bok := b.Page.PageNum()
		switch {
		case aok && bok:
			return an - bn
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	})
}
