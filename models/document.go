package models

import (
	"strconv"
	"time"
)

// Payload keys written with every page record. page_num is stored as a
// string so it can be matched exactly by a keyword index.
const (
	PayloadPageNumber = "page_num"
	PayloadTotalPages = "total_pages"
	PayloadSource     = "source"
	PayloadSummary    = "page_summary"
	PayloadContent    = "content"
)

// Page is one page of a loaded document. PageNumber is 1-based.
type Page struct {
	SourceID   string `json:"source_id"`
	PageNumber int    `json:"page_number"`
	TotalPages int    `json:"total_pages"`
	RawContent string `json:"raw_content"`
}

// SummarizedPage is the payload stored for a page in the vector store.
// The embedding is computed from Summary.
type SummarizedPage struct {
	PageNumber string `json:"page_num"`
	TotalPages int    `json:"total_pages"`
	Source     string `json:"source"`
	Summary    string `json:"page_summary"`
	Content    string `json:"content,omitempty"`
}

// NewSummarizedPage builds the record payload for page with the given summary.
func NewSummarizedPage(page Page, summary string) SummarizedPage {
	return SummarizedPage{
		PageNumber: strconv.Itoa(page.PageNumber),
		TotalPages: page.TotalPages,
		Source:     page.SourceID,
		Summary:    summary,
		Content:    page.RawContent,
	}
}

// PageNum parses the string page number. ok is false when the stored value
// is not an integer.
func (p SummarizedPage) PageNum() (n int, ok bool) {
	n, err := strconv.Atoi(p.PageNumber)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Payload flattens the page into the key/value form stored with the vector.
func (p SummarizedPage) Payload() map[string]any {
	return map[string]any{
		PayloadPageNumber: p.PageNumber,
		PayloadTotalPages: int64(p.TotalPages),
		PayloadSource:     p.Source,
		PayloadSummary:    p.Summary,
		PayloadContent:    p.Content,
	}
}

// Session binds an uploaded document to the collection holding its pages.
type Session struct {
	ID             string    `json:"id"`
	CollectionName string    `json:"collection_name"`
	Source         string    `json:"source,omitempty"`
	Pages          int       `json:"pages"`
	CreatedAt      time.Time `json:"created_at"`
}
