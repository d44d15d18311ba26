package models

// QueryClassification is the classifier's verdict on a user query.
type QueryClassification struct {
	GeneralQuery  bool  `json:"general_query"`
	PageQuery     []int `json:"page_query"`
	WholeDocQuery bool  `json:"whole_doc_query"`
}

// Branch names the retrieval strategy chosen for a query.
type Branch string

const (
	BranchGeneral       Branch = "general"
	BranchPage          Branch = "page"
	BranchWholeDocument Branch = "whole_document"
)

// QueryState is threaded through a single query from classification to
// the final response. It is never persisted.
type QueryState struct {
	Query          string
	CollectionName string
	Classification QueryClassification
	Branch         Branch
	Response       string
}
