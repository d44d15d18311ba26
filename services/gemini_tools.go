package services

import "google.golang.org/genai"

// GetClassificationSchema is the structured output schema for the query
// classifier. All three fields are required.
func GetClassificationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"general_query": {
				Type:        genai.TypeBoolean,
				Description: "True when the query is a general question about the document's content.",
			},
			"page_query": {
				Type:        genai.TypeArray,
				Description: "1-based page numbers the query explicitly refers to. Empty when none.",
				Items:       &genai.Schema{Type: genai.TypeInteger},
			},
			"whole_doc_query": {
				Type:        genai.TypeBoolean,
				Description: "True when the query needs the whole document, e.g. an overview or full summary.",
			},
		},
		Required:         []string{"general_query", "page_query", "whole_doc_query"},
		PropertyOrdering: []string{"general_query", "page_query", "whole_doc_query"},
	}
}
