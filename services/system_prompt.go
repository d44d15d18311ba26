package services

import "fmt"

const summarizerSystemPrompt = "You are a helpful summarizer."

// summarizeUserMessage wraps a page's raw text for the summarizer.
func summarizeUserMessage(content string) string {
	return "Summarize this page:\n\n" + content
}

const classifierSystemPrompt = `You are an AI assistant. Your job is to detect if the user's query is related to specific pages, requires the whole document, or neither.
If the query is about the whole document (an overview, summary or outline of the entire PDF) then return whole_doc_query: true.
If the query is about specific pages of the document then return page_query: [page numbers].
Otherwise return general_query: true.

Respond only with JSON of the form:
{
  "general_query": boolean,
  "page_query": array of integers,
  "whole_doc_query": boolean
}`

// GetAnswerPrompt is the system prompt for the general and page handlers.
// The context lists raw page content prefixed with the page number.
func GetAnswerPrompt(context string) string {
	return fmt.Sprintf(`You are a helpful AI Assistant who answers the user's query based on the available context retrieved from a PDF file along with page content and page number.

Give the response in a very brief and professional manner and also point the user to the right page number to know more.
Do not use '**' in your response, instead give the response with clean formatting.

Context:
%s`, context)
}

// GetWholeDocumentPrompt is the system prompt for whole-document questions.
// The context lists page summaries in page order.
func GetWholeDocumentPrompt(context string) string {
	return fmt.Sprintf(`You are a helpful AI Assistant who answers the user's query based on the available context retrieved from a PDF file.
In the context, there are page numbers and a summary of the content at that page number.

Give the response in a very brief and professional manner.
Do not use '**' in your response, instead give the response with clean formatting.

Context:
%s`, context)
}
