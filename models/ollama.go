package models

// OllamaEmbedRequest is the body sent to Ollama's /api/embeddings endpoint.
type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbedResponse holds the embedding returned by Ollama.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
