package services

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Generator is a single credentialed text generation client.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
	// GenerateStructured asks for JSON matching schema and returns the raw
	// text. Validation is left to the caller.
	GenerateStructured(ctx context.Context, systemPrompt, userMessage string, schema *genai.Schema) (string, error)
}

// GeminiGenerator implements Generator with one genai client and model.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return g.generate(ctx, userMessage, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	})
}

func (g *GeminiGenerator) GenerateStructured(ctx context.Context, systemPrompt, userMessage string, schema *genai.Schema) (string, error) {
	return g.generate(ctx, userMessage, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
}

func (g *GeminiGenerator) generate(ctx context.Context, userMessage string, config *genai.GenerateContentConfig) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userMessage), config)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

// ClientPool is a fixed rotation of generators, one per credential, used to
// spread rate-limited calls across several quota buckets. It is immutable
// after construction and safe for concurrent use.
type ClientPool struct {
	clients []Generator
}

func NewClientPool(clients ...Generator) (*ClientPool, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("client pool needs at least one client")
	}
	return &ClientPool{clients: append([]Generator(nil), clients...)}, nil
}

// Pick returns the client for index using plain round robin.
func (p *ClientPool) Pick(index int) Generator {
	n := len(p.clients)
	return p.clients[((index%n)+n)%n]
}

// Primary is the first client. Query-time calls go through it.
func (p *ClientPool) Primary() Generator {
	return p.clients[0]
}

func (p *ClientPool) Size() int {
	return len(p.clients)
}

// NewGeminiClients creates one genai client per API key.
func NewGeminiClients(ctx context.Context, apiKeys []string) ([]*genai.Client, error) {
	clients := make([]*genai.Client, 0, len(apiKeys))
	for i, key := range apiKeys {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client #%d: %w", i+1, err)
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// NewGeminiPool wraps clients into a pool of generators bound to model.
func NewGeminiPool(clients []*genai.Client, model string) (*ClientPool, error) {
	generators := make([]Generator, 0, len(clients))
	for _, c := range clients {
		generators = append(generators, NewGeminiGenerator(c, model))
	}
	return NewClientPool(generators...)
}
