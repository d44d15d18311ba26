package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newFakeGemini(t *testing.T, reply string, status int) (*genai.Client, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": reply}}},
			}},
		})
	}))
	t.Cleanup(server.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  server.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: server.URL + "/"},
	})
	require.NoError(t, err)
	return client, &bodies
}

func TestGeminiGenerator(t *testing.T) {
	client, bodies := newFakeGemini(t, "  Page 2 covers pricing.\n", http.StatusOK)
	gen := NewGeminiGenerator(client, "gemini-2.5-flash")

	got, err := gen.Generate(context.Background(), "system", "what is on page 2?")
	require.NoError(t, err)
	assert.Equal(t, "Page 2 covers pricing.", got)
	require.Len(t, *bodies, 1)
	assert.Contains(t, (*bodies)[0], "systemInstruction")
}

func TestGeminiGeneratorStructured(t *testing.T) {
	client, bodies := newFakeGemini(t, `{"general_query":true,"page_query":[],"whole_doc_query":false}`, http.StatusOK)
	gen := NewGeminiGenerator(client, "gemini-2.5-flash")

	raw, err := gen.GenerateStructured(context.Background(), classifierSystemPrompt, "hi", GetClassificationSchema())
	require.NoError(t, err)
	_, err = ParseClassification(raw)
	require.NoError(t, err)

	cfg, ok := (*bodies)[0]["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", cfg["responseMimeType"])
}

func TestGeminiGeneratorErrors(t *testing.T) {
	client, _ := newFakeGemini(t, "", http.StatusTooManyRequests)
	_, err := NewGeminiGenerator(client, "m").Generate(context.Background(), "s", "u")
	assert.Error(t, err)

	client, _ = newFakeGemini(t, "   ", http.StatusOK)
	_, err = NewGeminiGenerator(client, "m").Generate(context.Background(), "s", "u")
	assert.ErrorContains(t, err, "empty response")
}

func TestNewGeminiPool(t *testing.T) {
	a, _ := newFakeGemini(t, "a", http.StatusOK)
	b, _ := newFakeGemini(t, "b", http.StatusOK)

	pool, err := NewGeminiPool([]*genai.Client{a, b}, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Size())

	got, err := pool.Pick(3).Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = NewGeminiPool(nil, "m")
	assert.Error(t, err)
}
