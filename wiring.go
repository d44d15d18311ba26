package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dhruvagrawal1080/PDF-Chat/config"
	"github.com/dhruvagrawal1080/PDF-Chat/services"
	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

func newEmbedder(cfg *config.Config, client *genai.Client) vectorstore.Embedder {
	if cfg.EmbeddingBackend == "ollama" {
		return vectorstore.NewOllamaEmbedder(&http.Client{Timeout: 30 * time.Second}, cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDims)
	}
	return vectorstore.NewGeminiEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDims)
}

func newStore(cfg *config.Config, embedder vectorstore.Embedder, zlog *zap.Logger) (vectorstore.Store, error) {
	if cfg.VectorBackend == "chroma" {
		return vectorstore.NewChromaStore(cfg.ChromaURL, embedder, zlog.Named("chroma"))
	}
	return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	}, embedder, zlog.Named("qdrant"))
}

func newSessionStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (services.SessionStore, error) {
	if cfg.RedisURL == "" {
		zlog.Info("Using in-memory session store", zap.Duration("ttl", cfg.SessionTTL))
		return services.NewMemorySessionStore(cfg.SessionTTL), nil
	}
	rdb, err := services.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	zlog.Info("Using redis session store", zap.Duration("ttl", cfg.SessionTTL))
	return services.NewRedisSessionStore(rdb, cfg.SessionTTL), nil
}
