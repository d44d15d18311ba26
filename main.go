package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/config"
	"github.com/dhruvagrawal1080/PDF-Chat/controller"
	"github.com/dhruvagrawal1080/PDF-Chat/logger"
	"github.com/dhruvagrawal1080/PDF-Chat/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	zlog := logger.New(logger.Options{
		Service:    "pdf-chat",
		Level:      cfg.LogLevel,
		Production: cfg.IsProduction(),
		FilePath:   cfg.LogFile,
	})
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	// One Gemini client per API key.
	geminiClients, err := services.NewGeminiClients(ctx, cfg.GoogleAPIKeys)
	if err != nil {
		return err
	}
	zlog.Info("Created Gemini clients", zap.Int("count", len(geminiClients)))

	summaryPool, err := services.NewGeminiPool(geminiClients, cfg.SummaryModel)
	if err != nil {
		return err
	}
	chat := services.NewGeminiGenerator(geminiClients[0], cfg.ChatModel)

	embedder := newEmbedder(cfg, geminiClients[0])
	store, err := newStore(cfg, embedder, zlog)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Warn("Failed to close vector store", zap.Error(err))
		}
	}()

	sessionStore, err := newSessionStore(ctx, cfg, zlog)
	if err != nil {
		return err
	}

	uploads, err := services.NewUploadFiles(cfg.TmpDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	metrics := services.NewMetrics("pdf-chat")

	summarizer := services.NewSummarizer(summaryPool, services.RetryPolicy{
		MaxAttempts: cfg.SummaryMaxAttempts,
		Pacing:      cfg.SummaryPacing,
		BaseBackoff: cfg.SummaryBaseBackoff,
		MaxJitter:   time.Second,
	}, zlog.Named("summarizer"), services.WithSummarizerMetrics(metrics))

	ingestion := services.NewIngestionService(
		services.NewPDFLoader(cfg.UnidocLicenseKey, zlog.Named("loader")),
		summarizer,
		store,
		embedder,
		cfg.IngestConcurrency,
		zlog.Named("ingestion"),
		metrics,
	)
	engine := services.NewQueryEngine(
		services.NewClassifier(chat, zlog.Named("classifier")),
		chat,
		store,
		services.NewContextAssembler(cfg.ContextPageChars),
		cfg.QueryTimeout,
		zlog.Named("query"),
		metrics,
	)
	sessions := services.NewSessionService(ingestion, engine, store, sessionStore, uploads, cfg.IngestTimeout, zlog.Named("sessions"))

	if cfg.SessionReapInterval > 0 {
		// Ingestion on any instance finishes or fails within IngestTimeout.
		reaper := services.NewSessionReaper(store, sessionStore, cfg.IngestTimeout, zlog.Named("reaper"))
		go reaper.Run(ctx, cfg.SessionReapInterval)
	}

	if cfg.InboxDir != "" {
		watcher := services.NewInboxWatcher(cfg.InboxDir, sessions, 2*time.Second, zlog.Named("inbox"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				zlog.Error("Inbox watcher stopped", zap.Error(err))
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := controller.NewRouter(
		controller.NewRAGController(sessions, cfg.MaxUploadBytes, zlog.Named("http")),
		controller.RouterOptions{
			FrontendURL: cfg.FrontendURL,
			Metrics:     metrics.Handler(),
			Log:         zlog.Named("http"),
		},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Server running", zap.String("port", cfg.Port), zap.String("vector_backend", cfg.VectorBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
