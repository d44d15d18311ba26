package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

// Ingester is implemented by *IngestionService.
type Ingester interface {
	Ingest(ctx context.Context, path, collection string) (int, error)
}

// Answerer is implemented by *QueryEngine.
type Answerer interface {
	Answer(ctx context.Context, query, collection string) (string, error)
}

const sessionCollectionPrefix = "session_"

// CollectionNameFor returns the collection that holds a session's pages.
func CollectionNameFor(sessionID string) string {
	return sessionCollectionPrefix + sessionID
}

// SessionService owns the session lifecycle: one uploaded document per
// session, one collection per session.
type SessionService struct {
	ingester      Ingester
	answerer      Answerer
	store         vectorstore.Store
	sessions      SessionStore
	uploads       *UploadFiles
	ingestTimeout time.Duration
	log           *zap.Logger
}

func NewSessionService(
	ingester Ingester,
	answerer Answerer,
	store vectorstore.Store,
	sessions SessionStore,
	uploads *UploadFiles,
	ingestTimeout time.Duration,
	log *zap.Logger,
) *SessionService {
	return &SessionService{
		ingester:      ingester,
		answerer:      answerer,
		store:         store,
		sessions:      sessions,
		uploads:       uploads,
		ingestTimeout: ingestTimeout,
		log:           log,
	}
}

// Upload stores r as a temporary file, ingests it into a new session and
// returns the session id. The temporary file is always removed.
func (s *SessionService) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	id := uuid.NewString()
	path, err := s.uploads.Save(id, uploadExt(filename), r)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := s.uploads.Remove(path); err != nil {
			s.log.Warn("Failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	source := filepath.Base(filename)
	if source == "." || source == string(filepath.Separator) {
		source = filepath.Base(path)
	}
	if err := s.createSession(ctx, id, path, source); err != nil {
		return "", err
	}
	return id, nil
}

// IngestFile creates a session for a document already on disk. The file is
// left in place.
func (s *SessionService) IngestFile(ctx context.Context, path string) (string, error) {
	id := uuid.NewString()
	if err := s.createSession(ctx, id, path, filepath.Base(path)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SessionService) createSession(ctx context.Context, id, path, source string) error {
	collection := CollectionNameFor(id)
	log := s.log.With(zap.String("session", id), zap.String("collection", collection))

	ingestCtx := ctx
	if s.ingestTimeout > 0 {
		var cancel context.CancelFunc
		ingestCtx, cancel = context.WithTimeout(ctx, s.ingestTimeout)
		defer cancel()
	}

	pages, err := s.ingester.Ingest(ingestCtx, path, collection)
	if err != nil {
		s.dropCollection(context.WithoutCancel(ctx), collection, log)
		return err
	}

	session := models.Session{
		ID:             id,
		CollectionName: collection,
		Source:         source,
		Pages:          pages,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.sessions.Set(ctx, session); err != nil {
		s.dropCollection(context.WithoutCancel(ctx), collection, log)
		return fmt.Errorf("save session: %w", err)
	}
	log.Info("Session created", zap.String("source", source), zap.Int("pages", pages))
	return nil
}

// dropCollection removes whatever a failed ingestion may have written.
func (s *SessionService) dropCollection(ctx context.Context, collection string, log *zap.Logger) {
	exists, err := s.store.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return
	}
	if err := s.store.DeleteCollection(ctx, collection); err != nil {
		log.Warn("Failed to drop partial collection", zap.Error(err))
	}
}

// Ask answers query against the session's document. Sessions whose
// collection has disappeared are forgotten and reported as invalid.
func (s *SessionService) Ask(ctx context.Context, sessionID, query string) (string, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return "", err
	}

	exists, err := s.store.CollectionExists(ctx, session.CollectionName)
	if err != nil {
		return "", &RetrievalError{Collection: session.CollectionName, Err: err}
	}
	if !exists {
		s.log.Warn("Session collection missing, dropping session", zap.String("session", sessionID))
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.log.Warn("Failed to delete session", zap.String("session", sessionID), zap.Error(err))
		}
		return "", ErrInvalidSession
	}

	return s.answerer.Answer(ctx, query, session.CollectionName)
}

// Cleanup drops the session's collection, then the session itself.
func (s *SessionService) Cleanup(ctx context.Context, sessionID string) error {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCollection(ctx, session.CollectionName); err != nil {
		return fmt.Errorf("delete collection %s: %w", session.CollectionName, err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.log.Info("Session cleaned up", zap.String("session", sessionID))
	return nil
}

func (s *SessionService) lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	session, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidSession
	}
	return session, nil
}

func uploadExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf", ".txt", ".md":
		return ext
	default:
		return ".pdf"
	}
}
