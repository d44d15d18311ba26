package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileIngester is implemented by *SessionService.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (string, error)
}

// InboxWatcher ingests every document dropped into a directory into a new
// session. Files with content already ingested by this watcher are skipped.
type InboxWatcher struct {
	dir      string
	ingester FileIngester
	settle   time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	seen    map[string]string // content hash -> session id
	wg      sync.WaitGroup
}

// NewInboxWatcher waits settle after the last write to a file before
// ingesting it, so copies in progress are not picked up half written.
func NewInboxWatcher(dir string, ingester FileIngester, settle time.Duration, log *zap.Logger) *InboxWatcher {
	return &InboxWatcher{
		dir:      dir,
		ingester: ingester,
		settle:   settle,
		log:      log,
		pending:  map[string]*time.Timer{},
		seen:     map[string]string{},
	}
}

// Run blocks until ctx is cancelled and all started ingestions finish.
func (w *InboxWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("Watching inbox", zap.String("dir", w.dir))

	defer w.wg.Wait()
	defer w.stopPending()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule(ctx, event.Name)
			} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.cancel(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Inbox watcher error", zap.Error(err))
		case <-ctx.Done():
			w.log.Info("Inbox watcher shutting down")
			return nil
		}
	}
}

func (w *InboxWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.ingest(ctx, path)
		}
	})
	w.pending[path] = t
}

func (w *InboxWatcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		delete(w.pending, path)
		w.wg.Done()
	}
}

func (w *InboxWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *InboxWatcher) ingest(ctx context.Context, path string) {
	log := w.log.With(zap.String("file", path))

	hash, err := calculateFileHash(path)
	if err != nil {
		log.Warn("Could not hash inbox file", zap.Error(err))
		return
	}
	w.mu.Lock()
	if id, ok := w.seen[hash]; ok {
		w.mu.Unlock()
		log.Info("Inbox file already ingested", zap.String("session", id))
		return
	}
	w.seen[hash] = ""
	w.mu.Unlock()

	id, err := w.ingester.IngestFile(ctx, path)
	w.mu.Lock()
	if err != nil {
		delete(w.seen, hash)
	} else {
		w.seen[hash] = id
	}
	w.mu.Unlock()
	if err != nil {
		log.Error("Failed to ingest inbox file", zap.Error(err))
		return
	}
	log.Info("Inbox file ingested", zap.String("session", id))
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	default:
		return false
	}
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
