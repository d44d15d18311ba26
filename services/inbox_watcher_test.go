package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIngester) IngestFile(_ context.Context, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return "sess-" + filepath.Base(path), nil
}

func (r *recordingIngester) ingested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestInboxWatcherIngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ingester := &recordingIngester{}
	w := NewInboxWatcher(dir, ingester, 50*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.png"), []byte("png"), 0o644))

	assert.Eventually(t, func() bool { return len(ingester.ingested()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Same content under another name is skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.md"), []byte("alpha"), 0o644))
	time.Sleep(200 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"a.md"}, ingester.ingested())
}

func TestIsSupportedFile(t *testing.T) {
	assert.True(t, isSupportedFile("/in/Report.PDF"))
	assert.True(t, isSupportedFile("notes.md"))
	assert.False(t, isSupportedFile("photo.jpg"))
}
