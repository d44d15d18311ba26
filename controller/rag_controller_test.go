package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/services"
)

type fakeSessions struct {
	uploadErr  error
	askErr     error
	cleanupErr error

	uploaded string
	asked    []string
	cleaned  []string
}

func (f *fakeSessions) Upload(_ context.Context, filename string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	f.uploaded = filename + ":" + string(data)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "sess-1", nil
}

func (f *fakeSessions) Ask(_ context.Context, sessionID, query string) (string, error) {
	f.asked = append(f.asked, sessionID+"|"+query)
	if f.askErr != nil {
		return "", f.askErr
	}
	return "It is on page 2.", nil
}

func (f *fakeSessions) Cleanup(_ context.Context, sessionID string) error {
	f.cleaned = append(f.cleaned, sessionID)
	return f.cleanupErr
}

func newTestRouter(sessions *fakeSessions, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	return NewRouter(NewRAGController(sessions, maxUpload, log), RouterOptions{
		FrontendURL: "http://localhost:5173",
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Log:         log,
	})
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	sessions := &fakeSessions{}
	router := newTestRouter(sessions, 0)

	w := do(router, multipartRequest(t, "pdf", "report.pdf", []byte("%PDF-1.7")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessionId":"sess-1"}`, w.Body.String())
	assert.Equal(t, "report.pdf:%PDF-1.7", sessions.uploaded)
}

func TestUploadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		w := do(newTestRouter(&fakeSessions{}, 0), multipartRequest(t, "document", "report.pdf", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ingestion failure is generic", func(t *testing.T) {
		sessions := &fakeSessions{uploadErr: &services.IngestionError{Stage: services.StageSummarize, Err: errors.New("quota key=secret")}}
		w := do(newTestRouter(sessions, 0), multipartRequest(t, "pdf", "report.pdf", []byte("x")))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Failed to upload and index PDF"}`, w.Body.String())
		assert.NotContains(t, w.Body.String(), "secret")
	})

	t.Run("too large", func(t *testing.T) {
		w := do(newTestRouter(&fakeSessions{}, 10), multipartRequest(t, "pdf", "big.pdf", bytes.Repeat([]byte("a"), 2<<20)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestAsk(t *testing.T) {
	sessions := &fakeSessions{}
	router := newTestRouter(sessions, 0)

	w := do(router, jsonRequest("/api/ask", `{"sessionId":"sess-1","query":"where is pricing?"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response":"It is on page 2."}`, w.Body.String())
	assert.Equal(t, []string{"sess-1|where is pricing?"}, sessions.asked)
}

func TestAskErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		code int
		want string
	}{
		{"invalid session", `{"sessionId":"nope","query":"q"}`, services.ErrInvalidSession, http.StatusBadRequest, `{"error":"Invalid session"}`},
		{"classification failure", `{"sessionId":"s","query":"q"}`, &services.ClassificationError{Err: errors.New("bad json")}, http.StatusInternalServerError, `{"error":"Failed to generate response"}`},
		{"retrieval failure", `{"sessionId":"s","query":"q"}`, &services.RetrievalError{Collection: "session_s", Err: errors.New("down")}, http.StatusInternalServerError, `{"error":"Failed to generate response"}`},
		{"missing query", `{"sessionId":"s"}`, nil, http.StatusBadRequest, `{"error":"Invalid request body"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(newTestRouter(&fakeSessions{askErr: tc.err}, 0), jsonRequest("/api/ask", tc.body))
			assert.Equal(t, tc.code, w.Code)
			assert.JSONEq(t, tc.want, w.Body.String())
		})
	}
}

func TestCleanup(t *testing.T) {
	sessions := &fakeSessions{}
	router := newTestRouter(sessions, 0)

	w := do(router, jsonRequest("/api/cleanup", `{"sessionId":"sess-1"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, []string{"sess-1"}, sessions.cleaned)

	w = do(newTestRouter(&fakeSessions{cleanupErr: services.ErrInvalidSession}, 0), jsonRequest("/api/cleanup", `{"sessionId":"x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newTestRouter(&fakeSessions{cleanupErr: errors.New("qdrant down")}, 0), jsonRequest("/api/cleanup", `{"sessionId":"x"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to cleanup session"}`, w.Body.String())
}

func TestRouterMisc(t *testing.T) {
	router := newTestRouter(&fakeSessions{}, 0)

	w := do(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = do(router, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Route not found"}`, w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", w.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/ask", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = do(router, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
