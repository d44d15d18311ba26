package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
	"github.com/dhruvagrawal1080/PDF-Chat/services"
)

// SessionService is the business logic behind the HTTP API. It is
// implemented by *services.SessionService.
type SessionService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	Ask(ctx context.Context, sessionID, query string) (string, error)
	Cleanup(ctx context.Context, sessionID string) error
}

// RAGController handles the HTTP requests for the PDF chat API. Service
// errors never reach the client; they are logged here and replaced with a
// fixed message.
type RAGController struct {
	sessions       SessionService
	maxUploadBytes int64
	log            *zap.Logger
}

func NewRAGController(sessions SessionService, maxUploadBytes int64, log *zap.Logger) *RAGController {
	return &RAGController{
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Upload is the handler for POST /api/upload. The document arrives in the
// multipart field "pdf".
func (c *RAGController) Upload(ctx *gin.Context) {
	if c.maxUploadBytes > 0 {
		// Leave room for the multipart envelope around the file itself.
		limit := c.maxUploadBytes + 1<<20
		if ctx.Request.ContentLength > limit {
			ctx.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File too large"})
			return
		}
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	}

	header, err := ctx.FormFile("pdf")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No PDF file uploaded"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.log.Error("Failed to open upload", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to upload and index PDF"})
		return
	}
	defer file.Close()

	sessionID, err := c.sessions.Upload(ctx.Request.Context(), header.Filename, file)
	if err != nil {
		c.log.Error("Upload error", zap.String("filename", header.Filename), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to upload and index PDF"})
		return
	}
	ctx.JSON(http.StatusOK, models.UploadResponse{SessionID: sessionID})
}

// Ask is the handler for POST /api/ask.
func (c *RAGController) Ask(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	response, err := c.sessions.Ask(ctx.Request.Context(), req.SessionID, req.Query)
	if errors.Is(err, services.ErrInvalidSession) {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session"})
		return
	}
	if err != nil {
		c.log.Error("Chat error", zap.String("session", req.SessionID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate response"})
		return
	}
	ctx.JSON(http.StatusOK, models.AskResponse{Response: response})
}

// Cleanup is the handler for POST /api/cleanup, called when the client tab
// is reloaded or closed.
func (c *RAGController) Cleanup(ctx *gin.Context) {
	var req models.CleanupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session"})
		return
	}

	err := c.sessions.Cleanup(ctx.Request.Context(), req.SessionID)
	if errors.Is(err, services.ErrInvalidSession) {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session"})
		return
	}
	if err != nil {
		c.log.Error("Cleanup error", zap.String("session", req.SessionID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to cleanup session"})
		return
	}
	ctx.JSON(http.StatusOK, models.CleanupResponse{Success: true})
}
