package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	FrontendURL string
	Metrics     http.Handler // served on /metrics when set
	Log         *zap.Logger
}

// NewRouter registers every route of the API.
func NewRouter(rag *RAGController, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), accessLog(opts.Log), cors(opts.FrontendURL))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.StatusResponse{Success: true, Message: "Your server is up and running...."})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "PDF Chat API",
		})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api")
	{
		api.POST("/upload", rag.Upload)
		api.POST("/ask", rag.Ask)
		api.POST("/cleanup", rag.Cleanup)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.StatusResponse{Success: false, Message: "Route not found"})
	})
	return router
}

// cors allows the configured frontend origin, with credentials.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed := origin
		if allowed == "" || allowed == "*" {
			allowed = c.GetHeader("Origin")
			if allowed == "" {
				allowed = "*"
			}
		}
		c.Header("Access-Control-Allow-Origin", allowed)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
