// Package server exposes the HTTP API: bot lifecycle, chat, the
// embeddable widget script and a websocket channel for interactive
// sessions.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xhad/sitebot/internal/types"
	"github.com/xhad/sitebot/pkg/ingest"
	"github.com/xhad/sitebot/pkg/llm"
	"github.com/xhad/sitebot/pkg/search"
	"github.com/xhad/sitebot/pkg/store"
)

type Config struct {
	Addr            string
	MaxPromptChunks int
}

type Server struct {
	config    Config
	records   *store.Records
	ingestor  *ingest.Service
	engine    *search.Engine
	analyzer  *llm.Analyzer
	generator types.Generator
	logger    *slog.Logger

	http *http.Server
}

func New(config Config, records *store.Records, ingestor *ingest.Service, engine *search.Engine, analyzer *llm.Analyzer, generator types.Generator, logger *slog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxPromptChunks == 0 {
		config.MaxPromptChunks = 6
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:    config,
		records:   records,
		ingestor:  ingestor,
		engine:    engine,
		analyzer:  analyzer,
		generator: generator,
		logger:    logger,
	}
}

// Router wires every route. Split out from Run so tests can drive the
// handlers through httptest.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := router.Group("/api")
	{
		api.POST("/create", s.handleCreate)
		api.GET("/list", s.handleList)
		api.DELETE("/delete/:botId", s.handleDelete)
		api.POST("/chat", s.handleChat)
	}

	router.GET("/widget.js", s.handleWidget)
	router.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	s.logger.Info("server listening", "addr", s.config.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// The widget runs on arbitrary third-party pages, so the API answers
// any origin.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
