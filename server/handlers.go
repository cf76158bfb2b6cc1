package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xhad/sitebot/internal/types"
	"github.com/xhad/sitebot/pkg/ingest"
)

type createRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"maxPages"`
	MaxDepth int    `json:"maxDepth"`
}

type createResponse struct {
	Success         bool   `json:"success"`
	BotID           string `json:"botId"`
	Title           string `json:"title"`
	EmbedCode       string `json:"embedCode"`
	PagesProcessed  int    `json:"pagesProcessed"`
	ChunksProcessed int    `json:"chunksProcessed"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	result, err := s.ingestor.Create(c.Request.Context(), req.URL, req.MaxPages, req.MaxDepth)
	if err != nil {
		s.logger.Error("bot creation failed", "url", req.URL, "error", err)
		switch {
		case errors.Is(err, ingest.ErrNoContent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ingest.ErrBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case isValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create bot"})
		}
		return
	}

	c.JSON(http.StatusOK, createResponse{
		Success:         true,
		BotID:           result.BotID,
		Title:           result.Title,
		EmbedCode:       embedCode(requestOrigin(c), result.BotID),
		PagesProcessed:  result.PagesProcessed,
		ChunksProcessed: result.ChunksProcessed,
	})
}

// embedCode is the snippet site owners paste into their pages.
func embedCode(origin, botID string) string {
	return fmt.Sprintf(`<script src="%s/widget.js" data-bot-id="%s"></script>`, origin, botID)
}

// isValidationError distinguishes rejected URLs from infrastructure
// failures so the client gets a 400 rather than a 500.
func isValidationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid URL") ||
		strings.Contains(msg, "unsupported scheme") ||
		strings.Contains(msg, "not allowed")
}

type botSummary struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	CreatedAt   int64  `json:"createdAt"`
	TotalPages  int    `json:"totalPages"`
	TotalChunks int    `json:"totalChunks"`
}

func (s *Server) handleList(c *gin.Context) {
	bots, err := s.records.ListBots(c.Request.Context())
	if err != nil {
		s.logger.Error("bot listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bots"})
		return
	}

	summaries := make([]botSummary, 0, len(bots))
	for _, bot := range bots {
		summaries = append(summaries, botSummary{
			ID:          bot.ID,
			URL:         bot.URL,
			Title:       bot.Title,
			CreatedAt:   bot.CreatedAt,
			TotalPages:  bot.TotalPages,
			TotalChunks: bot.TotalChunks,
		})
	}
	c.JSON(http.StatusOK, gin.H{"chatbots": summaries})
}

func (s *Server) handleDelete(c *gin.Context) {
	botID := c.Param("botId")

	result, err := s.ingestor.Delete(c.Request.Context(), botID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		case errors.Is(err, ingest.ErrBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			s.logger.Error("bot deletion failed", "bot", botID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete bot"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "chatbot deleted successfully",
		"details": result,
	})
}
