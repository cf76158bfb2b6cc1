package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/internal/types"
	"github.com/xhad/sitebot/pkg/llm"
	"github.com/xhad/sitebot/pkg/search"
)

const greetingSampleChunks = 5

type chatRequest struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	Links     []string `json:"links"`
	SessionID string   `json:"sessionId"`
}

// handleChat never returns a 5xx to the widget: once the bot is known,
// every internal failure degrades to an apology in the user's
// language.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ID == "" || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and message are required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx := c.Request.Context()

	bot, err := s.records.GetBot(ctx, req.ID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
			return
		}
		s.logger.Error("bot lookup failed", "bot", req.ID, "error", err)
		c.JSON(http.StatusOK, chatResponse{
			Response:  llm.ApologyMessage("en"),
			Links:     []string{},
			SessionID: req.SessionID,
		})
		return
	}

	answer, links := s.answer(ctx, bot, req.SessionID, req.Message)

	c.JSON(http.StatusOK, chatResponse{
		Response:  answer,
		Links:     links,
		SessionID: req.SessionID,
	})
}

// answer runs the full chat turn: history, analysis, retrieval,
// generation, history write-back. Always produces a user-facing
// string.
func (s *Server) answer(ctx context.Context, bot models.Bot, sessionID, message string) (string, []string) {
	history, err := s.records.GetConversation(ctx, bot.ID, sessionID)
	if err != nil {
		s.logger.Warn("history load failed", "bot", bot.ID, "session", sessionID, "error", err)
		history = nil
	}

	analysis := s.analyzer.Analyze(ctx, message, history)

	var reply string
	sources := []string{}

	if analysis.IsGreeting {
		reply = s.greet(ctx, bot, analysis.Language)
	} else {
		reply, sources = s.respond(ctx, bot, analysis, history, message)
	}

	updated := models.AppendTurns(history,
		models.Turn{Role: models.RoleUser, Content: message},
		models.Turn{Role: models.RoleAssistant, Content: reply},
	)
	if err := s.records.PutConversation(ctx, bot.ID, sessionID, updated); err != nil {
		s.logger.Warn("history write failed", "bot", bot.ID, "session", sessionID, "error", err)
	}

	return reply, sources
}

// greet generates a contextual welcome from the site's first chunks,
// falling back to the canned greeting.
func (s *Server) greet(ctx context.Context, bot models.Bot, language string) string {
	indices := make([]int, 0, greetingSampleChunks)
	for i := 0; i < greetingSampleChunks && i < bot.TotalChunks; i++ {
		indices = append(indices, i)
	}

	var samples []string
	for _, chunk := range s.records.GetChunks(ctx, bot.ID, indices) {
		samples = append(samples, chunk.Text)
	}

	if len(samples) > 0 {
		prompt := llm.BuildGreetingPrompt(bot, language, samples)
		if reply, err := s.generator.Generate(ctx, "", prompt); err == nil {
			if cleaned := llm.CleanResponse(reply); cleaned != "" {
				return cleaned
			}
		} else {
			s.logger.Debug("greeting generation failed", "bot", bot.ID, "error", err)
		}
	}
	return llm.DefaultGreeting(language, bot.Title)
}

func (s *Server) respond(ctx context.Context, bot models.Bot, analysis models.Analysis, history []models.Turn, message string) (string, []string) {
	results := s.engine.SearchWithFallback(ctx, analysis.SearchQuery, bot.ID)
	if len(results) == 0 {
		return llm.NoInfoMessage(analysis.Language), []string{}
	}

	// Source links come off the fused ranking; reranking reorders the
	// prompt context but never the citations.
	sources := search.SourceLinks(results)
	if sources == nil {
		sources = []string{}
	}

	results = s.engine.Rerank(ctx, results, analysis.SearchQuery)

	prompt := llm.BuildAnswerPrompt(bot, results, history, message, analysis.SearchQuery, s.config.MaxPromptChunks)
	reply, err := s.generator.Generate(ctx, "", prompt)
	if err != nil {
		s.logger.Error("answer generation failed", "bot", bot.ID, "error", err)
		return llm.ApologyMessage(analysis.Language), []string{}
	}

	cleaned := llm.CleanResponse(reply)
	if cleaned == "" {
		return llm.NoInfoMessage(analysis.Language), []string{}
	}
	return cleaned, sources
}
