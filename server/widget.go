package server

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed widget.js
var widgetSource string

// requestOrigin reconstructs the externally visible origin of the
// request, honoring the proxy protocol header.
func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// handleWidget serves the embeddable chat script. The serving origin
// is baked in so the widget calls back to the right host; a botId
// query parameter is baked in too when the embedder doesn't use the
// data-bot-id attribute.
func (s *Server) handleWidget(c *gin.Context) {
	body := strings.ReplaceAll(widgetSource, "__ORIGIN__", requestOrigin(c))
	if botID := c.Query("botId"); botID != "" {
		body = strings.ReplaceAll(body, "__BOT_ID__", botID)
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(body))
}
