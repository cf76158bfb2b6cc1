package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/retry"
)

// HTTPReranker calls a TEI-style cross-encoder /rerank endpoint.
type HTTPReranker struct {
	BaseURL string
	Client  *http.Client
	Retry   retry.Policy
}

func NewHTTPReranker(baseURL string) *HTTPReranker {
	return &HTTPReranker{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retry:   retry.Default,
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank returns one score per input text, position i scoring
// texts[i].
func (r *HTTPReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if r.BaseURL == "" {
		return nil, fmt.Errorf("rerank: no endpoint configured")
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(r.BaseURL, "/") + "/rerank"
	results, err := retry.Do1(ctx, r.Retry, func() ([]rerankResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			return nil, fmt.Errorf("rerank: status %d: %s", resp.StatusCode, msg)
		}

		var out []rerankResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("rerank: decode response: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	for _, res := range results {
		if res.Index >= 0 && res.Index < len(scores) {
			scores[res.Index] = res.Score
		}
	}
	return scores, nil
}

var digitRe = regexp.MustCompile(`\d`)

// HeuristicRerank is the fallback when the reranking model is
// unavailable: a fixed bonus per exact token occurrence of each
// query term, plus a small bonus when both query and chunk carry a
// digit.
func HeuristicRerank(chunks []models.SearchResult, query string) []models.SearchResult {
	queryTokens := strings.Fields(strings.ToLower(query))
	queryHasDigit := digitRe.MatchString(query)

	out := make([]models.SearchResult, len(chunks))
	for i, chunk := range chunks {
		text := strings.ToLower(chunk.Text)
		score := chunk.Score

		for _, token := range queryTokens {
			score += float64(strings.Count(text, token)) * 0.1
		}
		if queryHasDigit && digitRe.MatchString(chunk.Text) {
			score += 0.05
		}

		out[i] = chunk
		out[i].Score = score
	}
	return out
}
