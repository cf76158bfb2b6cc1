// Package search implements the hybrid retrieval engine: semantic
// and lexical search run independently, their rankings fused with a
// rank-aware score sum, optionally reranked by a cross-encoder.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/internal/types"
	"github.com/xhad/sitebot/pkg/lexical"
	"github.com/xhad/sitebot/pkg/llm"
	"github.com/xhad/sitebot/pkg/store"
)

const (
	semanticTopK = 20
	fusedTopK    = 15
	// scoreEpsilon floors the per-channel maximum so normalization
	// never divides by zero.
	scoreEpsilon = 0.0001
	// sourceThreshold gates which chunks surface as links.
	sourceThreshold = 0.4
	maxSourceLinks  = 3
)

type Config struct {
	// ScoreThreshold discards semantic matches below this cosine
	// similarity.
	ScoreThreshold float64
}

type Engine struct {
	config   Config
	embedder types.Embedder
	index    types.VectorIndex
	lexical  *lexical.Index
	records  *store.Records
	reranker types.Reranker
	logger   *slog.Logger
}

// New builds the engine. reranker may be nil; reranking then always
// uses the heuristic fallback.
func New(config Config, embedder types.Embedder, index types.VectorIndex, lex *lexical.Index, records *store.Records, reranker types.Reranker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config:   config,
		embedder: embedder,
		index:    index,
		lexical:  lex,
		records:  records,
		reranker: reranker,
		logger:   logger,
	}
}

// Semantic embeds the query, takes the top-20 neighbors inside the
// bot's namespace, drops matches under the similarity threshold and
// hydrates the survivors from the chunk store.
func (e *Engine) Semantic(ctx context.Context, query, botID string) ([]models.SearchResult, error) {
	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	matches, err := e.index.Query(ctx, embeddings[0], botID, semanticTopK)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	var results []models.SearchResult
	for _, match := range matches {
		if match.Score <= e.config.ScoreThreshold {
			continue
		}
		idx, err := strconv.Atoi(match.ID)
		if err != nil {
			continue
		}
		chunk, err := e.records.GetChunk(ctx, botID, idx)
		if err != nil {
			continue
		}
		results = append(results, models.SearchResult{Chunk: chunk, Score: match.Score})
	}
	return results, nil
}

// Search runs both channels and fuses them: each list's scores are
// normalized by their own maximum, then every chunk collects a
// 1/(1+rank) bonus per channel it appears in. A chunk found by only
// one channel still scores, just without the other's contribution.
func (e *Engine) Search(ctx context.Context, query, botID string) ([]models.SearchResult, error) {
	semantic, err := e.Semantic(ctx, query, botID)
	if err != nil {
		// The lexical channel can still carry the query.
		e.logger.Debug("semantic channel failed", "error", err)
		semantic = nil
	}

	lexResults, err := e.lexical.Search(ctx, botID, query)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	if semantic == nil && lexResults == nil {
		return nil, nil
	}

	e.logger.Debug("hybrid search channels",
		"semantic", len(semantic), "lexical", len(lexResults), "bot", botID)

	maxSem := scoreEpsilon
	for _, r := range semantic {
		if r.Score > maxSem {
			maxSem = r.Score
		}
	}
	maxLex := scoreEpsilon
	for _, r := range lexResults {
		if r.LexicalScore > maxLex {
			maxLex = r.LexicalScore
		}
	}

	merged := make(map[int]*models.SearchResult)

	for rank, r := range semantic {
		norm := r.Score / maxSem
		entry := r
		entry.SemanticScore = norm
		entry.HybridScore = norm + 1/float64(1+rank)
		merged[r.ChunkIndex] = &entry
	}

	for rank, r := range lexResults {
		norm := r.LexicalScore / maxLex
		bonus := norm + 1/float64(1+rank)
		if entry, ok := merged[r.ChunkIndex]; ok {
			entry.LexicalScore = norm
			entry.HybridScore += bonus
		} else {
			merged[r.ChunkIndex] = &models.SearchResult{
				Chunk:        models.Chunk{ChunkIndex: r.ChunkIndex, BotID: botID},
				LexicalScore: norm,
				HybridScore:  bonus,
			}
		}
	}

	fused := make([]models.SearchResult, 0, len(merged))
	for _, entry := range merged {
		fused = append(fused, *entry)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].HybridScore > fused[j].HybridScore
	})
	if len(fused) > fusedTopK {
		fused = fused[:fusedTopK]
	}

	// Refresh full chunk data for the survivors; lexical-only hits
	// have nothing but an index until here.
	indices := make([]int, len(fused))
	for i, r := range fused {
		indices[i] = r.ChunkIndex
	}
	hydrated := e.records.GetChunks(ctx, botID, indices)
	byIndex := make(map[int]models.Chunk, len(hydrated))
	for _, c := range hydrated {
		byIndex[c.ChunkIndex] = c
	}
	for i := range fused {
		if chunk, ok := byIndex[fused[i].ChunkIndex]; ok {
			fused[i].Chunk = chunk
		}
	}

	return fused, nil
}

// SearchWithFallback applies the failure policy: hybrid, then
// semantic-only, then empty.
func (e *Engine) SearchWithFallback(ctx context.Context, query, botID string) []models.SearchResult {
	results, err := e.Search(ctx, query, botID)
	if err == nil {
		return results
	}
	e.logger.Warn("hybrid search failed, falling back to semantic", "error", err)

	results, err = e.Semantic(ctx, query, botID)
	if err != nil {
		e.logger.Warn("semantic fallback failed", "error", err)
		return nil
	}
	return results
}

// Rerank re-scores the candidates with the cross-encoder when one is
// configured, falling back to the token-match heuristic on failure.
func (e *Engine) Rerank(ctx context.Context, results []models.SearchResult, query string) []models.SearchResult {
	if len(results) == 0 {
		return results
	}

	if e.reranker != nil {
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Text
		}

		scores, err := e.reranker.Rerank(ctx, query, texts)
		if err == nil && len(scores) == len(results) {
			out := make([]models.SearchResult, len(results))
			copy(out, results)
			for i := range out {
				out[i].Score = scores[i]
			}
			sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
			return out
		}
		e.logger.Debug("model rerank failed, using heuristic", "error", err)
	}

	out := llm.HeuristicRerank(results, query)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SourceLinks picks the chunks confident enough to cite: fused or
// raw score above the threshold, deduplicated by URL, at most three.
func SourceLinks(results []models.SearchResult) []string {
	seen := make(map[string]bool)
	var links []string

	for _, r := range results {
		score := r.HybridScore
		if score == 0 {
			score = r.Score
		}
		if score <= sourceThreshold || r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		links = append(links, r.URL)
		if len(links) == maxSourceLinks {
			break
		}
	}
	return links
}
