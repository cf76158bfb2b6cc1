// Package llm holds the model-facing components: the cached batch
// embedder, the chat generator, the query analyzer and the reranker.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/retry"
	"github.com/xhad/sitebot/pkg/store"
)

type EmbedderConfig struct {
	Model    string
	BaseURL  string
	CacheTTL time.Duration
	Retry    retry.Policy
}

// embeddingClient is what the embedder needs from its upstream
// model; *ollama.LLM satisfies it.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder produces embeddings through Ollama, deduplicating calls
// with a content-hash cache. Cache entries are honored only while
// the stored model identifier matches the active model, so a model
// change invalidates prior entries transparently.
type Embedder struct {
	config  EmbedderConfig
	llm     embeddingClient
	records *store.Records
	logger  *slog.Logger
}

func NewEmbedder(config EmbedderConfig, records *store.Records, logger *slog.Logger) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	return &Embedder{config: config, llm: emb, records: records, logger: logger}, nil
}

// NewEmbedderWithClient builds an embedder over a custom upstream,
// used by tests.
func NewEmbedderWithClient(config EmbedderConfig, client embeddingClient, records *store.Records, logger *slog.Logger) *Embedder {
	if config.CacheTTL == 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{config: config, llm: client, records: records, logger: logger}
}

// Embed returns one vector per input text, order-preserving
// regardless of the cache hit/miss mix. All misses go upstream in a
// single batched call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	type pending struct {
		index int
		text  string
		hash  string
	}
	var misses []pending

	for i, text := range texts {
		hash := ContentHash(text)
		entry, err := e.records.GetCacheEntry(ctx, hash)
		if err == nil && entry.Model == e.config.Model {
			embeddings[i] = entry.Embedding
			continue
		}
		misses = append(misses, pending{index: i, text: text, hash: hash})
	}

	if len(misses) == 0 {
		return embeddings, nil
	}

	missTexts := make([]string, len(misses))
	for i, m := range misses {
		missTexts[i] = m.text
	}

	fresh, err := retry.Do1(ctx, e.config.Retry, func() ([][]float32, error) {
		return e.llm.CreateEmbedding(ctx, missTexts)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(fresh) != len(misses) {
		return nil, fmt.Errorf("embedding call returned %d vectors for %d texts", len(fresh), len(misses))
	}

	now := time.Now().UnixMilli()
	for i, m := range misses {
		embeddings[m.index] = fresh[i]

		// Cache write-back is best-effort.
		err := e.records.PutCacheEntry(ctx, m.hash, models.CacheEntry{
			Embedding: fresh[i],
			Model:     e.config.Model,
			Timestamp: now,
		}, e.config.CacheTTL)
		if err != nil {
			e.logger.Debug("embedding cache write failed", "error", err)
		}
	}

	return embeddings, nil
}

// Model reports the active embedding model identifier.
func (e *Embedder) Model() string { return e.config.Model }
