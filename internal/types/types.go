package types

import (
	"context"
	"errors"
	"time"

	"github.com/xhad/sitebot/internal/models"
)

// ErrNotFound is returned by stores when a key or record is absent.
var ErrNotFound = errors.New("not found")

// ErrCorruptRecord is returned when a stored record exists but does
// not parse into its schema.
var ErrCorruptRecord = errors.New("corrupt record")

// KV is the key-value collaborator backing bot metadata, chunk text,
// conversation history, lexical postings and the embedding cache.
// Implementations are eventually consistent; none of these
// operations are transactional.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// PutIfAbsent is the advisory-lock primitive: it stores the value
	// only when the key does not exist and reports whether it did.
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Vector is one entry of the vector index.
type Vector struct {
	ID     string
	BotID  string
	Values []float32
	Chunk  models.Chunk
}

// VectorMatch is a nearest-neighbor hit.
type VectorMatch struct {
	ID    string
	BotID string
	Score float64
}

// VectorIndex is the opaque ANN collaborator. Queries and deletes
// are scoped to a bot's namespace via the bot id filter.
type VectorIndex interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, embedding []float32, botID string, topK int) ([]VectorMatch, error)
	DeleteByIDs(ctx context.Context, botID string, ids []string) error
}

// Embedder turns texts into vectors, preserving input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator is the generative language model collaborator.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Reranker re-scores a candidate set against a query. Output length
// equals input length, position i scoring texts[i].
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}
