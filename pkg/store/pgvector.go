package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/sitebot/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorStore implements types.VectorIndex on Postgres + pgvector.
// Per-bot namespacing is a bot_id column applied as a filter on
// every query and delete.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewVectorStore(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunk_vectors"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{config: config, pool: pool}
	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			bot_id TEXT NOT NULL,
			id TEXT NOT NULL,
			url TEXT,
			page_title TEXT,
			category TEXT,
			embedding vector(%d),
			PRIMARY KEY (bot_id, id)
		)`, vs.config.TableName, vs.config.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes vectors idempotently by (bot_id, id).
func (vs *VectorStore) Upsert(ctx context.Context, vectors []types.Vector) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (bot_id, id, url, page_title, category, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bot_id, id) DO UPDATE SET
			url = EXCLUDED.url,
			page_title = EXCLUDED.page_title,
			category = EXCLUDED.category,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for _, v := range vectors {
		_, err := tx.Exec(ctx, stmt,
			v.BotID,
			v.ID,
			v.Chunk.URL,
			sanitizeUTF8(v.Chunk.PageTitle),
			v.Chunk.Category,
			pgvector.NewVector(v.Values),
		)
		if err != nil {
			return fmt.Errorf("failed to insert vector %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the topK nearest neighbors inside the bot's
// namespace, scored by cosine similarity.
func (vs *VectorStore) Query(ctx context.Context, embedding []float32, botID string, topK int) ([]types.VectorMatch, error) {
	if topK == 0 {
		topK = 20
	}

	query := fmt.Sprintf(`
		SELECT id, bot_id, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE bot_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), botID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var matches []types.VectorMatch
	for rows.Next() {
		var m types.VectorMatch
		if err := rows.Scan(&m.ID, &m.BotID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (vs *VectorStore) DeleteByIDs(ctx context.Context, botID string, ids []string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE bot_id = $1 AND id = ANY($2)`, vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, stmt, botID, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
