package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/internal/types"
)

// Key scheme shared by every record family. Relations between
// entities are by key lookup only.
func BotKey(botID string) string            { return "bot:" + botID }
func ChunkKey(botID string, idx int) string { return fmt.Sprintf("chunk:%s:%d", botID, idx) }
func ConvKey(botID, sessionID string) string {
	return fmt.Sprintf("conv:%s:%s", botID, sessionID)
}
func CacheKey(hash string) string   { return "embcache:" + hash }
func URLHashKey(hash string) string { return "urlhash:" + hash }
func lockKey(botID string) string   { return "lock:" + botID }

// Records wraps a KV with the typed accessors for each record
// family. Stored JSON that fails to parse surfaces as
// types.ErrCorruptRecord, never a crash.
type Records struct {
	kv types.KV
}

func NewRecords(kv types.KV) *Records {
	return &Records{kv: kv}
}

func (r *Records) KV() types.KV { return r.kv }

func (r *Records) PutBot(ctx context.Context, bot models.Bot) error {
	data, err := json.Marshal(bot)
	if err != nil {
		return fmt.Errorf("marshal bot %s: %w", bot.ID, err)
	}
	return r.kv.Put(ctx, BotKey(bot.ID), string(data), 0)
}

func (r *Records) GetBot(ctx context.Context, botID string) (models.Bot, error) {
	raw, err := r.kv.Get(ctx, BotKey(botID))
	if err != nil {
		return models.Bot{}, err
	}
	var bot models.Bot
	if err := json.Unmarshal([]byte(raw), &bot); err != nil || bot.ID == "" {
		return models.Bot{}, fmt.Errorf("bot %s: %w", botID, types.ErrCorruptRecord)
	}
	return bot, nil
}

func (r *Records) DeleteBot(ctx context.Context, botID string) error {
	return r.kv.Delete(ctx, BotKey(botID))
}

// ListBots returns all bot records sorted newest-first. Corrupt
// records are skipped, not fatal.
func (r *Records) ListBots(ctx context.Context) ([]models.Bot, error) {
	keys, err := r.kv.List(ctx, "bot:")
	if err != nil {
		return nil, err
	}

	bots := make([]models.Bot, 0, len(keys))
	for _, key := range keys {
		bot, err := r.GetBot(ctx, strings.TrimPrefix(key, "bot:"))
		if err != nil {
			if errors.Is(err, types.ErrCorruptRecord) || errors.Is(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		bots = append(bots, bot)
	}

	sort.Slice(bots, func(i, j int) bool {
		return bots[i].CreatedAt > bots[j].CreatedAt
	})
	return bots, nil
}

func (r *Records) PutChunk(ctx context.Context, chunk models.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk %d: %w", chunk.ChunkIndex, err)
	}
	return r.kv.Put(ctx, ChunkKey(chunk.BotID, chunk.ChunkIndex), string(data), 0)
}

func (r *Records) GetChunk(ctx context.Context, botID string, idx int) (models.Chunk, error) {
	raw, err := r.kv.Get(ctx, ChunkKey(botID, idx))
	if err != nil {
		return models.Chunk{}, err
	}
	var chunk models.Chunk
	if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
		return models.Chunk{}, fmt.Errorf("chunk %s/%d: %w", botID, idx, types.ErrCorruptRecord)
	}
	return chunk, nil
}

// GetChunks hydrates the given chunk indices; missing or corrupt
// entries are silently dropped.
func (r *Records) GetChunks(ctx context.Context, botID string, indices []int) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(indices))
	for _, idx := range indices {
		chunk, err := r.GetChunk(ctx, botID, idx)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (r *Records) DeleteChunk(ctx context.Context, botID string, idx int) error {
	return r.kv.Delete(ctx, ChunkKey(botID, idx))
}

func (r *Records) GetConversation(ctx context.Context, botID, sessionID string) ([]models.Turn, error) {
	raw, err := r.kv.Get(ctx, ConvKey(botID, sessionID))
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var turns []models.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("conversation %s/%s: %w", botID, sessionID, types.ErrCorruptRecord)
	}
	return turns, nil
}

// PutConversation overwrites a session's history, trimmed to the
// sliding window.
func (r *Records) PutConversation(ctx context.Context, botID, sessionID string, turns []models.Turn) error {
	if len(turns) > models.MaxHistoryTurns {
		turns = turns[len(turns)-models.MaxHistoryTurns:]
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return r.kv.Put(ctx, ConvKey(botID, sessionID), string(data), 0)
}

func (r *Records) ListConversationKeys(ctx context.Context, botID string) ([]string, error) {
	return r.kv.List(ctx, fmt.Sprintf("conv:%s:", botID))
}

func (r *Records) GetCacheEntry(ctx context.Context, hash string) (models.CacheEntry, error) {
	raw, err := r.kv.Get(ctx, CacheKey(hash))
	if err != nil {
		return models.CacheEntry{}, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache entry %s: %w", hash, types.ErrCorruptRecord)
	}
	return entry, nil
}

func (r *Records) PutCacheEntry(ctx context.Context, hash string, entry models.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return r.kv.Put(ctx, CacheKey(hash), string(data), ttl)
}

// AcquireLock takes the per-bot advisory lock guarding ingest and
// delete against concurrent writers. Best-effort: the TTL bounds how
// long a crashed holder can block others.
func (r *Records) AcquireLock(ctx context.Context, botID string, ttl time.Duration) (bool, error) {
	return r.kv.PutIfAbsent(ctx, lockKey(botID), "1", ttl)
}

func (r *Records) ReleaseLock(ctx context.Context, botID string) error {
	return r.kv.Delete(ctx, lockKey(botID))
}
