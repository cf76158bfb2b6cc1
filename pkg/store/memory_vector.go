package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xhad/sitebot/internal/types"
)

// MemoryVectorIndex is an exact-scan types.VectorIndex for tests and
// small single-node deployments.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	vectors map[string]map[string]types.Vector // botID -> id -> vector
}

func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{vectors: make(map[string]map[string]types.Vector)}
}

func (m *MemoryVectorIndex) Upsert(_ context.Context, vectors []types.Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range vectors {
		ns, ok := m.vectors[v.BotID]
		if !ok {
			ns = make(map[string]types.Vector)
			m.vectors[v.BotID] = ns
		}
		ns[v.ID] = v
	}
	return nil
}

func (m *MemoryVectorIndex) Query(_ context.Context, embedding []float32, botID string, topK int) ([]types.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if topK == 0 {
		topK = 20
	}

	var matches []types.VectorMatch
	for id, v := range m.vectors[botID] {
		matches = append(matches, types.VectorMatch{
			ID:    id,
			BotID: botID,
			Score: cosine(embedding, v.Values),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryVectorIndex) DeleteByIDs(_ context.Context, botID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.vectors[botID]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// Count reports how many vectors a bot's namespace holds.
func (m *MemoryVectorIndex) Count(botID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors[botID])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
