package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/sitebot/pkg/retry"
	"github.com/xhad/sitebot/pkg/store"
)

// fakeEmbeddingClient returns a distinct vector per text and counts
// upstream calls.
type fakeEmbeddingClient struct {
	calls     int
	lastBatch []string
	fail      bool
}

func (f *fakeEmbeddingClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.lastBatch = texts
	if f.fail {
		return nil, assert.AnError
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i)}
	}
	return out, nil
}

func newTestEmbedder(client *fakeEmbeddingClient, records *store.Records, model string) *Embedder {
	return NewEmbedderWithClient(EmbedderConfig{
		Model:    model,
		CacheTTL: time.Hour,
		Retry:    retry.Policy{Attempts: 1, Delay: time.Millisecond},
	}, client, records, nil)
}

func TestEmbed_SingleUpstreamCallForMisses(t *testing.T) {
	records := store.NewRecords(store.NewMemoryKV())
	client := &fakeEmbeddingClient{}
	e := newTestEmbedder(client, records, "m1")

	texts := []string{"alpha", "beta", "gamma"}
	first, err := e.Embed(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, texts, client.lastBatch)
}

func TestEmbed_CacheHitsSkipUpstream(t *testing.T) {
	records := store.NewRecords(store.NewMemoryKV())
	client := &fakeEmbeddingClient{}
	e := newTestEmbedder(client, records, "m1")
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)

	// Second round: one hit, one new text. Only the miss goes up, in
	// one call.
	second, err := e.Embed(ctx, []string{"alpha", "delta"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, []string{"delta"}, client.lastBatch)
	assert.Equal(t, first[0], second[0])
}

func TestEmbed_FullCacheHitMakesNoCall(t *testing.T) {
	records := store.NewRecords(store.NewMemoryKV())
	client := &fakeEmbeddingClient{}
	e := newTestEmbedder(client, records, "m1")
	ctx := context.Background()

	_, err := e.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)

	_, err = e.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestEmbed_ModelChangeInvalidatesCache(t *testing.T) {
	records := store.NewRecords(store.NewMemoryKV())
	client := &fakeEmbeddingClient{}
	ctx := context.Background()

	_, err := newTestEmbedder(client, records, "m1").Embed(ctx, []string{"alpha"})
	require.NoError(t, err)

	_, err = newTestEmbedder(client, records, "m2").Embed(ctx, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestEmbed_OrderPreservedAcrossHitMissMix(t *testing.T) {
	records := store.NewRecords(store.NewMemoryKV())
	client := &fakeEmbeddingClient{}
	e := newTestEmbedder(client, records, "m1")
	ctx := context.Background()

	warm, err := e.Embed(ctx, []string{"bb"})
	require.NoError(t, err)

	mixed, err := e.Embed(ctx, []string{"aaaa", "bb", "cccccc"})
	require.NoError(t, err)
	require.Len(t, mixed, 3)

	// Each vector's first component encodes the text length.
	assert.Equal(t, float32(4), mixed[0][0])
	assert.Equal(t, warm[0], mixed[1])
	assert.Equal(t, float32(6), mixed[2][0])
}

func TestEmbed_UpstreamFailure(t *testing.T) {
	records := store.NewRecords(store.NewMemoryKV())
	client := &fakeEmbeddingClient{fail: true}
	e := newTestEmbedder(client, records, "m1")

	_, err := e.Embed(context.Background(), []string{"alpha"})
	assert.Error(t, err)
}

func TestContentHash_StableAndDistinct(t *testing.T) {
	assert.Equal(t, ContentHash("hello world"), ContentHash("hello world"))
	assert.NotEqual(t, ContentHash("hello world"), ContentHash("hello worlds"))
	assert.NotEmpty(t, ContentHash(""))
}
