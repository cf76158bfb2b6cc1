package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/llm"
)

// stubGenerator returns a fixed reply, or an error when reply is
// empty.
type stubGenerator struct {
	reply string
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.reply == "" {
		return "", assert.AnError
	}
	return s.reply, nil
}

func TestAnalyze_ParsesModelReply(t *testing.T) {
	gen := &stubGenerator{reply: `Here you go:
{"language": "en", "isGreeting": false, "expandedQuery": "widget pricing plans cost", "originalQuery": "how much?"}`}
	a := llm.NewAnalyzer(gen, nil)

	analysis := a.Analyze(context.Background(), "how much?", nil)

	assert.Equal(t, "en", analysis.Language)
	assert.False(t, analysis.IsGreeting)
	assert.Equal(t, "widget pricing plans cost", analysis.SearchQuery)
	assert.Equal(t, "how much?", analysis.OriginalQuery)
}

func TestAnalyze_FallsBackWhenReplyUnparseable(t *testing.T) {
	gen := &stubGenerator{reply: "sorry, I cannot answer in the requested format"}
	a := llm.NewAnalyzer(gen, nil)

	analysis := a.Analyze(context.Background(), "what are your shipping options", nil)

	assert.Equal(t, "en", analysis.Language)
	assert.Equal(t, "what are your shipping options", analysis.SearchQuery)
}

func TestAnalyze_GreetingOnlyOnFirstTurn(t *testing.T) {
	a := llm.NewAnalyzer(&stubGenerator{}, nil)
	ctx := context.Background()

	first := a.Analyze(ctx, "Hello!", nil)
	assert.True(t, first.IsGreeting)

	history := []models.Turn{
		{Role: models.RoleUser, Content: "Hello!"},
		{Role: models.RoleAssistant, Content: "Hi, how can I help?"},
	}
	second := a.Analyze(ctx, "Hello!", history)
	assert.False(t, second.IsGreeting)
}

func TestAnalyze_GreetingForcedFalseEvenWhenModelSaysTrue(t *testing.T) {
	gen := &stubGenerator{reply: `{"language": "en", "isGreeting": true, "expandedQuery": "hi", "originalQuery": "hi"}`}
	a := llm.NewAnalyzer(gen, nil)

	history := []models.Turn{{Role: models.RoleUser, Content: "earlier"}}
	analysis := a.Analyze(context.Background(), "hi", history)

	assert.False(t, analysis.IsGreeting)
}

func TestAnalyze_SpanishDetection(t *testing.T) {
	a := llm.NewAnalyzer(&stubGenerator{}, nil)
	ctx := context.Background()

	assert.Equal(t, "es", a.Analyze(ctx, "¿Dónde está la información de precios?", nil).Language)
	assert.Equal(t, "es", a.Analyze(ctx, "quiero saber el precio del producto", nil).Language)
	assert.Equal(t, "en", a.Analyze(ctx, "where can I find pricing", nil).Language)
}

func TestAnalyze_AnaphoraPullsLastAssistantContext(t *testing.T) {
	a := llm.NewAnalyzer(&stubGenerator{}, nil)

	history := []models.Turn{
		{Role: models.RoleUser, Content: "tell me about the premium widget"},
		{Role: models.RoleAssistant, Content: "The premium widget ships with a five year warranty and free support"},
	}
	analysis := a.Analyze(context.Background(), "is it available?", history)

	assert.Contains(t, analysis.SearchQuery, "is it available?")
	assert.Contains(t, analysis.SearchQuery, "premium widget")
}

func TestAnalyze_GreetingVariants(t *testing.T) {
	a := llm.NewAnalyzer(&stubGenerator{}, nil)
	ctx := context.Background()

	for _, greeting := range []string{"hello", "Hi!", "buenos días", "hey"} {
		assert.True(t, a.Analyze(ctx, greeting, nil).IsGreeting, greeting)
	}

	// A greeting word inside a real question is not a greeting.
	assert.False(t, a.Analyze(ctx, "hello, what do you sell?", nil).IsGreeting)
}
