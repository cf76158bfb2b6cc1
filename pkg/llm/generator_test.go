package llm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/llm"
)

func TestCleanResponse(t *testing.T) {
	raw := "<think>reasoning goes here</think>The answer is <b>42</b>.  "
	assert.Equal(t, "The answer is 42.", llm.CleanResponse(raw))

	assert.Equal(t, "plain", llm.CleanResponse("plain"))
	assert.Equal(t, "", llm.CleanResponse("<think>only thoughts</think>"))
}

func TestCannedMessagesPerLanguage(t *testing.T) {
	assert.Contains(t, llm.NoInfoMessage("es"), "Lo siento")
	assert.Contains(t, llm.NoInfoMessage("en"), "I'm sorry")
	assert.Contains(t, llm.ApologyMessage("es"), "Disculpa")
	assert.Contains(t, llm.ApologyMessage("en"), "I apologize")
}

func TestDefaultGreeting(t *testing.T) {
	assert.Contains(t, llm.DefaultGreeting("en", "Acme"), "Acme")
	assert.Contains(t, llm.DefaultGreeting("es", "Acme"), "¡Hola!")
	assert.Contains(t, llm.DefaultGreeting("en", ""), "virtual assistant")
}

func TestBuildAnswerPrompt(t *testing.T) {
	bot := models.Bot{ID: "b1", URL: "https://acme.test"}
	chunks := []models.SearchResult{
		{Chunk: models.Chunk{Text: "first passage"}},
		{Chunk: models.Chunk{Text: "second passage"}},
		{Chunk: models.Chunk{Text: "third passage"}},
	}
	history := []models.Turn{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
	}

	prompt := llm.BuildAnswerPrompt(bot, chunks, history, "current question", "expanded query", 2)

	assert.Contains(t, prompt, "[Context 1]: first passage")
	assert.Contains(t, prompt, "[Context 2]: second passage")
	assert.NotContains(t, prompt, "third passage")
	assert.Contains(t, prompt, "earlier question")
	assert.Contains(t, prompt, `"current question"`)
	assert.Contains(t, prompt, `"expanded query"`)
	assert.Contains(t, prompt, "https://acme.test")
}

func TestBuildAnswerPrompt_TrimsHistoryTail(t *testing.T) {
	bot := models.Bot{URL: "https://acme.test"}

	var history []models.Turn
	for i := 0; i < 10; i++ {
		history = append(history, models.Turn{Role: models.RoleUser, Content: "turn" + string(rune('0'+i))})
	}

	prompt := llm.BuildAnswerPrompt(bot, nil, history, "q", "q", 6)

	assert.NotContains(t, prompt, "turn3")
	assert.Contains(t, prompt, "turn4")
	assert.Contains(t, prompt, "turn9")
}

func TestBuildGreetingPrompt_CapsSample(t *testing.T) {
	bot := models.Bot{Title: "Acme", URL: "https://acme.test"}
	sample := []string{strings.Repeat("x", 3000)}

	prompt := llm.BuildGreetingPrompt(bot, "es", sample)

	assert.Contains(t, prompt, "Acme")
	assert.Contains(t, prompt, "Spanish")
	assert.Less(t, len(prompt), 2600)
}

func TestHeuristicRerank(t *testing.T) {
	chunks := []models.SearchResult{
		{Chunk: models.Chunk{Text: "nothing relevant here"}, Score: 0.5},
		{Chunk: models.Chunk{Text: "widget widget pricing for the widget line"}, Score: 0.5},
		{Chunk: models.Chunk{Text: "the widget costs 99 dollars"}, Score: 0.5},
	}

	out := llm.HeuristicRerank(chunks, "widget 99")

	// 0.1 per token occurrence, 0.05 for shared digits.
	assert.InDelta(t, 0.5, out[0].Score, 1e-9)
	assert.InDelta(t, 0.8, out[1].Score, 1e-9)
	assert.InDelta(t, 0.5+0.1+0.1+0.05, out[2].Score, 1e-9)

	// Input order and original slice stay untouched.
	assert.InDelta(t, 0.5, chunks[1].Score, 1e-9)
}
