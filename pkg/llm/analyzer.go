package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/internal/types"
)

var (
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*?\}`)
	spanishRe    = regexp.MustCompile(`[ñáéíóúü]`)
	spanishWords = regexp.MustCompile(`\b(hola|que|como|donde|cuando|por|para|con|sin|sobre|entre|hasta|desde|hacia|según|durante|mediante|tras|ante|bajo|contra|quiero|necesito|tengo|estoy|soy|hay|está|son|tienen|puede|debe|hacer|decir|ver|dar|saber|estar|tener|información|disponible|servicio|gracias|bueno|muy|todo|empresa|producto|precio|contacto|apartamento|personas|alquiler)\b`)
	greetingRe   = regexp.MustCompile(`(?i)^(hola|hello|hi|hey|buenos días|good morning|buenas tardes|good afternoon|buenas noches|good evening|saludos|greetings|qué tal|how are you)[\s\W]*$`)
	anaphoraRe   = regexp.MustCompile(`(?i)\b(it|that|this|they|those|others|more|another|same|similar)\b`)
)

// Analyzer classifies a user turn and rewrites it into a standalone
// search query, primarily through the generative model, with a
// regex-based fallback when the model's reply does not parse.
type Analyzer struct {
	generator types.Generator
	logger    *slog.Logger
}

func NewAnalyzer(generator types.Generator, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{generator: generator, logger: logger}
}

type analyzerReply struct {
	Language      string `json:"language"`
	IsGreeting    bool   `json:"isGreeting"`
	ExpandedQuery string `json:"expandedQuery"`
	OriginalQuery string `json:"originalQuery"`
}

// Analyze resolves pronouns and vague references against the last 6
// history turns and enriches the query with synonyms. IsGreeting is
// only ever true on a session's first turn.
func (a *Analyzer) Analyze(ctx context.Context, message string, history []models.Turn) models.Analysis {
	analysis, err := a.analyzeWithModel(ctx, message, history)
	if err != nil {
		a.logger.Debug("query expansion failed, using heuristics", "error", err)
		analysis = a.analyzeHeuristically(message, history)
	}

	if len(history) > 0 {
		analysis.IsGreeting = false
	}
	return analysis
}

func (a *Analyzer) analyzeWithModel(ctx context.Context, message string, history []models.Turn) (models.Analysis, error) {
	historyContext := "No previous conversation"
	if len(history) > 0 {
		tail := history
		if len(tail) > 6 {
			tail = tail[len(tail)-6:]
		}
		var b strings.Builder
		for _, turn := range tail {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		historyContext = strings.TrimSpace(b.String())
	}

	prompt := fmt.Sprintf(`You are a query expansion specialist. Your job is to transform user messages into comprehensive, self-contained search queries that will work well with vector similarity search.

CRITICAL INSTRUCTIONS:
- Always expand the query to include context from conversation history
- Resolve ALL pronouns (it, that, this, they, etc.) with specific nouns
- Convert vague references ("the first one", "others", "more like that") into specific terms
- Add relevant synonyms and related terms to improve retrieval
- Maintain the user's original intent while making it search-friendly

CONVERSATION CONTEXT:
%s

USER MESSAGE: %q

Examples of good query expansion:
- Input: "what about others?" + History about "Model X cars" -> Output: "Other car models similar to Model X, alternative vehicles, competing automotive products"
- Input: "tell me more" + History about "Python programming" -> Output: "Detailed Python programming information, advanced Python features, Python development tutorials"
- Input: "is it available?" + History about "premium subscription" -> Output: "Premium subscription availability, pricing plans, premium features access"

Generate a JSON response with:
{
  "language": "es" or "en",
  "isGreeting": true or false,
  "expandedQuery": "comprehensive search query with context and synonyms",
  "originalQuery": "original user message"
}`, historyContext, message)

	content, err := a.generator.Generate(ctx, "", prompt)
	if err != nil {
		return models.Analysis{}, err
	}

	raw := jsonObjectRe.FindString(content)
	if raw == "" {
		return models.Analysis{}, fmt.Errorf("no JSON object in analyzer reply")
	}

	var reply analyzerReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return models.Analysis{}, fmt.Errorf("parse analyzer reply: %w", err)
	}

	language := reply.Language
	if language == "" {
		language = "en"
	}
	searchQuery := reply.ExpandedQuery
	if searchQuery == "" {
		searchQuery = reply.OriginalQuery
	}
	if searchQuery == "" {
		searchQuery = message
	}

	return models.Analysis{
		Language:      language,
		IsGreeting:    reply.IsGreeting,
		SearchQuery:   searchQuery,
		OriginalQuery: message,
	}, nil
}

// analyzeHeuristically is the regex fallback: diacritics/common-word
// Spanish detection, anchored greeting match on first turns, and
// crude context injection from the last assistant message when the
// query is anaphoric.
func (a *Analyzer) analyzeHeuristically(message string, history []models.Turn) models.Analysis {
	lower := strings.ToLower(message)
	isSpanish := spanishRe.MatchString(message) || spanishWords.MatchString(lower)

	isGreeting := greetingRe.MatchString(strings.TrimSpace(message)) && len(history) == 0

	expanded := message
	if len(history) > 0 && anaphoraRe.MatchString(message) {
		if last, ok := lastAssistantTurn(history); ok {
			words := strings.Fields(last.Content)
			if len(words) > 10 {
				words = words[:10]
			}
			expanded = message + " " + strings.Join(words, " ")
		}
	}

	language := "en"
	if isSpanish {
		language = "es"
	}

	return models.Analysis{
		Language:      language,
		IsGreeting:    isGreeting,
		SearchQuery:   expanded,
		OriginalQuery: message,
	}
}

func lastAssistantTurn(history []models.Turn) (models.Turn, bool) {
	start := len(history) - 2
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i], true
		}
	}
	return models.Turn{}, false
}
