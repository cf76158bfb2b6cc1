package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/pkg/retry"
)

type GeneratorConfig struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Retry       retry.Policy
}

// Generator wraps the generative model behind types.Generator.
type Generator struct {
	config GeneratorConfig
	llm    llms.Model
}

func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if config.Model == "" {
		config.Model = "llama3.1"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1500
	}
	if config.Temperature == 0 {
		config.Temperature = 0.3
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Default
	}

	model, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	return &Generator{config: config, llm: model}, nil
}

// NewGeneratorWithModel builds a generator over a custom model, used
// by tests.
func NewGeneratorWithModel(config GeneratorConfig, model llms.Model) *Generator {
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Default
	}
	return &Generator{config: config, llm: model}
}

// Generate runs one system+user exchange, retried with backoff.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	resp, err := retry.Do1(ctx, g.config.Retry, func() (*llms.ContentResponse, error) {
		return g.llm.GenerateContent(ctx, content,
			llms.WithMaxTokens(g.config.MaxTokens),
			llms.WithTemperature(g.config.Temperature),
		)
	})
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat error: empty response")
	}
	return resp.Choices[0].Content, nil
}

var (
	thinkTagRe  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	markupTagRe = regexp.MustCompile(`<[^>]+>`)
)

// CleanResponse strips reasoning tags and stray markup from a model
// reply before it reaches the end user.
func CleanResponse(s string) string {
	s = thinkTagRe.ReplaceAllString(s, "")
	s = markupTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Canned end-user fallback strings, per detected language.
func NoInfoMessage(language string) string {
	if language == "es" {
		return "Lo siento, no tengo información específica sobre ese tema. ¿Podrías reformular tu pregunta o preguntarme sobre otros temas relacionados con este sitio web?"
	}
	return "I'm sorry, I don't have specific information about that topic. Could you rephrase your question or ask about other topics related to this website?"
}

func ApologyMessage(language string) string {
	if language == "es" {
		return "Disculpa, encontré un error al procesar tu solicitud. Por favor, inténtalo de nuevo."
	}
	return "I apologize, but I encountered an error processing your request. Please try again."
}

func DefaultGreeting(language, siteName string) string {
	if siteName == "" {
		if language == "es" {
			return "¡Hola! Soy tu asistente virtual. ¿En qué puedo ayudarte?"
		}
		return "Hello! I'm your virtual assistant. How can I help you?"
	}
	if language == "es" {
		return fmt.Sprintf("¡Hola! Soy tu asistente virtual para %s. ¿En qué puedo ayudarte?", siteName)
	}
	return fmt.Sprintf("Hello! I'm your virtual assistant for %s. How can I help you?", siteName)
}

// BuildAnswerPrompt assembles the generation system prompt from the
// retrieved chunks and the conversation tail.
func BuildAnswerPrompt(bot models.Bot, chunks []models.SearchResult, history []models.Turn, message, searchQuery string, maxChunks int) string {
	if maxChunks > 0 && len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	var contextText strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&contextText, "[Context %d]: %s\n\n", i+1, chunk.Text)
	}

	conversationContext := "This is the start of our conversation.\n\n"
	if len(history) > 0 {
		tail := history
		if len(tail) > 6 {
			tail = tail[len(tail)-6:]
		}
		var b strings.Builder
		for _, turn := range tail {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		conversationContext = fmt.Sprintf("Previous conversation:\n%s\n\n", b.String())
	}

	return fmt.Sprintf(`You are an expert virtual assistant specializing in %s. You are friendly, proactive, and incredibly helpful.

OPERATIONAL RULES:
1. Language matching: ALWAYS respond in the same language as the user's question
2. Source fidelity: base responses EXCLUSIVELY on the provided website content
3. Transparency: if information isn't available, say so clearly and suggest alternatives
4. Conversation continuity: use the chat history to understand follow-up questions
5. Rich formatting: use **bold** for key points and bullet points for lists

CONVERSATION CONTEXT:
%s
KNOWLEDGE BASE FROM %s:
%s
USER'S CURRENT QUESTION: %q
EXPANDED SEARCH QUERY: %q

Provide a comprehensive, helpful response based exclusively on the website content above. If the information isn't available in the content, state this clearly and suggest related topics you can help with instead.`,
		bot.URL, conversationContext, bot.URL, contextText.String(), message, searchQuery)
}

// BuildGreetingPrompt asks for a contextual welcome grounded in a
// sample of the site's content.
func BuildGreetingPrompt(bot models.Bot, language string, sampleChunks []string) string {
	langName := "English"
	if language == "es" {
		langName = "Spanish"
	}

	site := bot.Title
	if site == "" {
		site = bot.URL
	}

	sample := strings.Join(sampleChunks, " ")
	if len(sample) > 2000 {
		sample = sample[:2000]
	}

	return fmt.Sprintf(`Based on this website content, generate a welcoming greeting message for a chatbot assistant.

Website: %s
Content sample: %s

Requirements:
1. Language: %s
2. Be welcoming and helpful
3. Mention 2-3 specific topics the user can ask about based on the content
4. Keep it concise (max 2 sentences)
5. Sound natural and conversational

Generate the greeting:`, site, sample, langName)
}
