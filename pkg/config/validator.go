package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Crawler.MaxPages < 1 {
		errors = append(errors, ValidationError{
			Field:   "crawler.max_pages",
			Message: "max_pages must be positive",
		})
	}

	if c.Crawler.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "crawler.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Crawler.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "crawler.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Chunker.MinSize < 1 || c.Chunker.MinSize >= c.Chunker.MaxSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.min_size",
			Message: "min_size must be positive and less than max_size",
		})
	}

	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "search.score_threshold",
			Message: "score_threshold must be between 0 and 1",
		})
	}

	if c.Search.BatchEmbedSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.batch_embed_size",
			Message: "batch_embed_size must be positive",
		})
	}

	if c.Search.LexicalMinTermLen < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.lexical_min_term_len",
			Message: "lexical_min_term_len must be positive",
		})
	}

	return errors
}
