package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr    string `yaml:"addr"`
		LogFile string `yaml:"log_file"`
		Debug   bool   `yaml:"debug"`
	} `yaml:"server"`

	LLM struct {
		BaseURL        string  `yaml:"base_url"`
		ChatModel      string  `yaml:"chat_model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		RerankURL      string  `yaml:"rerank_url"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Crawler struct {
		MaxPages  int     `yaml:"max_pages"`
		MaxDepth  int     `yaml:"max_depth"`
		RateLimit float64 `yaml:"rate_limit"`
		Retries   int     `yaml:"retries"`
	} `yaml:"crawler"`

	Chunker struct {
		MinSize int `yaml:"min_size"`
		MaxSize int `yaml:"max_size"`
	} `yaml:"chunker"`

	Search struct {
		ScoreThreshold    float64  `yaml:"score_threshold"`
		MaxPromptChunks   int      `yaml:"max_prompt_chunks"`
		BatchEmbedSize    int      `yaml:"batch_embed_size"`
		EmbedCacheTTL     Duration `yaml:"embed_cache_ttl"`
		LexicalMinTermLen int      `yaml:"lexical_min_term_len"`
	} `yaml:"search"`
}

// Duration parses yaml values like "24h" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("embed_cache_ttl: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("embed_cache_ttl: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/sitebot/config.yaml"),
			"/etc/sitebot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.ChatModel == "" {
		config.LLM.ChatModel = "llama3.1"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1500
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}

	if config.Redis.Addr == "" {
		config.Redis.Addr = "127.0.0.1:6379"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunk_vectors"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Crawler.MaxPages == 0 {
		config.Crawler.MaxPages = 10
	}
	if config.Crawler.MaxDepth == 0 {
		config.Crawler.MaxDepth = 2
	}
	if config.Crawler.RateLimit == 0 {
		config.Crawler.RateLimit = 2.0
	}
	if config.Crawler.Retries == 0 {
		config.Crawler.Retries = 3
	}

	if config.Chunker.MinSize == 0 {
		config.Chunker.MinSize = 50
	}
	if config.Chunker.MaxSize == 0 {
		config.Chunker.MaxSize = 1200
	}

	if config.Search.ScoreThreshold == 0 {
		config.Search.ScoreThreshold = 0.4
	}
	if config.Search.MaxPromptChunks == 0 {
		config.Search.MaxPromptChunks = 6
	}
	if config.Search.BatchEmbedSize == 0 {
		config.Search.BatchEmbedSize = 20
	}
	if config.Search.EmbedCacheTTL == 0 {
		config.Search.EmbedCacheTTL = Duration(24 * time.Hour)
	}
	if config.Search.LexicalMinTermLen == 0 {
		config.Search.LexicalMinTermLen = 3
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.Redis.Addr = redisAddr
	}
	if rerankURL := os.Getenv("RERANK_URL"); rerankURL != "" {
		config.LLM.RerankURL = rerankURL
	}
	if addr := os.Getenv("SITEBOT_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
}
