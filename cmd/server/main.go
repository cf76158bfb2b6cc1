package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xhad/sitebot/internal/logging"
	"github.com/xhad/sitebot/internal/types"
	"github.com/xhad/sitebot/pkg/chunker"
	cfgPkg "github.com/xhad/sitebot/pkg/config"
	"github.com/xhad/sitebot/pkg/ingest"
	"github.com/xhad/sitebot/pkg/lexical"
	"github.com/xhad/sitebot/pkg/llm"
	"github.com/xhad/sitebot/pkg/retry"
	"github.com/xhad/sitebot/pkg/search"
	"github.com/xhad/sitebot/pkg/store"
	"github.com/xhad/sitebot/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			log.Printf("config: %s: %s", issue.Field, issue.Message)
		}
		os.Exit(1)
	}

	logger, closeLog := logging.Setup(cfg.Server.LogFile, cfg.Server.Debug)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := retry.Policy{Attempts: cfg.Crawler.Retries, Delay: time.Second}

	kv, err := store.NewRedisKV(store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("redis connection failed", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer kv.Close()
	records := store.NewRecords(kv)

	vectors, err := store.NewVectorStore(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		logger.Error("vector store initialization failed", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:    cfg.LLM.EmbeddingModel,
		BaseURL:  cfg.LLM.BaseURL,
		CacheTTL: cfg.Search.EmbedCacheTTL.Std(),
		Retry:    policy,
	}, records, logger)
	if err != nil {
		logger.Error("embedder initialization failed", "error", err)
		os.Exit(1)
	}

	generator, err := llm.NewGenerator(llm.GeneratorConfig{
		Model:       cfg.LLM.ChatModel,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Retry:       policy,
	})
	if err != nil {
		logger.Error("generator initialization failed", "error", err)
		os.Exit(1)
	}

	var reranker types.Reranker
	if cfg.LLM.RerankURL != "" {
		reranker = llm.NewHTTPReranker(cfg.LLM.RerankURL)
	}

	lex := lexical.New(kv, cfg.Search.LexicalMinTermLen)
	ch := chunker.New(cfg.Chunker.MinSize, cfg.Chunker.MaxSize)
	analyzer := llm.NewAnalyzer(generator, logger)

	engine := search.New(search.Config{ScoreThreshold: cfg.Search.ScoreThreshold},
		embedder, vectors, lex, records, reranker, logger)

	ingestor := ingest.New(ingest.Config{
		DefaultMaxPages: cfg.Crawler.MaxPages,
		DefaultMaxDepth: cfg.Crawler.MaxDepth,
		BatchEmbedSize:  cfg.Search.BatchEmbedSize,
		CrawlRateLimit:  cfg.Crawler.RateLimit,
		VectorDim:       cfg.Database.VectorDim,
		Retry:           policy,
	}, ch, lex, embedder, vectors, records, logger)

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		MaxPromptChunks: cfg.Search.MaxPromptChunks,
	}, records, ingestor, engine, analyzer, generator, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
