// Command sitebot ingests a website from the terminal and opens an
// interactive chat against the resulting bot.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/sitebot/internal/logging"
	"github.com/xhad/sitebot/internal/models"
	"github.com/xhad/sitebot/internal/types"
	"github.com/xhad/sitebot/pkg/chunker"
	cfgPkg "github.com/xhad/sitebot/pkg/config"
	"github.com/xhad/sitebot/pkg/ingest"
	"github.com/xhad/sitebot/pkg/lexical"
	"github.com/xhad/sitebot/pkg/llm"
	"github.com/xhad/sitebot/pkg/retry"
	"github.com/xhad/sitebot/pkg/search"
	"github.com/xhad/sitebot/pkg/store"
)

type options struct {
	configPath string
	siteURL    string
	botID      string
	maxPages   int
	maxDepth   int
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.siteURL, "url", "", "Website URL to ingest")
	flag.StringVar(&opts.botID, "bot", "", "Chat with an existing bot instead of ingesting")
	flag.IntVar(&opts.maxPages, "max-pages", 0, "Maximum pages to crawl")
	flag.IntVar(&opts.maxDepth, "max-depth", 0, "Maximum crawl depth")
	flag.Parse()

	if opts.siteURL == "" && opts.botID == "" {
		fmt.Fprintln(os.Stderr, "either -url or -bot is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(opts options) error {
	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Keep stderr quiet while the progress UI owns the terminal.
	logger, closeLog := logging.Setup(cfg.Server.LogFile, false)
	defer closeLog()

	ctx := context.Background()
	policy := retry.Policy{Attempts: cfg.Crawler.Retries, Delay: time.Second}

	kv, err := store.NewRedisKV(store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %v", err)
	}
	defer kv.Close()
	records := store.NewRecords(kv)

	vectors, err := store.NewVectorStore(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %v", err)
	}
	defer vectors.Close()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:    cfg.LLM.EmbeddingModel,
		BaseURL:  cfg.LLM.BaseURL,
		CacheTTL: cfg.Search.EmbedCacheTTL.Std(),
		Retry:    policy,
	}, records, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	generator, err := llm.NewGenerator(llm.GeneratorConfig{
		Model:       cfg.LLM.ChatModel,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Retry:       policy,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat model: %v", err)
	}

	var reranker types.Reranker
	if cfg.LLM.RerankURL != "" {
		reranker = llm.NewHTTPReranker(cfg.LLM.RerankURL)
	}

	lex := lexical.New(kv, cfg.Search.LexicalMinTermLen)
	engine := search.New(search.Config{ScoreThreshold: cfg.Search.ScoreThreshold},
		embedder, vectors, lex, records, reranker, logger)
	analyzer := llm.NewAnalyzer(generator, logger)

	botID := opts.botID
	if opts.siteURL != "" {
		botID, err = ingestSite(ctx, cfg, opts, policy, lex, embedder, vectors, records)
		if err != nil {
			return err
		}
	}

	bot, err := records.GetBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("bot %s not found: %v", botID, err)
	}

	return chatLoop(ctx, cfg, bot, records, engine, analyzer, generator)
}

func ingestSite(ctx context.Context, cfg *cfgPkg.Config, opts options, policy retry.Policy,
	lex *lexical.Index, embedder types.Embedder, vectors types.VectorIndex,
	records *store.Records) (string, error) {

	color.Blue("\nIngesting %s\n", opts.siteURL)

	var crawled int32
	bar := getSpinner("Crawling pages...")

	startTime := time.Now()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				count := atomic.LoadInt32(&crawled)
				bar.Set(int(count))
				if count > 0 {
					elapsed := time.Since(startTime).Seconds()
					bar.Describe(color.CyanString(
						"Crawling pages... (%d done, %.1f pages/sec)", count, float64(count)/elapsed))
				}
			}
		}
	}()

	// Ingest logs go to io.Discard so the progress UI keeps the
	// terminal to itself.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	ingestor := ingest.New(ingest.Config{
		DefaultMaxPages: cfg.Crawler.MaxPages,
		DefaultMaxDepth: cfg.Crawler.MaxDepth,
		BatchEmbedSize:  cfg.Search.BatchEmbedSize,
		CrawlRateLimit:  cfg.Crawler.RateLimit,
		VectorDim:       cfg.Database.VectorDim,
		Retry:           policy,
	}, chunker.New(cfg.Chunker.MinSize, cfg.Chunker.MaxSize), lex, embedder, vectors, records, quiet)
	ingestor.OnPage = func(url string) {
		atomic.AddInt32(&crawled, 1)
	}

	result, err := ingestor.Create(ctx, opts.siteURL, opts.maxPages, opts.maxDepth)
	close(done)
	bar.Finish()
	if err != nil {
		return "", fmt.Errorf("ingest failed: %v", err)
	}

	color.Green("\n✓ Crawled %d pages into %d chunks\n", result.PagesProcessed, result.ChunksProcessed)
	color.Green("✓ Bot ready: %s (%s)\n", result.BotID, result.Title)
	return result.BotID, nil
}

func chatLoop(ctx context.Context, cfg *cfgPkg.Config, bot models.Bot, records *store.Records,
	engine *search.Engine, analyzer *llm.Analyzer, generator types.Generator) error {

	color.Cyan("\nChat with %s (type 'exit' to quit)", bot.Title)

	sessionID := uuid.NewString()
	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		history, err := records.GetConversation(ctx, bot.ID, sessionID)
		if err != nil {
			history = nil
		}

		analysis := analyzer.Analyze(ctx, query, history)

		spinner := getSpinner("Searching...")
		results := engine.SearchWithFallback(ctx, analysis.SearchQuery, bot.ID)
		spinner.Finish()
		fmt.Print("\r")

		var reply string
		var sources []string
		if len(results) == 0 {
			reply = llm.NoInfoMessage(analysis.Language)
		} else {
			sources = search.SourceLinks(results)
			results = engine.Rerank(ctx, results, analysis.SearchQuery)

			responseSpinner := getSpinner("Generating response...")
			prompt := llm.BuildAnswerPrompt(bot, results, history, query, analysis.SearchQuery, cfg.Search.MaxPromptChunks)
			raw, err := generator.Generate(ctx, "", prompt)
			responseSpinner.Finish()
			fmt.Print("\r")

			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			reply = llm.CleanResponse(raw)
		}

		assistantPrompt("Assistant: %s\n", reply)
		for _, src := range sources {
			fmt.Printf("  - %s\n", src)
		}

		updated := models.AppendTurns(history,
			models.Turn{Role: models.RoleUser, Content: query},
			models.Turn{Role: models.RoleAssistant, Content: reply},
		)
		if err := records.PutConversation(ctx, bot.ID, sessionID, updated); err != nil {
			color.Red("warning: failed to save history: %v\n", err)
		}
	}

	return nil
}
