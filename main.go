package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"orgfinder/internal/config"
	"orgfinder/internal/keyword"
	"orgfinder/internal/llm"
	"orgfinder/internal/logger"
	"orgfinder/internal/memory"
	"orgfinder/internal/nlu"
	"orgfinder/internal/pipeline"
	"orgfinder/internal/query"
	"orgfinder/internal/response"
	"orgfinder/internal/sessionlog"
	"orgfinder/internal/spatial"
)

func main() {
	tablesPath := flag.String("tables", "config.yaml", "path to the lookup tables file")
	cityBias := flag.String("city", "Philadelphia, PA", "city appended to geocoding queries (empty to disable)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log := logger.With("main")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	tables, err := config.LoadTables(*tablesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("lookup tables failed to load")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("chat model init failed")
	}

	var sessionStore memory.Store
	if cfg.Redis.URL != "" {
		redisStore, err := memory.NewRedisStore(ctx, cfg.Redis.URL, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("redis session store init failed")
		}
		defer redisStore.Close()
		sessionStore = redisStore
		log.Info().Msg("session state in redis")
	} else {
		sessionStore = memory.NewInMemoryStore()
		log.Info().Msg("session state in process memory")
	}

	graphStore, err := query.NewNeo4jStore(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("graph store init failed")
	}
	defer graphStore.Close(ctx)
	if err := graphStore.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("graph store unreachable")
	}

	recorder, err := sessionlog.NewRecorder(cfg.Session.LogDir, logger.With("sessionlog"))
	if err != nil {
		log.Fatal().Err(err).Msg("session log init failed")
	}
	defer recorder.Close()

	resolver := spatial.NewResolver(tables, spatial.NewNominatimGeocoder(*cityBias), logger.With("spatial"))
	pipe := pipeline.New(
		nlu.NewExtractor(chatModel, logger.With("nlu")),
		keyword.NewNormalizer(tables.Synonyms),
		resolver,
		memory.NewManager(sessionStore, logger.With("memory")),
		query.NewExecutor(graphStore, resolver, logger.With("query")),
		response.NewSummarizer(chatModel, logger.With("response")),
		tables,
		recorder,
		logger.With("pipeline"),
	)

	sessionID := uuid.NewString()
	log.Info().Str("session_id", sessionID).Msg("session started")
	fmt.Println("Ask about local organizations and services. Type 'expand' for full details, 'exit' to quit.")

	var lastResult pipeline.Result
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}
		if text == "expand" {
			printExpanded(lastResult, tables)
			continue
		}

		start := time.Now()
		result, err := pipe.ProcessTurn(ctx, sessionID, text)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
		}
		lastResult = result
		fmt.Println(result.Answer)
		log.Debug().
			Str("outcome", result.Outcome).
			Bool("expanded", result.Expanded).
			Int("total_tokens", result.Usage.TotalTokens).
			Dur("elapsed", time.Since(start)).
			Msg("turn complete")

		if ctx.Err() != nil {
			break
		}
	}
	log.Info().Str("session_id", sessionID).Msg("session ended")
}

// printExpanded reveals the full detail of the last answer's organizations.
func printExpanded(last pipeline.Result, tables *config.Tables) {
	if len(last.Organizations) == 0 {
		fmt.Println("Nothing to expand yet. Ask a question first.")
		return
	}
	tiers := response.BuildTiers(last.Organizations, nil, tables.ZipCentroids)
	for _, entry := range tiers.Expanded {
		fmt.Println(entry.Name)
		if entry.Address != "" {
			fmt.Println("  " + entry.Address)
		}
		if entry.Phone != "" {
			fmt.Println("  " + entry.Phone)
		}
		for _, h := range entry.Hours {
			fmt.Printf("  %s: %s\n", h.Day, h.Hours)
		}
		if len(entry.FreeServices) > 0 {
			fmt.Println("  Free: " + strings.Join(entry.FreeServices, ", "))
		}
		if len(entry.PaidServices) > 0 {
			fmt.Println("  Paid: " + strings.Join(entry.PaidServices, ", "))
		}
	}
}
