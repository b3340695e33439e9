package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/ai"
	"github.com/xxxsen/mfolio/internal/config"
	"github.com/xxxsen/mfolio/internal/db"
	"github.com/xxxsen/mfolio/internal/embedcache"
	"github.com/xxxsen/mfolio/internal/pkg/retry"
	"github.com/xxxsen/mfolio/internal/repo"
	"github.com/xxxsen/mfolio/internal/service"
)

type app struct {
	cfg        *config.Config
	db         *sql.DB
	cacheRepo  *repo.EmbeddingCacheRepo
	indexer    *service.IndexerService
	search     *service.SearchService
	formatter  *service.ContextFormatter
	chat       *service.ChatService
	searchOpts service.SearchOptions
}

func loadApp(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a, err := buildApp(cfg, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

func buildApp(cfg *config.Config, conn *sql.DB) (*app, error) {
	contentRepo := repo.NewContentRepo(conn)
	embeddingRepo := repo.NewEmbeddingRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)
	sessionRepo := repo.NewSessionRepo(conn)
	messageRepo := repo.NewMessageRepo(conn)
	linkRepo := repo.NewProjectLinkRepo(conn)

	policy := retryPolicy(cfg.Retry)
	embedder, err := buildEmbedder(cfg.AI, policy, cacheRepo)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(cfg.AI)
	if err != nil {
		return nil, err
	}

	indexer := service.NewIndexerService(contentRepo, embeddingRepo, embedder, service.IndexerOptions{
		BatchSize:   cfg.Indexer.BatchSize,
		BatchPause:  time.Duration(cfg.Indexer.BatchPauseMs) * time.Millisecond,
		Concurrency: cfg.Indexer.Concurrency,
	})
	search := service.NewSearchService(contentRepo, embeddingRepo, embedder, service.SearchConfig{
		CandidateLimit: cfg.Search.CandidateLimit,
		LexicalWeight:  cfg.Search.LexicalWeight,
	})
	formatter := service.NewContextFormatter(cfg.Search.MaxFeatures)
	sessions := service.NewSessionService(sessionRepo, messageRepo, policy)
	linker := service.NewLinkerService(messageRepo, contentRepo, linkRepo)
	chat := service.NewChatService(sessions, search, formatter, linker, generator, service.ChatOptions{
		MatchThreshold:  cfg.Chat.MatchThreshold,
		MatchCount:      cfg.Chat.MatchCount,
		LinkThreshold:   cfg.Chat.LinkThreshold,
		HistoryTurns:    cfg.Chat.HistoryTurns,
		MaxMessageChars: cfg.Chat.MaxMessageChars,
		GenerateTimeout: time.Duration(cfg.AI.Timeout) * time.Second,
	})

	searchOpts := service.DefaultSearchOptions()
	searchOpts.MatchThreshold = cfg.Search.MatchThreshold
	searchOpts.MatchCount = cfg.Search.MatchCount

	return &app{
		cfg:        cfg,
		db:         conn,
		cacheRepo:  cacheRepo,
		indexer:    indexer,
		search:     search,
		formatter:  formatter,
		chat:       chat,
		searchOpts: searchOpts,
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Multiplier:     cfg.Multiplier,
	}
}

// buildEmbedder layers the embedder, outermost first: input and dimension
// checks, LRU cache, DB cache, retry, rate limit, provider.
func buildEmbedder(cfg config.AIConfig, policy retry.Policy, cache embedcache.ICacheStore) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.EmbedProvider, cfg.EmbedData)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.EmbedModel)
	embedder = ai.WrapRateLimit(embedder, cfg.EmbedRPS, cfg.EmbedBurst)
	embedder = ai.WrapRetry(embedder, policy)
	if cfg.EnableDBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cache)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.LRUCacheSize, time.Duration(cfg.LRUCacheTTL)*time.Second)
	return ai.WrapChecked(embedder, cfg.EmbedDimension), nil
}

func buildGenerator(cfg config.AIConfig) (ai.IGenerator, error) {
	primary, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	entries := []ai.GeneratorEntry{{Name: primary.Name(), Generator: ai.NewGenerator(primary, cfg.ChatModel)}}
	for _, fb := range cfg.Fallbacks {
		p, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			return nil, fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{Name: p.Name(), Generator: ai.NewGenerator(p, fb.Model)})
	}
	return ai.NewGroupGenerator(entries), nil
}
