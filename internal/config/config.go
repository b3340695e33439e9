package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Database    DatabaseConfig   `json:"database"`
	Port        int              `json:"port"`
	AdminSecret string           `json:"admin_secret"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	AI          AIConfig         `json:"ai"`
	Retry       RetryConfig      `json:"retry"`
	Indexer     IndexerConfig    `json:"indexer"`
	Search      SearchConfig     `json:"search"`
	Chat        ChatConfig       `json:"chat"`
	Jobs        JobsConfig       `json:"jobs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Data           interface{} `json:"data"`
	EmbedProvider  string      `json:"embed_provider"`
	EmbedData      interface{} `json:"embed_data"`
	ChatModel      string      `json:"chat_model"`
	EmbedModel     string      `json:"embed_model"`
	EmbedDimension int         `json:"embed_dimension"`
	Timeout        int         `json:"timeout"`
	EmbedRPS       float64     `json:"embed_rps"`
	EmbedBurst     int         `json:"embed_burst"`
	LRUCacheSize   int         `json:"lru_cache_size"`
	LRUCacheTTL    int         `json:"lru_cache_ttl"`
	EnableDBCache  bool        `json:"enable_db_cache"`
	// Fallbacks are tried in order when the chat provider fails.
	Fallbacks []AIFallbackConfig `json:"fallbacks"`
}

type AIFallbackConfig struct {
	Provider string      `json:"provider"`
	Data     interface{} `json:"data"`
	Model    string      `json:"model"`
}

type RetryConfig struct {
	MaxAttempts      int     `json:"max_attempts"`
	InitialBackoffMs int     `json:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms"`
	Multiplier       float64 `json:"multiplier"`
}

type IndexerConfig struct {
	BatchSize    int `json:"batch_size"`
	BatchPauseMs int `json:"batch_pause_ms"`
	Concurrency  int `json:"concurrency"`
}

type SearchConfig struct {
	MatchThreshold float64 `json:"match_threshold"`
	MatchCount     int     `json:"match_count"`
	CandidateLimit int     `json:"candidate_limit"`
	LexicalWeight  float64 `json:"lexical_weight"`
	MaxFeatures    int     `json:"max_features"`
}

type ChatConfig struct {
	MatchThreshold  float64 `json:"match_threshold"`
	MatchCount      int     `json:"match_count"`
	LinkThreshold   float64 `json:"link_threshold"`
	HistoryTurns    int     `json:"history_turns"`
	MaxMessageChars int     `json:"max_message_chars"`
	RateLimitMs     int     `json:"rate_limit_ms"`
}

type JobsConfig struct {
	ReindexSpec           string `json:"reindex_spec"`
	EmbeddingCacheCleanup string `json:"embedding_cache_cleanup_spec"`
	EmbeddingCacheMaxDays int    `json:"embedding_cache_max_days"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.Database.DSN == "" && c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if c.AI.EmbedProvider == "" {
		c.AI.EmbedProvider = c.AI.Provider
		if c.AI.EmbedData == nil {
			c.AI.EmbedData = c.AI.Data
		}
	}
	if c.AI.EmbedModel == "" {
		return fmt.Errorf("ai.embed_model is required")
	}
	if c.AI.ChatModel == "" {
		return fmt.Errorf("ai.chat_model is required")
	}
	for i, fb := range c.AI.Fallbacks {
		c.AI.Fallbacks[i].Provider = strings.ToLower(strings.TrimSpace(fb.Provider))
		if c.AI.Fallbacks[i].Provider == "" || strings.TrimSpace(fb.Model) == "" {
			return fmt.Errorf("ai.fallbacks[%d]: provider and model are required", i)
		}
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 30
	}
	if c.AI.LRUCacheTTL <= 0 {
		c.AI.LRUCacheTTL = 7200
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = 200
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = 2000
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = 2
	}
	if c.Indexer.BatchSize <= 0 {
		c.Indexer.BatchSize = 10
	}
	if c.Indexer.BatchPauseMs < 0 {
		c.Indexer.BatchPauseMs = 0
	} else if c.Indexer.BatchPauseMs == 0 {
		c.Indexer.BatchPauseMs = 1000
	}
	if c.Indexer.Concurrency <= 0 {
		c.Indexer.Concurrency = 1
	}
	if c.Search.MatchThreshold <= 0 {
		c.Search.MatchThreshold = 0.5
	}
	if c.Search.MatchCount <= 0 {
		c.Search.MatchCount = 5
	}
	if c.Search.CandidateLimit <= 0 {
		c.Search.CandidateLimit = 200
	}
	if c.Search.LexicalWeight <= 0 {
		c.Search.LexicalWeight = 0.1
	}
	if c.Search.LexicalWeight > 0.2 {
		return fmt.Errorf("search.lexical_weight must be at most 0.2")
	}
	if c.Search.MaxFeatures <= 0 {
		c.Search.MaxFeatures = 5
	}
	if c.Chat.MatchThreshold <= 0 {
		c.Chat.MatchThreshold = 0.4
	}
	if c.Chat.MatchCount <= 0 {
		c.Chat.MatchCount = 5
	}
	if c.Chat.LinkThreshold <= 0 {
		c.Chat.LinkThreshold = 0.6
	}
	if c.Chat.HistoryTurns <= 0 {
		c.Chat.HistoryTurns = 6
	}
	if c.Chat.MaxMessageChars <= 0 {
		c.Chat.MaxMessageChars = 2000
	}
	if c.Jobs.EmbeddingCacheMaxDays <= 0 {
		c.Jobs.EmbeddingCacheMaxDays = 30
	}
	return nil
}
