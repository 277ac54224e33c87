package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names an optional YAML file with pipeline settings. Environment
// variables override values read from it.
const FileEnv = "CHECKX_CONFIG"

// News providers.
const (
	NewsProviderNewsData      = "newsdata"
	NewsProviderElasticsearch = "elasticsearch"
	NewsProviderNone          = "none"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Model configures the Ollama-backed model session.
type Model struct {
	Endpoint      string  `yaml:"endpoint"`
	Name          string  `yaml:"name"`
	Temperature   float64 `yaml:"temperature"`
	TopK          int     `yaml:"top_k"`
	MaxTokens     int     `yaml:"max_tokens"`
	PromptRetries int     `yaml:"prompt_retries"`
}

// News configures evidence retrieval.
type News struct {
	Provider      string        `yaml:"provider"`
	Index         string        `yaml:"index"`
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Language      string        `yaml:"language"`
	MaxResults    int           `yaml:"max_results"`
	RateInterval  time.Duration `yaml:"rate_interval"`
	CacheCapacity int           `yaml:"cache_capacity"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// Pipeline holds the analysis settings shared by the API and the worker.
type Pipeline struct {
	Model Model `yaml:"model"`
	News  News  `yaml:"news"`
}

// Worker holds configuration for the Kafka -> analysis -> Elasticsearch worker.
type Worker struct {
	Common
	Pipeline
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DLQTopic       string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Pipeline
	BindAddr         string
	DefaultPage      int
	MaxPage          int
	BatchLimit       int
	BatchConcurrency int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	p, err := loadPipeline()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:         loadCommon(),
		Pipeline:       *p,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "posts_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "analysis-worker"),
		DLQTopic:       getEnv("KAFKA_DLQ_TOPIC", "posts_dlq"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", 24*time.Hour),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	p, err := loadPipeline()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:           loadCommon(),
		Pipeline:         *p,
		BindAddr:         getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:      getInt("API_PAGE_SIZE", 20),
		MaxPage:          getInt("API_MAX_PAGE_SIZE", 100),
		BatchLimit:       getInt("API_BATCH_LIMIT", 50),
		BatchConcurrency: getInt("API_BATCH_CONCURRENCY", 4),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.BatchLimit <= 0 {
		return nil, fmt.Errorf("API_BATCH_LIMIT must be positive")
	}
	if c.BatchConcurrency <= 0 {
		return nil, fmt.Errorf("API_BATCH_CONCURRENCY must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", 24*time.Hour),
		MaxAge:    getDuration("RETENTION_MAX_AGE", 30*24*time.Hour),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "analyses"),
	}
}

// DefaultPipeline returns the settings used when neither file nor env override them.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Model: Model{
			Endpoint:      "http://localhost:11434",
			Temperature:   0.3,
			TopK:          10,
			MaxTokens:     512,
			PromptRetries: 1,
		},
		News: News{
			Provider:      NewsProviderNewsData,
			Index:         "news",
			Endpoint:      "https://newsdata.io/api/1/news",
			Language:      "en",
			MaxResults:    5,
			RateInterval:  time.Second,
			CacheCapacity: 1000,
			CacheTTL:      15 * time.Minute,
		},
	}
}

func loadPipeline() (*Pipeline, error) {
	p := DefaultPipeline()

	if path := getEnv(FileEnv, ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", FileEnv, err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	p.Model.Endpoint = getEnv("OLLAMA_ENDPOINT", p.Model.Endpoint)
	p.Model.Name = getEnv("OLLAMA_MODEL", p.Model.Name)
	p.Model.Temperature = getFloat("MODEL_TEMPERATURE", p.Model.Temperature)
	p.Model.TopK = getInt("MODEL_TOP_K", p.Model.TopK)
	p.Model.MaxTokens = getInt("MODEL_MAX_TOKENS", p.Model.MaxTokens)
	p.Model.PromptRetries = getInt("MODEL_PROMPT_RETRIES", p.Model.PromptRetries)

	p.News.Provider = strings.ToLower(getEnv("NEWS_PROVIDER", p.News.Provider))
	p.News.Index = getEnv("ELASTICSEARCH_NEWS_INDEX", p.News.Index)
	p.News.Endpoint = getEnv("NEWSDATA_ENDPOINT", p.News.Endpoint)
	p.News.APIKey = getEnv("NEWSDATA_API_KEY", p.News.APIKey)
	p.News.Language = getEnv("NEWS_LANGUAGE", p.News.Language)
	p.News.MaxResults = getInt("NEWS_MAX_RESULTS", p.News.MaxResults)
	p.News.RateInterval = getDuration("NEWS_RATE_INTERVAL", p.News.RateInterval)
	p.News.CacheCapacity = getInt("NEWS_CACHE_CAPACITY", p.News.CacheCapacity)
	p.News.CacheTTL = getDuration("NEWS_CACHE_TTL", p.News.CacheTTL)

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p Pipeline) validate() error {
	if p.Model.Temperature < 0 {
		return fmt.Errorf("MODEL_TEMPERATURE cannot be negative")
	}
	if p.Model.TopK <= 0 {
		return fmt.Errorf("MODEL_TOP_K must be positive")
	}
	if p.Model.MaxTokens <= 0 {
		return fmt.Errorf("MODEL_MAX_TOKENS must be positive")
	}
	if p.Model.PromptRetries < 0 {
		return fmt.Errorf("MODEL_PROMPT_RETRIES cannot be negative")
	}

	switch p.News.Provider {
	case NewsProviderNewsData, NewsProviderElasticsearch, NewsProviderNone:
	default:
		return fmt.Errorf("NEWS_PROVIDER %q is not one of newsdata, elasticsearch, none", p.News.Provider)
	}
	if p.News.MaxResults <= 0 {
		return fmt.Errorf("NEWS_MAX_RESULTS must be positive")
	}
	if p.News.RateInterval < 0 {
		return fmt.Errorf("NEWS_RATE_INTERVAL cannot be negative")
	}
	if p.News.CacheCapacity < 0 {
		return fmt.Errorf("NEWS_CACHE_CAPACITY cannot be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
