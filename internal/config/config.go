package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/gema-recommender/internal/recommender"
)

// Config holds runtime configuration values for the recommender service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	// JWTSecret verifies bearer tokens; empty disables authentication.
	JWTSecret string

	CORSAllowOrigins string

	NATSURL     string
	NATSSubject string
	NATSQueue   string

	OpenAIAPIKey        string
	OpenAIBaseURL       string
	AIModel             string
	AIEmbeddingModel    string
	AITimeout           time.Duration
	Embedder            string
	EmbeddingDimensions int

	MoodleURL     string
	MoodleToken   string
	MoodleTimeout time.Duration
	// MoodleCourseID is the gradebook read when a request names no course.
	MoodleCourseID int

	Recommender RecommenderConfig

	SourceTimeout time.Duration

	SeedEnabled bool
	SeedToken   string
	SeedFile    string
}

// RecommenderConfig groups the ranking and training parameters.
type RecommenderConfig struct {
	Weights          recommender.Weights
	TopN             int
	Collaborative    recommender.CollaborativeConfig
	CandidateFilter  string
	Confidence       float64
	ModelPath        string
	RetrainInterval  time.Duration
	CacheTTL         time.Duration
	RetrainRateLimit int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Recommender")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("nats.subject", "gema.interactions")
	v.SetDefault("nats.queue", "gema-recommender")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.timeout", "8s")
	v.SetDefault("embedder", "hash")
	v.SetDefault("embedding.dimensions", recommender.DefaultEmbeddingDimensions)
	v.SetDefault("moodle.timeout", "10s")
	v.SetDefault("moodle.course_id", 2)
	v.SetDefault("recommender.collab_weight", 0.6)
	v.SetDefault("recommender.content_weight", 0.4)
	v.SetDefault("recommender.top_n", 10)
	v.SetDefault("recommender.components", 30)
	v.SetDefault("recommender.epochs", 20)
	v.SetDefault("recommender.learning_rate", 0.05)
	v.SetDefault("recommender.negative_samples", 5)
	v.SetDefault("recommender.regularization", 0.0001)
	v.SetDefault("recommender.seed", 42)
	v.SetDefault("recommender.confidence", 0.85)
	v.SetDefault("recommender.retrain_interval", "0s")
	v.SetDefault("recommender.cache_ttl", "5m")
	v.SetDefault("recommender.retrain_rate_limit", 3)
	v.SetDefault("source.timeout", "5s")
	v.SetDefault("seed.enabled", false)

	aiTimeout, err := parseDuration(v, "ai.timeout")
	if err != nil {
		return Config{}, err
	}
	moodleTimeout, err := parseDuration(v, "moodle.timeout")
	if err != nil {
		return Config{}, err
	}
	retrainInterval, err := parseDuration(v, "recommender.retrain_interval")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "recommender.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	sourceTimeout, err := parseDuration(v, "source.timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		LogLevel:            strings.ToLower(v.GetString("log.level")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		CORSAllowOrigins:    v.GetString("cors.allow_origins"),
		NATSURL:             v.GetString("nats.url"),
		NATSSubject:         v.GetString("nats.subject"),
		NATSQueue:           v.GetString("nats.queue"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		OpenAIBaseURL:       v.GetString("openai_base_url"),
		AIModel:             v.GetString("ai.model"),
		AIEmbeddingModel:    v.GetString("ai.embedding_model"),
		AITimeout:           aiTimeout,
		Embedder:            strings.ToLower(strings.TrimSpace(v.GetString("embedder"))),
		EmbeddingDimensions: v.GetInt("embedding.dimensions"),
		MoodleURL:           strings.TrimRight(v.GetString("moodle.url"), "/"),
		MoodleToken:         v.GetString("moodle.token"),
		MoodleTimeout:       moodleTimeout,
		MoodleCourseID:      v.GetInt("moodle.course_id"),
		Recommender: RecommenderConfig{
			Weights: recommender.Weights{
				Collaborative: v.GetFloat64("recommender.collab_weight"),
				Content:       v.GetFloat64("recommender.content_weight"),
			},
			TopN: v.GetInt("recommender.top_n"),
			Collaborative: recommender.CollaborativeConfig{
				Components:      v.GetInt("recommender.components"),
				Epochs:          v.GetInt("recommender.epochs"),
				LearningRate:    v.GetFloat64("recommender.learning_rate"),
				Regularization:  v.GetFloat64("recommender.regularization"),
				Seed:            v.GetInt64("recommender.seed"),
				NegativeSamples: v.GetInt("recommender.negative_samples"),
				Vocabulary:      splitList(v.GetString("recommender.feature_vocabulary")),
			},
			CandidateFilter:  v.GetString("recommender.candidate_filter"),
			Confidence:       v.GetFloat64("recommender.confidence"),
			ModelPath:        v.GetString("recommender.model_path"),
			RetrainInterval:  retrainInterval,
			CacheTTL:         cacheTTL,
			RetrainRateLimit: v.GetInt("recommender.retrain_rate_limit"),
		},
		SourceTimeout: sourceTimeout,
		SeedEnabled:   v.GetBool("seed.enabled"),
		SeedToken:     v.GetString("seed.token"),
		SeedFile:      v.GetString("seed.file"),
	}

	if err := cfg.Recommender.Weights.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid recommender weights: %w", err)
	}
	if cfg.Recommender.TopN <= 0 {
		cfg.Recommender.TopN = 10
	}
	if cfg.Recommender.Confidence < 0 || cfg.Recommender.Confidence > 1 {
		return Config{}, fmt.Errorf("recommender confidence must be within [0,1], got %v", cfg.Recommender.Confidence)
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = recommender.DefaultEmbeddingDimensions
	}
	switch cfg.Embedder {
	case "hash", "openai":
	default:
		return Config{}, fmt.Errorf("unsupported embedder %q", cfg.Embedder)
	}
	if cfg.SeedEnabled && cfg.SeedToken == "" {
		return Config{}, fmt.Errorf("seed token must be provided when seeding is enabled")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
