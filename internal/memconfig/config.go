// Package memconfig loads and validates the memory engine's configuration
// surface (spec §6): per-type memory policy, intelligence (embedding /
// connection-detection / cost-control), PRIME, and recall presets. The
// getEnv* loader style and the Config/Validate shape are grounded on the
// teacher's internal/config/config.go; environment variables are the only
// source, read once by Load (there is no config file overlay and no hot
// reload).
package memconfig

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type WorkingConfig struct {
	MaxTokens             int  `validate:"gt=0"`
	TTLSeconds            int  `validate:"gt=0"`
	MaxContextItems       int  `validate:"gt=0"`
	CompressionThreshold  int  `validate:"gt=0"`
	EncryptSensitive      bool
}

type EpisodicConfig struct {
	MaxMemoriesPerSession int           `validate:"gt=0"`
	DecayRate             float64       `validate:"gte=0,lte=1"`
	ImportanceThreshold   float64       `validate:"gte=0,lte=1"`
	CompressionAge        time.Duration `validate:"gt=0"`
	EncryptSensitive      bool
}

type SemanticConfig struct {
	DeduplicationThreshold float64 `validate:"gte=0,lte=1"`
	MaxMemoriesPerCategory int     `validate:"gt=0"`
	ConfidenceThreshold    float64 `validate:"gte=0,lte=1"`
	VectorSearchEnabled    bool
	EncryptSensitive       bool
	AutoExtractFacts       bool
}

type ProceduralConfig struct {
	MinSuccessRate      float64 `validate:"gte=0,lte=1"`
	MaxPatternsPerCategory int  `validate:"gt=0"`
	DecayRate           float64 `validate:"gte=0,lte=1"`
	ConfidenceThreshold float64 `validate:"gte=0,lte=1"`
	AdaptiveLearning    bool
	PatternMerging      bool
}

type EmbeddingConfig struct {
	Enabled            bool
	Provider           string  `validate:"required"`
	Model              string  `validate:"required"`
	SimilarityThreshold float64 `validate:"gte=0,lte=1"`
}

type ConnectionDetectionThresholds struct {
	AutoSimilar  float64 `validate:"gte=0,lte=1"`
	AutoRelated  float64 `validate:"gte=0,lte=1"`
	LLMRequired  float64 `validate:"gte=0,lte=1"`
}

type ConnectionDetectionConfig struct {
	Enabled     bool
	Thresholds  ConnectionDetectionThresholds
	MaxCandidates int `validate:"gt=0"`
	BatchSize   int   `validate:"gt=0"`
	Temperature float64 `validate:"gte=0"`
	MaxTokens   int   `validate:"gt=0"`

	MaxConcurrentDiscoveries int           `validate:"gt=0"`
	TaskTimeout              time.Duration `validate:"gt=0"`
	MaxQueue                 int           `validate:"gt=0"`
}

type CostControlConfig struct {
	MaxLLMCallsPerBatch      int `validate:"gt=0"`
	PreferEmbeddingWhenSimilar bool
	TrackTokenUsage          bool
}

type TierThresholds struct {
	AdvancedMinChars int `validate:"gt=0"`
	AdvancedMinRules int `validate:"gt=0"`
}

type PrimeConfig struct {
	Provider                  string  `validate:"required"`
	APIKey                    string
	MaxTokens                 int     `validate:"gt=0"`
	DefaultTier               string  `validate:"required,oneof=standard advanced"`
	AutoTierSelection         bool
	StandardModel             string  `validate:"required"`
	AdvancedModel             string  `validate:"required"`
	Temperature               float64 `validate:"gte=0"`
	DefaultImportanceThreshold float64 `validate:"gte=0,lte=1"`
	TierThresholds            TierThresholds
}

// RecallWeights is a single named preset's 4-dimensional fusion weights
// (§4.C12). They must be in [0,1] and sum to 1±1e-6 (testable property 6).
type RecallWeights struct {
	Vector     float64 `validate:"gte=0,lte=1"`
	Text       float64 `validate:"gte=0,lte=1"`
	Temporal   float64 `validate:"gte=0,lte=1"`
	Procedural float64 `validate:"gte=0,lte=1"`
}

func (w RecallWeights) Validate() error {
	sum := w.Vector + w.Text + w.Temporal + w.Procedural
	for _, v := range []float64{w.Vector, w.Text, w.Temporal, w.Procedural} {
		if v < 0 || v > 1 {
			return fmt.Errorf("recall weight %.4f out of range [0,1]", v)
		}
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		return fmt.Errorf("recall weights must sum to 1, got %.6f", sum)
	}
	return nil
}

type RecallPresets struct {
	Default     RecallWeights
	Precision   RecallWeights
	Performance RecallWeights
	Research    RecallWeights
}

func DefaultRecallPresets() RecallPresets {
	return RecallPresets{
		Default:     RecallWeights{Vector: 0.30, Text: 0.30, Temporal: 0.20, Procedural: 0.20},
		Precision:   RecallWeights{Vector: 0.25, Text: 0.45, Temporal: 0.20, Procedural: 0.10},
		Performance: RecallWeights{Vector: 0.20, Text: 0.50, Temporal: 0.25, Procedural: 0.05},
		Research:    RecallWeights{Vector: 0.45, Text: 0.25, Temporal: 0.20, Procedural: 0.10},
	}
}

func (p RecallPresets) Validate() error {
	for name, w := range map[string]RecallWeights{
		"default": p.Default, "precision": p.Precision,
		"performance": p.Performance, "research": p.Research,
	} {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
	}
	return nil
}

// Decay holds the LazyDecayCalculator/BatchProcessor tunables (§4.C4/C5).
type DecayConfig struct {
	MinUpdateInterval     time.Duration `validate:"gt=0"`
	ReinforceWindow       time.Duration `validate:"gt=0"`
	SignificanceThreshold float64       `validate:"gte=0,lte=1"`
	MaxPending            int           `validate:"gt=0"`
	MaxBatchSize          int           `validate:"gt=0"`
	FlushInterval         time.Duration `validate:"gt=0"`
}

type ConsolidationConfig struct {
	EpisodicMaxAge          time.Duration `validate:"gt=0"`
	EpisodicImportanceFloor float64       `validate:"gte=0,lte=1"`
	PreserveOriginals       bool          // single configurable policy, spec §9 open question
	SimilarityThreshold     float64       `validate:"gte=0,lte=1"`
	Debounce                time.Duration `validate:"gt=0"`
}

// Config is the full recognized configuration surface (spec §6).
type Config struct {
	Environment string

	Working    WorkingConfig
	Episodic   EpisodicConfig
	Semantic   SemanticConfig
	Procedural ProceduralConfig

	Embedding           EmbeddingConfig
	ConnectionDetection ConnectionDetectionConfig
	CostControl         CostControlConfig

	Prime PrimeConfig

	RecallPresets RecallPresets

	Decay         DecayConfig
	Consolidation ConsolidationConfig
}

// Load loads configuration from environment variables, falling back to
// the defaults spec.md names throughout §4. Mirrors the teacher's
// LoadConfig/Validate pairing.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Working: WorkingConfig{
			MaxTokens:            getEnvInt("MEM_WORKING_MAX_TOKENS", 4000),
			TTLSeconds:           getEnvInt("MEM_WORKING_TTL_SECONDS", 3600),
			MaxContextItems:      getEnvInt("MEM_WORKING_MAX_CONTEXT_ITEMS", 20),
			CompressionThreshold: getEnvInt("MEM_WORKING_COMPRESSION_THRESHOLD", 50),
			EncryptSensitive:     getEnvBool("MEM_WORKING_ENCRYPT_SENSITIVE", false),
		},
		Episodic: EpisodicConfig{
			MaxMemoriesPerSession: getEnvInt("MEM_EPISODIC_MAX_PER_SESSION", 200),
			DecayRate:             getEnvFloat("MEM_EPISODIC_DECAY_RATE", 0.05),
			ImportanceThreshold:   getEnvFloat("MEM_EPISODIC_IMPORTANCE_THRESHOLD", 0.3),
			CompressionAge:        getEnvDuration("MEM_EPISODIC_COMPRESSION_AGE", 30*24*time.Hour),
			EncryptSensitive:      getEnvBool("MEM_EPISODIC_ENCRYPT_SENSITIVE", false),
		},
		Semantic: SemanticConfig{
			DeduplicationThreshold: getEnvFloat("MEM_SEMANTIC_DEDUP_THRESHOLD", 0.85),
			MaxMemoriesPerCategory: getEnvInt("MEM_SEMANTIC_MAX_PER_CATEGORY", 500),
			ConfidenceThreshold:    getEnvFloat("MEM_SEMANTIC_CONFIDENCE_THRESHOLD", 0.6),
			VectorSearchEnabled:    getEnvBool("MEM_SEMANTIC_VECTOR_SEARCH_ENABLED", true),
			EncryptSensitive:       getEnvBool("MEM_SEMANTIC_ENCRYPT_SENSITIVE", false),
			AutoExtractFacts:       getEnvBool("MEM_SEMANTIC_AUTO_EXTRACT_FACTS", true),
		},
		Procedural: ProceduralConfig{
			MinSuccessRate:         getEnvFloat("MEM_PROCEDURAL_MIN_SUCCESS_RATE", 0.6),
			MaxPatternsPerCategory: getEnvInt("MEM_PROCEDURAL_MAX_PATTERNS", 100),
			DecayRate:              getEnvFloat("MEM_PROCEDURAL_DECAY_RATE", 0.02),
			ConfidenceThreshold:    getEnvFloat("MEM_PROCEDURAL_CONFIDENCE_THRESHOLD", 0.7),
			AdaptiveLearning:       getEnvBool("MEM_PROCEDURAL_ADAPTIVE_LEARNING", true),
			PatternMerging:         getEnvBool("MEM_PROCEDURAL_PATTERN_MERGING", true),
		},
		Embedding: EmbeddingConfig{
			Enabled:             getEnvBool("MEM_EMBEDDING_ENABLED", true),
			Provider:             getEnv("MEM_EMBEDDING_PROVIDER", "openai"),
			Model:                getEnv("MEM_EMBEDDING_MODEL", "text-embedding-3-small"),
			SimilarityThreshold:  getEnvFloat("MEM_EMBEDDING_SIMILARITY_THRESHOLD", 0.3),
		},
		ConnectionDetection: ConnectionDetectionConfig{
			Enabled: getEnvBool("MEM_CONNDET_ENABLED", true),
			Thresholds: ConnectionDetectionThresholds{
				AutoSimilar: getEnvFloat("MEM_CONNDET_AUTO_SIMILAR", 0.8),
				AutoRelated: getEnvFloat("MEM_CONNDET_AUTO_RELATED", 0.6),
				LLMRequired: getEnvFloat("MEM_CONNDET_LLM_REQUIRED", 0.3),
			},
			MaxCandidates:            getEnvInt("MEM_CONNDET_MAX_CANDIDATES", 20),
			BatchSize:                getEnvInt("MEM_CONNDET_BATCH_SIZE", 10),
			Temperature:              getEnvFloat("MEM_CONNDET_TEMPERATURE", 0.2),
			MaxTokens:                getEnvInt("MEM_CONNDET_MAX_TOKENS", 200),
			MaxConcurrentDiscoveries: getEnvInt("MEM_CONNDET_MAX_CONCURRENT", 4),
			TaskTimeout:              getEnvDuration("MEM_CONNDET_TASK_TIMEOUT", 30*time.Second),
			MaxQueue:                 getEnvInt("MEM_CONNDET_MAX_QUEUE", 1000),
		},
		CostControl: CostControlConfig{
			MaxLLMCallsPerBatch:        getEnvInt("MEM_COST_MAX_LLM_CALLS_PER_BATCH", 10),
			PreferEmbeddingWhenSimilar: getEnvBool("MEM_COST_PREFER_EMBEDDING", true),
			TrackTokenUsage:            getEnvBool("MEM_COST_TRACK_TOKENS", true),
		},
		Prime: PrimeConfig{
			Provider:                   getEnv("PRIME_PROVIDER", "anthropic"),
			APIKey:                     getEnv("PRIME_API_KEY", ""),
			MaxTokens:                  getEnvInt("PRIME_MAX_TOKENS", 1024),
			DefaultTier:                getEnv("PRIME_DEFAULT_TIER", "standard"),
			AutoTierSelection:          getEnvBool("PRIME_AUTO_TIER_SELECTION", true),
			StandardModel:              getEnv("PRIME_STANDARD_MODEL", "claude-haiku"),
			AdvancedModel:              getEnv("PRIME_ADVANCED_MODEL", "claude-sonnet"),
			Temperature:                getEnvFloat("PRIME_TEMPERATURE", 0.2),
			DefaultImportanceThreshold: getEnvFloat("PRIME_IMPORTANCE_THRESHOLD", 0.3),
			TierThresholds: TierThresholds{
				AdvancedMinChars: getEnvInt("PRIME_TIER_ADVANCED_MIN_CHARS", 500),
				AdvancedMinRules: getEnvInt("PRIME_TIER_ADVANCED_MIN_RULES", 5),
			},
		},
		RecallPresets: DefaultRecallPresets(),
		Decay: DecayConfig{
			MinUpdateInterval:     getEnvDuration("MEM_DECAY_MIN_UPDATE_INTERVAL", 60*time.Second),
			ReinforceWindow:       getEnvDuration("MEM_DECAY_REINFORCE_WINDOW", 24*time.Hour),
			SignificanceThreshold: getEnvFloat("MEM_DECAY_SIGNIFICANCE_THRESHOLD", 0.10),
			MaxPending:            getEnvInt("MEM_DECAY_MAX_PENDING", 10000),
			MaxBatchSize:          getEnvInt("MEM_DECAY_MAX_BATCH_SIZE", 100),
			FlushInterval:         getEnvDuration("MEM_DECAY_FLUSH_INTERVAL", 5*time.Second),
		},
		Consolidation: ConsolidationConfig{
			EpisodicMaxAge:          getEnvDuration("MEM_CONSOLIDATION_EPISODIC_MAX_AGE", 5*time.Minute),
			EpisodicImportanceFloor: getEnvFloat("MEM_CONSOLIDATION_EPISODIC_IMPORTANCE_FLOOR", 0.5),
			PreserveOriginals:       getEnvBool("MEM_CONSOLIDATION_PRESERVE_ORIGINALS", true),
			SimilarityThreshold:     getEnvFloat("MEM_CONSOLIDATION_SIMILARITY_THRESHOLD", 0.85),
			Debounce:                getEnvDuration("MEM_CONSOLIDATION_DEBOUNCE", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

func getStructValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New()
	})
	return structValidator
}

// Validate checks struct-tag field bounds via go-playground/validator/v10,
// the same library and singleton pattern the teacher's internal/config uses,
// then the cross-field invariants struct tags can't express (recall preset
// weight sums, threshold ordering).
func (c *Config) Validate() error {
	if err := getStructValidator().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := c.RecallPresets.Validate(); err != nil {
		return err
	}
	th := c.ConnectionDetection.Thresholds
	if !(th.LLMRequired <= th.AutoRelated && th.AutoRelated <= th.AutoSimilar) {
		return fmt.Errorf("connection_detection thresholds must satisfy llm_required <= auto_related <= auto_similar, got %.2f <= %.2f <= %.2f", th.LLMRequired, th.AutoRelated, th.AutoSimilar)
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
