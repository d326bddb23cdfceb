package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/resolver"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	BackendNeo4j    = "neo4j"
	BackendPostgres = "postgres"

	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"
)

type Config struct {
	Graph    GraphConfig    `yaml:"graph"`
	AI       AIConfig       `yaml:"ai"`
	Resolver ResolverConfig `yaml:"resolver"`
	Server   ServerConfig   `yaml:"server"`
	Queue    QueueConfig    `yaml:"queue"`
}

type GraphConfig struct {
	Backend  string         `yaml:"backend" validate:"oneof=neo4j postgres"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type Neo4jConfig struct {
	URI                   string        `yaml:"uri"`
	User                  string        `yaml:"user"`
	Password              string        `yaml:"-"`
	Database              string        `yaml:"database"`
	MaxConnectionPoolSize int           `yaml:"max_connection_pool_size" validate:"gte=0"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout" validate:"gte=0"`
}

type PostgresConfig struct {
	URL      string `yaml:"-"`
	MaxConns int32  `yaml:"max_conns" validate:"gte=0"`
}

type AIConfig struct {
	Adapter               string        `yaml:"adapter" validate:"oneof=openai ollama"`
	EmbeddingModel        string        `yaml:"embedding_model"`
	ExtractionModel       string        `yaml:"extraction_model"`
	EmbeddingDim          int           `yaml:"embedding_dim" validate:"gte=0"`
	MaxConcurrentRequests int64         `yaml:"max_concurrent_requests" validate:"gte=1"`
	Timeout               time.Duration `yaml:"timeout" validate:"gt=0"`
	MinConfidence         float64       `yaml:"min_confidence" validate:"gte=0,lte=1"`

	EmbeddingURL string `yaml:"embedding_url"`
	ChatURL      string `yaml:"chat_url"`
	EmbeddingKey string `yaml:"-"`
	ChatKey      string `yaml:"-"`
}

type ResolverConfig struct {
	CallTimeout time.Duration    `yaml:"call_timeout" validate:"gt=0"`
	Workers     int              `yaml:"workers" validate:"gte=1"`
	Memoize     bool             `yaml:"memoize"`
	Categories  CategoriesConfig `yaml:"categories"`
}

// CategoriesConfig uses one field per category so a partial override file
// only replaces the keys it names.
type CategoriesConfig struct {
	Medication CategoryConfig `yaml:"medication"`
	Nutrient   CategoryConfig `yaml:"nutrient"`
	Symptom    CategoryConfig `yaml:"symptom"`
	DrugClass  CategoryConfig `yaml:"drug_class"`
}

type CategoryConfig struct {
	FullTextThreshold  float64 `yaml:"fulltext_threshold" validate:"gte=0"`
	EmbeddingThreshold float64 `yaml:"embedding_threshold" validate:"gte=0,lte=1"`
	EmbeddingsEnabled  bool    `yaml:"embeddings_enabled"`
	TopK               int     `yaml:"top_k" validate:"gte=1,lte=100"`
}

type ServerConfig struct {
	Port      string `yaml:"port" validate:"required,numeric"`
	BodyLimit string `yaml:"body_limit" validate:"required"`
	APIKey    string `yaml:"-"`
}

type QueueConfig struct {
	Name       string `yaml:"name" validate:"required"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0"`
}

// Default returns the embedded stock configuration without env overrides.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration from the embedded defaults, the optional file
// named by RESOLVER_CONFIG_FILE and finally the environment.
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path := util.GetEnv("RESOLVER_CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
		logger.Debug("[Config] Loaded override file", "path", path)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Graph.Backend = strings.ToLower(util.GetEnvString("GRAPH_BACKEND", c.Graph.Backend))

	c.Graph.Neo4j.URI = util.GetEnvString("NEO4J_URI", c.Graph.Neo4j.URI)
	c.Graph.Neo4j.User = util.GetEnvString("NEO4J_USER", c.Graph.Neo4j.User)
	c.Graph.Neo4j.Password = util.GetEnvString("NEO4J_PASSWORD", c.Graph.Neo4j.Password)
	c.Graph.Neo4j.Database = util.GetEnvString("NEO4J_DATABASE", c.Graph.Neo4j.Database)
	c.Graph.Neo4j.MaxConnectionPoolSize = int(util.GetEnvNumeric("NEO4J_MAX_POOL_SIZE", c.Graph.Neo4j.MaxConnectionPoolSize))
	c.Graph.Neo4j.ConnectionTimeout = util.GetEnvDuration("NEO4J_CONNECTION_TIMEOUT", c.Graph.Neo4j.ConnectionTimeout)

	c.Graph.Postgres.URL = util.GetEnvString("DATABASE_URL", c.Graph.Postgres.URL)
	c.Graph.Postgres.MaxConns = int32(util.GetEnvNumeric("DATABASE_MAX_CONNS", int(c.Graph.Postgres.MaxConns)))

	c.AI.Adapter = strings.ToLower(util.GetEnvString("AI_ADAPTER", c.AI.Adapter))
	c.AI.EmbeddingModel = util.GetEnvString("AI_EMBED_MODEL", c.AI.EmbeddingModel)
	c.AI.ExtractionModel = util.GetEnvString("AI_CHAT_EXTRACT_MODEL", c.AI.ExtractionModel)
	c.AI.EmbeddingDim = int(util.GetEnvNumeric("AI_EMBED_DIM", c.AI.EmbeddingDim))
	c.AI.MaxConcurrentRequests = int64(util.GetEnvNumeric("AI_PARALLEL_REQ", int(c.AI.MaxConcurrentRequests)))
	c.AI.Timeout = util.GetEnvDuration("AI_TIMEOUT", c.AI.Timeout)
	c.AI.MinConfidence = util.GetEnvFloat("AI_MIN_CONFIDENCE", c.AI.MinConfidence)
	c.AI.EmbeddingURL = util.GetEnvString("AI_EMBED_URL", c.AI.EmbeddingURL)
	c.AI.EmbeddingKey = util.GetEnvString("AI_EMBED_KEY", c.AI.EmbeddingKey)
	c.AI.ChatURL = util.GetEnvString("AI_CHAT_URL", c.AI.ChatURL)
	c.AI.ChatKey = util.GetEnvString("AI_CHAT_KEY", c.AI.ChatKey)

	c.Resolver.CallTimeout = util.GetEnvDuration("RESOLVER_CALL_TIMEOUT", c.Resolver.CallTimeout)
	c.Resolver.Workers = int(util.GetEnvNumeric("RESOLVER_WORKERS", c.Resolver.Workers))
	c.Resolver.Memoize = util.GetEnvBool("RESOLVER_MEMOIZE", c.Resolver.Memoize)

	for _, cat := range common.Categories {
		cc := c.Resolver.Categories.get(cat)
		prefix := "RESOLVER_" + string(cat) + "_"
		if v, ok := util.LookupEnvFloat(prefix + "FULLTEXT_THRESHOLD"); ok {
			cc.FullTextThreshold = v
		}
		if v, ok := util.LookupEnvFloat(prefix + "EMBEDDING_THRESHOLD"); ok {
			cc.EmbeddingThreshold = v
		}
		cc.EmbeddingsEnabled = util.GetEnvBool(prefix+"EMBEDDINGS", cc.EmbeddingsEnabled)
		cc.TopK = int(util.GetEnvNumeric(prefix+"TOP_K", cc.TopK))
	}

	c.Server.Port = util.GetEnvString("PORT", c.Server.Port)
	c.Server.APIKey = util.GetEnvString("API_KEY", c.Server.APIKey)

	c.Queue.Name = util.GetEnvString("RESOLVER_QUEUE", c.Queue.Name)
	c.Queue.MaxRetries = int(util.GetEnvNumeric("RESOLVER_QUEUE_MAX_RETRIES", c.Queue.MaxRetries))
}

// Validate checks field ranges and the settings the selected backend needs.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Graph.Backend {
	case BackendNeo4j:
		if c.Graph.Neo4j.URI == "" {
			return fmt.Errorf("invalid configuration: neo4j backend needs NEO4J_URI")
		}
	case BackendPostgres:
		if c.Graph.Postgres.URL == "" {
			return fmt.Errorf("invalid configuration: postgres backend needs DATABASE_URL")
		}
	}
	return nil
}

// ResolverSettings converts the resolver section into resolver.Config.
func (c *Config) ResolverSettings() resolver.Config {
	categories := make(map[common.EntityCategory]resolver.CategoryConfig, len(common.Categories))
	for _, cat := range common.Categories {
		cc := c.Resolver.Categories.get(cat)
		categories[cat] = resolver.CategoryConfig{
			FullTextThreshold:  cc.FullTextThreshold,
			EmbeddingThreshold: cc.EmbeddingThreshold,
			EmbeddingsEnabled:  cc.EmbeddingsEnabled,
			TopK:               cc.TopK,
		}
	}
	return resolver.Config{
		Categories:  categories,
		CallTimeout: c.Resolver.CallTimeout,
		Workers:     c.Resolver.Workers,
		Memoize:     c.Resolver.Memoize,
	}
}

func (c *CategoriesConfig) get(cat common.EntityCategory) *CategoryConfig {
	switch cat {
	case common.CategoryMedication:
		return &c.Medication
	case common.CategoryNutrient:
		return &c.Nutrient
	case common.CategorySymptom:
		return &c.Symptom
	case common.CategoryDrugClass:
		return &c.DrugClass
	}
	return &CategoryConfig{}
}
