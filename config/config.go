package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type KnowledgeConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// AdvisorConfig tunes the query loop. Timeouts are whole seconds so the
// values survive YAML and env round-trips without duration parsing.
type AdvisorConfig struct {
	MaxIterations     int     `yaml:"max_iterations"`
	TurnTimeoutSecs   int     `yaml:"turn_timeout_seconds"`
	LLMTimeoutSecs    int     `yaml:"llm_timeout_seconds"`
	RetrievalLimit    int     `yaml:"retrieval_limit"`
	MaxContextDocs    int     `yaml:"max_context_docs"`
	FanoutWidth       int     `yaml:"fanout_width"`
	LLMRateLimit      float64 `yaml:"llm_rate_limit"`
	SessionMaxAgeSecs int     `yaml:"session_max_age_seconds"`
	MonteCarloSeed    int64   `yaml:"monte_carlo_seed"`
	DefaultGrowthRate float64 `yaml:"default_growth_rate"`
}

type Config struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Neo4jURI    string `yaml:"neo4j_uri"`
	Neo4jUser   string `yaml:"neo4j_user"`
	Neo4jPass   string `yaml:"neo4j_pass"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	ServerAddr string `yaml:"server_addr"`

	LLM        LLMConfig        `yaml:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
}

func (a AdvisorConfig) TurnTimeout() time.Duration {
	return time.Duration(a.TurnTimeoutSecs) * time.Second
}

func (a AdvisorConfig) LLMTimeout() time.Duration {
	return time.Duration(a.LLMTimeoutSecs) * time.Second
}

func (a AdvisorConfig) SessionMaxAge() time.Duration {
	return time.Duration(a.SessionMaxAgeSecs) * time.Second
}

// Load builds the configuration in three layers: compiled defaults, an
// optional YAML file (WPA_CONFIG or ./wpa.yaml), then environment overrides.
func Load() (Config, error) {
	cfg := defaults()

	path := os.Getenv("WPA_CONFIG")
	if path == "" {
		if _, err := os.Stat("wpa.yaml"); err == nil {
			path = "wpa.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	mergeEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		PostgresDSN: "postgres://localhost:5432/wpa?sslmode=disable",
		Neo4jURI:    "neo4j://localhost:7687",
		Neo4jUser:   "neo4j",
		Neo4jPass:   "password",
		OllamaHost:  "http://localhost:11434",
		ServerAddr:  ":8080",
		LLM: LLMConfig{
			Provider: ProviderOllama,
			Model:    "llama3.2",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 768,
		},
		Knowledge: KnowledgeConfig{
			Dir: "kb",
		},
		Advisor: AdvisorConfig{
			MaxIterations:     3,
			TurnTimeoutSecs:   30,
			LLMTimeoutSecs:    10,
			RetrievalLimit:    5,
			MaxContextDocs:    8,
			FanoutWidth:       4,
			LLMRateLimit:      2,
			MonteCarloSeed:    42,
			DefaultGrowthRate: 0.07,
		},
	}
}

func mergeEnv(cfg *Config) {
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Neo4jURI = getEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUser = getEnv("NEO4J_USERNAME", cfg.Neo4jUser)
	cfg.Neo4jPass = getEnv("NEO4J_PASSWORD", cfg.Neo4jPass)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.ServerAddr = getEnv("SERVER_ADDR", cfg.ServerAddr)
	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.Embeddings.Provider = getEnv("EMBEDDINGS_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("EMBEDDINGS_MODEL", cfg.Embeddings.Model)
	cfg.Embeddings.Dimension = getEnvInt("EMBEDDINGS_DIMENSION", cfg.Embeddings.Dimension)
	cfg.Knowledge.Dir = getEnv("KNOWLEDGE_DIR", cfg.Knowledge.Dir)
	cfg.Advisor.MaxIterations = getEnvInt("ADVISOR_MAX_ITERATIONS", cfg.Advisor.MaxIterations)
	cfg.Advisor.TurnTimeoutSecs = getEnvInt("ADVISOR_TURN_TIMEOUT_SECONDS", cfg.Advisor.TurnTimeoutSecs)
	cfg.Advisor.LLMTimeoutSecs = getEnvInt("ADVISOR_LLM_TIMEOUT_SECONDS", cfg.Advisor.LLMTimeoutSecs)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
