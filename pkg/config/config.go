// Package config loads settings from defaults, an optional YAML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Vision  VisionConfig  `mapstructure:"vision"`
	Storage StorageConfig `mapstructure:"storage"`
	Search  SearchConfig  `mapstructure:"search"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// LLMConfig selects the chat model shared by the supervisor and specialists.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// APIKey overrides the provider's own variable (GOOGLE_API_KEY, OPENAI_API_KEY, ...).
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type AgentConfig struct {
	MaxIterations int  `mapstructure:"max_iterations"`
	ParallelTools bool `mapstructure:"parallel_tools"`
}

type VisionConfig struct {
	Backend   string        `mapstructure:"backend"`
	APIURL    string        `mapstructure:"api_url"`
	APIKey    string        `mapstructure:"api_key"`
	ModelID   string        `mapstructure:"model_id"`
	ModelPath string        `mapstructure:"model_path"`
	Labels    []string      `mapstructure:"labels"`
	Threads   int           `mapstructure:"threads"`
	OutputDir string        `mapstructure:"output_dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// MaxConcurrent bounds simultaneous /detect-image requests.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type StorageConfig struct {
	Blob          string        `mapstructure:"blob"`
	Metadata      string        `mapstructure:"metadata"`
	SupabaseURL   string        `mapstructure:"supabase_url"`
	SupabaseKey   string        `mapstructure:"supabase_key"`
	Bucket        string        `mapstructure:"bucket"`
	DatabaseURL   string        `mapstructure:"database_url"`
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database"`
	FSDir         string        `mapstructure:"fs_dir"`
	FSBaseURL     string        `mapstructure:"fs_base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// Migrate applies the embedded schema on startup (postgres only).
	Migrate bool `mapstructure:"migrate"`
}

type SearchConfig struct {
	TavilyAPIKey  string        `mapstructure:"tavily_api_key"`
	TavilyURL     string        `mapstructure:"tavily_url"`
	SerpAPIKey    string        `mapstructure:"serpapi_api_key"`
	SerpAPIURL    string        `mapstructure:"serpapi_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	MaxPageChars  int           `mapstructure:"max_page_chars"`
	FetchParallel int           `mapstructure:"fetch_parallel"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	UploadDir string `mapstructure:"upload_dir"`
	// MCP mounts the tool server at /mcp.
	MCP bool `mapstructure:"mcp"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Backend names.
const (
	VisionRoboflow = "roboflow"
	VisionTFLite   = "tflite"

	BlobSupabase = "supabase"
	BlobFS       = "fs"

	MetadataPostgres = "postgres"
	MetadataMongo    = "mongo"
	MetadataMemory   = "memory"
)

// DefaultLabels are the six PCB defect classes of the public PCB defect dataset.
var DefaultLabels = []string{"missing_hole", "mouse_bite", "open_circuit", "short", "spur", "spurious_copper"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.parallel_tools", false)

	v.SetDefault("vision.backend", VisionRoboflow)
	v.SetDefault("vision.api_url", "https://detect.roboflow.com")
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.model_id", "")
	v.SetDefault("vision.model_path", "")
	v.SetDefault("vision.labels", DefaultLabels)
	v.SetDefault("vision.threads", 0)
	v.SetDefault("vision.output_dir", "processed_images")
	v.SetDefault("vision.timeout", 60*time.Second)
	v.SetDefault("vision.max_concurrent", 4)

	v.SetDefault("storage.blob", "")
	v.SetDefault("storage.metadata", "")
	v.SetDefault("storage.supabase_url", "")
	v.SetDefault("storage.supabase_key", "")
	v.SetDefault("storage.bucket", "pcb-images")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.mongo_uri", "")
	v.SetDefault("storage.mongo_database", "pcb")
	v.SetDefault("storage.fs_dir", "artifacts")
	v.SetDefault("storage.fs_base_url", "file://")
	v.SetDefault("storage.timeout", 30*time.Second)
	v.SetDefault("storage.migrate", true)

	v.SetDefault("search.tavily_api_key", "")
	v.SetDefault("search.tavily_url", "https://api.tavily.com/search")
	v.SetDefault("search.serpapi_api_key", "")
	v.SetDefault("search.serpapi_url", "https://serpapi.com/search")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.cache_ttl", 15*time.Minute)
	v.SetDefault("search.max_page_chars", 20000)
	v.SetDefault("search.fetch_parallel", 4)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.mcp", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// envBinding maps a config key to the environment variables that set it.
type envBinding struct {
	ConfigKey string
	EnvVars   []string
}

func envBindings() []envBinding {
	return []envBinding{
		{"llm.provider", []string{"LLM_PROVIDER"}},
		{"llm.model", []string{"LLM_MODEL"}},
		{"llm.temperature", []string{"LLM_TEMPERATURE"}},
		{"llm.max_tokens", []string{"LLM_MAX_TOKENS"}},
		{"llm.timeout", []string{"LLM_TIMEOUT"}},
		{"llm.api_key", []string{"LLM_API_KEY"}},
		{"llm.base_url", []string{"LLM_BASE_URL", "OLLAMA_HOST"}},

		{"agent.max_iterations", []string{"AGENT_MAX_ITERATIONS"}},
		{"agent.parallel_tools", []string{"AGENT_PARALLEL_TOOLS"}},

		{"vision.backend", []string{"VISION_BACKEND"}},
		{"vision.api_url", []string{"ROBOFLOW_API_URL"}},
		{"vision.api_key", []string{"ROBOFLOW_API_KEY"}},
		{"vision.model_id", []string{"ROBOFLOW_MODEL_ID"}},
		{"vision.model_path", []string{"VISION_MODEL_PATH"}},
		{"vision.labels", []string{"VISION_LABELS"}},
		{"vision.threads", []string{"VISION_THREADS"}},
		{"vision.output_dir", []string{"VISION_OUTPUT_DIR"}},
		{"vision.timeout", []string{"VISION_TIMEOUT"}},
		{"vision.max_concurrent", []string{"VISION_MAX_CONCURRENT"}},

		{"storage.blob", []string{"STORAGE_BLOB"}},
		{"storage.metadata", []string{"STORAGE_METADATA"}},
		{"storage.supabase_url", []string{"SUPABASE_URL"}},
		{"storage.supabase_key", []string{"SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_KEY"}},
		{"storage.bucket", []string{"SUPABASE_BUCKET_NAME"}},
		{"storage.database_url", []string{"DATABASE_URL"}},
		{"storage.mongo_uri", []string{"MONGO_URI"}},
		{"storage.mongo_database", []string{"MONGO_DATABASE"}},
		{"storage.fs_dir", []string{"STORAGE_FS_DIR"}},
		{"storage.fs_base_url", []string{"STORAGE_FS_BASE_URL"}},
		{"storage.timeout", []string{"STORAGE_TIMEOUT"}},
		{"storage.migrate", []string{"STORAGE_MIGRATE"}},

		{"search.tavily_api_key", []string{"TAVILY_API_KEY"}},
		{"search.serpapi_api_key", []string{"SERPAPI_API_KEY"}},
		{"search.timeout", []string{"SEARCH_TIMEOUT"}},

		{"server.addr", []string{"SERVER_ADDR"}},
		{"server.upload_dir", []string{"UPLOAD_DIR"}},
		{"server.mcp", []string{"SERVER_MCP"}},

		{"log.level", []string{"LOG_LEVEL"}},
		{"log.format", []string{"LOG_FORMAT"}},
	}
}

// Load builds the configuration. configFile may be empty. A .env file in the
// working directory is loaded first when present; it never overrides variables
// already set in the environment.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for _, b := range envBindings() {
		args := append([]string{b.ConfigKey}, b.EnvVars...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", b.ConfigKey, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.resolve(v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve fills values derived from other settings.
func (c *Config) resolve(v *viper.Viper) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port != "" && os.Getenv("SERVER_ADDR") == "" && !v.InConfig("server.addr") {
		c.Server.Addr = ":" + port
	}
	if c.Storage.Blob == "" {
		c.Storage.Blob = BlobFS
		if c.Storage.SupabaseURL != "" {
			c.Storage.Blob = BlobSupabase
		}
	}
	if c.Storage.Metadata == "" {
		switch {
		case c.Storage.DatabaseURL != "":
			c.Storage.Metadata = MetadataPostgres
		case c.Storage.MongoURI != "":
			c.Storage.Metadata = MetadataMongo
		default:
			c.Storage.Metadata = MetadataMemory
		}
	}
	for i, l := range c.Vision.Labels {
		c.Vision.Labels[i] = strings.TrimSpace(l)
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Vision.Backend = strings.ToLower(strings.TrimSpace(c.Vision.Backend))
}
