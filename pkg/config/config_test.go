package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

// isolate runs the test from an empty directory so no stray .env is picked up,
// and clears the variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	for _, b := range envBindings() {
		for _, env := range b.EnvVars {
			t.Setenv(env, "")
			os.Unsetenv(env)
		}
	}
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.False(t, cfg.Agent.ParallelTools)
	assert.Equal(t, VisionRoboflow, cfg.Vision.Backend)
	assert.Equal(t, "https://detect.roboflow.com", cfg.Vision.APIURL)
	assert.Equal(t, DefaultLabels, cfg.Vision.Labels)
	assert.Equal(t, "processed_images", cfg.Vision.OutputDir)
	assert.Equal(t, BlobFS, cfg.Storage.Blob)
	assert.Equal(t, MetadataMemory, cfg.Storage.Metadata)
	assert.Equal(t, "pcb-images", cfg.Storage.Bucket)
	assert.Equal(t, 15*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "uploads", cfg.Server.UploadDir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("AGENT_MAX_ITERATIONS", "6")
	t.Setenv("AGENT_PARALLEL_TOOLS", "true")
	t.Setenv("VISION_LABELS", "short, spur")
	t.Setenv("VISION_TIMEOUT", "15s")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.True(t, cfg.Agent.ParallelTools)
	assert.Equal(t, []string{"short", "spur"}, cfg.Vision.Labels)
	assert.Equal(t, 15*time.Second, cfg.Vision.Timeout)
	assert.Equal(t, BlobSupabase, cfg.Storage.Blob)
	assert.Equal(t, "service", cfg.Storage.SupabaseKey)
	assert.Equal(t, MetadataPostgres, cfg.Storage.Metadata)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadDotEnvAndFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MONGO_URI=mongodb://localhost:27017\nTAVILY_API_KEY=tvly-123\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MONGO_URI")
		os.Unsetenv("TAVILY_API_KEY")
	})

	file := filepath.Join(dir, "pcb.yaml")
	require.NoError(t, os.WriteFile(file, []byte("llm:\n  provider: ollama\n  model: llama3.1\nserver:\n  addr: \":7000\"\n"), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.1", cfg.LLM.Model)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, MetadataMongo, cfg.Storage.Metadata)
	assert.Equal(t, "tvly-123", cfg.Search.TavilyAPIKey)
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "palm" }, "llm.provider"},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "agent.max_iterations"},
		{"unknown vision backend", func(c *Config) { c.Vision.Backend = "yolo" }, "vision.backend"},
		{"tflite without model", func(c *Config) { c.Vision.Backend = VisionTFLite }, "vision.model_path"},
		{"negative storage timeout", func(c *Config) { c.Storage.Timeout = -time.Second }, "storage.timeout"},
		{"postgres without dsn", func(c *Config) { c.Storage.Metadata = MetadataPostgres }, "storage.database_url"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, pcberrors.ErrConfiguration))
		})
	}

	assert.NoError(t, base.Validate())
}

func TestMissingSearchKeysAreNotStartupErrors(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Search.TavilyAPIKey)
	assert.Empty(t, cfg.Search.SerpAPIKey)
	assert.Empty(t, cfg.Vision.APIKey)
}
