package config

import (
	"errors"
	"fmt"
	"slices"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

var (
	providers        = []string{"gemini", "google", "openai", "anthropic", "claude", "ollama"}
	visionBackends   = []string{VisionRoboflow, VisionTFLite}
	blobBackends     = []string{BlobSupabase, BlobFS}
	metadataBackends = []string{MetadataPostgres, MetadataMongo, MetadataMemory}
	logFormats       = []string{"text", "json"}
)

// Validate rejects structurally invalid settings. Missing credentials for
// optional integrations are reported when those integrations are used.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains(providers, c.LLM.Provider), "llm.provider %q is not one of %v", c.LLM.Provider, providers)
	check(c.LLM.Timeout > 0, "llm.timeout must be positive")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be between 0 and 2")
	check(c.Agent.MaxIterations > 0, "agent.max_iterations must be positive")

	check(slices.Contains(visionBackends, c.Vision.Backend), "vision.backend %q is not one of %v", c.Vision.Backend, visionBackends)
	check(c.Vision.Timeout > 0, "vision.timeout must be positive")
	check(c.Vision.MaxConcurrent > 0, "vision.max_concurrent must be positive")
	check(c.Vision.OutputDir != "", "vision.output_dir must be set")
	if c.Vision.Backend == VisionTFLite {
		check(c.Vision.ModelPath != "", "vision.model_path is required for the tflite backend")
		check(len(c.Vision.Labels) > 0, "vision.labels is required for the tflite backend")
	}

	check(slices.Contains(blobBackends, c.Storage.Blob), "storage.blob %q is not one of %v", c.Storage.Blob, blobBackends)
	check(slices.Contains(metadataBackends, c.Storage.Metadata), "storage.metadata %q is not one of %v", c.Storage.Metadata, metadataBackends)
	check(c.Storage.Timeout > 0, "storage.timeout must be positive")
	switch c.Storage.Metadata {
	case MetadataPostgres:
		check(c.Storage.DatabaseURL != "", "storage.database_url is required for the postgres metadata store")
	case MetadataMongo:
		check(c.Storage.MongoURI != "", "storage.mongo_uri is required for the mongo metadata store")
	}

	check(c.Search.Timeout > 0, "search.timeout must be positive")
	check(c.Server.Addr != "", "server.addr must be set")
	check(c.Server.UploadDir != "", "server.upload_dir must be set")
	check(slices.Contains(logFormats, c.Log.Format), "log.format %q is not one of %v", c.Log.Format, logFormats)

	if len(errs) == 0 {
		return nil
	}
	return pcberrors.New(errors.Join(errs...)).
		Component("config").
		Category(pcberrors.CategoryConfiguration).
		Build()
}
