package runtime

import (
	"context"
	"fmt"

	"github.com/Protocol-Lattice/pcb-agent/pkg/config"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/models"
	"github.com/Protocol-Lattice/pcb-agent/pkg/store"
	"github.com/Protocol-Lattice/pcb-agent/pkg/store/migrations"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision/tflite"
)

func (o *options) defaultModel(ctx context.Context) (models.ChatModel, error) {
	llm := o.cfg.LLM
	return models.NewChatModel(ctx, models.Settings{
		Provider:    llm.Provider,
		Model:       llm.Model,
		APIKey:      llm.APIKey,
		BaseURL:     llm.BaseURL,
		Temperature: llm.Temperature,
		MaxTokens:   llm.MaxTokens,
		Timeout:     llm.Timeout,
	})
}

func (o *options) defaultDetector(context.Context) (vision.Detector, error) {
	v := o.cfg.Vision
	switch v.Backend {
	case config.VisionRoboflow:
		return vision.NewRoboflowDetector(vision.RoboflowConfig{
			APIURL:  v.APIURL,
			APIKey:  v.APIKey,
			ModelID: v.ModelID,
		}, o.client, o.logger)
	case config.VisionTFLite:
		return tflite.New(tflite.Config{
			ModelPath:  v.ModelPath,
			Labels:     v.Labels,
			NumThreads: v.Threads,
		}, o.logger)
	default:
		return nil, unknownBackend("vision", v.Backend)
	}
}

func (o *options) defaultBlobStore(context.Context) (store.BlobStore, error) {
	s := o.cfg.Storage
	switch s.Blob {
	case config.BlobSupabase:
		return store.NewSupabaseBlobStore(o.client, s.SupabaseURL, s.SupabaseKey, s.Bucket)
	case config.BlobFS:
		return store.NewFSBlobStore(s.FSDir, s.FSBaseURL)
	default:
		return nil, unknownBackend("blob", s.Blob)
	}
}

func (o *options) defaultMetadataStore(ctx context.Context) (store.MetadataStore, error) {
	s := o.cfg.Storage
	switch s.Metadata {
	case config.MetadataPostgres:
		pg, err := store.NewPostgresStore(ctx, s.DatabaseURL, o.logger)
		if err != nil {
			return nil, err
		}
		if s.Migrate {
			if err := pg.RunMigrations(ctx, migrations.FS); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pg, nil
	case config.MetadataMongo:
		return store.NewMongoStore(ctx, s.MongoURI, s.MongoDatabase)
	case config.MetadataMemory:
		o.logger.Warn("using in-memory metadata store; detections are lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, unknownBackend("metadata", s.Metadata)
	}
}

func unknownBackend(kind, name string) error {
	return pcberrors.Newf("unknown %s backend: %q", kind, name).
		Component("runtime").
		Category(pcberrors.CategoryConfiguration).
		Build()
}
