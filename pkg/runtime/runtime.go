// Package runtime assembles the model, detection pipeline, stores, tools,
// specialists and supervisor from configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	"github.com/Protocol-Lattice/pcb-agent/pkg/api"
	"github.com/Protocol-Lattice/pcb-agent/pkg/config"
	"github.com/Protocol-Lattice/pcb-agent/pkg/httpclient"
	"github.com/Protocol-Lattice/pcb-agent/pkg/metrics"
	"github.com/Protocol-Lattice/pcb-agent/pkg/models"
	"github.com/Protocol-Lattice/pcb-agent/pkg/store"
	"github.com/Protocol-Lattice/pcb-agent/pkg/subagents"
	"github.com/Protocol-Lattice/pcb-agent/pkg/tools"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

// ModelLoader constructs the chat model shared by the supervisor and specialists.
type ModelLoader func(ctx context.Context) (models.ChatModel, error)

// DetectorFactory constructs the detection backend.
type DetectorFactory func(ctx context.Context) (vision.Detector, error)

// BlobStoreFactory constructs the image blob store.
type BlobStoreFactory func(ctx context.Context) (store.BlobStore, error)

// MetadataStoreFactory constructs the detection record store.
type MetadataStoreFactory func(ctx context.Context) (store.MetadataStore, error)

// Option configures runtime construction.
type Option func(*options)

type options struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *httpclient.Client
	metrics  *metrics.Metrics
	model    ModelLoader
	detector DetectorFactory
	blobs    BlobStoreFactory
	metadata MetadataStoreFactory
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient replaces the outbound client used by Roboflow, Supabase and the web tools.
func WithHTTPClient(client *httpclient.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithMetrics shares an existing metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithModel overrides the provider selected by llm.provider.
func WithModel(loader ModelLoader) Option {
	return func(o *options) {
		if loader != nil {
			o.model = loader
		}
	}
}

// WithDetector overrides the backend selected by vision.backend.
func WithDetector(factory DetectorFactory) Option {
	return func(o *options) {
		if factory != nil {
			o.detector = factory
		}
	}
}

// WithBlobStore overrides the backend selected by storage.blob.
func WithBlobStore(factory BlobStoreFactory) Option {
	return func(o *options) {
		if factory != nil {
			o.blobs = factory
		}
	}
}

// WithMetadataStore overrides the backend selected by storage.metadata.
func WithMetadataStore(factory MetadataStoreFactory) Option {
	return func(o *options) {
		if factory != nil {
			o.metadata = factory
		}
	}
}

// Runtime holds the assembled components.
type Runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	pipeline   *vision.Pipeline
	records    *store.Service
	tools      []agent.Tool
	supervisor *agent.Supervisor
	closers    []func() error
}

// New builds a runtime from cfg. Components not overridden by opts are
// selected by configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("runtime requires a configuration")
	}
	o := &options{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.client == nil {
		o.client = httpclient.New(&httpclient.Config{Timeout: cfg.Search.Timeout})
	}
	if o.metrics == nil {
		m, err := metrics.New()
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		o.metrics = m
	}
	if o.model == nil {
		o.model = o.defaultModel
	}
	if o.detector == nil {
		o.detector = o.defaultDetector
	}
	if o.blobs == nil {
		o.blobs = o.defaultBlobStore
	}
	if o.metadata == nil {
		o.metadata = o.defaultMetadataStore
	}

	rt := &Runtime{cfg: cfg, logger: o.logger, metrics: o.metrics}
	if err := rt.assemble(ctx, o); err != nil {
		if cerr := rt.Close(); cerr != nil {
			o.logger.Warn("releasing partially built runtime", "error", cerr)
		}
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) assemble(ctx context.Context, o *options) error {
	cfg := rt.cfg

	model, err := o.model(ctx)
	if err != nil {
		return fmt.Errorf("load chat model: %w", err)
	}
	if c, ok := model.(io.Closer); ok {
		rt.closers = append(rt.closers, c.Close)
	}

	detector, err := o.detector(ctx)
	if err != nil {
		// The agent keeps working without vision; detection requests report the cause.
		rt.logger.Warn("detection backend unavailable", "backend", cfg.Vision.Backend, "error", err)
		detector = vision.Unavailable(err)
	}
	if c, ok := detector.(interface{ Close() }); ok {
		rt.closers = append(rt.closers, func() error { c.Close(); return nil })
	}
	rt.pipeline, err = vision.NewPipeline(vision.PipelineOptions{
		Detector: detector,
		Timeout:  cfg.Vision.Timeout,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}

	blobs, err := o.blobs(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	meta, err := o.metadata(ctx)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	rt.records = store.NewService(blobs, meta, cfg.Storage.Timeout, rt.logger)
	rt.closers = append(rt.closers, rt.records.Close)

	toolset := subagents.Toolset{
		Detect: tools.NewDetectTool(rt.pipeline, rt.records, cfg.Vision.OutputDir, rt.logger),
		Cost:   tools.NewCostTool(),
		Market: tools.NewMarketTool(tools.MarketConfig{
			BaseURL: cfg.Search.SerpAPIURL,
			APIKey:  func() string { return cfg.Search.SerpAPIKey },
		}, o.client, rt.logger),
		Search: tools.NewSearchTool(tools.SearchConfig{
			BaseURL:      cfg.Search.TavilyURL,
			APIKey:       func() string { return cfg.Search.TavilyAPIKey },
			FetchTimeout: cfg.Search.Timeout,
			CacheTTL:     cfg.Search.CacheTTL,
			MaxPageChars: cfg.Search.MaxPageChars,
			Parallel:     cfg.Search.FetchParallel,
		}, o.client, rt.logger),
		Reflect: tools.NewReflectTool(),
	}
	rt.tools = []agent.Tool{toolset.Detect, toolset.Cost, toolset.Market, toolset.Search, toolset.Reflect}

	team, err := subagents.NewTeam(subagents.Settings{
		Model:         model,
		MaxIterations: cfg.Agent.MaxIterations,
		ParallelTools: cfg.Agent.ParallelTools,
		Logger:        rt.logger,
		Observer:      rt.metrics,
	}, toolset)
	if err != nil {
		return fmt.Errorf("build specialists: %w", err)
	}
	rt.supervisor, err = agent.NewSupervisor(agent.SupervisorOptions{
		Instruction:   subagents.SupervisorInstruction,
		Model:         model,
		SubAgents:     team,
		MaxIterations: cfg.Agent.MaxIterations,
		Logger:        rt.logger,
		Observer:      rt.metrics,
	})
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	rt.logger.Info("runtime ready",
		"provider", cfg.LLM.Provider,
		"vision", cfg.Vision.Backend,
		"blob", cfg.Storage.Blob,
		"metadata", cfg.Storage.Metadata)
	return nil
}

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Supervisor returns the coordinating agent.
func (rt *Runtime) Supervisor() *agent.Supervisor { return rt.supervisor }

// Pipeline returns the detection pipeline.
func (rt *Runtime) Pipeline() *vision.Pipeline { return rt.pipeline }

// Records returns the persistence service.
func (rt *Runtime) Records() *store.Service { return rt.records }

// Metrics returns the Prometheus registry wrapper.
func (rt *Runtime) Metrics() *metrics.Metrics { return rt.metrics }

// Tools returns the five specialist tools.
func (rt *Runtime) Tools() []agent.Tool {
	return append([]agent.Tool(nil), rt.tools...)
}

// SubAgents returns the specialists in registration order.
func (rt *Runtime) SubAgents() []agent.SubAgent {
	return rt.supervisor.SubAgents()
}

// NewServer builds the HTTP API over this runtime.
func (rt *Runtime) NewServer() (*api.Server, error) {
	opts := api.Options{
		Supervisor:    rt.supervisor,
		Pipeline:      rt.pipeline,
		Records:       rt.records,
		Metrics:       rt.metrics,
		UploadDir:     rt.cfg.Server.UploadDir,
		OutputDir:     rt.cfg.Vision.OutputDir,
		MaxConcurrent: rt.cfg.Vision.MaxConcurrent,
		Logger:        rt.logger,
	}
	if rt.cfg.Server.MCP {
		opts.Tools = rt.Tools()
	}
	return api.New(opts)
}

// Close releases stores and the local detector, in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
