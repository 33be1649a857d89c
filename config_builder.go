package manifold

import (
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
)

// BuildContext carries the observability components shared by every pipe and
// collection built from a single configuration.
type BuildContext struct {
	MetricsCollector MetricsCollector
	TracerProvider   TracerProvider
}

// NewBuildContext creates the observability components declared in the
// configuration. The logger receives metrics output when the log collector is
// selected; pass nil to use the standard logger. A configuration that enables
// OTLP tracing hands ownership of the provider to the caller, who should shut
// it down once every pipe built from it has finished.
func NewBuildContext(config *PipelineConfig, logger *log.Logger) (*BuildContext, error) {
	factory := NewObservabilityFactory()

	metricsCollector, err := factory.CreateMetricsCollector(config.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	tracerProvider, err := factory.CreateTracerProvider(config.Tracing, config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	return &BuildContext{
		MetricsCollector: metricsCollector,
		TracerProvider:   tracerProvider,
	}, nil
}

// BuildPipe assembles the executable pipe chain declared by the configuration.
//
// The execution section becomes the sizing options of the first stage and
// propagates down the chain the way Then propagates them. The source is the
// collection section when present, otherwise the inline input. When
// buildContext is nil one is created from the configuration's observability
// sections. Extra options are applied to the first stage last, so they win
// over the configuration.
func BuildPipe(config *PipelineConfig, registry *Registry, buildContext *BuildContext, opts ...PipeOption) (*Pipe, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	if len(config.Stages) == 0 {
		return nil, errors.New("configuration declares no stages; use BuildCollection for a source-only configuration")
	}

	if buildContext == nil {
		created, err := NewBuildContext(config, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create build context: %w", err)
		}
		buildContext = created
	}

	// 1. Configure first-stage options from the execution section.
	rootOpts := executionOptions(&config.Execution)
	rootOpts = append(rootOpts,
		WithName(config.Name),
		WithMetricsCollector(buildContext.MetricsCollector),
	)

	// 2. Bind the source.
	if config.Collection != nil {
		coll, errColl := buildCollection(config, registry, buildContext)
		if errColl != nil {
			return nil, errColl
		}
		rootOpts = append(rootOpts, WithSource(coll))
	} else if config.Input != nil {
		rootOpts = append(rootOpts, WithSource(config.Input))
	}

	first := config.Stages[0]
	rootOpts = append(rootOpts, WithConf(first.Conf))
	rootOpts = append(rootOpts, opts...)

	pipe, err := NewPipe(registry, first.Type, rootOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage #0 ('%s'): %w", first.Type, err)
	}

	// 3. Chain the remaining stages.
	for i, stageConfig := range config.Stages[1:] {
		pipe, err = pipe.Then(stageConfig.Type, stageConfig.Conf)
		if err != nil {
			return nil, fmt.Errorf("failed to build stage #%d ('%s'): %w", i+1, stageConfig.Type, err)
		}
	}

	return pipe, nil
}

// BuildCollection assembles the source fan-out declared by the collection
// section of the configuration. When buildContext is nil one is created from
// the configuration's observability sections. Extra options are applied last.
func BuildCollection(config *PipelineConfig, registry *Registry, buildContext *BuildContext, opts ...CollectionOption) (*Collection, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	if buildContext == nil {
		created, err := NewBuildContext(config, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create build context: %w", err)
		}
		buildContext = created
	}

	return buildCollection(config, registry, buildContext, opts...)
}

func buildCollection(config *PipelineConfig, registry *Registry, buildContext *BuildContext, extra ...CollectionOption) (*Collection, error) {
	cfg := config.Collection
	if cfg == nil {
		return nil, errors.New("configuration has no collection section")
	}

	opts := []CollectionOption{
		WithCollectionName(config.Name),
		WithCollectionMetricsCollector(buildContext.MetricsCollector),
	}
	if cfg.Parallel {
		opts = append(opts, WithCollectionParallel())
	}
	if cfg.Workers > 0 {
		opts = append(opts, WithCollectionWorkers(cfg.Workers))
	}
	if cfg.Delay > 0 {
		opts = append(opts, WithDelay(time.Duration(cfg.Delay)*time.Millisecond))
	}
	if cfg.Rate != nil {
		burst := cfg.Rate.Burst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, WithRateLimit(rate.Limit(cfg.Rate.Limit), burst))
	}
	opts = append(opts, extra...)

	coll, err := NewCollection(registry, cfg.Sources, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build collection: %w", err)
	}
	return coll, nil
}

// executionOptions translates the execution section into first-stage options.
// Zero values request derivation, so only explicit settings become options.
func executionOptions(cfg *ExecutionConfig) []PipeOption {
	var opts []PipeOption
	if cfg.Parallel {
		opts = append(opts, WithParallel())
	}
	if cfg.Workload != "" {
		opts = append(opts, WithWorkload(cfg.Workload))
	}
	if cfg.Workers > 0 {
		opts = append(opts, WithWorkers(cfg.Workers))
	}
	if cfg.ChunkSize > 0 {
		opts = append(opts, WithChunkSize(cfg.ChunkSize))
	}
	if cfg.Ordered != nil {
		opts = append(opts, WithOrdered(*cfg.Ordered))
	}
	return opts
}
