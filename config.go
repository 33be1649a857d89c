package manifold

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigVersion is the pipeline configuration schema version this
	// package reads.
	ConfigVersion = "1.0.0"
)

// TracingType represents the tracing backend used by a pipeline.
// Possible values are "otlp" or "noop".
type TracingType string

const (
	// TracingTypeOTLP represents OTLP tracing over gRPC.
	TracingTypeOTLP TracingType = "otlp"
	// TracingTypeNoop represents no tracing.
	TracingTypeNoop TracingType = "noop"
)

// TracingConfig holds the configuration for tracing in a pipeline.
type TracingConfig struct {
	Enabled  bool        `yaml:"enabled"`            // Whether tracing is enabled for the pipeline
	Type     TracingType `yaml:"type"`               // Type of tracing used in the pipeline
	Endpoint string      `yaml:"endpoint"`           // Endpoint for the tracing collector
	Insecure bool        `yaml:"insecure,omitempty"` // Whether to skip TLS when exporting
}

// MetricsType represents the metrics backend used by a pipeline.
// Possible values are "log" or "noop".
type MetricsType string

const (
	// MetricsTypeLog represents metrics written to a logger.
	MetricsTypeLog MetricsType = "log"
	// MetricsTypeNoop represents no metrics.
	MetricsTypeNoop MetricsType = "noop"
)

// MetricsConfig holds the configuration for metrics in a pipeline.
type MetricsConfig struct {
	Enabled bool        `yaml:"enabled"` // Whether metrics are enabled for the pipeline
	Type    MetricsType `yaml:"type"`    // Type of metrics used in the pipeline
}

// ExecutionConfig holds the sizing requests applied to every stage in the
// pipeline. Zero values mean derive from the source length.
type ExecutionConfig struct {
	Parallel  bool     `yaml:"parallel"`              // Whether processor stages fan out to workers
	Workload  Workload `yaml:"workload,omitempty"   validate:"omitempty,oneof=cpu io"` // Workload class, caps the worker budget
	Workers   int      `yaml:"workers,omitempty"    validate:"gte=0"`                  // Fixed worker count, 0 derives
	ChunkSize int      `yaml:"chunk_size,omitempty" validate:"gte=0"`                  // Fixed chunk size, 0 derives
	Ordered   *bool    `yaml:"ordered,omitempty"`    // Whether parallel results keep source order, defaults to true
}

// StageConfig names a registered stage and the configuration passed to it.
type StageConfig struct {
	Type string `yaml:"type" validate:"required"` // Registered name of the stage
	Conf Conf   `yaml:"conf,omitempty"`           // Stage configuration, free-form
}

// RateConfig caps how often source evaluations may start.
type RateConfig struct {
	Limit float64 `yaml:"limit"           validate:"gt=0"`  // Evaluations per second
	Burst int     `yaml:"burst,omitempty" validate:"gte=0"` // Burst allowance, defaults to 1
}

// CollectionConfig holds the source fan-out section of a pipeline
// configuration.
type CollectionConfig struct {
	Sources  []Source    `yaml:"sources" validate:"required,min=1"` // Source descriptors, one pipe each
	Parallel bool        `yaml:"parallel"`                          // Whether sources are evaluated concurrently
	Workers  int         `yaml:"workers,omitempty" validate:"gte=0"` // Fixed source-level worker count, 0 derives
	Delay    int         `yaml:"delay,omitempty"   validate:"gte=0"` // Delay injected into source configurations, in milliseconds
	Rate     *RateConfig `yaml:"rate,omitempty"`                    // Rate limit across all source evaluations
}

// PipelineConfig holds the parsed configuration for a single pipeline.
type PipelineConfig struct {
	// General properties
	Version string `yaml:"version"       validate:"required"` // Version of the pipeline configuration
	Name    string `yaml:"pipeline_name" validate:"required"` // Name of the pipeline

	// Observability
	Tracing TracingConfig `yaml:"tracing,omitempty"` // Tracing configuration for the pipeline
	Metrics MetricsConfig `yaml:"metrics,omitempty"` // Metrics configuration for the pipeline

	// Execution
	Execution ExecutionConfig `yaml:"execution,omitempty"` // Sizing requests for every stage

	// Input: a collection fans out over sources, an inline input feeds the
	// first stage directly. At most one of the two may be set.
	Input      []any             `yaml:"input,omitempty"`      // Inline items fed to the first stage
	Collection *CollectionConfig `yaml:"collection,omitempty"` // Source fan-out feeding the first stage

	// Stages, chained in order
	Stages []StageConfig `yaml:"stages,omitempty"` // List of stages in the pipeline
}

// Validate checks the pipeline configuration for correctness using struct
// tags.
func (pc *PipelineConfig) Validate() error {
	validate := validator.New()

	// Validate the top-level PipelineConfig fields
	if err := validate.Struct(pc); err != nil {
		return fmt.Errorf("pipeline configuration validation failed: %w", err)
	}

	if len(pc.Stages) == 0 && pc.Collection == nil {
		return errors.New("pipeline requires at least one stage or a collection")
	}
	if pc.Collection != nil && len(pc.Input) > 0 {
		return errors.New("pipeline cannot have both a collection and an inline input")
	}

	// Validate each stage
	for i, stage := range pc.Stages {
		if err := validate.Struct(stage); err != nil {
			return fmt.Errorf("validation failed for stage #%d ('%s'): %w", i, stage.Type, err)
		}
	}
	return nil
}

// LoadPipelineConfigFromYAML parses a pipeline configuration from YAML and
// validates it.
func LoadPipelineConfigFromYAML(data []byte) (*PipelineConfig, error) {
	var config PipelineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadPipelineConfigFromFile reads and parses a pipeline configuration file.
func LoadPipelineConfigFromFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline configuration: %w", err)
	}
	return LoadPipelineConfigFromYAML(data)
}
