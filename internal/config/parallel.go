package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelParallelConfig describes how the surrounding framework splits the model.
type ModelParallelConfig struct {
	TensorModelParallelSize   int    `yaml:"tensor_model_parallel_size"`
	PipelineModelParallelSize int    `yaml:"pipeline_model_parallel_size"`
	SequenceParallel          bool   `yaml:"sequence_parallel"`
	ParamsDtype               string `yaml:"params_dtype"`
}

// DefaultModelParallelConfig returns a single-device configuration.
func DefaultModelParallelConfig() *ModelParallelConfig {
	return &ModelParallelConfig{
		TensorModelParallelSize:   1,
		PipelineModelParallelSize: 1,
		ParamsDtype:               "float32",
	}
}

// Validate rejects non-positive parallel sizes. Whether sequence parallelism
// fits a given tensor parallel size is decided by the framework, not here.
func (c *ModelParallelConfig) Validate() error {
	if c.TensorModelParallelSize < 1 {
		return fmt.Errorf("config: tensor_model_parallel_size must be positive, got %d", c.TensorModelParallelSize)
	}
	if c.PipelineModelParallelSize < 1 {
		return fmt.Errorf("config: pipeline_model_parallel_size must be positive, got %d", c.PipelineModelParallelSize)
	}
	return nil
}

// ParseModelParallelConfig decodes YAML over the defaults.
func ParseModelParallelConfig(data []byte) (*ModelParallelConfig, error) {
	cfg := DefaultModelParallelConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode model parallel config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadModelParallelConfig reads a YAML model-parallel configuration file.
func LoadModelParallelConfig(path string) (*ModelParallelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := ParseModelParallelConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
