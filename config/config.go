// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package config loads the model and parallelism configurations a
// normalization layer is built from.
//
// The model configuration is a Hugging Face config.json; the parallelism
// configuration is a YAML file:
//
//	tensor_model_parallel_size: 8
//	pipeline_model_parallel_size: 1
//	sequence_parallel: true
//	params_dtype: float32
package config

import (
	"github.com/born-ml/llama-parallel/internal/config"
)

// LlamaConfig is the subset of a Llama config.json read by the normalization layers.
type LlamaConfig = config.LlamaConfig

// ModelParallelConfig describes how the model is split across devices.
type ModelParallelConfig = config.ModelParallelConfig

// ParseLlamaConfig decodes a config.json document.
func ParseLlamaConfig(data []byte) (*LlamaConfig, error) {
	return config.ParseLlamaConfig(data)
}

// LoadLlamaConfig reads and decodes a config.json file.
func LoadLlamaConfig(path string) (*LlamaConfig, error) {
	return config.LoadLlamaConfig(path)
}

// DefaultModelParallelConfig returns a single-device configuration without
// sequence parallelism.
func DefaultModelParallelConfig() *ModelParallelConfig {
	return config.DefaultModelParallelConfig()
}

// ParseModelParallelConfig decodes a YAML document over the defaults.
func ParseModelParallelConfig(data []byte) (*ModelParallelConfig, error) {
	return config.ParseModelParallelConfig(data)
}

// LoadModelParallelConfig reads and decodes a YAML file.
func LoadModelParallelConfig(path string) (*ModelParallelConfig, error) {
	return config.LoadModelParallelConfig(path)
}
