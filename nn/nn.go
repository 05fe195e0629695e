// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/llama-parallel/internal/config"
	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/logger"
	"github.com/born-ml/llama-parallel/internal/nn"
	"github.com/born-ml/llama-parallel/internal/sequenceparallel"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// RMSNorm is RMS normalization composed from tensor operations.
type RMSNorm[B tensor.Backend] = nn.RMSNorm[B]

// NewRMSNorm creates an RMSNorm over the trailing normalizedShape dimensions
// with its weight initialized to ones.
//
// Example:
//
//	backend := cpu.New()
//	norm := nn.NewRMSNorm(tensor.Shape{4096}, 1e-6, backend)
func NewRMSNorm[B tensor.Backend](normalizedShape tensor.Shape, epsilon float32, backend B) *RMSNorm[B] {
	return nn.NewRMSNorm(normalizedShape, epsilon, backend)
}

// ParallelRMSNorm is the RMSNorm of a Llama decoder in a model-parallel setup.
type ParallelRMSNorm[B tensor.Backend] = nn.ParallelRMSNorm[B]

// Path identifies the implementation a ParallelRMSNorm dispatches to.
type Path = nn.Path

// Dispatch paths.
const (
	PathFallback    Path = nn.PathFallback
	PathAccelerated Path = nn.PathAccelerated
)

// ErrShapeUnset is returned when the model configuration has no integral hidden size.
var ErrShapeUnset = nn.ErrShapeUnset

// Option configures a ParallelRMSNorm.
type Option = nn.Option

// NewParallelRMSNorm creates the normalization layer from the model and
// parallelism configurations. A nil mp uses the defaults.
func NewParallelRMSNorm[B tensor.Backend](cfg *config.LlamaConfig, mp *config.ModelParallelConfig, backend B, opts ...Option) (*ParallelRMSNorm[B], error) {
	return nn.NewParallelRMSNorm(cfg, mp, backend, opts...)
}

// WithName sets the layer name used for the weight parameter and in logs.
func WithName(name string) Option {
	return nn.WithName(name)
}

// WithKernel forces the accelerated path with kernel k.
func WithKernel(k fused.RMSNormAffine) Option {
	return nn.WithKernel(k)
}

// WithFallback forces the generic path.
func WithFallback() Option {
	return nn.WithFallback()
}

// Attributed is anything carrying string-keyed attributes, such as a Parameter.
type Attributed = sequenceparallel.Attributed

// MarkFunc tags a parameter for the sequence-parallel gradient all-reduce.
type MarkFunc = sequenceparallel.MarkFunc

// Logger is the structured logger accepted by WithLogger.
type Logger = logger.Logger

// WithSequenceParallelMarker replaces the function that tags the scale parameter.
func WithSequenceParallelMarker(mark MarkFunc) Option {
	return nn.WithSequenceParallelMarker(mark)
}

// WithLogger sets the logger for construction-time messages.
func WithLogger(l Logger) Option {
	return nn.WithLogger(l)
}

// WithMemoryEfficient selects whether the accelerated path saves its output
// instead of its input for backward.
func WithMemoryEfficient(enabled bool) Option {
	return nn.WithMemoryEfficient(enabled)
}

// MarkSequenceParallel is the default MarkFunc.
func MarkSequenceParallel(p Attributed) {
	sequenceparallel.MarkParameter(p)
}

// IsSequenceParallel reports whether p is tagged for the sequence-parallel all-reduce.
func IsSequenceParallel[B tensor.Backend](p *Parameter[B]) bool {
	return sequenceparallel.IsSequenceParallel(p)
}
