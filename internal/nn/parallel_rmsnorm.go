package nn

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/llama-parallel/internal/config"
	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/logger"
	"github.com/born-ml/llama-parallel/internal/sequenceparallel"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// ErrShapeUnset is returned when hidden_size is not an integer, which leaves
// the normalized shape undefined.
var ErrShapeUnset = errors.New("nn: normalized shape unset")

// Path is the execution strategy a ParallelRMSNorm committed to at construction.
type Path int

const (
	// PathFallback runs the generic RMSNorm module.
	PathFallback Path = iota
	// PathAccelerated runs a fused kernel.
	PathAccelerated
)

// String returns "fallback" or "accelerated".
func (p Path) String() string {
	switch p {
	case PathFallback:
		return "fallback"
	case PathAccelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Path(%d)", int(p))
	}
}

// Option configures a ParallelRMSNorm.
type Option func(*options)

type options struct {
	name            string
	kernel          fused.RMSNormAffine
	forceFallback   bool
	marker          sequenceparallel.MarkFunc
	log             logger.Logger
	memoryEfficient bool
}

// WithName sets the parameter name prefix, e.g. "model.layers.0.input_layernorm".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithKernel uses k instead of probing the fused kernel registry.
func WithKernel(k fused.RMSNormAffine) Option {
	return func(o *options) { o.kernel = k }
}

// WithFallback forces the generic path even when a fused kernel is available.
func WithFallback() Option {
	return func(o *options) { o.forceFallback = true }
}

// WithSequenceParallelMarker replaces the function that tags the scale
// parameter when sequence parallelism is enabled.
func WithSequenceParallelMarker(mark sequenceparallel.MarkFunc) Option {
	return func(o *options) { o.marker = mark }
}

// WithLogger sets the logger used during construction.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMemoryEfficient controls whether the fused kernel keeps its output
// rather than its input for backward. It is on by default.
func WithMemoryEfficient(enabled bool) Option {
	return func(o *options) { o.memoryEfficient = enabled }
}

// ParallelRMSNorm is the RMSNorm of a Llama decoder running under tensor or
// sequence parallelism.
//
// The normalized shape and epsilon come from the model configuration. The
// scale parameter starts at ones and is tagged as sequence-parallel when the
// parallel configuration asks for it, so the framework all-reduces its
// gradient. Whether the fused or the generic path runs is decided once, in
// NewParallelRMSNorm.
type ParallelRMSNorm[B tensor.Backend] struct {
	shape           tensor.Shape
	eps             float64
	weight          *Parameter[B]
	path            Path
	kernel          fused.RMSNormAffine
	fallback        *RMSNorm[B]
	memoryEfficient bool
	backend         B

	mu    sync.Mutex
	saved *fused.Saved
}

// NewParallelRMSNorm builds the layer from the model and parallel configs.
// A nil parallel config means a single device without sequence parallelism.
func NewParallelRMSNorm[B tensor.Backend](cfg *config.LlamaConfig, mp *config.ModelParallelConfig, backend B, opts ...Option) (*ParallelRMSNorm[B], error) {
	o := options{
		marker:          sequenceparallel.MarkParameter,
		memoryEfficient: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Discard()
	}

	if cfg == nil {
		return nil, errors.New("nn: parallel rmsnorm: nil model config")
	}
	if mp == nil {
		mp = config.DefaultModelParallelConfig()
	}

	dim, ok := cfg.HiddenDim()
	if !ok {
		return nil, fmt.Errorf("%w: hidden_size %s is not an integer", ErrShapeUnset, hiddenSizeLiteral(cfg.HiddenSize))
	}
	shape := tensor.Shape{dim}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("nn: parallel rmsnorm: hidden_size: %w", err)
	}

	weightName := "weight"
	if o.name != "" {
		weightName = o.name + ".weight"
	}

	l := &ParallelRMSNorm[B]{
		shape:           shape,
		eps:             cfg.RMSNormEps,
		weight:          NewParameter(weightName, tensor.Ones[float32](shape, backend)),
		memoryEfficient: o.memoryEfficient,
		backend:         backend,
	}

	if mp.SequenceParallel {
		o.marker(l.weight)
	}

	switch {
	case o.forceFallback:
	case o.kernel != nil:
		l.kernel = o.kernel
	default:
		l.kernel = fused.Probe(o.log)
	}

	if l.kernel != nil {
		l.path = PathAccelerated
	} else {
		l.path = PathFallback
		l.fallback = NewRMSNorm(shape, float32(cfg.RMSNormEps), backend)
		// Both paths must train the same tensor.
		l.fallback.Weight = l.weight
	}

	log := o.log.With("layer", weightName, "path", l.path.String())
	if l.kernel != nil {
		log = log.With("kernel", l.kernel.Name())
	}
	log.Debug("rmsnorm dispatch selected", "hidden_size", dim, "eps", l.eps, "sequence_parallel", mp.SequenceParallel)

	return l, nil
}

// Forward normalizes x over its last dimension and applies the scale.
// Input must end with the hidden size. Kernel errors panic, as backend
// operand errors do.
func (l *ParallelRMSNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if l.path == PathFallback {
		return l.fallback.Forward(x)
	}

	out, saved, err := l.kernel.Forward(x.Raw(), l.weight.Tensor().Raw(), l.shape, float32(l.eps), l.memoryEfficient)
	if err != nil {
		panic(err)
	}

	l.mu.Lock()
	l.saved = saved
	l.mu.Unlock()

	return tensor.New[float32, B](out, l.backend)
}

// Backward returns the gradient with respect to the last Forward input and
// accumulates the scale gradient into the weight parameter.
func (l *ParallelRMSNorm[B]) Backward(grad *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if l.path == PathFallback {
		return l.fallback.Backward(grad)
	}

	l.mu.Lock()
	saved := l.saved
	l.mu.Unlock()

	dx, dw, err := l.kernel.Backward(grad.Raw(), l.weight.Tensor().Raw(), saved)
	if err != nil {
		panic(err)
	}
	l.weight.AccumulateGrad(tensor.New[float32, B](dw, l.backend))

	return tensor.New[float32, B](dx, l.backend)
}

// Parameters returns the scale parameter.
func (l *ParallelRMSNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight}
}

// Weight returns the scale parameter.
func (l *ParallelRMSNorm[B]) Weight() *Parameter[B] {
	return l.weight
}

// Path returns the execution path chosen at construction.
func (l *ParallelRMSNorm[B]) Path() Path {
	return l.path
}

// Kernel returns the fused kernel, or nil on the fallback path.
func (l *ParallelRMSNorm[B]) Kernel() fused.RMSNormAffine {
	return l.kernel
}

// Fallback returns the generic module, or nil on the accelerated path.
func (l *ParallelRMSNorm[B]) Fallback() *RMSNorm[B] {
	return l.fallback
}

// Shape returns the normalized shape, [hidden_size].
func (l *ParallelRMSNorm[B]) Shape() tensor.Shape {
	return l.shape.Clone()
}

// Epsilon returns rms_norm_eps as read from the model configuration.
func (l *ParallelRMSNorm[B]) Epsilon() float64 {
	return l.eps
}

// MemoryEfficient reports whether the fused kernel is asked to save its output.
func (l *ParallelRMSNorm[B]) MemoryEfficient() bool {
	return l.memoryEfficient
}

func hiddenSizeLiteral(raw []byte) string {
	if len(raw) == 0 {
		return "(missing)"
	}
	return string(raw)
}
