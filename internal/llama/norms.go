// Package llama assembles the RMSNorm layers of a Llama decoder stack.
package llama

import (
	"errors"
	"fmt"

	"github.com/born-ml/llama-parallel/internal/config"
	"github.com/born-ml/llama-parallel/internal/nn"
	"github.com/born-ml/llama-parallel/internal/sequenceparallel"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// ErrUnknownNorm is returned by Get for names that are not part of the stack.
var ErrUnknownNorm = errors.New("llama: unknown norm")

// FinalNorm is the name of the norm applied after the last decoder layer.
const FinalNorm = "model.norm"

// InputNorm returns the name of the pre-attention norm of decoder layer i.
func InputNorm(i int) string {
	return fmt.Sprintf("model.layers.%d.input_layernorm", i)
}

// PostAttentionNorm returns the name of the pre-MLP norm of decoder layer i.
func PostAttentionNorm(i int) string {
	return fmt.Sprintf("model.layers.%d.post_attention_layernorm", i)
}

// WeightSource supplies checkpoint tensors by name, e.g. a SafeTensors reader.
type WeightSource interface {
	Tensor(name string) ([]float32, tensor.Shape, error)
}

// Norms holds every RMSNorm of a Llama model: two per decoder layer and the
// final model norm. All layers share one dispatch decision.
type Norms[B tensor.Backend] struct {
	names  []string
	layers map[string]*nn.ParallelRMSNorm[B]
}

// NewNorms builds the norms for cfg.NumHiddenLayers decoder layers.
func NewNorms[B tensor.Backend](cfg *config.LlamaConfig, mp *config.ModelParallelConfig, backend B, opts ...nn.Option) (*Norms[B], error) {
	if cfg == nil {
		return nil, errors.New("llama: nil model config")
	}
	if cfg.NumHiddenLayers < 0 {
		return nil, fmt.Errorf("llama: num_hidden_layers must not be negative, got %d", cfg.NumHiddenLayers)
	}

	names := make([]string, 0, 2*cfg.NumHiddenLayers+1)
	for i := range cfg.NumHiddenLayers {
		names = append(names, InputNorm(i), PostAttentionNorm(i))
	}
	names = append(names, FinalNorm)

	n := &Norms[B]{
		names:  names,
		layers: make(map[string]*nn.ParallelRMSNorm[B], len(names)),
	}

	// The first layer decides the path; the rest reuse its decision.
	var shared nn.Option
	for _, name := range names {
		layerOpts := append(append([]nn.Option(nil), opts...), nn.WithName(name))
		if shared != nil {
			layerOpts = append(layerOpts, shared)
		}

		l, err := nn.NewParallelRMSNorm(cfg, mp, backend, layerOpts...)
		if err != nil {
			return nil, fmt.Errorf("llama: %s: %w", name, err)
		}
		n.layers[name] = l

		if shared == nil {
			if k := l.Kernel(); k != nil {
				shared = nn.WithKernel(k)
			} else {
				shared = nn.WithFallback()
			}
		}
	}
	return n, nil
}

// Names returns the norm names in model order.
func (n *Norms[B]) Names() []string {
	return append([]string(nil), n.names...)
}

// Len returns the number of norms.
func (n *Norms[B]) Len() int {
	return len(n.names)
}

// Get returns the norm with the given name.
func (n *Norms[B]) Get(name string) (*nn.ParallelRMSNorm[B], error) {
	l, ok := n.layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNorm, name)
	}
	return l, nil
}

// Path returns the execution path shared by every norm.
func (n *Norms[B]) Path() nn.Path {
	return n.layers[FinalNorm].Path()
}

// Parameters returns the scale parameters in model order.
func (n *Norms[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, len(n.names))
	for _, name := range n.names {
		params = append(params, n.layers[name].Parameters()...)
	}
	return params
}

// SequenceParallelParameters returns the parameters tagged for the
// sequence-parallel gradient all-reduce.
func (n *Norms[B]) SequenceParallelParameters() []*nn.Parameter[B] {
	return sequenceparallel.Filter(n.Parameters())
}

// LoadWeights copies "<name>.weight" from src into each norm's existing
// scale parameter. Missing tensors are an error.
func (n *Norms[B]) LoadWeights(src WeightSource) error {
	for _, name := range n.names {
		l := n.layers[name]
		key := l.Weight().Name()

		values, shape, err := src.Tensor(key)
		if err != nil {
			return fmt.Errorf("llama: load %s: %w", key, err)
		}
		if !shape.Equal(l.Shape()) {
			return fmt.Errorf("llama: load %s: shape %v, want %v", key, shape, l.Shape())
		}
		if err := l.Weight().Assign(values); err != nil {
			return fmt.Errorf("llama: load %s: %w", key, err)
		}
	}
	return nil
}
