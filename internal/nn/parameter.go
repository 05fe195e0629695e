package nn

import (
	"fmt"
	"maps"
	"slices"

	"github.com/born-ml/llama-parallel/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Besides its tensor and gradient a parameter carries free-form attributes
// that the surrounding training framework reads, such as the
// sequence_parallel tag.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	weight.SetAttr("sequence_parallel", true)
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g., "model.norm.weight")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Gradient tensor (computed during backward pass)
	attrs  map[string]any
}

// NewParameter creates a new trainable parameter.
//
// Gradient will be allocated during the first backward pass.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
		attrs:  make(map[string]any),
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass).
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// AccumulateGrad adds grad to the stored gradient, allocating it on first use.
func (p *Parameter[B]) AccumulateGrad(grad *tensor.Tensor[float32, B]) {
	if p.grad == nil {
		p.grad = grad.Clone()
		return
	}
	p.grad = p.grad.Add(grad)
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// SetAttr sets a named attribute.
func (p *Parameter[B]) SetAttr(key string, value any) {
	p.attrs[key] = value
}

// Attr returns a named attribute.
func (p *Parameter[B]) Attr(key string) (any, bool) {
	v, ok := p.attrs[key]
	return v, ok
}

// Attrs returns the attribute keys in sorted order.
func (p *Parameter[B]) Attrs() []string {
	return slices.Sorted(maps.Keys(p.attrs))
}

// Assign copies values into the existing tensor buffer, so every holder of
// this parameter observes the new values.
func (p *Parameter[B]) Assign(values []float32) error {
	dst := p.tensor.Data()
	if len(values) != len(dst) {
		return fmt.Errorf("nn: assign %s: got %d values, want %d", p.name, len(values), len(dst))
	}
	copy(dst, values)
	return nil
}
