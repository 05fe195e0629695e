package nn

import (
	"fmt"
	"sync"

	"github.com/born-ml/llama-parallel/internal/tensor"
)

// RMSNorm applies Root Mean Square Normalization over the trailing
// NormalizedShape dimensions of its input.
//
// Formula: Y = X / sqrt(mean(X^2) + eps) * weight
//
// It is composed from backend tensor operations and runs on any backend.
//
// Example:
//
//	norm := nn.NewRMSNorm(tensor.Shape{4096}, 1e-6, cpu.New())
//	output := norm.Forward(hiddenStates) // [..., 4096] -> [..., 4096]
type RMSNorm[B tensor.Backend] struct {
	Weight          *Parameter[B] // learnable scale, shaped NormalizedShape
	Epsilon         float32
	NormalizedShape tensor.Shape
	backend         B

	mu    sync.Mutex
	input *tensor.Tensor[float32, B] // last forward input as [rows, features]
}

// NewRMSNorm creates a new RMSNorm layer with the weight initialized to ones.
func NewRMSNorm[B tensor.Backend](normalizedShape tensor.Shape, epsilon float32, backend B) *RMSNorm[B] {
	return &RMSNorm[B]{
		Weight:          NewParameter("weight", tensor.Ones[float32](normalizedShape, backend)),
		Epsilon:         epsilon,
		NormalizedShape: normalizedShape.Clone(),
		backend:         backend,
	}
}

// Forward applies RMSNorm to the input tensor.
//
// Algorithm:
//  1. View input as [rows, features]
//  2. variance = mean(x^2) along features (keepdim=true)
//  3. Normalize: x * rsqrt(variance + eps)
//  4. Scale by weight (broadcast over rows)
func (r *RMSNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	rows := r.rows(x)

	inv := rows.Mul(rows).MeanDim(-1, true).AddScalar(r.Epsilon).Rsqrt()
	output := rows.Mul(inv).Mul(r.flatWeight())

	r.mu.Lock()
	r.input = rows
	r.mu.Unlock()

	return output.Reshape(x.Shape()...)
}

// Backward returns the gradient with respect to the last Forward input and
// accumulates the weight gradient into Weight.
//
//	xhat = x * inv
//	dx   = inv * (g*w - xhat * mean(g*w*xhat))
//	dw   = sum over rows of g*xhat
func (r *RMSNorm[B]) Backward(grad *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	r.mu.Lock()
	x := r.input
	r.mu.Unlock()
	if x == nil {
		panic("rmsnorm: backward called before forward")
	}

	g := r.rows(grad)
	if !g.Shape().Equal(x.Shape()) {
		panic(fmt.Sprintf("rmsnorm: gradient shape %v does not match forward shape %v", grad.Shape(), x.Shape()))
	}

	inv := x.Mul(x).MeanDim(-1, true).AddScalar(r.Epsilon).Rsqrt()
	xhat := x.Mul(inv)
	gw := g.Mul(r.flatWeight())
	dot := gw.Mul(xhat).MeanDim(-1, true)
	dx := gw.Sub(xhat.Mul(dot)).Mul(inv)

	dw := g.Mul(xhat).SumDim(0, false).Reshape(r.NormalizedShape...)
	r.Weight.AccumulateGrad(dw)

	return dx.Reshape(grad.Shape()...)
}

// Parameters returns the learnable parameters (weight).
func (r *RMSNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{r.Weight}
}

func (r *RMSNorm[B]) rows(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !x.Shape().HasSuffix(r.NormalizedShape) {
		panic(fmt.Sprintf("rmsnorm: input shape %v does not end with normalized shape %v", x.Shape(), r.NormalizedShape))
	}
	return x.Reshape(x.Shape().Leading(len(r.NormalizedShape)), r.NormalizedShape.NumElements())
}

func (r *RMSNorm[B]) flatWeight() *tensor.Tensor[float32, B] {
	w := r.Weight.Tensor()
	if len(w.Shape()) == 1 {
		return w
	}
	return w.Reshape(w.NumElements())
}
