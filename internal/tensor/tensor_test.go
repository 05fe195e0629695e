package tensor_test

import (
	"math/rand"
	"testing"

	"github.com/born-ml/llama-parallel/internal/backend/cpu"
	"github.com/born-ml/llama-parallel/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, x.Shape())
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, x.Data())

	_, err = tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 3}, backend)
	require.Error(t, err)
}

func TestCreation(t *testing.T) {
	backend := cpu.New()

	ones := tensor.Ones[float32](tensor.Shape{4}, backend)
	assert.Equal(t, []float32{1, 1, 1, 1}, ones.Data())

	full := tensor.Full[float64](tensor.Shape{2}, 0.5, backend)
	assert.Equal(t, []float64{0.5, 0.5}, full.Data())

	a := tensor.Randn[float32](tensor.Shape{3, 5}, rand.New(rand.NewSource(7)), backend)
	b := tensor.Randn[float32](tensor.Shape{3, 5}, rand.New(rand.NewSource(7)), backend)
	assert.Equal(t, a.Data(), b.Data(), "same seed must give same samples")
}

func TestOpsDelegateToBackend(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	w, err := tensor.FromSlice([]float32{10, 100}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float32{10, 200, 30, 400}, x.Mul(w).Data())
	assert.Equal(t, []float32{2, 3, 4, 5}, x.AddScalar(1).Data())
	assert.Equal(t, []float32{1.5, 3.5}, x.MeanDim(-1, false).Data())
	assert.Equal(t, tensor.Shape{2, 1}, x.MeanDim(-1, true).Shape())
	assert.Equal(t, tensor.Shape{1, 2, 2}, x.Unsqueeze(0).Shape())
	assert.Equal(t, tensor.Shape{2, 2, 1}, x.Unsqueeze(-1).Shape())

}
