package nn

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/llama-parallel/internal/backend/cpu"
	"github.com/born-ml/llama-parallel/internal/config"
	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/fused/cpufused"
	"github.com/born-ml/llama-parallel/internal/logger"
	"github.com/born-ml/llama-parallel/internal/parallel"
	"github.com/born-ml/llama-parallel/internal/sequenceparallel"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

func llamaConfig(hidden string, eps float64) *config.LlamaConfig {
	return &config.LlamaConfig{HiddenSize: json.RawMessage(hidden), RMSNormEps: eps}
}

func testKernel() fused.RMSNormAffine {
	return cpufused.New(parallel.Config{Enabled: true, NumWorkers: 3, MinRows: 1})
}

// bothPaths builds one layer per execution path with identical configuration.
func bothPaths(t *testing.T, cfg *config.LlamaConfig, opts ...Option) map[Path]*ParallelRMSNorm[*cpu.CPUBackend] {
	t.Helper()
	backend := cpu.New()

	fb, err := NewParallelRMSNorm(cfg, nil, backend, append(opts, WithFallback())...)
	require.NoError(t, err)
	acc, err := NewParallelRMSNorm(cfg, nil, backend, append(opts, WithKernel(testKernel()))...)
	require.NoError(t, err)

	require.Equal(t, PathFallback, fb.Path())
	require.Equal(t, PathAccelerated, acc.Path())
	return map[Path]*ParallelRMSNorm[*cpu.CPUBackend]{PathFallback: fb, PathAccelerated: acc}
}

func TestParallelRMSNormKnownValues(t *testing.T) {
	for path, layer := range bothPaths(t, llamaConfig("4", 1e-6)) {
		t.Run(path.String(), func(t *testing.T) {
			x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 4}, cpu.New())
			require.NoError(t, err)

			y := layer.Forward(x)
			assert.Equal(t, tensor.Shape{1, 4}, y.Shape())
			assert.InDeltaSlice(t, []float32{0.3651, 0.7303, 1.0954, 1.4606}, y.Data(), 1e-4)
		})
	}
}

func TestParallelRMSNormZeroInput(t *testing.T) {
	for path, layer := range bothPaths(t, llamaConfig("5", 1e-5)) {
		t.Run(path.String(), func(t *testing.T) {
			x := tensor.Zeros[float32](tensor.Shape{3, 2, 5}, cpu.New())
			y := layer.Forward(x)
			assert.Equal(t, make([]float32, 30), y.Data())
		})
	}
}

func TestParallelRMSNormPathsAgree(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(42))
	layers := bothPaths(t, llamaConfig("16", 1e-5))

	scale := tensor.Randn[float32](tensor.Shape{16}, rng, backend).Data()
	for _, l := range layers {
		require.NoError(t, l.Weight().Assign(scale))
	}

	x := tensor.Randn[float32](tensor.Shape{2, 7, 16}, rng, backend)
	want := layers[PathFallback].Forward(x)
	got := layers[PathAccelerated].Forward(x)

	assert.Equal(t, want.Shape(), got.Shape())
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-5)

	// Direct formula: x * s / sqrt(mean(x^2) + eps).
	formula := x.Mul(x.Mul(x).MeanDim(-1, true).AddScalar(1e-5).Rsqrt()).Mul(layers[PathFallback].Weight().Tensor())
	assert.InDeltaSlice(t, formula.Data(), got.Data(), 1e-5)
}

func TestParallelRMSNormBackwardAgrees(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(5))
	x := tensor.Randn[float32](tensor.Shape{4, 3, 8}, rng, backend)
	g := tensor.Randn[float32](tensor.Shape{4, 3, 8}, rng, backend)
	scale := tensor.Randn[float32](tensor.Shape{8}, rng, backend).Data()

	grads := map[string][2][]float32{}
	for _, memEff := range []bool{true, false} {
		for path, l := range bothPaths(t, llamaConfig("8", 1e-6), WithMemoryEfficient(memEff)) {
			require.NoError(t, l.Weight().Assign(scale))
			l.Forward(x)
			dx := l.Backward(g)

			assert.Equal(t, x.Shape(), dx.Shape())
			require.NotNil(t, l.Weight().Grad())
			grads[fmt.Sprintf("%s/memory-efficient=%t", path, memEff)] = [2][]float32{dx.Data(), l.Weight().Grad().Data()}
		}
	}

	want := grads["fallback/memory-efficient=false"]
	for name, got := range grads {
		assert.InDeltaSlice(t, want[0], got[0], 1e-4, name)
		assert.InDeltaSlice(t, want[1], got[1], 1e-3, name)
	}
}

func TestParallelRMSNormSequenceParallel(t *testing.T) {
	backend := cpu.New()

	var marked []sequenceparallel.Attributed
	mark := func(p sequenceparallel.Attributed) { marked = append(marked, p) }

	l, err := NewParallelRMSNorm(llamaConfig("4", 1e-6),
		&config.ModelParallelConfig{TensorModelParallelSize: 2, PipelineModelParallelSize: 1, SequenceParallel: true},
		backend, WithSequenceParallelMarker(mark), WithFallback())
	require.NoError(t, err)

	require.Len(t, marked, 1)
	assert.Same(t, l.Weight(), marked[0])

	marked = nil
	_, err = NewParallelRMSNorm(llamaConfig("4", 1e-6), config.DefaultModelParallelConfig(),
		backend, WithSequenceParallelMarker(mark), WithFallback())
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestParallelRMSNormDefaultMarker(t *testing.T) {
	l, err := NewParallelRMSNorm(llamaConfig("4", 1e-6),
		&config.ModelParallelConfig{TensorModelParallelSize: 1, PipelineModelParallelSize: 1, SequenceParallel: true},
		cpu.New(), WithFallback())
	require.NoError(t, err)

	assert.True(t, sequenceparallel.IsSequenceParallel(l.Weight()))
	assert.Equal(t, []*Parameter[*cpu.CPUBackend]{l.Weight()}, sequenceparallel.Filter(l.Parameters()))
}

func TestParallelRMSNormConstruction(t *testing.T) {
	l, err := NewParallelRMSNorm(llamaConfig("4096", 1e-5), nil, cpu.New(), WithName("model.norm"), WithFallback())
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{4096}, l.Shape())
	assert.InDelta(t, 1e-5, l.Epsilon(), 1e-15)
	assert.Equal(t, "model.norm.weight", l.Weight().Name())
	assert.True(t, l.MemoryEfficient())
	assert.Nil(t, l.Kernel())
	for _, v := range l.Weight().Tensor().Data() {
		require.Equal(t, float32(1), v)
	}
	_, tagged := l.Weight().Attr(sequenceparallel.Attr)
	assert.False(t, tagged)
}

func TestParallelRMSNormShapeUnset(t *testing.T) {
	for _, hidden := range []string{"4096.0", "4.5", "4e3", `"4096"`, "null", "true", ""} {
		_, err := NewParallelRMSNorm(llamaConfig(hidden, 1e-6), nil, cpu.New(), WithFallback())
		assert.ErrorIs(t, err, ErrShapeUnset, hidden)
	}

	cfg, err := config.ParseLlamaConfig([]byte(`{"hidden_size": "4096", "rms_norm_eps": 1e-6}`))
	require.NoError(t, err)
	_, err = NewParallelRMSNorm(cfg, nil, cpu.New(), WithKernel(testKernel()))
	assert.ErrorIs(t, err, ErrShapeUnset)

	_, err = NewParallelRMSNorm(llamaConfig("-1", 1e-6), nil, cpu.New(), WithFallback())
	assert.ErrorContains(t, err, "hidden_size")

	_, err = NewParallelRMSNorm[*cpu.CPUBackend](nil, nil, cpu.New())
	assert.ErrorContains(t, err, "nil model config")
}

func TestParallelRMSNormWeightAliasing(t *testing.T) {
	backend := cpu.New()
	l, err := NewParallelRMSNorm(llamaConfig("2", 1e-6), nil, backend, WithFallback())
	require.NoError(t, err)

	require.NotNil(t, l.Fallback())
	assert.Same(t, l.Weight(), l.Fallback().Weight)

	require.NoError(t, l.Weight().Assign([]float32{2, 3}))
	assert.Equal(t, []float32{2, 3}, l.Fallback().Weight.Tensor().Data())

	x, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 3}, l.Forward(x).Data(), 1e-4)
}

func TestParallelRMSNormForwardKeepsConfig(t *testing.T) {
	for _, l := range bothPaths(t, llamaConfig("3", 1e-6)) {
		x := tensor.Ones[float32](tensor.Shape{2, 3}, cpu.New())
		l.Forward(x)
		l.Forward(x)
		assert.Equal(t, tensor.Shape{3}, l.Shape())
		assert.InDelta(t, 1e-6, l.Epsilon(), 1e-15)
	}
}

func TestParallelRMSNormMismatchedInputPanics(t *testing.T) {
	for path, l := range bothPaths(t, llamaConfig("4", 1e-6)) {
		x := tensor.Ones[float32](tensor.Shape{2, 3}, cpu.New())
		assert.Panics(t, func() { l.Forward(x) }, path.String())
	}
}

func TestParallelRMSNormProbeDefault(t *testing.T) {
	l, err := NewParallelRMSNorm(llamaConfig("4", 1e-6), nil, cpu.New())
	require.NoError(t, err)

	if k := fused.Probe(nil); k != nil {
		assert.Equal(t, PathAccelerated, l.Path())
		assert.Equal(t, k.Name(), l.Kernel().Name())
	} else {
		assert.Equal(t, PathFallback, l.Path())
	}
}

func TestParallelRMSNormLogsDispatch(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewParallelRMSNorm(llamaConfig("4", 1e-6), nil, cpu.New(),
		WithName("model.norm"), WithKernel(fused.Reference()), WithLogger(logger.JSON(&buf, slog.LevelDebug)))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "rmsnorm dispatch selected", rec["msg"])
	assert.Equal(t, "accelerated", rec["path"])
	assert.Equal(t, "reference", rec["kernel"])
	assert.Equal(t, "model.norm.weight", rec["layer"])
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "fallback", PathFallback.String())
	assert.Equal(t, "accelerated", PathAccelerated.String())
	assert.Equal(t, "Path(7)", Path(7).String())
}

func TestParallelRMSNormFixedPoint(t *testing.T) {
	// mean(x^2) + eps == 1 and a unit scale leave x unchanged.
	tests := []struct {
		name string
		x    []float32
		eps  float64
	}{
		{"unit magnitudes", []float32{1, -1, 1, -1}, 0},
		{"eps completes the mean", []float32{0.6, 0.8}, 0.5},
	}
	for _, tt := range tests {
		hidden := fmt.Sprint(len(tt.x))
		for path, layer := range bothPaths(t, llamaConfig(hidden, tt.eps)) {
			t.Run(tt.name+"/"+path.String(), func(t *testing.T) {
				x, err := tensor.FromSlice(tt.x, tensor.Shape{1, len(tt.x)}, cpu.New())
				require.NoError(t, err)
				assert.InDeltaSlice(t, tt.x, layer.Forward(x).Data(), 1e-6)
			})
		}
	}
}

func TestParallelRMSNormZeroHiddenSize(t *testing.T) {
	for path, layer := range bothPaths(t, llamaConfig("0", 1e-6)) {
		t.Run(path.String(), func(t *testing.T) {
			assert.Equal(t, tensor.Shape{0}, layer.Shape())
			assert.Equal(t, tensor.Shape{0}, layer.Weight().Tensor().Shape())

			x := tensor.Zeros[float32](tensor.Shape{3, 0}, cpu.New())
			y := layer.Forward(x)
			assert.Equal(t, tensor.Shape{3, 0}, y.Shape())
			assert.Empty(t, y.Data())

			dx := layer.Backward(tensor.Zeros[float32](tensor.Shape{3, 0}, cpu.New()))
			assert.Equal(t, tensor.Shape{3, 0}, dx.Shape())
		})
	}
}
