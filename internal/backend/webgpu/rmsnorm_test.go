//go:build windows

package webgpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	b, err := New()
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return NewKernel(b)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, fused.Providers(), ProviderName)
}

func TestKernelMatchesReference(t *testing.T) {
	k := newTestKernel(t)

	rng := rand.New(rand.NewSource(3))
	shape := tensor.Shape{5, 300}
	x, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	for i := range x.AsFloat32() {
		x.AsFloat32()[i] = float32(rng.NormFloat64())
	}
	w, err := tensor.NewRaw(tensor.Shape{300}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	for i := range w.AsFloat32() {
		w.AsFloat32()[i] = float32(rng.NormFloat64())
	}

	want, wantSaved, err := fused.ReferenceForward(x, w, tensor.Shape{300}, 1e-6, true)
	require.NoError(t, err)

	got, saved, err := k.Forward(x, w, tensor.Shape{300}, 1e-6, true)
	require.NoError(t, err)

	assert.Equal(t, tensor.CPU, got.Device())
	assert.InDeltaSlice(t, want.AsFloat32(), got.AsFloat32(), 1e-4)
	assert.InDeltaSlice(t, wantSaved.InvRMS, saved.InvRMS, 1e-4)
	assert.Same(t, got, saved.Output)
}

func TestDispatchSize(t *testing.T) {
	x, y := dispatchSize(10)
	assert.Equal(t, uint32(10), x)
	assert.Equal(t, uint32(1), y)

	x, y = dispatchSize(maxWorkgroupsPerDim*2 + 1)
	assert.Equal(t, uint32(maxWorkgroupsPerDim), x)
	assert.Equal(t, uint32(3), y)
}

func TestAdapterName(t *testing.T) {
	tests := []struct {
		name string
		info *wgpu.AdapterInfoGo
		want string
	}{
		{"no info", nil, "WebGPU"},
		{"empty info", &wgpu.AdapterInfoGo{}, "WebGPU"},
		{"vendor and device", &wgpu.AdapterInfoGo{Vendor: "NVIDIA", Device: "GeForce RTX 4090"}, "WebGPU (NVIDIA GeForce RTX 4090)"},
		{"device only", &wgpu.AdapterInfoGo{Device: " Radeon 780M "}, "WebGPU (Radeon 780M)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adapterName(tt.info))
		})
	}
}

func TestBackendName(t *testing.T) {
	k := newTestKernel(t)
	assert.Contains(t, k.backend.Name(), "WebGPU")
	assert.Equal(t, tensor.WebGPU, k.backend.Device())
}
