//go:build !windows

// Package webgpu runs the fused RMSNorm kernel on the GPU through WebGPU.
// On this platform WebGPU support is not built in.
package webgpu

import "github.com/born-ml/llama-parallel/internal/tensor"

// Backend is a placeholder on platforms without WebGPU support.
type Backend struct{}

// New always fails with ErrUnavailable on this platform.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports false on this platform.
func IsAvailable() bool {
	return false
}

// Release is a no-op.
func (b *Backend) Release() {}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU (unavailable)"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}
