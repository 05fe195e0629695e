// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU fused RMSNorm kernel.
//
// Importing the package registers the kernel with the fused registry under
// the name "webgpu". The kernel is implemented on Windows; on other
// platforms IsAvailable reports false and New returns ErrUnavailable, so the
// registry moves on to the next provider.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//	    fmt.Println(gpu.Name())
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/llama-parallel/internal/backend/webgpu"
)

// Name is the provider name the kernel registers under.
const Name = internalwebgpu.ProviderName

// ErrUnavailable is returned when no WebGPU adapter can be initialized.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// Backend holds the WebGPU device the kernel dispatches to.
type Backend = internalwebgpu.Backend

// New creates a new WebGPU backend. Call Release when done to free GPU resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
