// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
//
// It runs the generic RMSNorm path and serves as the host backend for the
// fused kernels.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/llama-parallel/backend/cpu"
//	    "github.com/born-ml/llama-parallel/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    y := x.Add(x)
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// is isolated and does not share mutable state.
package cpu

import (
	internalcpu "github.com/born-ml/llama-parallel/internal/backend/cpu"
	"github.com/born-ml/llama-parallel/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
func New() *Backend {
	return internalcpu.New()
}
