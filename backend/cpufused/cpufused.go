// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpufused provides the row-parallel fused RMSNorm kernel for CPUs
// with vector units (AVX2 on amd64, ASIMD on arm64).
//
// Importing the package registers the kernel with the fused registry under
// the name "cpu-fused".
package cpufused

import (
	"github.com/born-ml/llama-parallel/internal/fused/cpufused"
	"github.com/born-ml/llama-parallel/internal/parallel"
)

// Name is the provider name the kernel registers under.
const Name = cpufused.ProviderName

// Kernel is the row-parallel fused RMSNorm.
type Kernel = cpufused.Kernel

// New creates a kernel that splits rows across workers goroutines.
// A non-positive workers uses one per CPU.
func New(workers int) *Kernel {
	cfg := parallel.DefaultConfig()
	if workers > 0 {
		cfg.NumWorkers = workers
		cfg.Enabled = workers > 1
	}
	return cpufused.New(cfg)
}
