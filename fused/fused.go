// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package fused exposes the registry of fused RMSNorm kernels.
//
// Kernels become available by linking their package in:
//
//	import (
//	    _ "github.com/born-ml/llama-parallel/backend/cpufused"
//	    _ "github.com/born-ml/llama-parallel/backend/webgpu"
//	)
package fused

import (
	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/logger"
)

// RMSNormAffine is a fused RMSNorm with a learned per-feature scale.
type RMSNormAffine = fused.RMSNormAffine

// Saved is the state a forward pass keeps for its backward pass.
type Saved = fused.Saved

// Provider constructs a kernel, or reports why it cannot run here.
type Provider = fused.Provider

// ErrUnavailable is returned by providers whose hardware or runtime is missing.
var ErrUnavailable = fused.ErrUnavailable

// Register adds a provider. Providers are probed in registration order.
func Register(name string, p Provider) {
	fused.Register(name, p)
}

// Providers returns the registered provider names in probe order.
func Providers() []string {
	return fused.Providers()
}

// Probe returns the first registered kernel that initializes, or nil.
// The answer is computed once per process.
func Probe(log logger.Logger) RMSNormAffine {
	return fused.Probe(log)
}

// Lookup initializes the named provider.
func Lookup(name string) (RMSNormAffine, error) {
	return fused.Lookup(name)
}

// Reference returns the single-threaded kernel that fused kernels are checked against.
func Reference() RMSNormAffine {
	return fused.Reference()
}
