// Package fused holds the registry of fused RMSNorm kernels and the reference
// math they are checked against.
//
// A kernel package registers a Provider from its init function. Linking the
// package in (usually by a blank import) is what makes the kernel available
// to Probe, in the same way an optional accelerator library is either present
// in a build or not:
//
//	import _ "github.com/born-ml/llama-parallel/internal/fused/cpufused"
package fused

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/llama-parallel/internal/logger"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// ErrUnavailable is returned by providers whose hardware or runtime is missing.
var ErrUnavailable = errors.New("fused: kernel unavailable")

// RMSNormAffine is a fused RMSNorm with a learned per-feature scale:
//
//	y = x / sqrt(mean(x^2) + eps) * weight
//
// with the mean taken over the trailing normalizedShape dimensions.
type RMSNormAffine interface {
	// Name identifies the kernel in logs and probe output.
	Name() string

	// Forward normalizes input. When memoryEfficient is set the returned
	// Saved holds the output instead of the input.
	Forward(input, weight *tensor.RawTensor, normalizedShape tensor.Shape, eps float32, memoryEfficient bool) (*tensor.RawTensor, *Saved, error)

	// Backward returns the gradients with respect to input and weight.
	Backward(gradOutput, weight *tensor.RawTensor, saved *Saved) (gradInput, gradWeight *tensor.RawTensor, err error)
}

// Saved is the state a forward pass keeps for its backward pass.
type Saved struct {
	// Input is set in the standard mode, Output in the memory-efficient mode.
	Input  *tensor.RawTensor
	Output *tensor.RawTensor

	// InvRMS holds 1/sqrt(mean(x^2) + eps) per normalized row.
	InvRMS []float32

	NormalizedShape tensor.Shape
	Eps             float32
	MemoryEfficient bool
}

// Provider constructs a kernel, or reports why it cannot run here.
type Provider func() (RMSNormAffine, error)

type registration struct {
	name     string
	provider Provider
}

var (
	mu        sync.Mutex
	providers []registration

	probeOnce   sync.Once
	probeResult RMSNormAffine
)

// Register adds a provider. Providers are probed in registration order.
// Registering a duplicate name panics.
func Register(name string, p Provider) {
	mu.Lock()
	defer mu.Unlock()

	if p == nil {
		panic("fused: Register provider is nil")
	}
	for _, r := range providers {
		if r.name == name {
			panic("fused: Register called twice for provider " + name)
		}
	}
	providers = append(providers, registration{name: name, provider: p})
}

// Providers returns the registered provider names in probe order.
func Providers() []string {
	mu.Lock()
	defer mu.Unlock()

	names := make([]string, 0, len(providers))
	for _, r := range providers {
		names = append(names, r.name)
	}
	return names
}

// Probe returns the first registered kernel that initializes, or nil.
// Providers run at most once per process; the answer is fixed afterwards.
// Provider failures are logged at debug level and otherwise dropped.
func Probe(log logger.Logger) RMSNormAffine {
	probeOnce.Do(func() {
		probeResult = probe(log)
	})
	return probeResult
}

// Lookup initializes the named provider without caching the result.
func Lookup(name string) (RMSNormAffine, error) {
	mu.Lock()
	var p Provider
	for _, r := range providers {
		if r.name == name {
			p = r.provider
		}
	}
	mu.Unlock()

	if p == nil {
		return nil, fmt.Errorf("fused: unknown provider %q (registered: %v)", name, Providers())
	}
	return p()
}

func probe(log logger.Logger) RMSNormAffine {
	if log == nil {
		log = logger.Discard()
	}

	mu.Lock()
	regs := append([]registration(nil), providers...)
	mu.Unlock()

	for _, r := range regs {
		k, err := r.provider()
		if err != nil {
			log.Debug("fused kernel unavailable", "provider", r.name, "error", err)
			continue
		}
		log.Debug("fused kernel selected", "provider", r.name, "kernel", k.Name())
		return k
	}
	return nil
}
