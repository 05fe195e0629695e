//go:build windows

package webgpu

import "github.com/born-ml/llama-parallel/internal/fused"

func init() {
	fused.Register(ProviderName, func() (fused.RMSNormAffine, error) {
		if !IsAvailable() {
			return nil, ErrUnavailable
		}
		b, err := New()
		if err != nil {
			return nil, err
		}
		return NewKernel(b), nil
	})
}
