//go:build !amd64 && !arm64

package cpufused

const vectorISA = "SIMD"

var hasVector = false
