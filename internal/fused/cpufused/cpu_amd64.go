package cpufused

import "golang.org/x/sys/cpu"

const vectorISA = "AVX2"

var hasVector = cpu.X86.HasAVX2
