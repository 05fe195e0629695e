package cpufused

import "golang.org/x/sys/cpu"

const vectorISA = "ASIMD"

// ASIMD (NEON) is part of the ARMv8 baseline but is still reported by the OS.
var hasVector = cpu.ARM64.HasASIMD
