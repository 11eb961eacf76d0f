//go:build !amd64

package timing

import "time"

// The generic fallback keeps the package compiling on architectures
// without a usable time-stamp counter. Nanosecond resolution is far too
// coarse for single-load classification, so real measurements require
// the amd64 build.

var start = time.Now()

// Cycles returns elapsed nanoseconds since process start.
func Cycles() uint64 {
	return uint64(time.Since(start))
}

// Fence is a no-op on architectures without the fenced counter read.
func Fence() {}
