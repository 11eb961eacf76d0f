//go:build amd64

package timing

// Cycles returns the processor's time-stamp counter, fenced on both
// sides so that neither earlier nor later loads straddle the read.
//
//go:noescape
func Cycles() uint64

// Fence orders all prior loads before any later load. It is the
// serialization point between the phases of a probe.
//
//go:noescape
func Fence()
