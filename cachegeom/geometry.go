// Package cachegeom describes the geometry of a sliced, set-associative
// last-level cache and the timing envelopes used to classify memory
// accesses against it.
package cachegeom

import (
	"log"
	"math/bits"
)

// A Geometry describes the shape of the last-level cache on the measured
// platform. All address calculations in this repository derive from the
// four fields below.
type Geometry struct {
	// LineSize is the size of one cache line in bytes. Must be a power of
	// two.
	LineSize uint64

	// SliceCount is the number of physically distributed LLC slices
	// (banks) on the socket.
	SliceCount uint64

	// WaysPerSlice is the associativity of each set within one slice.
	WaysPerSlice uint64

	// SetsPerSlice is the number of sets per slice. Must be a power of
	// two.
	SetsPerSlice uint64
}

// BroadwellEP is the geometry of the Intel Xeon E5-2650 v4 (30 MiB LLC,
// 12 slices of 2.5 MiB, 20-way, 2048 sets, 64 B lines).
var BroadwellEP = Geometry{
	LineSize:     64,
	SliceCount:   12,
	WaysPerSlice: 20,
	SetsPerSlice: 2048,
}

// MustValidate panics if the geometry is not usable.
func (g Geometry) MustValidate() {
	if g.LineSize == 0 || bits.OnesCount64(g.LineSize) != 1 {
		log.Panicf("line size %d is not a power of two", g.LineSize)
	}

	if g.SetsPerSlice == 0 || bits.OnesCount64(g.SetsPerSlice) != 1 {
		log.Panicf("sets per slice %d is not a power of two", g.SetsPerSlice)
	}

	if g.SliceCount == 0 {
		log.Panic("slice count cannot be 0")
	}

	if g.WaysPerSlice == 0 {
		log.Panic("ways per slice cannot be 0")
	}
}

// LineOffsetBits returns the number of address bits that select a byte
// within one cache line.
func (g Geometry) LineOffsetBits() uint {
	return uint(bits.TrailingZeros64(g.LineSize))
}

// SetIndexBits returns the number of address bits that select a set
// within one slice.
func (g Geometry) SetIndexBits() uint {
	return uint(bits.TrailingZeros64(g.SetsPerSlice))
}

// LineOffsetMask returns the mask of the intra-line address bits.
func (g Geometry) LineOffsetMask() uint64 {
	return g.LineSize - 1
}

// SetIndexMask returns the mask of the set-index address bits, in place.
func (g Geometry) SetIndexMask() uint64 {
	return (g.SetsPerSlice - 1) << g.LineOffsetBits()
}

// SetIndexOf extracts the set index selected by addr.
func (g Geometry) SetIndexOf(addr uintptr) uint64 {
	return (uint64(addr) >> g.LineOffsetBits()) & (g.SetsPerSlice - 1)
}

// SliceSize returns the capacity of one slice in bytes.
func (g Geometry) SliceSize() uint64 {
	return g.WaysPerSlice * g.SetsPerSlice * g.LineSize
}

// LLCSize returns the total LLC capacity in bytes.
func (g Geometry) LLCSize() uint64 {
	return g.SliceCount * g.SliceSize()
}

// ConflictSetSize returns the number of lines that fully occupy one set
// column across every slice.
func (g Geometry) ConflictSetSize() uint64 {
	return g.SliceCount * g.WaysPerSlice
}

// MinCandidates returns the smallest candidate pool the eviction-set
// builder accepts for one target set.
func (g Geometry) MinCandidates() uint64 {
	return 2 * g.ConflictSetSize()
}

// MinRegionSize returns the smallest backing region, in bytes, that
// guarantees a sufficient candidate pool for any target set.
func (g Geometry) MinRegionSize() uint64 {
	return 2 * g.LLCSize()
}
