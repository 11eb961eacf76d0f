// Package timing provides the serialized cycle counter and the
// latency-classification and calibration helpers that all probing in
// this repository is built on.
package timing

import "github.com/sarchlab/bankprobe/cachegeom"

// A Class is the residency verdict for an averaged pointer chase.
type Class int

// Residency classes for an averaged chase.
const (
	ClassAmbiguous Class = iota
	ClassLLC
	ClassDRAM
)

func (c Class) String() string {
	switch c {
	case ClassLLC:
		return "LLC"
	case ClassDRAM:
		return "DRAM"
	default:
		return "ambiguous"
	}
}

// Classify places an average per-step chase latency into one of the
// platform windows. Latencies between the windows are ambiguous and
// indicate a chase that is partially cached.
func Classify(avgCycles float64, w cachegeom.LatencyWindows) Class {
	switch {
	case avgCycles >= w.LLCLow && avgCycles <= w.LLCHigh:
		return ClassLLC
	case avgCycles >= w.DRAMLow && avgCycles <= w.DRAMHigh:
		return ClassDRAM
	default:
		return ClassAmbiguous
	}
}
