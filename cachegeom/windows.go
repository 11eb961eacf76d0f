package cachegeom

import "log"

// LatencyWindows groups the per-platform cycle envelopes used to decide
// whether a pointer chase is resident in DRAM or in the LLC, and whether
// a single timed load is plausible at all. The defaults below were
// profiled on the Xeon E5-2650 v4; other processors need recalibration
// (see the calibrate command).
type LatencyWindows struct {
	// DRAMLow and DRAMHigh bound the average per-step latency of a chase
	// that misses to DRAM on every step.
	DRAMLow  float64
	DRAMHigh float64

	// LLCLow and LLCHigh bound the average per-step latency of a chase
	// that hits in the LLC on every step.
	LLCLow  float64
	LLCHigh float64

	// EvictionLow and EvictionHigh bound the average per-step latency of
	// a single per-slice eviction ring. The envelope is wider than the
	// LLC window because slices sit at different distances on the on-die
	// interconnect.
	EvictionLow  float64
	EvictionHigh float64

	// LLCThreshold separates a single LLC-hitting load from a load that
	// missed to DRAM.
	LLCThreshold uint64

	// PlausibleLow and PlausibleHigh bound single-load latencies that are
	// believable at all. Measurements outside this window are discarded
	// as interference from context switches or interrupts.
	PlausibleLow  uint64
	PlausibleHigh uint64
}

// BroadwellEPWindows holds the profiled envelopes for the Xeon E5-2650
// v4 reference platform.
var BroadwellEPWindows = LatencyWindows{
	DRAMLow:       165,
	DRAMHigh:      190,
	LLCLow:        30,
	LLCHigh:       50,
	EvictionLow:   25,
	EvictionHigh:  55,
	LLCThreshold:  100,
	PlausibleLow:  20,
	PlausibleHigh: 200,
}

// MustValidate panics if the windows are internally inconsistent.
func (w LatencyWindows) MustValidate() {
	if w.LLCLow >= w.LLCHigh || w.DRAMLow >= w.DRAMHigh {
		log.Panic("latency windows are empty")
	}

	if w.LLCHigh > w.DRAMLow {
		log.Panic("LLC and DRAM windows overlap")
	}

	if float64(w.LLCThreshold) <= w.LLCHigh ||
		float64(w.LLCThreshold) >= w.DRAMLow {
		log.Panic("LLC threshold must separate the LLC and DRAM windows")
	}

	if w.PlausibleLow >= w.PlausibleHigh {
		log.Panic("plausibility window is empty")
	}
}
