package timing

import (
	"math/rand"

	"github.com/shirou/gopsutil/cpu"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// sink receives chased values so the loads cannot be eliminated.
var sink uint64

// A Calibration reports empirically measured per-step chase latencies
// for the running machine.
type Calibration struct {
	CPUModel    string
	DRAMPerStep float64
	LLCPerStep  float64
}

// SuggestedWindows derives latency windows from the measured latencies.
// The envelopes are widened by 15% on each side and the hit/miss
// threshold sits halfway between the two measurements.
func (c Calibration) SuggestedWindows() cachegeom.LatencyWindows {
	threshold := uint64((c.LLCPerStep + c.DRAMPerStep) / 2)

	return cachegeom.LatencyWindows{
		DRAMLow:       c.DRAMPerStep * 0.85,
		DRAMHigh:      c.DRAMPerStep * 1.15,
		LLCLow:        c.LLCPerStep * 0.85,
		LLCHigh:       c.LLCPerStep * 1.15,
		EvictionLow:   c.LLCPerStep * 0.70,
		EvictionHigh:  c.LLCPerStep * 1.30,
		LLCThreshold:  threshold,
		PlausibleLow:  uint64(c.LLCPerStep * 0.5),
		PlausibleHigh: uint64(c.DRAMPerStep * 1.5),
	}
}

// Calibrate measures DRAM-resident and LLC-resident chase latencies on
// the current thread. The DRAM figure chases a buffer twice the LLC
// size; the LLC figure chases a buffer that overflows the mid-level
// cache but fits comfortably in one LLC. Both chases follow a seeded
// random cycle so the stream prefetcher cannot hide the miss latency.
func Calibrate(g cachegeom.Geometry) (Calibration, error) {
	g.MustValidate()

	c := Calibration{}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		c.CPUModel = infos[0].ModelName
	}

	dramLines := g.MinRegionSize() / g.LineSize
	llcLines := (g.LLCSize() / 8) / g.LineSize

	c.DRAMPerStep = chasePerStep(int(dramLines), int(g.LineSize), 4_000_000)
	c.LLCPerStep = chasePerStep(int(llcLines), int(g.LineSize), 20_000_000)

	return c, nil
}

// chasePerStep lays a random cyclic permutation over count line-strided
// slots and returns the average cycles per chase step.
func chasePerStep(count, stride int, steps uint64) float64 {
	wordsPerLine := stride / 8
	buf := make([]uint64, count*wordsPerLine)

	order := rand.New(rand.NewSource(0)).Perm(count)
	for i, slot := range order {
		next := order[(i+1)%count]
		buf[slot*wordsPerLine] = uint64(next)
	}

	// One full lap warms the TLB without warming count > cache lines.
	idx := uint64(order[0])
	for i := 0; i < count; i++ {
		idx = buf[idx*uint64(wordsPerLine)]
	}

	Fence()
	t0 := Cycles()

	for i := uint64(0); i < steps; i++ {
		idx = buf[idx*uint64(wordsPerLine)]
	}

	t1 := Cycles()
	sink += idx

	return float64(t1-t0) / float64(steps)
}
