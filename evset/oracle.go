package evset

import (
	"fmt"

	"github.com/sarchlab/bankprobe/cachegeom"
	"github.com/sarchlab/bankprobe/timing"
)

// An Oracle asserts that a ring's average traversal latency falls in
// the window its construction stage promises. A failing oracle means
// the builder produced a malformed output and the run should restart.
type Oracle interface {
	// CheckCandidateRing asserts the randomized pre-carve ring misses to
	// DRAM on every step.
	CheckCandidateRing(r *Ring) error

	// CheckConflictRing asserts the conflict ring fits in the LLC.
	CheckConflictRing(r *Ring) error

	// CheckEvictionRing asserts one output ring hits in the LLC, within
	// the wider per-slice envelope.
	CheckEvictionRing(index int, r *Ring) error
}

// A CycleOracle measures average per-step latencies with the cycle
// counter and compares them against the platform windows.
type CycleOracle struct {
	Geometry cachegeom.Geometry
	Windows  cachegeom.LatencyWindows
}

// NewCycleOracle returns an oracle for the given platform.
func NewCycleOracle(
	g cachegeom.Geometry,
	w cachegeom.LatencyWindows,
) *CycleOracle {
	return &CycleOracle{Geometry: g, Windows: w}
}

// Traversal lengths per check, in multiples of the conflict-set size.
// The candidate ring is much larger than the conflict ring, so its
// check walks more steps for a stable average.
const (
	candidateCheckLaps = 100000
	llcCheckLaps       = 10000
)

func (o *CycleOracle) CheckCandidateRing(r *Ring) error {
	avg := averageStep(r, candidateCheckLaps*o.Geometry.ConflictSetSize())

	if avg < o.Windows.DRAMLow || avg > o.Windows.DRAMHigh {
		return &OracleError{
			Which: "candidate",
			Avg:   avg,
			Low:   o.Windows.DRAMLow,
			High:  o.Windows.DRAMHigh,
		}
	}

	return nil
}

func (o *CycleOracle) CheckConflictRing(r *Ring) error {
	avg := averageStep(r, llcCheckLaps*o.Geometry.ConflictSetSize())

	if avg < o.Windows.LLCLow || avg > o.Windows.LLCHigh {
		return &OracleError{
			Which: "conflict",
			Avg:   avg,
			Low:   o.Windows.LLCLow,
			High:  o.Windows.LLCHigh,
		}
	}

	return nil
}

func (o *CycleOracle) CheckEvictionRing(index int, r *Ring) error {
	avg := averageStep(r, llcCheckLaps*o.Geometry.ConflictSetSize())

	if avg < o.Windows.EvictionLow || avg > o.Windows.EvictionHigh {
		return &OracleError{
			Which: fmt.Sprintf("eviction[%d]", index),
			Avg:   avg,
			Low:   o.Windows.EvictionLow,
			High:  o.Windows.EvictionHigh,
		}
	}

	return nil
}

// averageStep chases the ring for the given number of steps and returns
// cycles per step.
func averageStep(r *Ring, steps uint64) float64 {
	n := r.Handle()

	timing.Fence()
	t0 := timing.Cycles()

	n = Step(n, steps)

	t1 := timing.Cycles()
	sink += n.Touch()

	return float64(t1-t0) / float64(steps)
}
