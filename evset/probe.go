package evset

import (
	"fmt"

	"github.com/sarchlab/bankprobe/cachegeom"
	"github.com/sarchlab/bankprobe/timing"
)

// sink accumulates padding words read during traversal so the loads
// stay alive.
var sink uint64

// A Prober answers whether a full traversal of a ring evicts a given
// line from the LLC. The builder is written against this interface so
// the classification protocol can be exercised without the target
// microarchitecture.
type Prober interface {
	Probe(r *Ring, c *Node) (evicted bool, err error)
}

// A CycleProber implements Probe by timing the re-read of the candidate
// after traversing the ring. One probe: traverse to install the ring,
// read the candidate once, traverse again so the ring's lines contend
// with the candidate, then time a single fenced re-read. The traversal
// runs many laps because a single pass often fails to displace the
// candidate even when the ring holds a full set column in its slice;
// the replacement policy may victimize a ring line instead.
type CycleProber struct {
	Geometry cachegeom.Geometry
	Windows  cachegeom.LatencyWindows

	// TraversalLaps is the number of full ring traversals per probe
	// phase, expressed in multiples of the conflict-set size.
	TraversalLaps uint64

	// MaxRetries bounds how often an implausible latency is re-measured
	// before the probe reports ErrProbeUnstable.
	MaxRetries int
}

// NewCycleProber returns a prober with the profiled defaults.
func NewCycleProber(
	g cachegeom.Geometry,
	w cachegeom.LatencyWindows,
) *CycleProber {
	return &CycleProber{
		Geometry:      g,
		Windows:       w,
		TraversalLaps: 100,
		MaxRetries:    1000,
	}
}

// Probe reports whether traversing r evicts c. Latencies outside the
// plausibility window are thrown away and re-measured; they come from
// context switches and interrupts, not the cache.
func (p *CycleProber) Probe(r *Ring, c *Node) (bool, error) {
	steps := p.TraversalLaps * p.Geometry.ConflictSetSize()
	cur := r.Handle()

	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		// Install every ring line, displacing whatever else occupied the
		// set column.
		cur = Step(cur, steps)
		timing.Fence()

		// Bring the candidate in.
		sink += c.Touch()
		timing.Fence()

		// Let the ring contend with the candidate.
		cur = Step(cur, steps)

		t0 := timing.Cycles()
		sink += c.Touch()
		t1 := timing.Cycles()

		sink += cur.Touch()

		elapsed := t1 - t0
		if elapsed < p.Windows.PlausibleLow ||
			elapsed > p.Windows.PlausibleHigh {
			continue
		}

		return elapsed > p.Windows.LLCThreshold, nil
	}

	return false, fmt.Errorf("%w after %d attempts",
		ErrProbeUnstable, p.MaxRetries)
}
