package harness

import (
	"sync"
	"sync/atomic"

	"github.com/sarchlab/bankprobe/evset"
	"github.com/sarchlab/bankprobe/timing"
)

// FloodSlice runs count victim threads that each chase the given ring
// for iters steps, and returns each victim's traversal duration in
// cycles. The victims are deliberately unpinned: the point is raw
// demand on the ring's slice, not a clean per-victim measurement.
func FloodSlice(ring *evset.Ring, count int, iters uint64) []uint64 {
	durations := make([]uint64, count)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)

		go func(slot int) {
			defer wg.Done()

			n := ring.Handle()

			timing.Fence()
			t0 := timing.Cycles()

			n = evset.Step(n, iters)

			durations[slot] = timing.Cycles() - t0
			atomic.AddUint64(&sink, n.Touch())
		}(i)
	}

	wg.Wait()

	return durations
}
