// Package harness orchestrates the contention experiment: one pinned
// attacker thread chases an eviction ring and timestamps its progress
// while victim threads flood other rings bank by bank.
package harness

import (
	"sync/atomic"

	"github.com/sarchlab/bankprobe/evset"
	"github.com/sarchlab/bankprobe/timing"
)

// sink keeps traversal loads alive. Victims update it concurrently with
// the attacker, so all writes go through atomics.
var sink uint64

// An Attacker chases one eviction ring from a pinned core and records
// one timestamp per epoch of accesses. The timestamp buffer is
// allocated once on the heap: at millions of epochs it is far too large
// for a stack frame, and it lives as long as the attacker so every
// sweep reuses it.
type Attacker struct {
	Core             int
	WarmupSteps      uint64
	Epochs           uint64
	AccessesPerEpoch uint64

	times []uint64
}

// NewAttacker allocates the attacker and its timestamp buffer.
func NewAttacker(core int, warmup, epochs, perEpoch uint64) *Attacker {
	return &Attacker{
		Core:             core,
		WarmupSteps:      warmup,
		Epochs:           epochs,
		AccessesPerEpoch: perEpoch,
		times:            make([]uint64, epochs),
	}
}

// Times returns the timestamp buffer of the most recent run. Only read
// it after Run has returned.
func (a *Attacker) Times() []uint64 {
	return a.times
}

// Run pins to the attacker core, chases untimed warmup steps, then
// records one fenced timestamp after each epoch of accesses. No
// allocation and no syscalls happen inside the timed loop.
func (a *Attacker) Run(ring *evset.Ring) error {
	undo, err := PinSelf(a.Core)
	if err != nil {
		return err
	}
	defer undo()

	n := ring.Handle()
	n = evset.Step(n, a.WarmupSteps)

	for i := uint64(0); i < a.Epochs; i++ {
		timing.Fence()
		n = evset.Step(n, a.AccessesPerEpoch)
		a.times[i] = timing.Cycles()
	}

	atomic.AddUint64(&sink, n.Touch())

	return nil
}
