package evset

import (
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// Builder lifecycle. Transitions are one-way; a violated ordering is a
// programmer error.
type buildState int

const (
	stateNeedRegion buildState = iota
	stateEnumerated
	stateChained
	stateConflictGrowing
	statePartitioning
	stateDone
)

// A Builder constructs the per-slice eviction rings for one target set.
// The builder itself is strictly single-threaded: while Build runs, the
// calling thread must be the only aggressor on the measured sets.
type Builder struct {
	geom    cachegeom.Geometry
	windows cachegeom.LatencyWindows
	seed    int64
	prober  Prober
	oracle  Oracle
	logger  *log.Logger

	warmupProbes   int
	witnessConfirm int
}

// MakeBuilder returns a builder with the reference-platform defaults.
func MakeBuilder() Builder {
	return Builder{
		geom:           cachegeom.BroadwellEP,
		windows:        cachegeom.BroadwellEPWindows,
		warmupProbes:   10,
		witnessConfirm: 100,
	}
}

// WithGeometry sets the cache geometry to build against.
func (b Builder) WithGeometry(g cachegeom.Geometry) Builder {
	b.geom = g
	return b
}

// WithLatencyWindows sets the platform latency envelopes.
func (b Builder) WithLatencyWindows(w cachegeom.LatencyWindows) Builder {
	b.windows = w
	return b
}

// WithSeed sets the seed for the randomized candidate chain. Reruns
// with the same seed on the same region produce identical rings.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithProber replaces the cycle-timing prober.
func (b Builder) WithProber(p Prober) Builder {
	b.prober = p
	return b
}

// WithOracle replaces the latency sanity oracle.
func (b Builder) WithOracle(o Oracle) Builder {
	b.oracle = o
	return b
}

// WithWitnessConfirmation sets how many unanimous probes a witness
// needs before it is trusted to isolate a slice. Higher values trade
// wall time against the false-positive rate of a single noisy probe.
func (b Builder) WithWitnessConfirmation(n int) Builder {
	b.witnessConfirm = n
	return b
}

// WithLogger sets the progress logger.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build carves the region's candidate lines for setIndex into one
// eviction ring per slice. The returned rings borrow the region's
// nodes; the leftover candidates are abandoned in place.
func (b Builder) Build(region *Region, setIndex uint64) (*SetGroup, error) {
	b.geom.MustValidate()
	b.windows.MustValidate()

	if b.prober == nil {
		b.prober = NewCycleProber(b.geom, b.windows)
	}

	if b.oracle == nil {
		b.oracle = NewCycleOracle(b.geom, b.windows)
	}

	if b.logger == nil {
		b.logger = log.New(os.Stderr, "evset ", log.LstdFlags)
	}

	c := &construction{
		Builder:  b,
		setIndex: setIndex,
		region:   region,
	}

	return c.run()
}

// construction carries the mutable state of one Build invocation.
type construction struct {
	Builder

	state        buildState
	setIndex     uint64
	region       *Region
	leftover     *Ring
	leftoverSize int
	conflict     *Ring
	rings        []*Ring
}

func (c *construction) advance(to buildState) {
	if to <= c.state {
		log.Panicf("builder state cannot move backwards (%d -> %d)",
			c.state, to)
	}

	c.state = to
}

func (c *construction) run() (*SetGroup, error) {
	candidates, err := c.region.Candidates(c.geom, c.setIndex)
	if err != nil {
		return nil, err
	}

	c.advance(stateEnumerated)
	c.logger.Printf("set %d: %d candidate lines", c.setIndex, len(candidates))

	c.leftover = Chain(candidates, c.seed)
	c.leftoverSize = len(candidates)
	c.advance(stateChained)

	if err := c.oracle.CheckCandidateRing(c.leftover); err != nil {
		return nil, err
	}

	if err := c.growConflict(); err != nil {
		return nil, err
	}

	if err := c.oracle.CheckConflictRing(c.conflict); err != nil {
		return nil, err
	}

	if err := c.partition(); err != nil {
		return nil, err
	}

	group := &SetGroup{SetIndex: c.setIndex, Rings: c.rings}
	if err := group.Validate(c.geom); err != nil {
		return nil, err
	}

	for i, r := range group.Rings {
		if err := c.oracle.CheckEvictionRing(i, r); err != nil {
			return nil, err
		}
	}

	c.advance(stateDone)

	return group, nil
}

// growConflict moves candidates into the conflict ring until it holds
// one full set column per slice. A candidate joins when traversing the
// current ring fails to evict it: that means the ring does not yet
// cover the candidate's slice.
func (c *construction) growConflict() error {
	c.advance(stateConflictGrowing)

	ways := int(c.geom.WaysPerSlice)
	target := int(c.geom.ConflictSetSize())

	// Seed with an arbitrary run of one column's worth of candidates.
	// Not enough to cover any slice on its own, but a starting point for
	// probing.
	c.conflict = c.leftover.SplitAfter(ways)
	c.leftoverSize -= ways

	// Throwaway probes stabilize the caches, branch predictors, and the
	// counter before any result counts.
	cur := c.leftover.Handle()
	for i := 0; i < c.warmupProbes; i++ {
		if _, err := c.prober.Probe(c.conflict, cur); err != nil {
			return err
		}
	}

	size := ways
	for size < target {
		evicted, err := c.prober.Probe(c.conflict, cur)
		if err != nil {
			return err
		}

		next := cur.Next()

		if !evicted {
			if c.leftoverSize == 1 {
				return fmt.Errorf(
					"%w: pool exhausted growing the conflict ring for set %d",
					ErrInsufficientCandidates, c.setIndex)
			}

			c.leftover.Remove(cur)
			c.leftoverSize--
			c.conflict.Push(cur)
			size++
		}

		cur = next
	}

	c.logger.Printf("set %d: conflict ring holds %d lines", c.setIndex, size)

	return nil
}

// partition splits the conflict ring into one ring per slice. Each
// round promotes a confirmed witness from the leftover pool, finds the
// column of conflict nodes that cover the witness's slice, and splices
// them out. After slices-1 rounds the remaining conflict ring is the
// final slice's ring by elimination.
func (c *construction) partition() error {
	c.advance(statePartitioning)

	slices := int(c.geom.SliceCount)

	for len(c.rings) < slices-1 {
		w, err := c.confirmWitness()
		if err != nil {
			return err
		}

		ring, err := c.isolateSlice(w)
		if err != nil {
			return err
		}

		c.rings = append(c.rings, ring)
		c.logger.Printf("set %d: isolated eviction ring %d of %d",
			c.setIndex, len(c.rings), slices)

		if err := c.retireWitness(w); err != nil {
			return err
		}
	}

	c.rings = append(c.rings, c.conflict)
	c.conflict = nil

	return nil
}

// confirmWitness finds a leftover candidate that the full conflict ring
// reliably evicts. A single probe can report eviction spuriously when a
// context switch inflates the timed load, so the candidate must pass
// every one of witnessConfirm repeat probes; one disagreement discards
// it.
func (c *construction) confirmWitness() (*Node, error) {
	w := c.leftover.Handle()

	for {
		evicted, err := c.prober.Probe(c.conflict, w)
		if err != nil {
			return nil, err
		}

		if !evicted {
			if w, err = c.discardWitness(w); err != nil {
				return nil, err
			}

			continue
		}

		unanimous := true
		for i := 0; i < c.witnessConfirm; i++ {
			evicted, err := c.prober.Probe(c.conflict, w)
			if err != nil {
				return nil, err
			}

			if !evicted {
				unanimous = false
				break
			}
		}

		if unanimous {
			return w, nil
		}

		if w, err = c.discardWitness(w); err != nil {
			return nil, err
		}
	}
}

func (c *construction) discardWitness(w *Node) (*Node, error) {
	if c.leftoverSize == 1 {
		return nil, fmt.Errorf(
			"%w: witness pool exhausted partitioning set %d",
			ErrInsufficientCandidates, c.setIndex)
	}

	next := w.Next()
	c.leftover.Remove(w)
	c.leftoverSize--

	return next, nil
}

func (c *construction) retireWitness(w *Node) error {
	if c.leftoverSize == 1 && len(c.rings) < int(c.geom.SliceCount)-1 {
		return fmt.Errorf(
			"%w: witness pool exhausted partitioning set %d",
			ErrInsufficientCandidates, c.setIndex)
	}

	c.leftover.Remove(w)
	c.leftoverSize--

	return nil
}

// isolateSlice finds the column of conflict nodes that cover the
// witness's slice. Removing a covering node from the ring makes the
// traversal stop evicting the witness; removing any other node changes
// nothing. Already-marked nodes are skipped when the scan wraps around
// the ring, otherwise the same node would be collected twice.
func (c *construction) isolateSlice(w *Node) (*Ring, error) {
	ways := int(c.geom.WaysPerSlice)

	marked := make(map[*Node]struct{}, ways)
	order := make([]*Node, 0, ways)

	t := c.conflict.Handle()

	for len(marked) < ways {
		if _, ok := marked[t]; ok {
			t = t.Next()
			continue
		}

		// Probe with t temporarily unspliced. The handle for the probe
		// is t's successor: it is guaranteed to still be in the ring,
		// while the conflict handle is not when t is the handle itself.
		detach(t)
		evicted, err := c.prober.Probe(ringOf(t.Next()), w)
		reattach(t)

		if err != nil {
			return nil, err
		}

		if !evicted {
			marked[t] = struct{}{}
			order = append(order, t)
		}

		t = t.Next()
	}

	out := &Ring{}
	for _, n := range order {
		c.conflict.Remove(n)
		out.Push(n)
	}

	return out, nil
}
