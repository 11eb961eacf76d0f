package evset

import (
	"fmt"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// A SetGroup is the builder's output for one target set: one eviction
// ring per LLC slice. The rings partition the conflict set; which
// physical slice each ring maps to is unknowable from software, only
// that the rings are pairwise disjoint and slice-homogeneous. The rings
// stay valid for as long as the backing region lives.
type SetGroup struct {
	SetIndex uint64
	Rings    []*Ring
}

// Validate checks the structural invariants of the group: one ring per
// slice, each a well-formed cycle of exactly the associativity, rings
// pairwise disjoint, and every node addressing the target set.
func (sg *SetGroup) Validate(g cachegeom.Geometry) error {
	if uint64(len(sg.Rings)) != g.SliceCount {
		return fmt.Errorf("group has %d rings, want %d",
			len(sg.Rings), g.SliceCount)
	}

	seen := make(map[*Node]struct{}, g.ConflictSetSize())

	for i, r := range sg.Rings {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("ring %d: %w", i, err)
		}

		nodes := r.Nodes()
		if uint64(len(nodes)) != g.WaysPerSlice {
			return fmt.Errorf("ring %d holds %d nodes, want %d",
				i, len(nodes), g.WaysPerSlice)
		}

		for _, n := range nodes {
			if _, dup := seen[n]; dup {
				return fmt.Errorf("ring %d shares node %#x with another ring",
					i, n.Addr())
			}
			seen[n] = struct{}{}

			if got := g.SetIndexOf(n.Addr()); got != sg.SetIndex {
				return fmt.Errorf(
					"ring %d node %#x selects set %d, want %d",
					i, n.Addr(), got, sg.SetIndex)
			}
		}
	}

	return nil
}
