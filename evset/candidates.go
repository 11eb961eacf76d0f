package evset

import (
	"fmt"
	"log"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// Candidates returns every node in the region whose address bits select
// the target set. The virtual address stands in for the physical one,
// which is sound because nodes are line-aligned and the set-index bits
// lie within the huge-page offset.
func (r *Region) Candidates(
	g cachegeom.Geometry,
	setIndex uint64,
) ([]*Node, error) {
	if setIndex >= g.SetsPerSlice {
		log.Panicf("set index %d out of range [0, %d)",
			setIndex, g.SetsPerSlice)
	}

	var candidates []*Node

	for i := range r.nodes {
		n := &r.nodes[i]

		if uint64(n.Addr())&g.LineOffsetMask() != 0 {
			log.Panicf("node %d at %#x is not line aligned", i, n.Addr())
		}

		if g.SetIndexOf(n.Addr()) == setIndex {
			candidates = append(candidates, n)
		}
	}

	if uint64(len(candidates)) < g.MinCandidates() {
		return nil, fmt.Errorf(
			"%w: set %d matched %d of the %d required",
			ErrInsufficientCandidates, setIndex,
			len(candidates), g.MinCandidates())
	}

	return candidates, nil
}
