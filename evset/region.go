package evset

import (
	"fmt"
	"unsafe"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// A Region is a contiguous, cache-line-aligned array of Nodes backing
// one eviction-set construction. The region owns every node; rings hand
// out non-owning handles into it. The backing memory must be mapped by
// pages large enough that the set-index bits lie within the page offset,
// or candidate enumeration misclassifies lines.
type Region struct {
	nodes []Node

	// munmap closure when the region owns its mapping.
	release func() error
}

// NewRegion lays nodes over a caller-provided buffer. The buffer is
// borrowed: it must outlive the region and every ring derived from it.
// The usable prefix starts at the first line-aligned byte.
func NewRegion(buf []byte, g cachegeom.Geometry) (*Region, error) {
	g.MustValidate()

	if g.LineSize != NodeSize {
		return nil, fmt.Errorf(
			"geometry line size %d does not match node size %d",
			g.LineSize, NodeSize)
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	skip := uintptr(0)

	if rem := base % uintptr(g.LineSize); rem != 0 {
		skip = uintptr(g.LineSize) - rem
	}

	if uintptr(len(buf)) < skip+uintptr(g.LineSize) {
		return nil, fmt.Errorf("buffer of %d bytes holds no full line",
			len(buf))
	}

	count := (uintptr(len(buf)) - skip) / uintptr(g.LineSize)
	first := (*Node)(unsafe.Pointer(&buf[skip]))

	return &Region{nodes: unsafe.Slice(first, count)}, nil
}

// Len returns the number of nodes in the region.
func (r *Region) Len() int {
	return len(r.nodes)
}

// Node returns the i-th node of the region.
func (r *Region) Node(i int) *Node {
	return &r.nodes[i]
}

// Close releases the mapping for regions allocated by AllocateRegion.
// It is a no-op for regions laid over borrowed buffers. All rings into
// the region are invalid afterwards.
func (r *Region) Close() error {
	r.nodes = nil

	if r.release == nil {
		return nil
	}

	release := r.release
	r.release = nil

	return release()
}
