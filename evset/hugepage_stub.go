//go:build !linux

package evset

import (
	"errors"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// AllocateRegion needs mmap with huge-page control; only Linux hosts
// are supported. NewRegion over a caller-provided buffer still works
// for algorithm-level testing.
func AllocateRegion(size uint64, g cachegeom.Geometry) (*Region, error) {
	return nil, errors.New(
		"huge-page region allocation is only supported on linux")
}
