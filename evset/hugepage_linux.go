//go:build linux

package evset

import (
	"fmt"
	"log"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// AllocateRegion maps an anonymous region of at least twice the LLC
// size, preferring explicit huge pages. When the host has no hugetlb
// pool it falls back to a transparent-huge-page advised mapping; whether
// the kernel actually backs that with huge pages is outside this
// program's control, and the candidate sanity oracle catches the case
// where it did not.
func AllocateRegion(size uint64, g cachegeom.Geometry) (*Region, error) {
	if size < g.MinRegionSize() {
		return nil, fmt.Errorf(
			"region of %d bytes is smaller than twice the LLC (%d bytes)",
			size, g.MinRegionSize())
	}

	buf, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)

	if err != nil {
		log.Printf(
			"hugetlb mapping unavailable (%v), falling back to THP advice",
			err)

		buf, err = unix.Mmap(-1, 0, int(size),
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			return nil, fmt.Errorf("mmap backing region: %w", err)
		}

		if err := unix.Madvise(buf, unix.MADV_HUGEPAGE); err != nil {
			log.Printf("madvise(MADV_HUGEPAGE) refused: %v", err)
		}
	}

	// Touch every page so the mapping is populated before any timing
	// runs.
	for i := 0; i < len(buf); i += 4096 {
		buf[i] = 1
	}

	region, err := NewRegion(buf, g)
	if err != nil {
		_ = unix.Munmap(buf)
		return nil, err
	}

	region.release = func() error { return unix.Munmap(buf) }

	return region, nil
}
