//go:build !linux

package harness

import "fmt"

// PinSelf requires sched_setaffinity; only Linux hosts can run the
// experiment.
func PinSelf(cpu int) (undo func(), err error) {
	return nil, fmt.Errorf("%w: not supported on this platform",
		ErrAffinityRefused)
}
