//go:build linux

package harness

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinSelf locks the calling goroutine to its OS thread and pins that
// thread to the given logical CPU. The returned function releases the
// thread back to the scheduler; the kernel affinity mask is left in
// place since the thread exits with the goroutine.
func PinSelf(cpu int) (undo func(), err error) {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()

		return nil, fmt.Errorf("%w: cpu %d: %v", ErrAffinityRefused, cpu, err)
	}

	return runtime.UnlockOSThread, nil
}
