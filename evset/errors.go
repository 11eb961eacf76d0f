package evset

import (
	"errors"
	"fmt"
)

// ErrInsufficientCandidates reports that the backing region yielded
// fewer candidate lines for the target set than the builder needs. This
// usually means the region is too small for the configured geometry or
// that huge pages are not actually in use.
var ErrInsufficientCandidates = errors.New("insufficient candidate lines")

// ErrProbeUnstable reports that a probe never produced a plausible
// latency within its retry bound. The builder run should be restarted.
var ErrProbeUnstable = errors.New("probe latency never settled")

// An OracleError reports that a sanity oracle measured an average
// traversal latency outside its platform window. It indicates a
// misconfiguration (wrong thresholds, missing huge pages, wrong
// geometry) rather than transient noise.
type OracleError struct {
	Which string
	Avg   float64
	Low   float64
	High  float64
}

func (e *OracleError) Error() string {
	return fmt.Sprintf(
		"%s ring averaged %.1f cycles per step, want [%.1f, %.1f]",
		e.Which, e.Avg, e.Low, e.High)
}

func errMalformed(reason string) error {
	return fmt.Errorf("malformed ring: %s", reason)
}
