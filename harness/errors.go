package harness

import "errors"

// ErrAffinityRefused reports that the host denied pinning the current
// thread to the requested logical CPU. The experiment cannot run
// without hard affinity.
var ErrAffinityRefused = errors.New("host refused CPU affinity")
