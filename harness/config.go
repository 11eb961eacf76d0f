package harness

import (
	"log"
	"time"

	"github.com/sarchlab/bankprobe/cachegeom"
)

// Config carries every knob of one contention experiment. The defaults
// reproduce the reference run on the Xeon E5-2650 v4.
type Config struct {
	Geometry cachegeom.Geometry
	Windows  cachegeom.LatencyWindows

	// Seed feeds the randomized candidate chains of both builders.
	Seed int64

	// RegionSize is the per-builder backing region in bytes. Must be at
	// least twice the LLC.
	RegionSize uint64

	// AttackerCore is the logical CPU the attacker (and slice profiling)
	// pins to.
	AttackerCore int

	// TargetSetAttacker and TargetSetVictim are the two cache sets under
	// study. Arbitrary, as long as they differ.
	TargetSetAttacker uint64
	TargetSetVictim   uint64

	// MaxVictimThreads sweeps the experiment for every victim count in
	// [0, MaxVictimThreads].
	MaxVictimThreads int

	// VictimIters is the chase length of one victim thread per bank.
	VictimIters uint64

	// AttackerWarmupSteps, AttackerEpochs and AccessesPerEpoch shape the
	// attacker's timed loop.
	AttackerWarmupSteps uint64
	AttackerEpochs      uint64
	AccessesPerEpoch    uint64

	// FarthestSlice targets the attacker's slowest ring instead of its
	// local one.
	FarthestSlice bool

	// WarmupSleep quiesces the attacker warmup before victims start;
	// BankGap spaces the bank windows apart.
	WarmupSleep time.Duration
	BankGap     time.Duration

	// BuilderRestarts bounds how often an unstable builder run is
	// retried before the experiment gives up.
	BuilderRestarts int

	// OutputDir receives the trace files.
	OutputDir string
}

// DefaultConfig returns the reference experiment configuration.
func DefaultConfig() Config {
	return Config{
		Geometry:            cachegeom.BroadwellEP,
		Windows:             cachegeom.BroadwellEPWindows,
		RegionSize:          64 << 20,
		AttackerCore:        0,
		TargetSetAttacker:   27,
		TargetSetVictim:     1898,
		MaxVictimThreads:    10,
		VictimIters:         5_000_000,
		AttackerWarmupSteps: 50_000_000,
		AttackerEpochs:      5_000_000,
		AccessesPerEpoch:    100,
		WarmupSleep:         time.Second,
		BankGap:             300 * time.Millisecond,
		BuilderRestarts:     2,
		OutputDir:           "results",
	}
}

// MustValidate panics on configurations the harness cannot run.
func (c Config) MustValidate() {
	c.Geometry.MustValidate()
	c.Windows.MustValidate()

	if c.RegionSize < c.Geometry.MinRegionSize() {
		log.Panicf("region of %d bytes is smaller than twice the LLC",
			c.RegionSize)
	}

	if c.TargetSetAttacker == c.TargetSetVictim {
		log.Panic("attacker and victim must target different cache sets")
	}

	if c.TargetSetAttacker >= c.Geometry.SetsPerSlice ||
		c.TargetSetVictim >= c.Geometry.SetsPerSlice {
		log.Panic("target set index out of range")
	}

	if c.AttackerEpochs < 2 {
		log.Panic("need at least two attacker epochs to form a delta")
	}

	if c.MaxVictimThreads < 0 {
		log.Panic("victim thread count cannot be negative")
	}
}
