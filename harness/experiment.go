package harness

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/bankprobe/evset"
	"github.com/sarchlab/bankprobe/monitoring"
	"github.com/sarchlab/bankprobe/results"
	"github.com/sarchlab/bankprobe/timing"
)

// Recorder table names.
const (
	tableSweepSummary     = "sweep_summaries"
	tableBankDeltas       = "bank_deltas"
	tableVictimTraversals = "victim_traversals"
)

// An Experiment owns the full contention study: two serial eviction-set
// builds, the attacker's slice discovery, and one attacker/victim sweep
// per victim-thread count.
type Experiment struct {
	cfg    Config
	logger *log.Logger

	recorder results.DataRecorder
	monitor  *monitoring.Monitor

	runID    string
	attacker *Attacker

	attackRegion *evset.Region
	victimRegion *evset.Region
	attGroup     *evset.SetGroup
	vicGroup     *evset.SetGroup

	// TargetSlice is the index of the attacker ring the sweep chases.
	// Exported for state inspection over the monitor.
	TargetSlice int
}

// NewExperiment creates an experiment for the given configuration.
func NewExperiment(cfg Config) *Experiment {
	cfg.MustValidate()

	return &Experiment{
		cfg:         cfg,
		logger:      log.New(os.Stderr, "harness ", log.LstdFlags),
		runID:       xid.New().String(),
		TargetSlice: -1,
	}
}

// WithRecorder attaches a data recorder for the condensed results.
func (e *Experiment) WithRecorder(r results.DataRecorder) *Experiment {
	e.recorder = r
	return e
}

// WithMonitor attaches a monitoring server for progress reporting.
func (e *Experiment) WithMonitor(m *monitoring.Monitor) *Experiment {
	e.monitor = m
	return e
}

// WithLogger replaces the progress logger.
func (e *Experiment) WithLogger(l *log.Logger) *Experiment {
	e.logger = l
	return e
}

// RunID identifies this experiment in recorded data.
func (e *Experiment) RunID() string {
	return e.runID
}

// Run executes the whole experiment. It returns the first fatal error;
// unstable builder runs are retried up to the configured bound first.
func (e *Experiment) Run() error {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return err
	}

	if e.monitor != nil {
		e.monitor.RegisterComponent("experiment", e)
	}

	if e.recorder != nil {
		e.recorder.CreateTable(tableSweepSummary,
			results.SweepSummaryEntry{})
		e.recorder.CreateTable(tableBankDeltas, results.BankDeltaEntry{})
		e.recorder.CreateTable(tableVictimTraversals,
			results.VictimTraversalEntry{})
	}

	// The two builds must not overlap with each other or with any other
	// memory-intensive work: each one's probes assume sole ownership of
	// the measured sets.
	var err error

	e.attGroup, e.attackRegion, err = e.buildGroup(e.cfg.TargetSetAttacker)
	if err != nil {
		return fmt.Errorf("attacker eviction sets: %w", err)
	}

	e.vicGroup, e.victimRegion, err = e.buildGroup(e.cfg.TargetSetVictim)
	if err != nil {
		return fmt.Errorf("victim eviction sets: %w", err)
	}

	e.logger.Printf("built eviction sets for cache sets %d and %d",
		e.cfg.TargetSetAttacker, e.cfg.TargetSetVictim)

	e.TargetSlice, err = e.locateTargetSlice()
	if err != nil {
		return err
	}

	e.attacker = NewAttacker(e.cfg.AttackerCore, e.cfg.AttackerWarmupSteps,
		e.cfg.AttackerEpochs, e.cfg.AccessesPerEpoch)

	for v := 0; v <= e.cfg.MaxVictimThreads; v++ {
		if err := e.runSweep(v); err != nil {
			return err
		}

		e.logger.Printf("finished sweep with %d victim threads", v)
	}

	return nil
}

// Close releases the backing regions. Every ring handle is invalid
// afterwards.
func (e *Experiment) Close() error {
	var firstErr error

	for _, r := range []*evset.Region{e.attackRegion, e.victimRegion} {
		if r == nil {
			continue
		}

		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.attackRegion = nil
	e.victimRegion = nil

	return firstErr
}

func (e *Experiment) buildGroup(
	setIndex uint64,
) (*evset.SetGroup, *evset.Region, error) {
	var bar *monitoring.ProgressBar
	if e.monitor != nil {
		bar = e.monitor.CreateProgressBar(
			fmt.Sprintf("build set %d", setIndex), 1)
	}

	builder := evset.MakeBuilder().
		WithGeometry(e.cfg.Geometry).
		WithLatencyWindows(e.cfg.Windows).
		WithSeed(e.cfg.Seed).
		WithLogger(e.logger)

	var lastErr error

	for attempt := 0; attempt <= e.cfg.BuilderRestarts; attempt++ {
		region, err := evset.AllocateRegion(e.cfg.RegionSize, e.cfg.Geometry)
		if err != nil {
			return nil, nil, err
		}

		group, err := builder.Build(region, setIndex)
		if err == nil {
			if bar != nil {
				bar.Complete()
			}

			return group, region, nil
		}

		_ = region.Close()
		lastErr = err

		if !errors.Is(err, evset.ErrProbeUnstable) {
			break
		}

		e.logger.Printf("restarting builder for set %d: %v", setIndex, err)
	}

	return nil, nil, lastErr
}

// locateTargetSlice times a long chase on each attacker ring from the
// attacker's core and picks the fastest one — the ring homed on the
// attacker's local slice — or the slowest with the farthest-slice knob.
// The local slice gives the cleanest baseline for the sweep.
func (e *Experiment) locateTargetSlice() (int, error) {
	const steps = 10_000_000

	type result struct {
		slice int
		avg   float64
		err   error
	}

	ch := make(chan result, 1)

	go func() {
		undo, err := PinSelf(e.cfg.AttackerCore)
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer undo()

		best := -1
		var bestTime uint64

		for i, ring := range e.attGroup.Rings {
			n := ring.Handle()

			timing.Fence()
			t0 := timing.Cycles()

			n = evset.Step(n, steps)

			elapsed := timing.Cycles() - t0
			atomic.AddUint64(&sink, n.Touch())

			better := best == -1
			if e.cfg.FarthestSlice {
				better = better || elapsed > bestTime
			} else {
				better = better || elapsed < bestTime
			}

			if better {
				best = i
				bestTime = elapsed
			}
		}

		ch <- result{
			slice: best,
			avg:   float64(bestTime) / float64(steps),
		}
	}()

	r := <-ch
	if r.err != nil {
		return -1, r.err
	}

	e.logger.Printf(
		"attacker targets eviction ring %d (%.2f cycles per access)",
		r.slice, r.avg)

	return r.slice, nil
}

// runSweep runs one attacker pass with v victim threads and persists
// its trace files.
func (e *Experiment) runSweep(v int) error {
	slices := int(e.cfg.Geometry.SliceCount)

	var bar *monitoring.ProgressBar
	if e.monitor != nil {
		bar = e.monitor.CreateProgressBar(
			fmt.Sprintf("sweep %d victims", v), uint64(slices))
	}

	attackRing := e.attGroup.Rings[e.TargetSlice]

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.attacker.Run(attackRing)
	}()

	// Let the attacker finish its untimed warmup before any window
	// opens.
	time.Sleep(e.cfg.WarmupSleep)

	windows := make([]BankWindow, 0, slices)
	victimDurations := make([][]uint64, 0, slices)

	if v > 0 {
		for bank := 0; bank < slices; bank++ {
			time.Sleep(e.cfg.BankGap)

			start := timing.Cycles()
			durations := FloodSlice(e.vicGroup.Rings[bank], v,
				e.cfg.VictimIters)
			end := timing.Cycles()

			windows = append(windows, BankWindow{Start: start, End: end})
			victimDurations = append(victimDurations, durations)

			if bar != nil {
				bar.IncrementFinished(1)
			}
		}

		e.logger.Printf("victims done flooding %d banks", slices)
	}

	if err := <-errCh; err != nil {
		return err
	}

	if bar != nil {
		bar.Complete()
	}

	return e.persistSweep(v, windows, victimDurations)
}

func (e *Experiment) persistSweep(
	v int,
	windows []BankWindow,
	victimDurations [][]uint64,
) error {
	times := e.attacker.Times()
	deltas := EpochDeltas(times)

	if err := results.WriteConstantFile(e.cfg.OutputDir, v, deltas); err != nil {
		return err
	}

	var buckets []BankBucket
	truncated := 0

	if v == 0 {
		if err := results.WritePerBankFlat(e.cfg.OutputDir, v,
			deltas); err != nil {
			return err
		}
	} else {
		buckets, truncated = SplitIntoBankWindows(times, windows)

		if truncated > 0 {
			e.logger.Printf(
				"%d bank windows truncated: attacker finished early", truncated)
		}

		perBank := make([][]uint64, len(buckets))
		for i, b := range buckets {
			perBank[i] = b.Deltas
		}

		if err := results.WritePerBankBuckets(e.cfg.OutputDir, v,
			perBank); err != nil {
			return err
		}
	}

	e.record(v, deltas, buckets, victimDurations, truncated)

	return nil
}

func (e *Experiment) record(
	v int,
	deltas []uint64,
	buckets []BankBucket,
	victimDurations [][]uint64,
	truncated int,
) {
	if e.recorder == nil {
		return
	}

	var total float64
	for _, d := range deltas {
		total += float64(d)
	}

	mean := 0.0
	if len(deltas) > 0 {
		mean = total / float64(len(deltas))
	}

	e.recorder.InsertData(tableSweepSummary, results.SweepSummaryEntry{
		RunID:            e.runID,
		VictimThreads:    v,
		Epochs:           uint64(len(deltas)),
		MeanDelta:        mean,
		TruncatedWindows: truncated,
	})

	for _, b := range buckets {
		for _, d := range b.Deltas {
			e.recorder.InsertData(tableBankDeltas, results.BankDeltaEntry{
				RunID:         e.runID,
				VictimThreads: v,
				Bank:          b.Bank,
				Delta:         d,
			})
		}
	}

	for bank, durations := range victimDurations {
		for victim, cycles := range durations {
			e.recorder.InsertData(tableVictimTraversals,
				results.VictimTraversalEntry{
					RunID:         e.runID,
					VictimThreads: v,
					Bank:          bank,
					Victim:        victim,
					Cycles:        cycles,
				})
		}
	}

	e.recorder.Flush()
}
