package main

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/bankprobe/evset"
	"github.com/sarchlab/bankprobe/harness"
	"github.com/sarchlab/bankprobe/monitoring"
	"github.com/sarchlab/bankprobe/results"
)

var runFlags struct {
	setAttacker   uint64
	setVictim     uint64
	core          int
	maxVictims    int
	seed          int64
	outputDir     string
	farthest      bool
	record        bool
	recordPath    string
	monitor       bool
	monitorPort   int
	openDashboard bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build eviction sets and run the contention sweep.",
	Long: `Run builds one group of eviction sets for the attacker's cache ` +
		`set and one for the victims', locates the attacker's local slice, ` +
		`and then sweeps the experiment over every victim-thread count. Two ` +
		`trace files are written per count.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg := harness.DefaultConfig()

		cfg.TargetSetAttacker = runFlags.setAttacker
		cfg.TargetSetVictim = runFlags.setVictim
		cfg.AttackerCore = runFlags.core
		cfg.MaxVictimThreads = runFlags.maxVictims
		cfg.Seed = runFlags.seed
		cfg.OutputDir = runFlags.outputDir
		cfg.FarthestSlice = runFlags.farthest

		e := harness.NewExperiment(cfg)
		defer e.Close()

		if runFlags.record {
			e.WithRecorder(results.NewRecorder(runFlags.recordPath))
		}

		if runFlags.monitor {
			m := monitoring.NewMonitor().
				WithPortNumber(runFlags.monitorPort)

			if err := m.StartServer(runFlags.openDashboard); err != nil {
				log.Printf("monitoring unavailable: %v", err)
			} else {
				e.WithMonitor(m)
			}
		}

		if err := e.Run(); err != nil {
			log.Printf("experiment failed: %v", err)

			var oracleErr *evset.OracleError
			switch {
			case errors.As(err, &oracleErr):
				atexit.Exit(2)
			case errors.Is(err, evset.ErrInsufficientCandidates):
				atexit.Exit(3)
			case errors.Is(err, evset.ErrProbeUnstable):
				atexit.Exit(4)
			case errors.Is(err, harness.ErrAffinityRefused):
				atexit.Exit(5)
			default:
				atexit.Exit(1)
			}
		}
	},
}

func init() {
	f := runCmd.Flags()

	f.Uint64Var(&runFlags.setAttacker, "set-attacker", 27,
		"cache set the attacker's eviction sets target")
	f.Uint64Var(&runFlags.setVictim, "set-victim", 1898,
		"cache set the victims' eviction sets target")
	f.IntVar(&runFlags.core, "core", 0,
		"logical CPU the attacker pins to")
	f.IntVar(&runFlags.maxVictims, "max-victims", 10,
		"sweep victim-thread counts from 0 up to this value")
	f.Int64Var(&runFlags.seed, "seed", 0,
		"seed for the randomized candidate chains")
	f.StringVar(&runFlags.outputDir, "out", "results",
		"directory receiving the trace files")
	f.BoolVar(&runFlags.farthest, "farthest-slice", false,
		"chase the attacker's farthest slice instead of its local one")
	f.BoolVar(&runFlags.record, "record", false,
		"also record condensed results into a SQLite database")
	f.StringVar(&runFlags.recordPath, "record-path", "",
		"database name for --record (default: bankprobe_<id>)")
	f.BoolVar(&runFlags.monitor, "monitor", false,
		"serve live progress over HTTP")
	f.IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"port for --monitor (default: random)")
	f.BoolVar(&runFlags.openDashboard, "open-dashboard", false,
		"open the monitor in a browser")

	rootCmd.AddCommand(runCmd)
}

// applyEnvOverrides folds BANKPROBE_* environment values into the flag
// defaults before parsing, so .env files can steer unattended runs.
// Explicit flags still win.
func applyEnvOverrides() {
	runFlags.setAttacker = uint64(envInt("SET_ATTACKER", 27))
	runFlags.setVictim = uint64(envInt("SET_VICTIM", 1898))
	runFlags.core = envInt("ATTACKER_CORE", 0)
	runFlags.maxVictims = envInt("MAX_VICTIMS", 10)
	runFlags.outputDir = envString("OUTPUT_DIR", "results")
}
