package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/bankprobe/cachegeom"
	"github.com/sarchlab/bankprobe/harness"
	"github.com/sarchlab/bankprobe/timing"
)

var calibrateCore int

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure this machine's DRAM and LLC chase latencies.",
	Long: `Calibrate measures the average per-step latency of a random ` +
		`pointer chase that misses to DRAM and of one that stays in the ` +
		`LLC, then prints latency windows to use in place of the built-in ` +
		`reference values.`,
	Run: func(_ *cobra.Command, _ []string) {
		undo, err := harness.PinSelf(calibrateCore)
		if err != nil {
			log.Printf("calibration needs a pinned thread: %v", err)
			atexit.Exit(5)
		}
		defer undo()

		c, err := timing.Calibrate(cachegeom.BroadwellEP)
		if err != nil {
			log.Printf("calibration failed: %v", err)
			atexit.Exit(1)
		}

		if c.CPUModel != "" {
			fmt.Printf("CPU: %s\n", c.CPUModel)
		}

		fmt.Printf("DRAM chase: %.1f cycles per step\n", c.DRAMPerStep)
		fmt.Printf("LLC chase:  %.1f cycles per step\n", c.LLCPerStep)

		w := c.SuggestedWindows()
		fmt.Printf("Suggested windows:\n")
		fmt.Printf("  DRAM      [%.1f, %.1f]\n", w.DRAMLow, w.DRAMHigh)
		fmt.Printf("  LLC       [%.1f, %.1f]\n", w.LLCLow, w.LLCHigh)
		fmt.Printf("  eviction  [%.1f, %.1f]\n", w.EvictionLow, w.EvictionHigh)
		fmt.Printf("  threshold %d cycles\n", w.LLCThreshold)
		fmt.Printf("  plausible [%d, %d]\n", w.PlausibleLow, w.PlausibleHigh)
	},
}

func init() {
	calibrateCmd.Flags().IntVar(&calibrateCore, "core", 0,
		"logical CPU to calibrate on")

	rootCmd.AddCommand(calibrateCmd)
}
