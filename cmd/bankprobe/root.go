package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use: "bankprobe",
	Short: "Bankprobe constructs LLC eviction sets and measures " +
		"cache-bank contention with them.",
	Long: `Bankprobe empirically constructs one eviction set per LLC slice ` +
		`for chosen cache sets, then runs a contention experiment: a pinned ` +
		`attacker thread chases one eviction set while victim threads flood ` +
		`another cache set bank by bank. The host must provide huge pages ` +
		`and permit CPU affinity.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// envString returns the BANKPROBE_-prefixed environment override or the
// fallback. Flag defaults go through this so .env files can steer runs
// without editing command lines.
func envString(key, fallback string) string {
	if v, ok := os.LookupEnv("BANKPROBE_" + key); ok {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv("BANKPROBE_" + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return fallback
}
