// Command sine runs the wireless-network-emulation channel-and-shaping
// pipeline: it loads a topology, discovers the containers that back it,
// computes channel conditions, applies tc/netem shaping, and serves the
// runtime control and metrics surfaces. A root command in this file
// carries persistent flags; each subcommand lives in its own file.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "sine",
	Short: "Wireless network emulation: channel modeling and traffic shaping",
	Long: `sine computes per-link RF channel conditions (path loss, interference,
SINR, MCS selection, BER/PER) for a declared network topology and
continuously applies them as kernel tc/netem/HTB shaping rules on the
containers that implement it.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sine.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(recomputeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
