package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuamhtsang/sine/internal/topology"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Args:  cobra.NoArgs,
	Short: "Load and validate a topology without running the emulation",
	RunE:  runValidate,
}

var (
	validateTopologyPath string
	validateMCSTableDir  string
)

func init() {
	validateCmd.Flags().StringVar(&validateTopologyPath, "topology", "network.yaml", "path to network.yaml")
	validateCmd.Flags().StringVar(&validateMCSTableDir, "mcs-dir", "", "directory containing MCS table files")
}

func runValidate(cmd *cobra.Command, args []string) error {
	topo, err := topology.Load(validateTopologyPath, validateMCSTableDir)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("topology is invalid: %w", err)
	}

	fmt.Printf("topology %q is valid: %d node(s), %d shared bridge(s)\n",
		topo.Name, len(topo.Nodes), len(topo.SharedBridges))
	return nil
}
