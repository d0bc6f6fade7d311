// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newRunCmd, newDumpCmd, newAsmCmd, newDevicesCmd, newServeCmd
package cmd

import (
	"github.com/spf13/cobra"
)

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run PROGRAM [PROGRAM...]",
		Short: "Run one or more programs",
		Long: `Run one or more programs against the same inputs.

Programs ending in .yaml or .yml are read as assembly, anything else as
binary. Input files hold a tensor in YAML or JSON:

    dtype: float32
    shape: [2]
    data: [1, 2]`,
		Args: cobra.MinimumNArgs(1),
		RunE: RunHandler,
	}

	runCmd.Flags().StringArrayP("input", "i", nil, "Bind a named input to a tensor file (NAME=FILE)")
	runCmd.Flags().String("device", "", "Device for arrays not placed on the host (e.g. native:1)")
	runCmd.Flags().Int("trace", 0, "Trace level (1 instructions, 2 also outputs)")
	runCmd.Flags().Bool("check-types", false, "Validate outputs against declared output types")
	runCmd.Flags().Bool("check-nans", false, "Abort when an output contains NaN")
	runCmd.Flags().Bool("check-infs", false, "Abort when an output contains Inf")
	runCmd.Flags().Bool("profile", false, "Show per-instruction timings")
	runCmd.Flags().Bool("json", false, "Print outputs as JSON")
	runCmd.Flags().Bool("remote", false, "Run on the xcvm server instead of in process")
	runCmd.Flags().Int("parallel", 0, "Maximum number of programs run concurrently (default XCVM_NUM_PARALLEL)")

	return runCmd
}

// newDumpCmd - Erstellt den dump Command
func newDumpCmd() *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump PROGRAM",
		Short: "Show the instructions of a program",
		Args:  cobra.ExactArgs(1),
		RunE:  DumpHandler,
	}

	dumpCmd.Flags().String("format", "table", "Listing format (table, text or yaml)")

	return dumpCmd
}

// newAsmCmd - Erstellt den asm Command
func newAsmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "asm SOURCE TARGET",
		Short: "Convert a program between assembly and binary form",
		Args:  cobra.ExactArgs(2),
		RunE:  AsmHandler,
	}
}

// newDevicesCmd - Erstellt den devices Command
func newDevicesCmd() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices",
		Args:  cobra.ExactArgs(0),
		RunE:  DevicesHandler,
	}

	devicesCmd.Flags().Bool("remote", false, "List the devices of the xcvm server")

	return devicesCmd
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start xcvm server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
