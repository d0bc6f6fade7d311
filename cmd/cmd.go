// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/xcvm/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "xcvm",
		Short:         "Register VM for lowered tensor graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	runCmd := newRunCmd()
	dumpCmd := newDumpCmd()
	asmCmd := newAsmCmd()
	devicesCmd := newDevicesCmd()
	serveCmd := newServeCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()

	for _, cmd := range []*cobra.Command{runCmd, devicesCmd, serveCmd} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["XCVM_HOST"],
				envVars["XCVM_DEVICE"],
				envVars["XCVM_NUM_DEVICES"],
				envVars["XCVM_NUM_PARALLEL"],
				envVars["XCVM_TRACE"],
				envVars["XCVM_CHECK_TYPES"],
				envVars["XCVM_CHECK_NANS"],
				envVars["XCVM_CHECK_INFS"],
				envVars["XCVM_DUMP_MEMORY"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["XCVM_DEBUG"],
				envVars["XCVM_HOST"],
				envVars["XCVM_ORIGINS"],
				envVars["XCVM_DEVICE"],
				envVars["XCVM_NUM_DEVICES"],
				envVars["XCVM_NUM_PARALLEL"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["XCVM_HOST"], envVars["XCVM_NUM_DEVICES"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		runCmd,
		dumpCmd,
		asmCmd,
		devicesCmd,
	)

	return rootCmd
}
