// cmd_program.go - Programmdateien anzeigen und umwandeln
// Hauptfunktionen: DumpHandler, AsmHandler
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// DumpHandler - Zeigt ein Programm als Tabelle, Text oder Assembler
func DumpHandler(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch format {
	case "", "table":
		prog.Disassemble(w)
	case "text":
		fmt.Fprint(w, prog.String())
	case "yaml":
		b, err := prog.Assembly()
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q, expected table, text or yaml", format)
	}
	return nil
}

// AsmHandler - Uebersetzt zwischen Assembler und Binaerform. Die Richtung
// ergibt sich aus der Endung der Zieldatei.
func AsmHandler(cmd *cobra.Command, args []string) error {
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}

	var b []byte
	if isAssembly(args[1]) {
		b, err = prog.Assembly()
	} else {
		b, err = prog.MarshalBinary()
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(args[1], b, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d instructions to %s\n", prog.Len(), args[1])
	return nil
}
