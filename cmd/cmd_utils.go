// cmd_utils.go - Gemeinsame Hilfsfunktionen
// Hauptfunktionen: loadProgram, parseInputs, checkServerHeartbeat, localDevice
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/xcvm/api"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/xcvm"
)

// isAssembly - YAML-Dateien enthalten Assembler, alles andere ist binaer
func isAssembly(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// loadProgram - Liest ein Programm in Binaer- oder Assemblerform
func loadProgram(path string) (*xcvm.Program, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var prog *xcvm.Program
	if isAssembly(path) {
		prog, err = xcvm.ParseAssembly(b)
	} else {
		prog, err = xcvm.UnmarshalProgram(b)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// parseInputs - Zerlegt --input name=datei Angaben
func parseInputs(specs []string) (map[string]string, error) {
	inputs := make(map[string]string, len(specs))
	for _, arg := range specs {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid input %q, expected NAME=FILE", arg)
		}
		if _, ok := inputs[name]; ok {
			return nil, fmt.Errorf("input %q given more than once", name)
		}
		inputs[name] = path
	}
	return inputs, nil
}

// localDevice - Geraet fuer Eingaben eines lokalen Laufs
func localDevice(b ml.Backend, name string) (ml.Device, error) {
	if name == "" {
		return b.DefaultDevice(), nil
	}
	return b.Device(name)
}

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return errors.New("could not connect to xcvm server, run 'xcvm serve' first")
		}
		return err
	}
	return nil
}
