// cmd_run.go - Run Command Handler
// Hauptfunktionen: RunHandler, runLocal, runRemote
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/xcvm/api"
	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/logutil"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/ml/backend"
	"github.com/ollama/xcvm/ml/backend/cpu"
	"github.com/ollama/xcvm/xcvm"
)

// runFlags - Ausgewertete Flags des run Commands
type runFlags struct {
	Inputs   map[string]string
	Options  xcvm.Options
	Parallel int
	JSON     bool
	Remote   bool
}

func parseRunFlags(cmd *cobra.Command) (runFlags, error) {
	var rf runFlags

	specs, err := cmd.Flags().GetStringArray("input")
	if err != nil {
		return rf, err
	}
	if rf.Inputs, err = parseInputs(specs); err != nil {
		return rf, err
	}

	rf.Options = xcvm.DefaultOptions()
	if cmd.Flags().Changed("device") {
		if rf.Options.Device, err = cmd.Flags().GetString("device"); err != nil {
			return rf, err
		}
	}
	if cmd.Flags().Changed("trace") {
		if rf.Options.TraceLevel, err = cmd.Flags().GetInt("trace"); err != nil {
			return rf, err
		}
	}

	for name, dst := range map[string]*bool{
		"check-types": &rf.Options.CheckTypes,
		"check-nans":  &rf.Options.CheckNaN,
		"check-infs":  &rf.Options.CheckInf,
		"profile":     &rf.Options.Profile,
		"json":        &rf.JSON,
		"remote":      &rf.Remote,
	} {
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return rf, err
		}
		*dst = *dst || v
	}

	if rf.Parallel, err = cmd.Flags().GetInt("parallel"); err != nil {
		return rf, err
	}
	return rf, nil
}

// RunHandler - Fuehrt ein oder mehrere Programme aus
func RunHandler(cmd *cobra.Command, args []string) error {
	rf, err := parseRunFlags(cmd)
	if err != nil {
		return err
	}

	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))

	w := cmd.OutOrStdout()
	tty := !rf.JSON && w == io.Writer(os.Stdout) && term.IsTerminal(int(os.Stdout.Fd()))
	width := 0
	if tty {
		width, _, _ = term.GetSize(int(os.Stdout.Fd()))
	}

	if rf.Remote {
		if err := checkServerHeartbeat(cmd, args); err != nil {
			return err
		}
		return runRemote(cmd, args, rf, tty, width)
	}
	return runLocal(cmd, args, rf, tty, width)
}

func runLocal(cmd *cobra.Command, paths []string, rf runFlags, tty bool, width int) error {
	b, err := backend.FromEnvironment()
	if err != nil {
		return err
	}
	defer b.Close()

	dev, err := localDevice(b, rf.Options.Device)
	if err != nil {
		return err
	}

	inputs := make(map[string]xcvm.Value, len(rf.Inputs))
	for _, name := range slices.Sorted(maps.Keys(rf.Inputs)) {
		v, err := xcvm.ReadTensorFile(rf.Inputs[name], dev)
		if err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		inputs[name] = v
	}

	jobs := make([]xcvm.Job, len(paths))
	for i, path := range paths {
		prog, err := loadProgram(path)
		if err != nil {
			return err
		}
		jobs[i] = xcvm.Job{Name: path, Program: prog, Inputs: inputs, Options: rf.Options}
	}

	results, err := xcvm.RunBatch(cmd.Context(), b, jobs, rf.Parallel)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
			continue
		}

		if len(results) > 1 && !rf.JSON {
			fmt.Fprintf(w, "==> %s (%s) <==\n", r.Name, r.Duration)
		}

		resp, err := jsonResponse(r)
		switch {
		case rf.JSON && err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		case rf.JSON:
			if err := renderJSON(w, resp); err != nil {
				return err
			}
			continue
		}

		renderOutputs(w, localOutputs(r, tty), tty, width)
		if rf.Options.Profile {
			renderProfile(w, resp.Profile)
		}
	}

	return errors.Join(errs...)
}

func runRemote(cmd *cobra.Command, paths []string, rf runFlags, tty bool, width int) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	inputs := make(map[string]api.Tensor, len(rf.Inputs))
	for name, path := range rf.Inputs {
		t, err := xcvm.LoadTensor(path)
		if err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		inputs[name] = api.Tensor(t)
	}

	// nur fuer die Darstellung
	host, err := cpu.New(ml.BackendParams{})
	if err != nil {
		return err
	}
	defer host.Close()

	w := cmd.OutOrStdout()
	var errs []error
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		req := api.RunRequest{
			Inputs: inputs,
			Options: &api.RunOptions{
				Device:     rf.Options.Device,
				TraceLevel: rf.Options.TraceLevel,
				CheckTypes: rf.Options.CheckTypes,
				CheckNaN:   rf.Options.CheckNaN,
				CheckInf:   rf.Options.CheckInf,
				Profile:    rf.Options.Profile,
			},
		}
		if isAssembly(path) {
			req.Assembly = string(b)
		} else {
			req.Program = b
		}

		resp, err := client.Run(cmd.Context(), &req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		if len(paths) > 1 && !rf.JSON {
			fmt.Fprintf(w, "==> %s (%s) <==\n", path, resp.TotalDuration)
		}
		if rf.JSON {
			if err := renderJSON(w, *resp); err != nil {
				return err
			}
			continue
		}

		outs, err := remoteOutputs(resp, host.HostDevice(), tty)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		renderOutputs(w, outs, tty, width)
		if rf.Options.Profile {
			renderProfile(w, resp.Profile)
		}
	}

	return errors.Join(errs...)
}
