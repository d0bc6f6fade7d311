// cmd_display.go - Ausgabe von Ergebnissen, Profilen und Geraeten
// Hauptfunktionen: renderOutputs, renderProfile, renderDevices, newTable
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/ollama/xcvm/api"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/xcvm"
)

// namedOutput - Eine Programmausgabe in darstellbarer Form
type namedOutput struct {
	Name  string
	Type  string
	Value string
}

// newTable - Tabelle im Stil von "xcvm devices"
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func dumpArray(a ml.Array, compact bool) string {
	if compact {
		return ml.Dump(a, ml.DumpWithThreshold(16), ml.DumpWithEdgeItems(2))
	}
	return ml.Dump(a)
}

// localOutputs - Registerwerte eines lokalen Laufs
func localOutputs(r xcvm.JobResult, compact bool) []namedOutput {
	var outs []namedOutput
	for pair := r.Outputs.Oldest(); pair != nil; pair = pair.Next() {
		o := namedOutput{Name: pair.Key, Type: xcvm.Describe(pair.Value)}
		switch v := pair.Value.(type) {
		case xcvm.ArrayValue:
			o.Value = dumpArray(v.Array, compact)
		case xcvm.OptionalArrayValue:
			if v.Present() {
				o.Value = dumpArray(v.Array, compact)
			}
		}
		outs = append(outs, o)
	}
	return outs
}

// remoteOutputs - Tensoren einer Server-Antwort, dargestellt ueber das Host-Geraet
func remoteOutputs(resp *api.RunResponse, host ml.Device, compact bool) ([]namedOutput, error) {
	var outs []namedOutput
	for _, o := range resp.Outputs {
		if o.Tensor == nil {
			outs = append(outs, namedOutput{Name: o.Name, Type: "optional(<absent>)"})
			continue
		}

		a, err := xcvm.Tensor(*o.Tensor).Array(host)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
		outs = append(outs, namedOutput{Name: o.Name, Type: xcvm.Describe(xcvm.ArrayValue{Array: a}), Value: dumpArray(a, compact)})
	}
	return outs, nil
}

// truncateLines - Kuerzt jede Zeile auf width Spalten
func truncateLines(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = runewidth.Truncate(l, width, "...")
	}
	return strings.Join(lines, "\n")
}

// renderOutputs - Tabelle im Terminal, sonst Klartext
func renderOutputs(w io.Writer, outs []namedOutput, tty bool, width int) {
	if !tty {
		for _, o := range outs {
			fmt.Fprintf(w, "%s: %s\n", o.Name, o.Type)
			if o.Value != "" {
				fmt.Fprintln(w, o.Value)
			}
		}
		return
	}

	table := newTable(w, "NAME", "TYPE", "VALUE")
	for _, o := range outs {
		valueWidth := width - runewidth.StringWidth(o.Name) - runewidth.StringWidth(o.Type) - 8
		table.Append([]string{o.Name, o.Type, truncateLines(o.Value, valueWidth)})
	}
	table.Render()
}

// renderJSON - Ausgaben als api.RunResponse
func renderJSON(w io.Writer, resp api.RunResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// jsonResponse - Wandelt ein lokales Ergebnis in die Server-Antwortform
func jsonResponse(r xcvm.JobResult) (api.RunResponse, error) {
	resp := api.RunResponse{ID: r.Name, TotalDuration: r.Duration}
	for _, e := range r.Profile {
		resp.Profile = append(resp.Profile, api.ProfileEntry{ID: e.ID, Op: e.Op.String(), Calls: e.Calls, Duration: api.Duration{Duration: e.Duration}})
	}
	for pair := r.Outputs.Oldest(); pair != nil; pair = pair.Next() {
		t, err := xcvm.OutputTensor(pair.Value)
		if err != nil {
			return resp, fmt.Errorf("output %s: %w", pair.Key, err)
		}
		resp.Outputs = append(resp.Outputs, api.Output{Name: pair.Key, Tensor: (*api.Tensor)(t)})
	}
	return resp, nil
}

// renderProfile - Laufzeiten pro Instruktion, langsamste zuerst
func renderProfile(w io.Writer, entries []api.ProfileEntry) {
	var total time.Duration
	var data [][]string
	for _, e := range entries {
		total += e.Duration.Duration
		data = append(data, []string{fmt.Sprint(e.ID), e.Op, fmt.Sprint(e.Calls), e.Duration.String()})
	}

	table := newTable(w, "ID", "OP", "CALLS", "DURATION")
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintf(w, "total: %s\n", total)
}

// renderDevices - Geraeteliste
func renderDevices(w io.Writer, devices []ml.DeviceInfo) {
	var data [][]string
	for _, d := range devices {
		var flags []string
		if d.Host {
			flags = append(flags, "host")
		}
		if d.Default {
			flags = append(flags, "default")
		}
		data = append(data, []string{d.Name, d.Backend, fmt.Sprint(d.Index), strings.Join(flags, ",")})
	}

	table := newTable(w, "NAME", "BACKEND", "INDEX", "FLAGS")
	table.AppendBulk(data)
	table.Render()
}
