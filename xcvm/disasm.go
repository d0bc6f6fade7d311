// disasm.go - Disassembler fuer Programmlisten
// Enthält: Program.Disassemble (Tabelle), Program.String (eine Zeile pro Instruktion)
package xcvm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Disassemble writes one table row per instruction.
func (p *Program) Disassemble(w io.Writer) {
	var data [][]string
	for pc, ins := range p.Instructions {
		outs := make([]string, len(ins.Outputs))
		for i, r := range ins.Outputs {
			outs[i] = outputString(r)
		}
		inputs := make([]string, len(ins.Inputs))
		for i, o := range ins.Inputs {
			inputs[i] = o.String()
		}

		debug := ins.DebugInfo
		if len(ins.OutputTypes) > 0 {
			types := make([]string, len(ins.OutputTypes))
			for i, t := range ins.OutputTypes {
				types[i] = t.String()
			}
			debug = strings.TrimSpace(debug + " :: " + strings.Join(types, ", "))
		}

		data = append(data, []string{
			strconv.Itoa(pc),
			strconv.FormatInt(ins.ID, 10),
			ins.Op.String(),
			strings.Join(outs, ", "),
			strings.Join(inputs, ", "),
			debug,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PC", "ID", "OP", "OUTPUTS", "INPUTS", "DEBUG"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func (p *Program) String() string {
	var sb strings.Builder
	for pc, ins := range p.Instructions {
		fmt.Fprintf(&sb, "%4d: %s\n", pc, ins)
	}
	return sb.String()
}
