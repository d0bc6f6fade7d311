// instruction.go - Operanden und Instruktionen
//
// Dieses Modul enthaelt:
// - OperandKind: Tags der Operanden wie im Binaerformat
// - Operand: Registerverweis oder eingebettetes Literal
// - Instruction: Opcode, Operanden, Ausgaberegister und Diagnosedaten
package xcvm

import (
	"fmt"
	"strconv"
	"strings"
)

// OperandKind is the tag of an instruction operand. Register kinds refer to
// registers; all other kinds are immediates embedded in the instruction.
type OperandKind int32

const (
	OperandUnset         OperandKind = 0
	OperandArray         OperandKind = 1
	OperandOptionalArray OperandKind = 2
	OperandArrayList     OperandKind = 3
	OperandSequence      OperandKind = 4
	OperandOpaque        OperandKind = 5
	OperandInt           OperandKind = 6
	OperandFloat         OperandKind = 7
	OperandInts          OperandKind = 8
	OperandString        OperandKind = 9
	OperandLongs         OperandKind = 10
	OperandDoubles       OperandKind = 11

	// operandAny matches any register operand; signatures only
	operandAny OperandKind = -1
)

var operandKindNames = map[OperandKind]string{
	OperandArray:         "ARRAY",
	OperandOptionalArray: "OPTIONAL_ARRAY",
	OperandArrayList:     "ARRAY_LIST",
	OperandSequence:      "SEQUENCE",
	OperandOpaque:        "OPAQUE",
	OperandInt:           "INT",
	OperandFloat:         "FLOAT",
	OperandInts:          "INTS",
	OperandString:        "STRING",
	OperandLongs:         "LONGS",
	OperandDoubles:       "DOUBLES",
	operandAny:           "ANY",
}

func (k OperandKind) String() string {
	if s, ok := operandKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OperandKind(%d)", int32(k))
}

// IsRegister reports whether operands of this kind refer to registers.
func (k OperandKind) IsRegister() bool {
	switch k {
	case OperandArray, OperandOptionalArray, OperandArrayList, OperandSequence, OperandOpaque:
		return true
	}
	return false
}

// accepts reports whether an operand tagged k may fill a signature slot of kind want.
func (want OperandKind) accepts(k OperandKind) bool {
	switch {
	case want == k:
		return true
	case want == operandAny:
		return k.IsRegister()
	case want == OperandOptionalArray:
		return k == OperandArray
	case want == OperandInts, want == OperandLongs:
		return k == OperandInts || k == OperandLongs
	}
	return false
}

// registerKind is the register variant an operand of kind k reads.
func (k OperandKind) registerKind() Kind {
	switch k {
	case OperandArray:
		return KindArray
	case OperandOptionalArray:
		return KindOptionalArray
	case OperandArrayList:
		return KindArrayList
	case OperandSequence:
		return KindSequence
	case OperandOpaque:
		return KindOpaque
	}
	return kindAny
}

// Operand is one instruction input. Register kinds use Reg (Regs for
// ARRAY_LIST); an OPTIONAL_ARRAY operand with a negative Reg is absent.
type Operand struct {
	Kind   OperandKind
	Reg    int
	Regs   []int
	Int    int64
	Float  float64
	Ints   []int64
	Floats []float64
	Str    string
}

func Reg(r int) Operand        { return Operand{Kind: OperandArray, Reg: r} }
func OptReg(r int) Operand     { return Operand{Kind: OperandOptionalArray, Reg: r} }
func Absent() Operand          { return Operand{Kind: OperandOptionalArray, Reg: -1} }
func Regs(rs ...int) Operand   { return Operand{Kind: OperandArrayList, Regs: rs} }
func SeqReg(r int) Operand     { return Operand{Kind: OperandSequence, Reg: r} }
func OpaqueReg(r int) Operand  { return Operand{Kind: OperandOpaque, Reg: r} }
func Int(v int64) Operand      { return Operand{Kind: OperandInt, Int: v} }
func Float(v float64) Operand  { return Operand{Kind: OperandFloat, Float: v} }
func Ints(v ...int64) Operand  { return Operand{Kind: OperandInts, Ints: v} }
func Longs(v ...int64) Operand { return Operand{Kind: OperandLongs, Ints: v} }
func Str(s string) Operand     { return Operand{Kind: OperandString, Str: s} }

func Doubles(v ...float64) Operand { return Operand{Kind: OperandDoubles, Floats: v} }

// Registers lists the registers the operand reads.
func (o Operand) Registers() []int {
	switch o.Kind {
	case OperandArrayList:
		return o.Regs
	case OperandOptionalArray:
		if o.Reg < 0 {
			return nil
		}
	}
	if o.Kind.IsRegister() {
		return []int{o.Reg}
	}
	return nil
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandArray:
		return "$" + strconv.Itoa(o.Reg)
	case OperandOptionalArray:
		if o.Reg < 0 {
			return "-"
		}
		return "$" + strconv.Itoa(o.Reg) + "?"
	case OperandArrayList:
		regs := make([]string, len(o.Regs))
		for i, r := range o.Regs {
			regs[i] = "$" + strconv.Itoa(r)
		}
		return "(" + strings.Join(regs, ",") + ")"
	case OperandSequence:
		return "seq$" + strconv.Itoa(o.Reg)
	case OperandOpaque:
		return "opq$" + strconv.Itoa(o.Reg)
	case OperandInt:
		return strconv.FormatInt(o.Int, 10)
	case OperandFloat:
		return strconv.FormatFloat(o.Float, 'g', -1, 64)
	case OperandInts, OperandLongs:
		return fmt.Sprint(o.Ints)
	case OperandDoubles:
		return fmt.Sprint(o.Floats)
	case OperandString:
		return strconv.Quote(o.Str)
	}
	return o.Kind.String()
}

// Instruction is one step of a program. ID identifies the instruction
// independently of its position.
type Instruction struct {
	Op          Opcode
	Inputs      []Operand
	Outputs     []int
	DebugInfo   string
	ID          int64
	OutputTypes []TypeDescriptor
}

func (ins *Instruction) String() string {
	var sb strings.Builder
	if len(ins.Outputs) > 0 {
		for i, r := range ins.Outputs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(outputString(r))
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(ins.Op.String())
	for i, o := range ins.Inputs {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.String())
	}
	return sb.String()
}

// outputString renders an output register; negative registers discard the output.
func outputString(r int) string {
	if r < 0 {
		return "_"
	}
	return "$" + strconv.Itoa(r)
}
