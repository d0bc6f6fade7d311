// asm.go - Textuelle Assembler-Darstellung (YAML)
//
// Dieses Modul enthaelt:
// - ParseAssembly: YAML-Liste von Instruktionen -> validiertes Program
// - Program.Assembly: Program -> YAML
//
// Jeder Operand ist eine Abbildung mit genau einem Schluessel:
//
//	reg, optional, regs, seq, opaque   Registerverweise (optional: -1 = fehlt)
//	int, float, ints, longs, doubles, str   eingebettete Literale
package xcvm

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type asmInstruction struct {
	Op      string           `yaml:"op"`
	Inputs  []asmOperand     `yaml:"inputs,omitempty"`
	Outputs []int            `yaml:"outputs,omitempty,flow"`
	Debug   string           `yaml:"debug,omitempty"`
	ID      int64            `yaml:"id,omitempty"`
	Types   []TypeDescriptor `yaml:"types,omitempty"`
}

type asmOperand Operand

var operandKeys = map[string]OperandKind{
	"reg":      OperandArray,
	"optional": OperandOptionalArray,
	"regs":     OperandArrayList,
	"seq":      OperandSequence,
	"opaque":   OperandOpaque,
	"int":      OperandInt,
	"float":    OperandFloat,
	"ints":     OperandInts,
	"str":      OperandString,
	"longs":    OperandLongs,
	"doubles":  OperandDoubles,
}

func operandKey(k OperandKind) string {
	for key, kind := range operandKeys {
		if kind == k {
			return key
		}
	}
	return ""
}

func (o asmOperand) MarshalYAML() (any, error) {
	key := operandKey(o.Kind)
	if key == "" {
		return nil, fmt.Errorf("operand kind %s has no assembly form", o.Kind)
	}

	var v any
	switch o.Kind {
	case OperandArray, OperandOptionalArray, OperandSequence, OperandOpaque:
		v = o.Reg
	case OperandArrayList:
		v = flowList(o.Regs)
	case OperandInt:
		v = o.Int
	case OperandFloat:
		v = o.Float
	case OperandInts, OperandLongs:
		v = flowList(o.Ints)
	case OperandDoubles:
		v = flowList(o.Floats)
	case OperandString:
		v = o.Str
	}
	return map[string]any{key: v}, nil
}

// flowList renders a list inline, including an empty one.
func flowList[T any](vs []T) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range vs {
		var item yaml.Node
		if err := item.Encode(v); err == nil {
			n.Content = append(n.Content, &item)
		}
	}
	return n
}

func (o *asmOperand) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: operand must be a mapping with one key", n.Line)
	}
	key, val := n.Content[0].Value, n.Content[1]
	kind, ok := operandKeys[key]
	if !ok {
		return fmt.Errorf("line %d: unknown operand key %q", n.Line, key)
	}

	op := Operand{Kind: kind}
	var err error
	switch kind {
	case OperandArray, OperandOptionalArray, OperandSequence, OperandOpaque:
		err = val.Decode(&op.Reg)
	case OperandArrayList:
		err = val.Decode(&op.Regs)
	case OperandInt:
		err = val.Decode(&op.Int)
	case OperandFloat:
		err = val.Decode(&op.Float)
	case OperandInts, OperandLongs:
		err = val.Decode(&op.Ints)
	case OperandDoubles:
		err = val.Decode(&op.Floats)
	case OperandString:
		err = val.Decode(&op.Str)
	}
	if err != nil {
		return fmt.Errorf("line %d: %s: %w", n.Line, key, err)
	}
	*o = asmOperand(op)
	return nil
}

// ParseAssembly reads a YAML instruction list and validates the program.
func ParseAssembly(b []byte) (*Program, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return &Program{}, nil
	}

	list := root.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: assembly must be a list of instructions", list.Line)
	}

	var errs []error
	p := &Program{}
	for _, n := range list.Content {
		var ai asmInstruction
		if err := n.Decode(&ai); err != nil {
			errs = append(errs, err)
			continue
		}

		op, err := ParseOpcode(ai.Op)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n.Line, err))
			continue
		}

		ins := &Instruction{Op: op, Outputs: ai.Outputs, DebugInfo: ai.Debug, ID: ai.ID, OutputTypes: ai.Types}
		for _, o := range ai.Inputs {
			ins.Inputs = append(ins.Inputs, Operand(o))
		}
		p.Instructions = append(p.Instructions, ins)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Assembly renders the program as YAML accepted by ParseAssembly.
func (p *Program) Assembly() ([]byte, error) {
	list := make([]asmInstruction, len(p.Instructions))
	for i, ins := range p.Instructions {
		ai := asmInstruction{Op: ins.Op.String(), Outputs: ins.Outputs, Debug: ins.DebugInfo, ID: ins.ID, Types: ins.OutputTypes}
		for _, o := range ins.Inputs {
			ai.Inputs = append(ai.Inputs, asmOperand(o))
		}
		list[i] = ai
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(list); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
