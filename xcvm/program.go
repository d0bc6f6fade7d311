// program.go - Programm als geordnete Instruktionsfolge
// Enthält: Program, NewProgram, Validate (Signaturen, Sprungziele, Definition vor Verwendung)
package xcvm

import (
	"errors"
	"fmt"
)

// Program is an ordered, immutable sequence of instructions.
type Program struct {
	Instructions []*Instruction
}

// NewProgram builds a program and validates it.
func NewProgram(ins ...*Instruction) (*Program, error) {
	p := &Program{Instructions: ins}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) Len() int { return len(p.Instructions) }

// Validate checks every instruction against its opcode signature, checks
// jump targets and requires every register read to be written by an
// instruction at a lower index. Reads that depend on the path taken through
// forward jumps are only caught at run time.
func (p *Program) Validate() error {
	var errs []error
	written := make(map[int]bool)

	for pc, ins := range p.Instructions {
		if err := p.validate(pc, ins, written); err != nil {
			errs = append(errs, fmt.Errorf("pc=%d id=%d %s: %w", pc, ins.ID, ins.Op, err))
		}
		for _, r := range ins.Outputs {
			if r >= 0 {
				written[r] = true
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Program) validate(pc int, ins *Instruction, written map[int]bool) error {
	def, ok := ops[ins.Op]
	if !ok {
		return ErrUnknownOpcode
	}
	if err := def.checkOperands(ins); err != nil {
		return err
	}

	if ins.Op.IsJump() {
		if t := ins.Inputs[1].Int; t < 0 || t > int64(len(p.Instructions)) {
			return fmt.Errorf("%w: jump target %d outside [0, %d]", ErrInvalidProgram, t, len(p.Instructions))
		}
	}

	for _, o := range ins.Inputs {
		for _, r := range o.Registers() {
			if r < 0 {
				return fmt.Errorf("%w: negative register $%d", ErrInvalidProgram, r)
			}
			if !written[r] {
				return fmt.Errorf("%w: $%d read before any write", ErrInvalidProgram, r)
			}
		}
	}
	return nil
}
