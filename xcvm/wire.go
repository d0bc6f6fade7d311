// wire.go - Binaerformat der Programme (Protocol Buffers)
//
// MODUL: wire
// ZWECK: Kodiert und dekodiert Programme im Wire-Format aus xcvm.proto
// INPUT: Program bzw. Bytes vom externen Compiler
// OUTPUT: Bytes bzw. validiertes Program
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: google.golang.org/protobuf/encoding/protowire
// HINWEISE: Unbekannte Felder werden uebersprungen; gepackte und ungepackte
//           Wiederholungsfelder werden beide gelesen
package xcvm

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ollama/xcvm/ml"
)

// Feldnummern aus xcvm.proto
const (
	fieldProgramInstructions protowire.Number = 1

	fieldInsOp          protowire.Number = 1
	fieldInsInputs      protowire.Number = 2
	fieldInsOutputs     protowire.Number = 3
	fieldInsDebugInfo   protowire.Number = 4
	fieldInsID          protowire.Number = 5
	fieldInsOutputTypes protowire.Number = 6

	fieldValueType      protowire.Number = 1
	fieldValueArray     protowire.Number = 2
	fieldValueArrayList protowire.Number = 3
	fieldValueInt       protowire.Number = 4
	fieldValueFloat     protowire.Number = 5
	fieldValueInts      protowire.Number = 6
	fieldValueString    protowire.Number = 7
	fieldValueLongs     protowire.Number = 8
	fieldValueDoubles   protowire.Number = 9

	fieldTypeDType protowire.Number = 1
	fieldTypeShape protowire.Number = 2
)

// =============================================================================
// Kodierung
// =============================================================================

// MarshalBinary encodes the program as an XCProgramProto. INTS operands are
// int32 on the wire; larger values must be given as LONGS.
func (p *Program) MarshalBinary() ([]byte, error) {
	var b []byte
	for pc, ins := range p.Instructions {
		for i, o := range ins.Inputs {
			if o.Kind != OperandInts {
				continue
			}
			for _, v := range o.Ints {
				if v < math.MinInt32 || v > math.MaxInt32 {
					return nil, fmt.Errorf("%w: pc %d (%s): input %d: %d does not fit in int32, use LONGS", ErrInvalidProgram, pc, ins.Op, i, v)
				}
			}
		}
		b = protowire.AppendTag(b, fieldProgramInstructions, protowire.BytesType)
		b = protowire.AppendBytes(b, appendInstruction(nil, ins))
	}
	return b, nil
}

func appendInstruction(b []byte, ins *Instruction) []byte {
	b = appendVarintField(b, fieldInsOp, uint64(ins.Op))
	for _, o := range ins.Inputs {
		b = protowire.AppendTag(b, fieldInsInputs, protowire.BytesType)
		b = protowire.AppendBytes(b, appendOperand(nil, o))
	}
	b = appendPackedInts(b, fieldInsOutputs, ins.Outputs)
	if ins.DebugInfo != "" {
		b = protowire.AppendTag(b, fieldInsDebugInfo, protowire.BytesType)
		b = protowire.AppendString(b, ins.DebugInfo)
	}
	if ins.ID != 0 {
		b = appendVarintField(b, fieldInsID, uint64(ins.ID))
	}
	for _, t := range ins.OutputTypes {
		b = protowire.AppendTag(b, fieldInsOutputTypes, protowire.BytesType)
		b = protowire.AppendBytes(b, appendType(nil, t))
	}
	return b
}

func appendOperand(b []byte, o Operand) []byte {
	b = appendVarintField(b, fieldValueType, uint64(o.Kind))
	switch o.Kind {
	case OperandArray, OperandOptionalArray, OperandSequence, OperandOpaque:
		b = appendVarintField(b, fieldValueArray, uint64(int64(o.Reg)))
	case OperandArrayList:
		b = appendPackedInts(b, fieldValueArrayList, o.Regs)
	case OperandInt:
		b = appendVarintField(b, fieldValueInt, uint64(o.Int))
	case OperandFloat:
		b = protowire.AppendTag(b, fieldValueFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(o.Float))
	case OperandInts:
		b = appendPackedInt64s(b, fieldValueInts, o.Ints)
	case OperandLongs:
		b = appendPackedInt64s(b, fieldValueLongs, o.Ints)
	case OperandString:
		b = protowire.AppendTag(b, fieldValueString, protowire.BytesType)
		b = protowire.AppendString(b, o.Str)
	case OperandDoubles:
		var packed []byte
		for _, f := range o.Floats {
			packed = protowire.AppendFixed64(packed, math.Float64bits(f))
		}
		b = protowire.AppendTag(b, fieldValueDoubles, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	return b
}

func appendType(b []byte, t TypeDescriptor) []byte {
	b = appendVarintField(b, fieldTypeDType, uint64(int64(t.DType)))
	return appendPackedInt64s(b, fieldTypeShape, t.Shape)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendPackedInts(b []byte, num protowire.Number, vs []int) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedInt64s(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// =============================================================================
// Dekodierung
// =============================================================================

// UnmarshalProgram decodes and validates a binary program.
func UnmarshalProgram(b []byte) (*Program, error) {
	var p Program
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// UnmarshalBinary decodes an XCProgramProto without validating it.
func (p *Program) UnmarshalBinary(b []byte) error {
	p.Instructions = nil
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldProgramInstructions {
			return 0, nil
		}
		msg, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		ins, err := decodeInstruction(msg)
		if err != nil {
			return 0, fmt.Errorf("instruction %d: %w", len(p.Instructions), err)
		}
		p.Instructions = append(p.Instructions, ins)
		return n, nil
	})
}

func decodeInstruction(b []byte) (*Instruction, error) {
	ins := &Instruction{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldInsOp:
			return consumeVarints(typ, b, func(v uint64) { ins.Op = Opcode(int32(v)) })
		case fieldInsInputs:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			o, err := decodeOperand(msg)
			if err != nil {
				return 0, fmt.Errorf("input %d: %w", len(ins.Inputs), err)
			}
			ins.Inputs = append(ins.Inputs, o)
			return n, nil
		case fieldInsOutputs:
			return consumeVarints(typ, b, func(v uint64) { ins.Outputs = append(ins.Outputs, int(int32(v))) })
		case fieldInsDebugInfo:
			s, n, err := consumeBytes(typ, b)
			ins.DebugInfo = string(s)
			return n, err
		case fieldInsID:
			return consumeVarints(typ, b, func(v uint64) { ins.ID = int64(v) })
		case fieldInsOutputTypes:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			t, err := decodeType(msg)
			if err != nil {
				return 0, err
			}
			ins.OutputTypes = append(ins.OutputTypes, t)
			return n, nil
		}
		return 0, nil
	})
	return ins, err
}

func decodeOperand(b []byte) (Operand, error) {
	var o Operand
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldValueType:
			return consumeVarints(typ, b, func(v uint64) { o.Kind = OperandKind(int32(v)) })
		case fieldValueArray:
			return consumeVarints(typ, b, func(v uint64) { o.Reg = int(int32(v)) })
		case fieldValueArrayList:
			return consumeVarints(typ, b, func(v uint64) { o.Regs = append(o.Regs, int(int32(v))) })
		case fieldValueInt:
			return consumeVarints(typ, b, func(v uint64) { o.Int = int64(v) })
		case fieldValueFloat:
			return consumeFixed64s(typ, b, func(v uint64) { o.Float = math.Float64frombits(v) })
		case fieldValueInts:
			return consumeVarints(typ, b, func(v uint64) { o.Ints = append(o.Ints, int64(int32(v))) })
		case fieldValueString:
			s, n, err := consumeBytes(typ, b)
			o.Str = string(s)
			return n, err
		case fieldValueLongs:
			return consumeVarints(typ, b, func(v uint64) { o.Ints = append(o.Ints, int64(v)) })
		case fieldValueDoubles:
			return consumeFixed64s(typ, b, func(v uint64) { o.Floats = append(o.Floats, math.Float64frombits(v)) })
		}
		return 0, nil
	})
	if err != nil {
		return o, err
	}

	if _, ok := operandKindNames[o.Kind]; !ok || o.Kind == operandAny {
		return o, fmt.Errorf("%w: operand type %d", ErrInvalidProgram, int32(o.Kind))
	}
	return o, nil
}

func decodeType(b []byte) (TypeDescriptor, error) {
	var t TypeDescriptor
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldTypeDType:
			return consumeVarints(typ, b, func(v uint64) { t.DType = ml.DType(int32(v)) })
		case fieldTypeShape:
			return consumeVarints(typ, b, func(v uint64) { t.Shape = append(t.Shape, int64(int32(v))) })
		}
		return 0, nil
	})
	return t, err
}

// consumeMessage calls field for every field of a message. A field that
// returns 0 consumed bytes is skipped as unknown.
func consumeMessage(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return malformed(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: wire type %d for a length-delimited field", ErrInvalidProgram, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, malformed(n)
	}
	return v, n, nil
}

// consumeVarints reads one varint or a packed list of them.
func consumeVarints(typ protowire.Type, b []byte, add func(uint64)) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, malformed(n)
		}
		add(v)
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, malformed(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, malformed(m)
			}
			add(v)
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: wire type %d for a varint field", ErrInvalidProgram, typ)
}

// consumeFixed64s reads one fixed64 or a packed list of them.
func consumeFixed64s(typ protowire.Type, b []byte, add func(uint64)) (int, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, malformed(n)
		}
		add(v)
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, malformed(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			if m < 0 {
				return 0, malformed(m)
			}
			add(v)
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: wire type %d for a fixed64 field", ErrInvalidProgram, typ)
}

func malformed(n int) error {
	return fmt.Errorf("%w: %w", ErrInvalidProgram, protowire.ParseError(n))
}
