package xcvm

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ollama/xcvm/ml"
)

// sampleProgram uses every operand kind at least once.
func sampleProgram(t *testing.T) *Program {
	t.Helper()
	prog, err := NewProgram(
		inst(OpIn, regs(0), Str("x")),
		&Instruction{
			Op:          OpFloatConstant,
			Inputs:      []Operand{Doubles(0.5, -1.25, 3), Int(int64(ml.DTypeFloat32)), Ints(3), Int(0)},
			Outputs:     regs(1),
			DebugInfo:   "bias",
			ID:          7,
			OutputTypes: []TypeDescriptor{{DType: ml.DTypeFloat32, Shape: []int64{3}}},
		},
		inst(OpIntConstant, regs(2), Longs(-1, 1<<40), Int(int64(ml.DTypeInt64)), Ints(2), Int(1)),
		inst(OpMax, regs(3), Regs(0, 1)),
		inst(OpClip, regs(4), Reg(3), Float(-0.5), Float(0.5)),
		inst(OpNullConstant, regs(5)),
		inst(OpConv, regs(6), Reg(4), Reg(1), OptReg(5), Ints(), Ints(-1, 2)),
		inst(OpDynamicSlice, regs(7), Reg(0), Reg(2), Reg(2), Absent()),
		inst(OpSequenceCreate, regs(8)),
		inst(OpSequenceAppend, regs(8), SeqReg(8), Reg(7)),
		inst(OpSplit, regs(-1, 9), Reg(0), Int(0), Ints()),
		inst(OpJmpFalse, nil, Reg(9), Int(12)),
		inst(OpOut, nil, Reg(8), Str("seq")),
	)
	require.NoError(t, err)
	return prog
}

func TestWireRoundTrip(t *testing.T) {
	want := sampleProgram(t)

	b, err := want.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalProgram(b)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Programm nach Roundtrip verschieden (-want +got):\n%s", diff)
	}
}

func TestWireSkipsUnknownFields(t *testing.T) {
	ins := inst(OpIntScalarConstant, regs(0), Int(5), Int(int64(ml.DTypeInt64)), Int(0))

	var insBytes []byte
	insBytes = protowire.AppendTag(insBytes, 99, protowire.BytesType)
	insBytes = protowire.AppendString(insBytes, "from a newer compiler")
	insBytes = appendInstruction(insBytes, ins)
	insBytes = protowire.AppendTag(insBytes, 15, protowire.Fixed32Type)
	insBytes = protowire.AppendFixed32(insBytes, 42)

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, fieldProgramInstructions, protowire.BytesType)
	b = protowire.AppendBytes(b, insBytes)

	prog, err := UnmarshalProgram(b)
	require.NoError(t, err)
	require.Equal(t, 1, prog.Len())
	if diff := cmp.Diff(ins, prog.Instructions[0], cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Instruktion verschieden (-want +got):\n%s", diff)
	}
}

func TestWireUnpackedRepeated(t *testing.T) {
	// outputs as individual varints instead of a packed list
	var insBytes []byte
	insBytes = appendVarintField(insBytes, fieldInsOp, uint64(OpSplit))
	for _, o := range []Operand{Reg(0), Int(0), Ints()} {
		insBytes = protowire.AppendTag(insBytes, fieldInsInputs, protowire.BytesType)
		insBytes = protowire.AppendBytes(insBytes, appendOperand(nil, o))
	}
	insBytes = appendVarintField(insBytes, fieldInsOutputs, 1)
	insBytes = appendVarintField(insBytes, fieldInsOutputs, 2)

	var p Program
	require.NoError(t, p.UnmarshalBinary(protowire.AppendBytes(protowire.AppendTag(nil, fieldProgramInstructions, protowire.BytesType), insBytes)))
	require.Equal(t, 1, p.Len())
	assert.Equal(t, []int{1, 2}, p.Instructions[0].Outputs)
}

func TestWireErrors(t *testing.T) {
	b, err := sampleProgram(t).MarshalBinary()
	require.NoError(t, err)

	_, err = UnmarshalProgram(b[:len(b)-3])
	assert.ErrorIs(t, err, ErrInvalidProgram)

	// operand with an unknown type tag
	bad := appendVarintField(nil, fieldValueType, 77)
	var insBytes []byte
	insBytes = appendVarintField(insBytes, fieldInsOp, uint64(OpIdentity))
	insBytes = protowire.AppendTag(insBytes, fieldInsInputs, protowire.BytesType)
	insBytes = protowire.AppendBytes(insBytes, bad)
	prog := protowire.AppendBytes(protowire.AppendTag(nil, fieldProgramInstructions, protowire.BytesType), insBytes)
	_, err = UnmarshalProgram(prog)
	assert.ErrorIs(t, err, ErrInvalidProgram)

	// decodes but fails validation
	undefined, err := (&Program{Instructions: []*Instruction{inst(OpNeg, regs(1), Reg(0))}}).MarshalBinary()
	require.NoError(t, err)
	var p Program
	require.NoError(t, p.UnmarshalBinary(undefined))
	_, err = UnmarshalProgram(undefined)
	assert.ErrorIs(t, err, ErrInvalidProgram)
}

func TestWireIntsRange(t *testing.T) {
	prog, err := NewProgram(inst(OpIntConstant, regs(0), Longs(1<<40), Int(int64(ml.DTypeInt64)), Ints(1<<40), Int(0)))
	require.NoError(t, err)
	_, err = prog.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidProgram)
	assert.ErrorContains(t, err, "does not fit in int32")

	// Grenzwerte passen noch
	prog, err = NewProgram(
		inst(OpIn, regs(0), Str("x")),
		inst(OpTranspose, regs(1), Reg(0), Ints(math.MinInt32, math.MaxInt32)),
	)
	require.NoError(t, err)
	b, err := prog.MarshalBinary()
	require.NoError(t, err)
	var got Program
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, []int64{math.MinInt32, math.MaxInt32}, got.Instructions[1].Inputs[1].Ints)
}

func TestWireEmptyProgram(t *testing.T) {
	prog, err := UnmarshalProgram(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, prog.Len())
}
