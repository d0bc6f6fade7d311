package xcvm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/xcvm/ml"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		ins  []*Instruction
		err  error
	}{
		{
			name: "unbekannter opcode",
			ins:  []*Instruction{inst(Opcode(0x7F), regs(0))},
			err:  ErrUnknownOpcode,
		},
		{
			name: "zu wenige eingaben",
			ins:  []*Instruction{inst(OpIn, regs(0), Str("x")), inst(OpAdd, regs(1), Reg(0))},
			err:  ErrInvalidProgram,
		},
		{
			name: "falsche operandenart",
			ins:  []*Instruction{inst(OpIn, regs(0), Str("x")), inst(OpSqueeze, regs(1), Reg(0), Int(1))},
			err:  ErrInvalidProgram,
		},
		{
			name: "ausgabezahl",
			ins:  []*Instruction{inst(OpIn, regs(0, 1), Str("x"))},
			err:  ErrInvalidProgram,
		},
		{
			name: "split ohne ausgabe",
			ins:  []*Instruction{inst(OpIn, regs(0), Str("x")), inst(OpSplit, nil, Reg(0), Int(0), Ints())},
			err:  ErrInvalidProgram,
		},
		{
			name: "sprungziel",
			ins:  []*Instruction{inst(OpIn, regs(0), Str("c")), inst(OpJmpTrue, nil, Reg(0), Int(3))},
			err:  ErrInvalidProgram,
		},
		{
			name: "negatives sprungziel",
			ins:  []*Instruction{inst(OpIn, regs(0), Str("c")), inst(OpJmpFalse, nil, Reg(0), Int(-1))},
			err:  ErrInvalidProgram,
		},
		{
			name: "lesen vor schreiben",
			ins:  []*Instruction{inst(OpNeg, regs(0), Reg(1))},
			err:  ErrInvalidProgram,
		},
		{
			name: "liste liest leeres register",
			ins:  []*Instruction{inst(OpIn, regs(0), Str("x")), inst(OpConcat, regs(1), Regs(0, 2), Int(0))},
			err:  ErrInvalidProgram,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProgram(tt.ins...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "erwartet %v, bekommen %v", tt.err, err)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := &Program{Instructions: []*Instruction{
		inst(OpNeg, regs(0), Reg(5)),
		inst(Opcode(0x7E), nil),
		inst(OpExp, regs(1), Reg(6)),
	}}

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pc=0")
	assert.Contains(t, err.Error(), "pc=1")
	assert.Contains(t, err.Error(), "pc=2")
}

func TestValidateAllowsBackwardJumpAndLaterWrites(t *testing.T) {
	_, err := NewProgram(
		inst(OpIntScalarConstant, regs(0), Int(0), Int(int64(ml.DTypeBool)), Int(0)),
		inst(OpJmpTrue, nil, Reg(0), Int(0)),
		inst(OpJmpFalse, nil, Reg(0), Int(3)),
	)
	assert.NoError(t, err)

	// optional operands may be absent
	_, err = NewProgram(
		inst(OpIn, regs(0), Str("x")),
		inst(OpConv, regs(1), Reg(0), Reg(0), Absent(), Ints(), Ints()),
	)
	assert.NoError(t, err)
}

func TestParseOpcode(t *testing.T) {
	for _, op := range AllOpcodes() {
		got, err := ParseOpcode(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	_, err := ParseOpcode("Sequencepop")
	require.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Contains(t, err.Error(), `did you mean "SequencePop"?`)

	_, err = ParseOpcode("Frobnicate")
	require.ErrorIs(t, err, ErrUnknownOpcode)
	assert.NotContains(t, err.Error(), "did you mean")

	assert.Equal(t, "Opcode(0x7F)", Opcode(0x7F).String())
	assert.False(t, Opcode(0x7F).Valid())
}

func TestOperandString(t *testing.T) {
	cases := []struct {
		o    Operand
		want string
	}{
		{Reg(3), "$3"},
		{OptReg(2), "$2?"},
		{Absent(), "-"},
		{Regs(1, 2), "($1,$2)"},
		{SeqReg(4), "seq$4"},
		{OpaqueReg(1), "opq$1"},
		{Int(-7), "-7"},
		{Float(0.25), "0.25"},
		{Ints(1, 2), "[1 2]"},
		{Str("x"), `"x"`},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, tt.o.String())
	}

	ins := inst(OpSplit, regs(-1, 2), Reg(0), Int(0), Ints())
	assert.Equal(t, "_, $2 = Split $0, 0, []", ins.String())
}

func TestStateRegisters(t *testing.T) {
	b := newBackend(t)
	st, err := NewState(b, Options{})
	require.NoError(t, err)

	require.NoError(t, st.SetVar(4, IntValue(1)))
	assert.Equal(t, 1, st.LiveRegisters())

	_, err = st.GetArray(4)
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = st.GetVar(2)
	assert.ErrorIs(t, err, ErrEmptyRegister)
	assert.ErrorIs(t, st.FreeVar(2), ErrEmptyRegister)
	assert.ErrorIs(t, st.SetVar(-1, IntValue(1)), ErrInvalidProgram)
	assert.ErrorIs(t, st.SetVar(0, nil), ErrInvalidProgram)

	seq := NewSequence()
	require.NoError(t, st.SetVar(0, seq))
	got, err := st.GetSequence(0)
	require.NoError(t, err)
	assert.Same(t, seq, got)

	a := f32(b.DefaultDevice(), []int{2}, 1, 2)
	require.NoError(t, st.SetVar(1, ArrayValue{a}))
	opt, err := st.GetOptionalArray(1)
	require.NoError(t, err)
	assert.Equal(t, a, opt)

	require.NoError(t, st.SetVar(2, OpaqueValue{Payload: "handle"}))
	payload, err := st.GetOpaque(2)
	require.NoError(t, err)
	assert.Equal(t, "handle", payload)

	require.NoError(t, st.FreeVar(4))
	assert.Equal(t, 3, st.LiveRegisters())
	assert.Equal(t, 8, st.LiveBytes())
}

func TestSequenceValue(t *testing.T) {
	b := newBackend(t)
	dev := b.DefaultDevice()
	s := NewSequence()

	_, ok := s.Pop()
	assert.False(t, ok)

	for i := range 3 {
		s.Append(f32(dev, nil, float64(i)))
	}
	c := s.Clone()

	last, ok := s.At(-1)
	require.True(t, ok)
	assert.Equal(t, 2.0, last.AsScalar())
	_, ok = s.At(3)
	assert.False(t, ok)

	popped, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 2.0, popped.AsScalar())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, c.Len())
	assert.Len(t, c.Arrays(), 3)
}

func TestDescribe(t *testing.T) {
	b := newBackend(t)
	a := f32(b.DefaultDevice(), []int{2, 3}, 1, 2, 3, 4, 5, 6)

	assert.Equal(t, "float32[2 3]@native:0", Describe(ArrayValue{a}))
	assert.Equal(t, "optional(<absent>)", Describe(OptionalArrayValue{}))
	assert.Equal(t, "sequence(0)", Describe(NewSequence()))
	assert.Equal(t, `string("x")`, Describe(StringValue("x")))
	assert.Equal(t, "<empty>", Describe(nil))
}
