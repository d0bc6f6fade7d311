// ops.go - Operator-Tabelle und Argumentzugriff
//
// Dieses Modul enthaelt:
// - opDef: feste Signatur und Handler eines Opcodes
// - ops: die flache Tabelle Opcode -> opDef
// - args: dekodierte Operanden einer Instruktion fuer den Handler
//
// Die Handler liegen nach Kategorie in ops_*.go.
package xcvm

import (
	"fmt"

	"github.com/ollama/xcvm/ml"
)

// opDef is the fixed signature of one opcode. Register operands come first,
// attributes follow.
type opDef struct {
	inputs  []OperandKind
	outputs []Kind

	// varOut accepts one or more outputs of kind outputs[0]
	varOut bool

	// noRead leaves register operands undecoded
	noRead bool

	run func(st *State, in *args) ([]Value, error)
}

func (d *opDef) checkOperands(ins *Instruction) error {
	if len(ins.Inputs) != len(d.inputs) {
		return fmt.Errorf("%w: %s takes %d inputs, got %d", ErrInvalidProgram, ins.Op, len(d.inputs), len(ins.Inputs))
	}
	for i, o := range ins.Inputs {
		if !d.inputs[i].accepts(o.Kind) {
			return fmt.Errorf("%w: %s input %d must be %s, got %s", ErrInvalidProgram, ins.Op, i, d.inputs[i], o.Kind)
		}
	}

	switch {
	case d.varOut && len(ins.Outputs) == 0:
		return fmt.Errorf("%w: %s needs at least one output", ErrInvalidProgram, ins.Op)
	case !d.varOut && len(ins.Outputs) != len(d.outputs):
		return fmt.Errorf("%w: %s has %d outputs, got %d", ErrInvalidProgram, ins.Op, len(d.outputs), len(ins.Outputs))
	}
	return nil
}

func (d *opDef) outputKind(i int) Kind {
	if d.varOut {
		return d.outputs[0]
	}
	return d.outputs[i]
}

// =============================================================================
// Signatur-Kurzformen
// =============================================================================

var (
	arr    = OperandArray
	opt    = OperandOptionalArray
	list   = OperandArrayList
	seq    = OperandSequence
	anyReg = operandAny
	iAttr  = OperandInt
	fAttr  = OperandFloat
	isAttr = OperandInts
	dsAttr = OperandDoubles
	sAttr  = OperandString
)

func takes(kinds ...OperandKind) []OperandKind { return kinds }
func gives(kinds ...Kind) []Kind               { return kinds }

var (
	oneArray = gives(KindArray)
	noOutput = gives()
)

// unary and binary build the common array -> array signatures.
func unary(f func(st *State, x ml.Array) (ml.Array, error)) *opDef {
	return &opDef{inputs: takes(arr), outputs: oneArray, run: func(st *State, in *args) ([]Value, error) {
		return result(f(st, in.Array(0)))
	}}
}

func binary(f func(st *State, a, b ml.Array) (ml.Array, error)) *opDef {
	return &opDef{inputs: takes(arr, arr), outputs: oneArray, run: func(st *State, in *args) ([]Value, error) {
		return result(f(st, in.Array(0), in.Array(1)))
	}}
}

// pure adapts an array method that cannot fail beyond panicking.
func pure(f func(x ml.Array) ml.Array) *opDef {
	return unary(func(_ *State, x ml.Array) (ml.Array, error) { return f(x), nil })
}

func result(a ml.Array, err error) ([]Value, error) {
	if err != nil {
		return nil, err
	}
	return []Value{ArrayValue{a}}, nil
}

// =============================================================================
// Tabelle
// =============================================================================

var ops map[Opcode]*opDef

func init() {
	ops = map[Opcode]*opDef{
		OpIn:       {inputs: takes(sAttr), outputs: gives(kindAny), run: runIn},
		OpOut:      {inputs: takes(anyReg, sAttr), outputs: noOutput, run: runOut},
		OpFree:     {inputs: takes(anyReg), outputs: noOutput, noRead: true, run: runFree},
		OpJmpTrue:  {inputs: takes(arr, iAttr), outputs: noOutput, run: runJmp(true)},
		OpJmpFalse: {inputs: takes(arr, iAttr), outputs: noOutput, run: runJmp(false)},
		OpIdentity: pure(func(x ml.Array) ml.Array { return x }),

		OpAdd:        pureBinary(ml.Array.Add),
		OpSub:        pureBinary(ml.Array.Sub),
		OpMul:        pureBinary(ml.Array.Mul),
		OpDiv:        binary(div),
		OpPow:        binary(pow),
		OpNeg:        pure(ml.Array.Neg),
		OpReciprocal: pure(ml.Array.Reciprocal),
		OpExp:        pure(ml.Array.Exp),
		OpLog:        pure(ml.Array.Log),
		OpSqrt:       pure(ml.Array.Sqrt),
		OpTanh:       pure(tanh),
		OpSigmoid:    unary(sigmoid),
		OpRelu:       pure(func(x ml.Array) ml.Array { return x.MaximumScalar(0) }),
		OpReluGrad:   binary(reluGrad),
		OpFloor:      unary(floor),
		OpCeil:       unary(ceil),
		OpClip:       {inputs: takes(arr, fAttr, fAttr), outputs: oneArray, run: runClip},
		OpMax:        {inputs: takes(list), outputs: oneArray, run: runMax},

		OpEqual:        pureBinary(ml.Array.Equal),
		OpGreater:      pureBinary(ml.Array.Greater),
		OpGreaterEqual: pureBinary(greaterEqual),
		OpNot:          pure(ml.Array.LogicalNot),
		OpCast:         {inputs: takes(arr, iAttr), outputs: oneArray, run: runCast},

		OpReduceMax:       reduction(ml.Array.Max),
		OpReduceSum:       reduction(ml.Array.Sum),
		OpReduceSumSquare: reduction(func(x ml.Array, axes []int, keep bool) ml.Array { return x.Mul(x).Sum(axes, keep) }),
		OpReduceMean:      reduction(ml.Array.Mean),
		OpReduceSumTo:     binary(reduceSumTo),
		OpArgMax:          {inputs: takes(arr, iAttr, iAttr), outputs: oneArray, run: runArgMax},
		OpHardmax:         {inputs: takes(arr, iAttr), outputs: oneArray, run: runHardmax},
		OpSoftmax:         {inputs: takes(arr, iAttr), outputs: oneArray, run: runSoftmax},
		OpLogSoftmax:      {inputs: takes(arr, iAttr), outputs: oneArray, run: runLogSoftmax},

		OpShape:        unary(shapeOf),
		OpSize:         unary(sizeOf),
		OpReshape:      binary(reshape),
		OpExpand:       binary(expand),
		OpSqueeze:      {inputs: takes(arr, isAttr), outputs: oneArray, run: runSqueeze},
		OpUnsqueeze:    {inputs: takes(arr, isAttr), outputs: oneArray, run: runUnsqueeze},
		OpTranspose:    {inputs: takes(arr, isAttr), outputs: oneArray, run: runTranspose},
		OpSlice:        {inputs: takes(arr, isAttr, isAttr, isAttr), outputs: oneArray, run: runSlice},
		OpDynamicSlice: {inputs: takes(arr, arr, arr, opt), outputs: oneArray, run: runDynamicSlice},
		OpConcat:       {inputs: takes(list, iAttr), outputs: oneArray, run: runConcat},
		OpSplit:        {inputs: takes(arr, iAttr, isAttr), outputs: oneArray, varOut: true, run: runSplit},
		OpPad:          {inputs: takes(arr, isAttr, fAttr), outputs: oneArray, run: runPad},

		OpGather:         {inputs: takes(arr, arr, iAttr), outputs: oneArray, run: runGather},
		OpSelectItem:     binary(selectItem),
		OpSelectItemGrad: {inputs: takes(arr, arr, arr), outputs: oneArray, run: runSelectItemGrad},

		OpMatMul:                        pureBinary(ml.Array.Dot),
		OpGemm:                          {inputs: takes(arr, arr, arr, fAttr, fAttr, iAttr, iAttr), outputs: oneArray, run: runGemm},
		OpConv:                          {inputs: takes(arr, arr, opt, isAttr, isAttr), outputs: oneArray, run: runConv},
		OpConvTranspose:                 {inputs: takes(arr, arr, opt, isAttr, isAttr, isAttr), outputs: oneArray, run: runConvTranspose},
		OpConvTransposeWithDynamicShape: {inputs: takes(arr, arr, arr, isAttr, isAttr), outputs: oneArray, run: runConvTransposeWithDynamicShape},
		OpConvGradWeight:                {inputs: takes(arr, arr, arr, isAttr, isAttr), outputs: oneArray, run: runConvGradWeight},
		OpLSTM:                          {inputs: takes(arr, arr, arr, opt, opt, opt, opt, opt, iAttr), outputs: gives(KindArray, KindArray, KindArray), run: runLSTM},

		OpIntScalarConstant:   {inputs: takes(iAttr, iAttr, iAttr), outputs: oneArray, run: runIntScalarConstant},
		OpFloatScalarConstant: {inputs: takes(fAttr, iAttr, iAttr), outputs: oneArray, run: runFloatScalarConstant},
		OpIntConstant:         {inputs: takes(isAttr, iAttr, isAttr, iAttr), outputs: oneArray, run: runIntConstant},
		OpFloatConstant:       {inputs: takes(dsAttr, iAttr, isAttr, iAttr), outputs: oneArray, run: runFloatConstant},
		OpNullConstant:        {inputs: takes(), outputs: gives(KindOptionalArray), run: runNullConstant},

		OpSequenceCreate: {inputs: takes(), outputs: gives(KindSequence), run: runSequenceCreate},
		OpSequenceAppend: {inputs: takes(seq, arr), outputs: gives(KindSequence), run: runSequenceAppend},
		OpSequencePop:    {inputs: takes(seq), outputs: gives(KindSequence, KindArray), run: runSequencePop},
		OpSequenceLookup: {inputs: takes(seq, arr), outputs: oneArray, run: runSequenceLookup},
		OpSequenceSize:   {inputs: takes(seq), outputs: oneArray, run: runSequenceSize},
		OpSequenceStack:  {inputs: takes(seq, iAttr), outputs: oneArray, run: runSequenceStack},
		OpSequenceConcat: {inputs: takes(seq, iAttr), outputs: oneArray, run: runSequenceConcat},
		OpSequenceSplit:  {inputs: takes(arr, iAttr), outputs: gives(KindSequence), run: runSequenceSplit},
		OpSequenceCopy:   {inputs: takes(seq), outputs: gives(KindSequence), run: runSequenceCopy},
	}
}

func pureBinary(f func(a, b ml.Array) ml.Array) *opDef {
	return binary(func(_ *State, a, b ml.Array) (ml.Array, error) { return f(a, b), nil })
}

func reduction(f func(x ml.Array, axes []int, keepDims bool) ml.Array) *opDef {
	return &opDef{inputs: takes(arr, isAttr, iAttr), outputs: oneArray, run: func(_ *State, in *args) ([]Value, error) {
		return result(f(in.Array(0), in.Axes(1), in.Int(2) != 0), nil)
	}}
}

// =============================================================================
// Argumente
// =============================================================================

// args holds the decoded inputs of one instruction. Accessors assume the
// operand kinds were checked against the signature.
type args struct {
	ins  *Instruction
	vals []Value
}

func (a *args) Value(i int) Value { return a.vals[i] }

func (a *args) Array(i int) ml.Array { return a.vals[i].(ArrayValue).Array }

// OptArray returns nil for an absent optional array.
func (a *args) OptArray(i int) ml.Array { return a.vals[i].(OptionalArrayValue).Array }

func (a *args) Arrays(i int) []ml.Array { return a.vals[i].(ArrayListValue) }

func (a *args) Sequence(i int) *SequenceValue { return a.vals[i].(*SequenceValue) }

func (a *args) Int(i int) int64 { return int64(a.vals[i].(IntValue)) }

func (a *args) Float(i int) float64 { return float64(a.vals[i].(FloatValue)) }

func (a *args) Ints(i int) []int64 { return a.vals[i].(IntsValue) }

func (a *args) Floats(i int) []float64 { return a.vals[i].(FloatsValue) }

func (a *args) Str(i int) string { return string(a.vals[i].(StringValue)) }

// Axes converts an INTS attribute to int.
func (a *args) Axes(i int) []int { return toInts(a.Ints(i)) }

func (a *args) NumOutputs() int { return len(a.ins.Outputs) }

func toInts(v []int64) []int {
	if v == nil {
		return nil
	}
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
