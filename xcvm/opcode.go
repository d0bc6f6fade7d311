// opcode.go - Opcode-Definitionen der Register-VM
// Enthält: Opcode-Konstanten nach Kategorie, Namenstabelle, ParseOpcode mit Vorschlag
package xcvm

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/agnivade/levenshtein"
)

// Opcode selects the operator an instruction invokes. Values are grouped by
// category and are part of the binary program format.
type Opcode int32

const (
	OpInvalid Opcode = 0x00

	// ========================================================================
	// Control and memory (0x01-0x0F)
	// ========================================================================

	OpIn       Opcode = 0x01 // bind a named input: In <name:STRING> -> v
	OpOut      Opcode = 0x02 // bind a named output: Out v <name:STRING>
	OpFree     Opcode = 0x03 // clear a register
	OpJmpTrue  Opcode = 0x04 // JmpTrue cond <target:INT>
	OpJmpFalse Opcode = 0x05 // JmpFalse cond <target:INT>
	OpIdentity Opcode = 0x06

	// ========================================================================
	// Elementwise arithmetic (0x10-0x2F)
	// ========================================================================

	OpAdd        Opcode = 0x10
	OpSub        Opcode = 0x11
	OpMul        Opcode = 0x12
	OpDiv        Opcode = 0x13
	OpPow        Opcode = 0x14
	OpNeg        Opcode = 0x15
	OpReciprocal Opcode = 0x16
	OpExp        Opcode = 0x17
	OpLog        Opcode = 0x18
	OpSqrt       Opcode = 0x19
	OpTanh       Opcode = 0x1A
	OpSigmoid    Opcode = 0x1B
	OpRelu       Opcode = 0x1C
	OpReluGrad   Opcode = 0x1D
	OpFloor      Opcode = 0x1E
	OpCeil       Opcode = 0x1F
	OpClip       Opcode = 0x20
	OpMax        Opcode = 0x21 // pairwise elementwise max over an array list

	// ========================================================================
	// Comparison and casts (0x30-0x3F)
	// ========================================================================

	OpEqual        Opcode = 0x30
	OpGreater      Opcode = 0x31
	OpGreaterEqual Opcode = 0x32
	OpNot          Opcode = 0x33
	OpCast         Opcode = 0x34

	// ========================================================================
	// Reductions (0x40-0x4F)
	// ========================================================================

	OpReduceMax       Opcode = 0x40
	OpReduceSum       Opcode = 0x41
	OpReduceSumSquare Opcode = 0x42
	OpReduceMean      Opcode = 0x43
	OpReduceSumTo     Opcode = 0x44
	OpArgMax          Opcode = 0x45
	OpHardmax         Opcode = 0x46
	OpSoftmax         Opcode = 0x47
	OpLogSoftmax      Opcode = 0x48

	// ========================================================================
	// Shape manipulation (0x50-0x5F)
	// ========================================================================

	OpShape        Opcode = 0x50
	OpSize         Opcode = 0x51
	OpReshape      Opcode = 0x52
	OpExpand       Opcode = 0x53
	OpSqueeze      Opcode = 0x54
	OpUnsqueeze    Opcode = 0x55
	OpTranspose    Opcode = 0x56
	OpSlice        Opcode = 0x57
	OpDynamicSlice Opcode = 0x58
	OpConcat       Opcode = 0x59
	OpSplit        Opcode = 0x5A
	OpPad          Opcode = 0x5B

	// ========================================================================
	// Indexing (0x60-0x6F)
	// ========================================================================

	OpGather         Opcode = 0x60
	OpSelectItem     Opcode = 0x61
	OpSelectItemGrad Opcode = 0x62

	// ========================================================================
	// Linear algebra and networks (0x70-0x7F)
	// ========================================================================

	OpMatMul                        Opcode = 0x70
	OpGemm                          Opcode = 0x71
	OpConv                          Opcode = 0x72
	OpConvTranspose                 Opcode = 0x73
	OpConvTransposeWithDynamicShape Opcode = 0x74
	OpConvGradWeight                Opcode = 0x75
	OpLSTM                          Opcode = 0x76

	// ========================================================================
	// Constants (0x80-0x8F)
	// ========================================================================

	OpIntScalarConstant   Opcode = 0x80
	OpFloatScalarConstant Opcode = 0x81
	OpIntConstant         Opcode = 0x82
	OpFloatConstant       Opcode = 0x83
	OpNullConstant        Opcode = 0x84

	// ========================================================================
	// Sequences (0x90-0x9F)
	// ========================================================================

	OpSequenceCreate Opcode = 0x90
	OpSequenceAppend Opcode = 0x91
	OpSequencePop    Opcode = 0x92
	OpSequenceLookup Opcode = 0x93
	OpSequenceSize   Opcode = 0x94
	OpSequenceStack  Opcode = 0x95
	OpSequenceConcat Opcode = 0x96
	OpSequenceSplit  Opcode = 0x97
	OpSequenceCopy   Opcode = 0x98
)

var opcodeNames = map[Opcode]string{
	OpIn:       "In",
	OpOut:      "Out",
	OpFree:     "Free",
	OpJmpTrue:  "JmpTrue",
	OpJmpFalse: "JmpFalse",
	OpIdentity: "Identity",

	OpAdd:        "Add",
	OpSub:        "Sub",
	OpMul:        "Mul",
	OpDiv:        "Div",
	OpPow:        "Pow",
	OpNeg:        "Neg",
	OpReciprocal: "Reciprocal",
	OpExp:        "Exp",
	OpLog:        "Log",
	OpSqrt:       "Sqrt",
	OpTanh:       "Tanh",
	OpSigmoid:    "Sigmoid",
	OpRelu:       "Relu",
	OpReluGrad:   "ReluGrad",
	OpFloor:      "Floor",
	OpCeil:       "Ceil",
	OpClip:       "Clip",
	OpMax:        "Max",

	OpEqual:        "Equal",
	OpGreater:      "Greater",
	OpGreaterEqual: "GreaterEqual",
	OpNot:          "Not",
	OpCast:         "Cast",

	OpReduceMax:       "ReduceMax",
	OpReduceSum:       "ReduceSum",
	OpReduceSumSquare: "ReduceSumSquare",
	OpReduceMean:      "ReduceMean",
	OpReduceSumTo:     "ReduceSumTo",
	OpArgMax:          "ArgMax",
	OpHardmax:         "Hardmax",
	OpSoftmax:         "Softmax",
	OpLogSoftmax:      "LogSoftmax",

	OpShape:        "Shape",
	OpSize:         "Size",
	OpReshape:      "Reshape",
	OpExpand:       "Expand",
	OpSqueeze:      "Squeeze",
	OpUnsqueeze:    "Unsqueeze",
	OpTranspose:    "Transpose",
	OpSlice:        "Slice",
	OpDynamicSlice: "DynamicSlice",
	OpConcat:       "Concat",
	OpSplit:        "Split",
	OpPad:          "Pad",

	OpGather:         "Gather",
	OpSelectItem:     "SelectItem",
	OpSelectItemGrad: "SelectItemGrad",

	OpMatMul:                        "MatMul",
	OpGemm:                          "Gemm",
	OpConv:                          "Conv",
	OpConvTranspose:                 "ConvTranspose",
	OpConvTransposeWithDynamicShape: "ConvTransposeWithDynamicShape",
	OpConvGradWeight:                "ConvGradWeight",
	OpLSTM:                          "LSTM",

	OpIntScalarConstant:   "IntScalarConstant",
	OpFloatScalarConstant: "FloatScalarConstant",
	OpIntConstant:         "IntConstant",
	OpFloatConstant:       "FloatConstant",
	OpNullConstant:        "NullConstant",

	OpSequenceCreate: "SequenceCreate",
	OpSequenceAppend: "SequenceAppend",
	OpSequencePop:    "SequencePop",
	OpSequenceLookup: "SequenceLookup",
	OpSequenceSize:   "SequenceSize",
	OpSequenceStack:  "SequenceStack",
	OpSequenceConcat: "SequenceConcat",
	OpSequenceSplit:  "SequenceSplit",
	OpSequenceCopy:   "SequenceCopy",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", int32(op))
}

// Valid reports whether op names an operator.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// IsJump reports whether op may change the program counter.
func (op Opcode) IsJump() bool {
	return op == OpJmpTrue || op == OpJmpFalse
}

// AllOpcodes returns every valid opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeNames))
	for op := range opcodeNames {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// ParseOpcode resolves an opcode name. Unknown names fail with the closest
// known name as a suggestion.
func ParseOpcode(name string) (Opcode, error) {
	if op, ok := opcodesByName[name]; ok {
		return op, nil
	}
	if s := suggest(name, slices.Collect(maps.Keys(opcodesByName))); s != "" {
		return OpInvalid, fmt.Errorf("%w %q, did you mean %q?", ErrUnknownOpcode, name, s)
	}
	return OpInvalid, fmt.Errorf("%w %q", ErrUnknownOpcode, name)
}

// suggest returns the candidate closest to s, or "" if none is close enough
// to be a plausible typo.
func suggest(s string, candidates []string) string {
	best, score := "", math.MaxInt
	slices.Sort(candidates)
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(s, c); d < score {
			best, score = c, d
		}
	}
	if score > max(2, len(s)/3) {
		return ""
	}
	return best
}
