// value.go - Registerwerte der VM
//
// Dieses Modul enthaelt:
// - Kind: die zehn Varianten eines Registerwerts
// - Value: geschlossenes Interface mit je einem Typ pro Variante
// - SequenceValue: wachsende Array-Liste fuer schleifengetragene Akkumulation
package xcvm

import (
	"fmt"

	"github.com/emirpasic/gods/v2/lists/arraylist"

	"github.com/ollama/xcvm/ml"
)

// Kind identifies the variant held in a register.
type Kind int

const (
	KindArray Kind = iota
	KindOptionalArray
	KindArrayList
	KindSequence
	KindOpaque
	KindInt
	KindFloat
	KindInts
	KindFloats
	KindString

	// kindAny is only used in operator signatures
	kindAny Kind = -1
)

var kindNames = [...]string{
	KindArray:         "array",
	KindOptionalArray: "optional_array",
	KindArrayList:     "array_list",
	KindSequence:      "sequence",
	KindOpaque:        "opaque",
	KindInt:           "int",
	KindFloat:         "float",
	KindInts:          "ints",
	KindFloats:        "floats",
	KindString:        "string",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	if k == kindAny {
		return "any"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is the content of one register. The set of implementations is
// closed; handlers switch on the concrete type.
type Value interface {
	Kind() Kind
	isValue()
}

type ArrayValue struct{ Array ml.Array }

// OptionalArrayValue with a nil Array is absent.
type OptionalArrayValue struct{ Array ml.Array }

// ArrayListValue has a fixed length once created.
type ArrayListValue []ml.Array

// OpaqueValue carries a payload the VM passes along without interpreting.
type OpaqueValue struct{ Payload any }

type (
	IntValue    int64
	FloatValue  float64
	IntsValue   []int64
	FloatsValue []float64
	StringValue string
)

func (ArrayValue) Kind() Kind         { return KindArray }
func (OptionalArrayValue) Kind() Kind { return KindOptionalArray }
func (ArrayListValue) Kind() Kind     { return KindArrayList }
func (*SequenceValue) Kind() Kind     { return KindSequence }
func (OpaqueValue) Kind() Kind        { return KindOpaque }
func (IntValue) Kind() Kind           { return KindInt }
func (FloatValue) Kind() Kind         { return KindFloat }
func (IntsValue) Kind() Kind          { return KindInts }
func (FloatsValue) Kind() Kind        { return KindFloats }
func (StringValue) Kind() Kind        { return KindString }

func (ArrayValue) isValue()         {}
func (OptionalArrayValue) isValue() {}
func (ArrayListValue) isValue()     {}
func (*SequenceValue) isValue()     {}
func (OpaqueValue) isValue()        {}
func (IntValue) isValue()           {}
func (FloatValue) isValue()         {}
func (IntsValue) isValue()          {}
func (FloatsValue) isValue()        {}
func (StringValue) isValue()        {}

// Present reports whether the optional array holds a value.
func (v OptionalArrayValue) Present() bool { return v.Array != nil }

// =============================================================================
// Sequence
// =============================================================================

// SequenceValue is a growable list of arrays. Sequence opcodes move the
// sequence from their input register to their output register, so one
// SequenceValue is owned by exactly one register at a time.
type SequenceValue struct {
	list *arraylist.List[ml.Array]
}

func NewSequence(arrays ...ml.Array) *SequenceValue {
	return &SequenceValue{list: arraylist.New(arrays...)}
}

func (s *SequenceValue) Len() int { return s.list.Size() }

func (s *SequenceValue) Append(a ml.Array) { s.list.Add(a) }

// At returns the i-th array; negative i counts from the end.
func (s *SequenceValue) At(i int) (ml.Array, bool) {
	if i < 0 {
		i += s.list.Size()
	}
	return s.list.Get(i)
}

// Pop removes and returns the last array.
func (s *SequenceValue) Pop() (ml.Array, bool) {
	n := s.list.Size()
	if n == 0 {
		return nil, false
	}
	a, _ := s.list.Get(n - 1)
	s.list.Remove(n - 1)
	return a, true
}

// Arrays returns the elements in order.
func (s *SequenceValue) Arrays() []ml.Array { return s.list.Values() }

// Clone copies the list; the arrays are immutable and shared.
func (s *SequenceValue) Clone() *SequenceValue { return NewSequence(s.list.Values()...) }

// =============================================================================
// Anzeige
// =============================================================================

// Describe renders a short, data-free description of v for traces and errors.
func Describe(v Value) string {
	switch v := v.(type) {
	case nil:
		return "<empty>"
	case ArrayValue:
		return describeArray(v.Array)
	case OptionalArrayValue:
		if !v.Present() {
			return "optional(<absent>)"
		}
		return "optional(" + describeArray(v.Array) + ")"
	case ArrayListValue:
		return fmt.Sprintf("array_list(%d)", len(v))
	case *SequenceValue:
		return fmt.Sprintf("sequence(%d)", v.Len())
	case OpaqueValue:
		return fmt.Sprintf("opaque(%T)", v.Payload)
	case IntValue:
		return fmt.Sprintf("int(%d)", int64(v))
	case FloatValue:
		return fmt.Sprintf("float(%g)", float64(v))
	case IntsValue:
		return fmt.Sprintf("ints%v", []int64(v))
	case FloatsValue:
		return fmt.Sprintf("floats%v", []float64(v))
	case StringValue:
		return fmt.Sprintf("string(%q)", string(v))
	}
	return fmt.Sprintf("%T", v)
}

func describeArray(a ml.Array) string {
	return fmt.Sprintf("%s%v@%s", a.DType(), a.Shape(), a.Device().Name())
}

// valueBytes is the array storage held by v.
func valueBytes(v Value) int {
	switch v := v.(type) {
	case ArrayValue:
		return v.Array.Bytes()
	case OptionalArrayValue:
		if v.Present() {
			return v.Array.Bytes()
		}
	case ArrayListValue:
		n := 0
		for _, a := range v {
			n += a.Bytes()
		}
		return n
	case *SequenceValue:
		n := 0
		for _, a := range v.Arrays() {
			n += a.Bytes()
		}
		return n
	}
	return 0
}
