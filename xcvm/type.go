package xcvm

import (
	"fmt"
	"strings"

	"github.com/ollama/xcvm/ml"
)

// TypeDescriptor is the statically inferred dtype and shape of an output.
// A non-positive DType or a nil Shape means the part is unknown. It is used
// for validation and diagnostics only.
type TypeDescriptor struct {
	DType ml.DType `json:"dtype,omitempty" yaml:"dtype,omitempty"`
	Shape []int64  `json:"shape,omitempty" yaml:"shape,omitempty"`
}

func (t TypeDescriptor) DTypeKnown() bool { return t.DType > 0 }
func (t TypeDescriptor) ShapeKnown() bool { return t.Shape != nil }

// Known reports whether both dtype and shape are known.
func (t TypeDescriptor) Known() bool { return t.DTypeKnown() && t.ShapeKnown() }

func (t TypeDescriptor) String() string {
	var sb strings.Builder
	if t.DTypeKnown() {
		sb.WriteString(t.DType.String())
	} else {
		sb.WriteString("?")
	}
	if t.ShapeKnown() {
		fmt.Fprintf(&sb, "%v", t.Shape)
	} else {
		sb.WriteString("[?]")
	}
	return sb.String()
}

// Check compares a against the known parts of t.
func (t TypeDescriptor) Check(a ml.Array) error {
	if t.DTypeKnown() && a.DType() != t.DType {
		return fmt.Errorf("dtype mismatch: declared %s, got %s", t.DType, a.DType())
	}
	if !t.ShapeKnown() {
		return nil
	}
	shape := a.Shape()
	if len(shape) != len(t.Shape) {
		return fmt.Errorf("shape mismatch: declared %v, got %v", t.Shape, shape)
	}
	for i, d := range t.Shape {
		// negative extents are symbolic dimensions
		if d >= 0 && int(d) != shape[i] {
			return fmt.Errorf("shape mismatch: declared %v, got %v", t.Shape, shape)
		}
	}
	return nil
}
