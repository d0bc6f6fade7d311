// ops_index.go - Indizierung
// Enthält: Gather, SelectItem und SelectItemGrad (eine Spalte pro Zeile, nur Rang 2)
package xcvm

import (
	"fmt"

	"github.com/ollama/xcvm/ml"
)

func runGather(_ *State, in *args) ([]Value, error) {
	return result(in.Array(0).Take(in.Array(1), int(in.Int(2))), nil)
}

// flatItems maps a per-row column index to an index into the flattened
// (rows, classes) matrix.
func flatItems(indices ml.Array, rows, classes int) ml.Array {
	total := int64(rows * classes)
	return indices.Add(indices.Device().Arange(0, total, int64(classes)))
}

func selectItem(_ *State, data, indices ml.Array) (ml.Array, error) {
	shape := data.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("SelectItem: rank %d is not implemented, want 2", len(shape))
	}
	rows, classes := shape[0], shape[1]
	return data.Reshape(rows*classes).Take(flatItems(indices, rows, classes), 0), nil
}

func runSelectItemGrad(_ *State, in *args) ([]Value, error) {
	gy, indices := in.Array(0), in.Array(1)
	shape := toInts(in.Array(2).Ints())
	if len(shape) != 2 {
		return nil, fmt.Errorf("SelectItemGrad: rank %d is not implemented, want 2", len(shape))
	}

	rows, classes := shape[0], shape[1]
	gx := gy.Device().Zeros(gy.DType(), rows*classes)
	gx = gx.AddAt(flatItems(indices, rows, classes), 0, gy)
	return result(gx.Reshape(shape...), nil)
}
