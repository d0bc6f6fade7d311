package xcvm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/xcvm/ml"
)

func doubleProgram(t *testing.T) *Program {
	t.Helper()
	prog, err := NewProgram(
		inst(OpIn, regs(0), Str("x")),
		inst(OpAdd, regs(1), Reg(0), Reg(0)),
		inst(OpOut, nil, Reg(1), Str("y")),
	)
	require.NoError(t, err)
	return prog
}

func TestRunBatch(t *testing.T) {
	b := newBackend(t)
	dev := b.DefaultDevice()
	prog := doubleProgram(t)

	var jobs []Job
	for i := range 8 {
		jobs = append(jobs, Job{
			Name:    fmt.Sprintf("job%d", i),
			Program: prog,
			Inputs:  map[string]Value{"x": ArrayValue{f32(dev, []int{1}, float64(i))}},
		})
	}
	// fehlende Eingabe
	jobs[3].Inputs = nil
	jobs[5].Options.Profile = true

	results, err := RunBatch(context.Background(), b, jobs, 3)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	for i, r := range results {
		assert.Equal(t, jobs[i].Name, r.Name)
		if i == 3 {
			assert.ErrorIs(t, r.Err, ErrUnboundInput)
			assert.Nil(t, r.Outputs)
			continue
		}
		require.NoError(t, r.Err, r.Name)
		assert.Equal(t, float64(2*i), output(t, r.Outputs, "y").AsScalar())
		if i == 5 {
			require.Len(t, r.Profile, 1)
			assert.Equal(t, 3, r.Profile[0].Calls)
		} else {
			assert.Empty(t, r.Profile)
		}
	}
}

func TestRunBatchCanceled(t *testing.T) {
	b := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{{Name: "a", Program: doubleProgram(t)}}
	_, err := RunBatch(ctx, b, jobs, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBatchDefaultLimit(t *testing.T) {
	t.Setenv("XCVM_NUM_PARALLEL", "0")
	b := newBackend(t)
	prog := doubleProgram(t)

	jobs := []Job{
		{Name: "a", Program: prog, Inputs: map[string]Value{"x": ArrayValue{f32(b.DefaultDevice(), nil, 1)}}},
		{Name: "b", Program: prog, Inputs: map[string]Value{"x": ArrayValue{f32(b.DefaultDevice(), nil, 2)}}},
	}
	results, err := RunBatch(context.Background(), b, jobs, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, output(t, results[1].Outputs, "y").AsScalar())
}

func TestTensorFile(t *testing.T) {
	b := newBackend(t)
	dir := t.TempDir()

	cases := []struct {
		name  string
		body  string
		shape []int
		dtype ml.DType
		data  []float64
	}{
		{"x.yaml", "dtype: float32\nshape: [2, 2]\ndata: [1, 2, 3, 4]\n", []int{2, 2}, ml.DTypeFloat32, []float64{1, 2, 3, 4}},
		{"x.json", `{"dtype": "int64", "shape": [3], "data": [7, 8, 9]}`, []int{3}, ml.DTypeInt64, []float64{7, 8, 9}},
		{"scalar.yaml", "dtype: f64\ndata: [0.5]\n", nil, ml.DTypeFloat64, []float64{0.5}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			v, err := ReadTensorFile(path, b.DefaultDevice())
			require.NoError(t, err)
			a := v.(ArrayValue).Array
			assert.Equal(t, tt.dtype, a.DType())
			assert.Equal(t, len(tt.shape), a.NDim())
			assert.Equal(t, tt.data, a.Floats())
		})
	}

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dtype: float32\nshape: [3]\ndata: [1]\n"), 0o644))
	_, err := ReadTensorFile(bad, b.DefaultDevice())
	assert.ErrorContains(t, err, "1 values for shape [3]")

	_, err = ReadTensorFile(filepath.Join(dir, "missing.yaml"), b.DefaultDevice())
	assert.Error(t, err)
}

func TestOutputTensor(t *testing.T) {
	b := newBackend(t)
	a := f32(b.DefaultDevice(), []int{2}, 1, 2)

	tt, err := OutputTensor(ArrayValue{a})
	require.NoError(t, err)
	assert.Equal(t, Tensor{DType: ml.DTypeFloat32, Shape: []int{2}, Data: []float64{1, 2}}, *tt)

	tt, err = OutputTensor(OptionalArrayValue{})
	require.NoError(t, err)
	assert.Nil(t, tt)

	_, err = OutputTensor(NewSequence())
	assert.Error(t, err)
}
