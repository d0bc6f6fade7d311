package xcvm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jmpAsm = `
- op: IntScalarConstant
  inputs: [{int: 0}, {int: 9}, {int: 0}]
  outputs: [0]
- op: JmpTrue
  inputs: [{reg: 0}, {int: 3}]
- op: IntScalarConstant
  inputs: [{int: 1}, {int: 7}, {int: 0}]
  outputs: [1]
- op: Out
  inputs: [{reg: 1}, {str: y}]
- op: IntScalarConstant
  inputs: [{int: 2}, {int: 7}, {int: 0}]
  outputs: [1]
  debug: second write
  id: 5
- op: Out
  inputs: [{reg: 1}, {str: y}]
`

func TestParseAssembly(t *testing.T) {
	prog, err := ParseAssembly([]byte(jmpAsm))
	require.NoError(t, err)
	require.Equal(t, 6, prog.Len())
	assert.Equal(t, OpJmpTrue, prog.Instructions[1].Op)
	assert.Equal(t, "second write", prog.Instructions[4].DebugInfo)
	assert.Equal(t, int64(5), prog.Instructions[4].ID)

	outs, err := Execute(prog, newBackend(t), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, output(t, outs, "y").AsScalar())
}

func TestAssemblyRoundTrip(t *testing.T) {
	want := sampleProgram(t)

	text, err := want.Assembly()
	require.NoError(t, err)

	got, err := ParseAssembly(text)
	require.NoError(t, err, string(text))

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Programm nach Assembly-Roundtrip verschieden (-want +got):\n%s", diff)
	}
}

func TestParseAssemblyErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "tippfehler",
			src:  "- op: JmpTreu\n  inputs: [{reg: 0}, {int: 1}]\n",
			want: `did you mean "JmpTrue"?`,
		},
		{
			name: "operand",
			src:  "- op: Neg\n  inputs: [{register: 0}]\n  outputs: [1]\n",
			want: `unknown operand key "register"`,
		},
		{
			name: "zwei schluessel",
			src:  "- op: Neg\n  inputs: [{reg: 0, int: 1}]\n  outputs: [1]\n",
			want: "one key",
		},
		{
			name: "keine liste",
			src:  "op: Neg\n",
			want: "list of instructions",
		},
		{
			name: "undefiniert",
			src:  "- op: Neg\n  inputs: [{reg: 0}]\n  outputs: [1]\n",
			want: "read before any write",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAssembly([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAssemblyEmpty(t *testing.T) {
	prog, err := ParseAssembly(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, prog.Len())
}

func TestDisassemble(t *testing.T) {
	prog, err := ParseAssembly([]byte(jmpAsm))
	require.NoError(t, err)
	prog.Instructions[0].OutputTypes = []TypeDescriptor{{DType: 9, Shape: []int64{}}}

	var buf bytes.Buffer
	prog.Disassemble(&buf)
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)
	for _, h := range []string{"PC", "ID", "OP", "OUTPUTS", "INPUTS", "DEBUG"} {
		assert.Contains(t, lines[0], h)
	}
	assert.Contains(t, lines[1], ":: bool[]")
	assert.Contains(t, lines[2], "JmpTrue")
	assert.Contains(t, lines[2], "$0, 3")
	assert.Contains(t, lines[5], "second write")

	assert.Equal(t, "   1: JmpTrue $0, 3\n", strings.SplitAfter(prog.String(), "\n")[1])
}
