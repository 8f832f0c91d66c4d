package print

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ember-lang/ember/lang/value"
	"github.com/ember-lang/ember/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueDelegatesToStringer(t *testing.T) {
	assert.Equal(t, "42", Value(value.Number(42)))
	assert.Equal(t, "nil", Value(nil))
}

func TestPrintErrorPlainGoError(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Output: &buf}
	require.NoError(t, p.PrintError(assertErr("boom")))
	assert.Equal(t, "boom\n", buf.String())
}

func TestPrintErrorWithTraceUncolored(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Output: &buf}
	err := &vm.Error{
		Kind: vm.KindType,
		Msg:  "bad operand",
		Trace: []vm.TraceEntry{
			{Function: "callee", Source: "main.ember", Line: 3, Column: 5},
			{Function: "caller", TailCall: true},
		},
	}
	require.NoError(t, p.PrintError(err))
	out := buf.String()
	assert.Contains(t, out, "type: bad operand")
	assert.Contains(t, out, "at callee (main.ember:3:5)")
	assert.Contains(t, out, "at caller")
	assert.Contains(t, out, "tailcall")
	assert.False(t, strings.Contains(out, "\x1b["), "no ANSI codes expected when Color is false")
}

func TestPrintErrorWithTraceColored(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Output: &buf, Color: true}
	err := &vm.Error{Kind: vm.KindArity, Msg: "wrong arg count"}
	require.NoError(t, p.PrintError(err))
	assert.True(t, strings.Contains(buf.String(), "\x1b["), "expected ANSI codes when Color is true")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
