package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/ember-lang/ember/lang/bytecode"
	"github.com/ember-lang/ember/lang/print"
	"github.com/ember-lang/ember/lang/value"
	"github.com/ember-lang/ember/lang/vm"
)

func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunFile(ctx, stdio, defaultGCInterval, !c.NoColor, args[0])
}

// RunFile assembles the textual bytecode in path, verifies it, and runs it
// to completion on a fresh fiber. The result is printed to stdio.Stdout; a
// verification or runtime failure is printed to stdio.Stderr, with a stack
// trace when one was captured.
func RunFile(ctx context.Context, stdio mainer.Stdio, gcInterval uint64, color bool, path string) error {
	def, err := assembleFile(path)
	if err != nil {
		return printError(stdio, err)
	}
	if err := bytecode.Verify(def); err != nil {
		return printError(stdio, err)
	}

	machine := vm.New(gcInterval)
	fn := bytecode.NewFunction(machine.Heap, def, nil)
	f := machine.NewFiber(fn, 256)

	_, result, rerr := machine.Resume(f, value.Nil)
	if rerr != nil {
		errPrinter := &print.Printer{Output: stdio.Stderr, Color: color}
		errPrinter.PrintError(rerr)
		return rerr
	}
	fmt.Fprintln(stdio.Stdout, print.Value(result))
	return nil
}

func assembleFile(path string) (*bytecode.FuncDef, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def, err := bytecode.Assemble(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
