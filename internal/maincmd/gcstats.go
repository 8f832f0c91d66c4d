package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/ember-lang/ember/lang/bytecode"
	"github.com/ember-lang/ember/lang/print"
	"github.com/ember-lang/ember/lang/value"
	"github.com/ember-lang/ember/lang/vm"
)

func (c *Cmd) GCStats(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return GCStatsFile(ctx, stdio, defaultGCInterval, !c.NoColor, args[0])
}

// GCStatsFile runs path like RunFile, then prints the heap's collection
// statistics (spec §2.5's generational mark/sweep: live objects, bytes
// allocated, collection count) to stdio.Stdout.
func GCStatsFile(ctx context.Context, stdio mainer.Stdio, gcInterval uint64, color bool, path string) error {
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

	stats := machine.Heap.Stats()
	fmt.Fprintf(stdio.Stdout, "live objects:    %d\n", stats.LiveObjects)
	fmt.Fprintf(stdio.Stdout, "bytes allocated: %d\n", stats.BytesAllocated)
	fmt.Fprintf(stdio.Stdout, "next collection: %d\n", stats.NextCollection)
	fmt.Fprintf(stdio.Stdout, "interval:        %d\n", stats.Interval)
	fmt.Fprintf(stdio.Stdout, "collections:     %d\n", stats.Collections)
	return nil
}
