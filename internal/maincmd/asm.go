package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/ember-lang/ember/lang/bytecode"
)

func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return AsmFile(ctx, stdio, args[0])
}

// AsmFile assembles the textual bytecode in path, verifies it, and writes
// its marshalled binary form (spec §6.5) next to it with a ".embc"
// extension, printing the output path to stdio.Stdout.
func AsmFile(ctx context.Context, stdio mainer.Stdio, path string) error {
	def, err := assembleFile(path)
	if err != nil {
		return printError(stdio, err)
	}
	if err := bytecode.Verify(def); err != nil {
		return printError(stdio, err)
	}

	data, err := bytecode.Marshal(def)
	if err != nil {
		return printError(stdio, err)
	}

	out := outputPath(path)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return printError(stdio, fmt.Errorf("%s: %w", out, err))
	}
	fmt.Fprintln(stdio.Stdout, out)
	return nil
}

func outputPath(path string) string {
	if ext := strings.LastIndex(path, "."); ext >= 0 {
		return path[:ext] + ".embc"
	}
	return path + ".embc"
}
