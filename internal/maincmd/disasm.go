package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/ember-lang/ember/lang/bytecode"
)

func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return DisasmFile(ctx, stdio, args[0])
}

// DisasmFile reads the marshalled binary bytecode in path (spec §6.5,
// produced by the "asm" command) and prints its textual disassembly.
func DisasmFile(ctx context.Context, stdio mainer.Stdio, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, fmt.Errorf("%s: %w", path, err))
	}

	def, err := bytecode.Unmarshal(data)
	if err != nil {
		return printError(stdio, fmt.Errorf("%s: %w", path, err))
	}

	fmt.Fprint(stdio.Stdout, bytecode.Disassemble(def))
	return nil
}
