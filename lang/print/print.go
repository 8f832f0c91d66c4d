// Package print formats runtime values and interpreter errors for human
// consumption: the CLI's "run"/"gcstats" output and the stack-trace
// formatter spec §7 requires ("walks parent→child fibers, prints each
// frame with function name, source id, line:column ..., and tail-call
// markers, colorized when the output file is a TTY and color is not
// disabled"). Grounded on the convention of lang/ast.Printer (an Output
// io.Writer plus a small set of formatting knobs) and lang/scanner's
// PrintError alias, though neither is reused directly: they print ASTs and
// go/scanner errors, not runtime values and vm.Errors.
package print

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ember-lang/ember/lang/value"
	"github.com/ember-lang/ember/lang/vm"
)

// Value renders v the way error messages and the CLI's "run" command do:
// just its String() form. A dedicated entry point (rather than callers
// reaching for v.String() directly) keeps one place to extend with
// depth-limited/cyclic-aware formatting if a future Table/Array needs it.
func Value(v value.Value) string {
	if v == nil {
		return "nil"
	}
	return v.String()
}

// Printer formats a *vm.Error's Kind, message and captured Trace to Output.
// Color applies ANSI SGR codes to the kind and frame markers; IsTTY (below)
// is the usual way to decide whether to set it.
type Printer struct {
	Output io.Writer
	Color  bool
}

// PrintError writes err to p.Output. If err is not a *vm.Error (a plain Go
// error reached p, e.g. from fiber setup before any frame ran) only its
// message is printed, with no trace.
func (p *Printer) PrintError(err error) error {
	verr, ok := err.(*vm.Error)
	if !ok {
		_, werr := fmt.Fprintf(p.Output, "%s\n", err)
		return werr
	}

	kind := verr.Kind.String()
	if p.Color {
		kind = sgr(colorRed, kind)
	}
	if _, werr := fmt.Fprintf(p.Output, "%s: %s\n", kind, verr.Msg); werr != nil {
		return werr
	}
	return p.printTrace(verr.Trace)
}

func (p *Printer) printTrace(trace []vm.TraceEntry) error {
	for _, fr := range trace {
		loc := fr.Source
		if fr.Line > 0 {
			if loc != "" {
				loc += fmt.Sprintf(":%d:%d", fr.Line, fr.Column)
			} else {
				loc = fmt.Sprintf("%d:%d", fr.Line, fr.Column)
			}
		}

		name := fr.Function
		if name == "" {
			name = "?"
		}
		if p.Color {
			name = sgr(colorBold, name)
		}

		marker := ""
		if fr.TailCall {
			marker = " (tailcall)"
			if p.Color {
				marker = sgr(colorDim, marker)
			}
		}

		line := fmt.Sprintf("  at %s", name)
		if loc != "" {
			line += " (" + loc + ")"
		}
		line += marker

		if _, werr := fmt.Fprintln(p.Output, line); werr != nil {
			return werr
		}
	}
	return nil
}

const (
	colorRed  = "31"
	colorBold = "1"
	colorDim  = "2"
)

func sgr(code, s string) string {
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// IsTTY reports whether f is a character device, the usual proxy for
// "interactive terminal, safe to colorize" a CLI uses before emitting ANSI
// escapes. No example in the retrieval pack depends on a terminal-detection
// library, so this is the bare os.FileInfo.Mode check rather than an
// imported one.
func IsTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// ColorEnabled applies the common NO_COLOR convention on top of IsTTY:
// NO_COLOR (any non-blank value) always disables color, otherwise color is
// enabled exactly when out is a TTY. FORCE_COLOR is not consulted.
func ColorEnabled(out *os.File) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	return IsTTY(out)
}
