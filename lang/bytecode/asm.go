package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/ember-lang/ember/lang/value"
)

// This file implements a human-readable textual form of a FuncDef, used as
// a stand-in for the out-of-scope compiler in tests and the "asm"/"disasm"
// CLI subcommands. The section format (function:/constants:/code:) recasts
// a stack-machine assembler's layout for register operands instead of
// stack mnemonics. Only a single, non-nested function is supported: nested
// defs and captures are exercised through the Go API (NewFuncDef + manual
// Captures), not the textual format.
//
// 	function: NAME <slots> <params> [+varargs]
// 	constants:
// 		number 1.5
// 		string "hello"
// 	code:
// 		LOAD_INTEGER 0 5
// 		ADD 0 0 1
// 		RETURN 0

// Disassemble renders def as the textual format Assemble accepts (modulo
// nested defs, which are rendered as a comment since the flat format
// cannot represent them).
func Disassemble(def *FuncDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "function: %s %d %d", def.Name, def.SlotCount, def.NumParams)
	if def.HasVarargs {
		b.WriteString(" +varargs")
	}
	b.WriteByte('\n')

	if len(def.Constants) > 0 {
		b.WriteString("constants:\n")
		for _, c := range def.Constants {
			fmt.Fprintf(&b, "\t%s\n", formatConstant(c))
		}
	}

	b.WriteString("code:\n")
	for pc, w := range def.Code {
		fmt.Fprintf(&b, "\t%04d %s\n", pc, disasmInstr(w))
	}
	for i := range def.NestedDefs {
		fmt.Fprintf(&b, "# nested def %d omitted from textual form\n", i)
	}
	return b.String()
}

func formatConstant(v value.Value) string {
	switch v := v.(type) {
	case value.Number:
		return "number " + v.String()
	case *value.String:
		return fmt.Sprintf("string %q", v.String())
	case stringLiteral:
		return fmt.Sprintf("string %q", string(v))
	default:
		return fmt.Sprintf("# unrepresentable constant: %s", v)
	}
}

func disasmInstr(w Instr) string {
	op := w.Op()
	name := op.OpcodeMask().String()
	if op.Breakpoint() {
		name = "*" + name
	}
	switch op.OpcodeMask().Shape() {
	case Shape0:
		return name
	case ShapeS:
		return fmt.Sprintf("%s %d", name, w.DecodeU24())
	case ShapeL:
		return fmt.Sprintf("%s %d", name, w.DecodeS24())
	case ShapeSS:
		a, b := w.DecodeSS()
		return fmt.Sprintf("%s %d %d", name, a, b)
	case ShapeSI:
		a, imm := w.DecodeSI()
		return fmt.Sprintf("%s %d %d", name, a, imm)
	case ShapeSU, ShapeST, ShapeSC, ShapeSD:
		a, u := w.DecodeSU()
		return fmt.Sprintf("%s %d %d", name, a, u)
	case ShapeSL:
		a, offset := w.DecodeSL()
		return fmt.Sprintf("%s %d %d", name, a, offset)
	case ShapeSSS, ShapeSSU, ShapeSES:
		a, b, c := w.DecodeSSS()
		return fmt.Sprintf("%s %d %d %d", name, a, b, c)
	case ShapeSSI:
		a, b, imm := w.DecodeSSI()
		return fmt.Sprintf("%s %d %d %d", name, a, b, imm)
	}
	return name
}

// Assemble parses the textual format produced by Disassemble (a subset:
// one flat function, numeric and string constants only) into a FuncDef.
func Assemble(src string) (*FuncDef, error) {
	sc := bufio.NewScanner(strings.NewReader(src))
	var def *FuncDef
	section := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "function:") {
			fields := strings.Fields(line)
			if len(fields) < 4 {
				return nil, fmt.Errorf("malformed function header: %q", line)
			}
			slots, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("bad slot count: %w", err)
			}
			params, err := strconv.Atoi(fields[3])
			if err != nil {
				return nil, fmt.Errorf("bad param count: %w", err)
			}
			def = &FuncDef{
				Name:      fields[1],
				SlotCount: int32(slots),
				NumParams: int32(params),
			}
			for _, f := range fields[4:] {
				if f == "+varargs" {
					def.HasVarargs = true
				}
			}
			section = ""
			continue
		}
		if line == "constants:" || line == "code:" {
			section = line
			continue
		}
		if def == nil {
			return nil, fmt.Errorf("instruction before function header: %q", line)
		}
		switch section {
		case "constants:":
			c, err := parseConstant(line)
			if err != nil {
				return nil, err
			}
			def.Constants = append(def.Constants, c)
		case "code:":
			w, err := parseInstr(line)
			if err != nil {
				return nil, err
			}
			def.Code = append(def.Code, w)
		default:
			return nil, fmt.Errorf("instruction outside of a section: %q", line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("no function defined")
	}
	return def, nil
}

func parseConstant(line string) (value.Value, error) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed constant: %q", line)
	}
	switch fields[0] {
	case "number":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, err
		}
		return value.Number(f), nil
	case "string":
		unquoted, err := strconv.Unquote(fields[1])
		if err != nil {
			return nil, err
		}
		// Constant pool strings are not interned (no cache available to the
		// assembler); the interpreter interns them lazily on first load if
		// string identity matters to the program.
		return stringLiteral(unquoted), nil
	}
	return nil, fmt.Errorf("unknown constant kind: %q", fields[0])
}

// stringLiteral is a minimal, non-interned Value implementation used only
// for constants produced by the textual assembler.
type stringLiteral string

func (s stringLiteral) String() string   { return string(s) }
func (s stringLiteral) Type() value.Type { return value.TypeString }

func parseInstr(line string) (Instr, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty instruction")
	}
	// Disassemble prefixes each line with a zero-padded pc index; tolerate
	// and discard it so Assemble can round-trip Disassemble's own output.
	if _, err := strconv.Atoi(fields[0]); err == nil && len(fields) > 1 {
		fields = fields[1:]
	}
	name := strings.TrimPrefix(fields[0], "*")
	op, ok := Lookup(name)
	if !ok {
		return 0, fmt.Errorf("unknown opcode: %q", fields[0])
	}
	op = op.WithBreakpoint(strings.HasPrefix(fields[0], "*"))

	args := make([]int64, len(fields)-1)
	for i, f := range fields[1:] {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("bad operand %q: %w", f, err)
		}
		args[i] = n
	}

	switch op.OpcodeMask().Shape() {
	case Shape0:
		return encode(op, 0), nil
	case ShapeS:
		return EncodeS(op, int32(arg(args, 0))), nil
	case ShapeL:
		return EncodeS(op, int32(arg(args, 0))), nil
	case ShapeSS:
		return EncodeSS(op, uint8(arg(args, 0)), uint16(arg(args, 1))), nil
	case ShapeSI:
		return EncodeSI(op, uint8(arg(args, 0)), int16(arg(args, 1))), nil
	case ShapeSU, ShapeST, ShapeSC, ShapeSD:
		return EncodeSU(op, uint8(arg(args, 0)), uint16(arg(args, 1))), nil
	case ShapeSL:
		return EncodeSL(op, uint8(arg(args, 0)), int16(arg(args, 1))), nil
	case ShapeSSS, ShapeSSU, ShapeSES:
		return EncodeSSS(op, uint8(arg(args, 0)), uint8(arg(args, 1)), uint8(arg(args, 2))), nil
	case ShapeSSI:
		return EncodeSSI(op, uint8(arg(args, 0)), uint8(arg(args, 1)), int8(arg(args, 2))), nil
	}
	return 0, fmt.Errorf("unhandled shape for opcode %s", op)
}

func arg(args []int64, i int) int64 {
	if i >= len(args) {
		return 0
	}
	return args[i]
}
