package chunk

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/kristofer/loxvm/internal/value"
)

// ColorsEnabled gates the fatih/color styling applied by Disassemble and
// FormatInstruction. Tests and piped output (anything not a terminal)
// should set this false so assertions compare plain text.
var ColorsEnabled = true

var (
	offsetColor  = color.New(color.FgHiBlack)
	lineColor    = color.New(color.FgYellow)
	opColor      = color.New(color.FgCyan)
	operandColor = color.New(color.FgGreen)
)

func paint(c *color.Color, s string) string {
	if !ColorsEnabled {
		return s
	}
	return c.Sprint(s)
}

// Disassemble writes a human-readable listing of every instruction in c
// to w, labeled with name: an "offset: op operand" layout extended with
// source line numbers, in the style of a clox-family disassembleChunk.
func Disassemble(w io.Writer, c *Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = disassembleInstruction(w, c, offset)
	}
}

// FormatInstruction renders the single instruction at offset, returning
// the text and the offset of the following instruction.
func FormatInstruction(c *Chunk, offset int) (string, int) {
	var sb stringBuilder
	next := disassembleInstructionTo(&sb, c, offset)
	return sb.String(), next
}

func disassembleInstruction(w io.Writer, c *Chunk, offset int) int {
	var sb stringBuilder
	next := disassembleInstructionTo(&sb, c, offset)
	fmt.Fprintln(w, sb.String())
	return next
}

// stringBuilder is a tiny indirection so FormatInstruction doesn't need
// to import strings.Builder directly into this file's fmt.Fprint calls.
type stringBuilder struct {
	buf []byte
}

func (b *stringBuilder) Write(p []byte) (int, error) { b.buf = append(b.buf, p...); return len(p), nil }
func (b *stringBuilder) String() string              { return string(b.buf) }

func disassembleInstructionTo(w io.Writer, c *Chunk, offset int) int {
	fmt.Fprint(w, paint(offsetColor, fmt.Sprintf("%04d ", offset)))

	line := c.GetLine(offset)
	if offset > 0 && c.GetLine(offset-1) == line {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprint(w, paint(lineColor, fmt.Sprintf("%4d ", line)))
	}

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpClass, OpGetProperty, OpSetProperty, OpMethod, OpGetSuper:
		return constantInstruction(w, op, c, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(w, op, c, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(w, op, c, offset, 1)
	case OpLoop:
		return jumpInstruction(w, op, c, offset, -1)
	case OpInvoke, OpSuperInvoke:
		return invokeInstruction(w, op, c, offset)
	case OpClosure:
		return closureInstruction(w, c, offset)
	default:
		fmt.Fprintln(w, paint(opColor, op.String()))
		return offset + 1
	}
}

func simpleValue(c *Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return "<out of range>"
	}
	return value.Print(c.Constants[idx])
}

func constantInstruction(w io.Writer, op OpCode, c *Chunk, offset int) int {
	constIdx := int(c.Code[offset+1])
	fmt.Fprintf(w, "%s %s %s\n",
		paint(opColor, op.String()),
		paint(operandColor, fmt.Sprintf("%4d", constIdx)),
		paint(lineColor, "'"+simpleValue(c, constIdx)+"'"))
	return offset + 2
}

func byteInstruction(w io.Writer, op OpCode, c *Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(w, "%s %s\n", paint(opColor, op.String()), paint(operandColor, fmt.Sprintf("%4d", slot)))
	return offset + 2
}

func jumpInstruction(w io.Writer, op OpCode, c *Chunk, offset int, sign int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(w, "%s %s %s\n",
		paint(opColor, op.String()),
		paint(operandColor, fmt.Sprintf("%4d", offset)),
		paint(operandColor, fmt.Sprintf("-> %d", target)))
	return offset + 3
}

func invokeInstruction(w io.Writer, op OpCode, c *Chunk, offset int) int {
	constIdx := int(c.Code[offset+1])
	argCount := int(c.Code[offset+2])
	fmt.Fprintf(w, "%s (%d args) %s %s\n",
		paint(opColor, op.String()),
		argCount,
		paint(operandColor, fmt.Sprintf("%4d", constIdx)),
		paint(lineColor, "'"+simpleValue(c, constIdx)+"'"))
	return offset + 3
}

func closureInstruction(w io.Writer, c *Chunk, offset int) int {
	offset++
	constIdx := int(c.Code[offset])
	offset++
	fmt.Fprintf(w, "%s %s %s\n",
		paint(opColor, OpClosure.String()),
		paint(operandColor, fmt.Sprintf("%4d", constIdx)),
		paint(lineColor, "'"+simpleValue(c, constIdx)+"'"))

	if constIdx < len(c.Constants) {
		if fn, ok := c.Constants[constIdx].AsObject().(*value.FunctionObject); ok {
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[offset]
				offset++
				index := c.Code[offset]
				offset++
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				fmt.Fprintf(w, "%04d      |                     %s %d\n", offset-2, kind, index)
			}
		}
	}
	return offset
}
