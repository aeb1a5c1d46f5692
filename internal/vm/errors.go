package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/internal/chunk"
)

// StackFrame is one entry of a RuntimeError's trace: the function name
// and the source line active in it at the moment the error was raised.
// loxvm's chunk-per-function model means that's all a frame needs here —
// no selector, no raw instruction pointer, callers only ever want the
// source line.
type StackFrame struct {
	Name string
	Line int
}

// RuntimeError is a loxvm runtime fault: an operand type mismatch, an
// undefined variable, a bad call target, and so on. Error() renders it
// the way the CLI and REPL print to stderr: the message first, then the
// call stack innermost-first.
type RuntimeError struct {
	Message string
	Trace   []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := 0; i < len(e.Trace); i++ {
		f := e.Trace[i]
		if f.Name == "" {
			fmt.Fprintf(&b, "\n[line %d] in script", f.Line)
		} else {
			fmt.Fprintf(&b, "\n[line %d] in %s()", f.Line, f.Name)
		}
	}
	return b.String()
}

// runtimeError builds a RuntimeError from the current call-frame stack,
// resets the VM's stack (the VM instance remains valid for subsequent
// REPL input), and returns it for Interpret to surface.
func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	err := &RuntimeError{Message: fmt.Sprintf(format, args...)}

	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		c := fn.Chunk.(*chunk.Chunk)
		line := c.GetLine(f.ip - 1)
		name := ""
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		err.Trace = append(err.Trace, StackFrame{Name: name, Line: line})
	}

	vm.resetStack()
	return err
}
