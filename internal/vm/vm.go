// Package vm implements the bytecode virtual machine for loxvm.
//
// The VM is a stack-based interpreter that executes the bytecode
// produced by internal/compiler. It is the final stage in the execution
// pipeline:
//
//	Source text -> lexer -> compiler -> function + chunk -> VM -> side effects
//
// Execution model:
//
// Call frames form a stack: each frame points at a closure, an
// instruction pointer into that closure's function's chunk, and a base
// slot into the shared value stack. Most opcodes pop their operands from
// the top of that stack and push their result back, the uniform stack
// discipline common to clox-family dispatch loops — generalized here
// from a single flat instruction array to one chunk per function plus
// explicit call frames, since this VM supports real recursion and
// closures.
//
// The VM also owns the heap: the intrusive object list the collector
// sweeps, the string intern table, and the allocation counters that
// trigger collection (internal/vm/gc.go).
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/kristofer/loxvm/internal/chunk"
	"github.com/kristofer/loxvm/internal/compiler"
	"github.com/kristofer/loxvm/internal/table"
	"github.com/kristofer/loxvm/internal/value"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// CallFrame is one activation record on the VM's call-frame stack.
type CallFrame struct {
	closure *value.ClosureObject
	ip      int
	slots   int // base index into vm.stack for this frame's locals
}

// VM owns every piece of mutable interpreter state: the value stack, the
// call-frame stack, the heap object list, the string intern table, the
// globals table, and the GC bookkeeping. Keeping module-level globals
// for any of this is deliberately avoided; loxvm bundles it all here in
// one struct passed explicitly to every operation.
type VM struct {
	stack    [stackMax]value.Value
	stackTop int

	frames     [framesMax]CallFrame
	frameCount int

	globals *table.Table
	strings *table.Table

	initString *value.StringObject

	openUpvalues *value.UpvalueObject // head of descending-address list

	objects value.Object // head of the intrusive heap object list

	bytesAllocated int
	nextGC         int
	grayStack      []value.Object

	compilerRoots []*value.FunctionObject

	// StressGC forces a collection before every allocation, for tests
	// that want to exercise the collector aggressively.
	StressGC bool

	Stdout io.Writer
	Stderr io.Writer
}

// New returns a ready-to-use VM with empty globals and an interned
// "init" string cached for initializer dispatch.
func New() *VM {
	vm := &VM{
		globals: table.New(),
		strings: table.New(),
		nextGC:  1 << 20,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	vm.initString = vm.InternString(initializerName)
	registerNatives(vm)
	return vm
}

const initializerName = "init"

// InterpretResult distinguishes why Interpret returned, matching the
// CLI's exit-code contract.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// Interpret compiles and runs source in one shot — the shape the REPL
// calls once per line and the file runner calls once for a whole
// program.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	fn, err := compiler.Compile(source, vm)
	if err != nil {
		fmt.Fprintln(vm.Stderr, err.Error())
		return InterpretCompileError, err
	}

	// The finished function is no longer a compiler root; keep it on the
	// stack while the closure wrapping it is allocated.
	vm.push(value.Obj(fn))
	closure := vm.newClosure(fn)
	vm.pop()
	vm.push(value.Obj(closure))
	if cerr := vm.callValue(value.Obj(closure), 0); cerr != nil {
		fmt.Fprintln(vm.Stderr, cerr.Error())
		return InterpretRuntimeError, cerr
	}

	if rerr := vm.run(); rerr != nil {
		fmt.Fprintln(vm.Stderr, rerr.Error())
		return InterpretRuntimeError, rerr
	}
	return InterpretOK, nil
}

// --- stack helpers ---------------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

// --- bytecode fetch --------------------------------------------------------

func (vm *VM) readByte(f *CallFrame) byte {
	c := f.closure.Function.Chunk.(*chunk.Chunk)
	b := c.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort(f *CallFrame) uint16 {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant(f *CallFrame) value.Value {
	c := f.closure.Function.Chunk.(*chunk.Chunk)
	return c.Constants[vm.readByte(f)]
}

func (vm *VM) readString(f *CallFrame) *value.StringObject {
	return value.AsString(vm.readConstant(f))
}
