package compiler

import (
	"strings"
	"testing"

	"github.com/kristofer/loxvm/internal/chunk"
	"github.com/kristofer/loxvm/internal/table"
	"github.com/kristofer/loxvm/internal/value"
	"github.com/stretchr/testify/require"
)

// testHeap backs Compile in tests with a plain intern table and no
// object-list bookkeeping, since compiler tests only inspect emitted
// bytecode, never run the GC.
type testHeap struct {
	strings *table.Table
}

func newTestHeap() *testHeap { return &testHeap{strings: table.New()} }

func (h *testHeap) InternString(chars string) *value.StringObject {
	return table.Intern(h.strings, chars)
}

func (h *testHeap) NewFunction() *value.FunctionObject { return &value.FunctionObject{} }
func (h *testHeap) PushCompilerRoot(fn *value.FunctionObject) {}
func (h *testHeap) PopCompilerRoot() {}

func compile(t *testing.T, source string) *value.FunctionObject {
	t.Helper()
	fn, err := Compile(source, newTestHeap())
	require.NoError(t, err)
	return fn
}

func compileErr(t *testing.T, source string) error {
	t.Helper()
	_, err := Compile(source, newTestHeap())
	require.Error(t, err)
	return err
}

func opcodes(fn *value.FunctionObject) []chunk.OpCode {
	c := fn.Chunk.(*chunk.Chunk)
	var ops []chunk.OpCode
	for offset := 0; offset < len(c.Code); {
		op := chunk.OpCode(c.Code[offset])
		ops = append(ops, op)
		_, next := chunk.FormatInstruction(c, offset)
		offset = next
	}
	return ops
}

func TestArithmeticPrecedence(t *testing.T) {
	fn := compile(t, "print 1 + 2 * 3;")
	ops := opcodes(fn)
	require.Contains(t, ops, chunk.OpMultiply)
	require.Contains(t, ops, chunk.OpAdd)
	require.Contains(t, ops, chunk.OpPrint)
	// multiply must be emitted before add (it binds tighter).
	mulIdx, addIdx := indexOf(ops, chunk.OpMultiply), indexOf(ops, chunk.OpAdd)
	require.Less(t, mulIdx, addIdx)
}

func TestGlobalVarRoundTrip(t *testing.T) {
	fn := compile(t, "var a = 1; print a;")
	ops := opcodes(fn)
	require.Contains(t, ops, chunk.OpDefineGlobal)
	require.Contains(t, ops, chunk.OpGetGlobal)
}

func TestLocalsDoNotEmitGlobalOps(t *testing.T) {
	fn := compile(t, "{ var a = 1; print a; }")
	ops := opcodes(fn)
	require.NotContains(t, ops, chunk.OpDefineGlobal)
	require.Contains(t, ops, chunk.OpGetLocal)
}

func TestIfElseEmitsJumps(t *testing.T) {
	fn := compile(t, `if (true) { print 1; } else { print 2; }`)
	ops := opcodes(fn)
	require.Contains(t, ops, chunk.OpJumpIfFalse)
	require.Contains(t, ops, chunk.OpJump)
}

func TestWhileEmitsLoop(t *testing.T) {
	fn := compile(t, `var i = 0; while (i < 3) { i = i + 1; }`)
	ops := opcodes(fn)
	require.Contains(t, ops, chunk.OpLoop)
}

func TestFunctionClosesOverUpvalue(t *testing.T) {
	fn := compile(t, `
		fun counter() {
			var i = 0;
			fun inc() { i = i + 1; return i; }
			return inc;
		}
	`)
	ops := opcodes(fn)
	require.Contains(t, ops, chunk.OpClosure)
}

func TestClassWithSuperclassEmitsInherit(t *testing.T) {
	fn := compile(t, `
		class A { greet() { print "A"; } }
		class B < A { greet() { super.greet(); } }
	`)
	ops := opcodes(fn)
	require.Contains(t, ops, chunk.OpInherit)

	// super.greet() is compiled into the method's own chunk, not the script's.
	var methodOps []chunk.OpCode
	for _, k := range fn.Chunk.(*chunk.Chunk).Constants {
		if k.IsObject() {
			if f, ok := k.AsObject().(*value.FunctionObject); ok {
				methodOps = append(methodOps, opcodes(f)...)
			}
		}
	}
	require.Contains(t, methodOps, chunk.OpSuperInvoke)
}

func TestClassInitializerUsesSlotZeroReturn(t *testing.T) {
	fn := compile(t, `class P { init(x) { this.x = x; } }`)
	// Find the init method's compiled function among the constants.
	c := fn.Chunk.(*chunk.Chunk)
	var initFn *value.FunctionObject
	for _, k := range c.Constants {
		if k.IsObject() {
			if f, ok := k.AsObject().(*value.FunctionObject); ok && f.Name != nil && f.Name.Chars == "init" {
				initFn = f
			}
		}
	}
	require.NotNil(t, initFn)
	initChunk := initFn.Chunk.(*chunk.Chunk)
	// Trailing implicit return must be GET_LOCAL 0; RETURN.
	n := len(initChunk.Code)
	require.Equal(t, byte(chunk.OpReturn), initChunk.Code[n-1])
	require.Equal(t, byte(chunk.OpGetLocal), initChunk.Code[n-3])
}

func TestTooManyLocalsIsCompileError(t *testing.T) {
	src := "{\n"
	for i := 0; i < 300; i++ {
		src += "var v" + itoa(i) + " = 0;\n"
	}
	src += "}\n"
	compileErr(t, src)
}

func TestParameterCountBoundary(t *testing.T) {
	params := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("p" + itoa(i))
		}
		return sb.String()
	}

	compile(t, "fun f("+params(255)+") { return 0; }")

	err := compileErr(t, "fun f("+params(256)+") { return 0; }")
	require.Contains(t, err.Error(), "255 parameters")
}

func TestThisOutsideClassIsError(t *testing.T) {
	compileErr(t, "print this;")
}

func TestSuperOutsideClassIsError(t *testing.T) {
	compileErr(t, "fun f() { super.x(); }")
}

func TestReturnFromTopLevelIsError(t *testing.T) {
	compileErr(t, "return 1;")
}

func TestInheritFromSelfIsError(t *testing.T) {
	compileErr(t, "class A < A {}")
}

func TestLocalReadInOwnInitializerIsError(t *testing.T) {
	err := compileErr(t, "{ var a = a; }")
	require.Contains(t, err.Error(), "own initializer")
}

func TestTooManyUpvaluesIsCompileError(t *testing.T) {
	// A chain of nested functions, each declaring one local; the innermost
	// body reads every enclosing local by name, so its own upvalue table
	// (one entry per distinct captured name) ends up one entry past what
	// fits in a byte operand. Its own local (v(depth-1)) resolves locally,
	// not as an upvalue, so depth-1 names must exceed the 256 limit.
	const depth = 258
	var open, names strings.Builder
	for i := 0; i < depth; i++ {
		open.WriteString("fun f" + itoa(i) + "() {\n  var v" + itoa(i) + " = " + itoa(i) + ";\n")
		if i > 0 {
			names.WriteString(" + ")
		}
		names.WriteString("v" + itoa(i))
	}
	var src strings.Builder
	src.WriteString(open.String())
	src.WriteString("  return " + names.String() + ";\n")
	for i := 0; i < depth; i++ {
		src.WriteString("}\n")
	}
	compileErr(t, src.String())
}

func indexOf(ops []chunk.OpCode, target chunk.OpCode) int {
	for i, op := range ops {
		if op == target {
			return i
		}
	}
	return -1
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
