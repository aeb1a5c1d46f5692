// Package compiler implements loxvm's single-pass compiler: a Pratt
// (precedence-climbing) parser that emits bytecode directly into a
// chunk.Chunk, with no intermediate syntax tree, tracking lexical scope,
// locals, and upvalues as it goes.
//
// The overall token-consumption shape — current/previous token fields,
// an accumulated error list rather than aborting on the first mistake —
// is carried over from a recursive-descent parser's curTok/peekTok and
// addError pattern, generalized here to a single current/previous pair
// (Pratt parsing only ever needs one token of lookahead beyond the one
// just consumed) and to bytecode emission in place of AST construction.
package compiler

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/internal/chunk"
	"github.com/kristofer/loxvm/internal/lexer"
	"github.com/kristofer/loxvm/internal/value"
)

// maxLocals bounds a function's locals array; slot 0 is reserved, so a
// function may declare up to 255 additional locals before running out.
const maxLocals = 256

// maxUpvalues bounds a function's upvalue array the same way CALL's argc
// is bounded: a single byte operand.
const maxUpvalues = 256

// initializerName is the method name that makes a class method an
// initializer, invoked implicitly by CALL on a class.
const initializerName = "init"

// Heap is the subset of VM behavior the compiler needs in order to
// allocate GC-managed objects while parsing. Depending on this
// interface rather than importing the vm package keeps compiler ->
// {chunk, lexer, value} one-directional; vm implements Heap.
type Heap interface {
	// InternString returns the canonical *value.StringObject for chars,
	// allocating and registering one with the VM's heap only if an equal
	// string is not already interned.
	InternString(chars string) *value.StringObject

	// NewFunction allocates a function object linked into the VM's
	// object list, so the collector can eventually free it.
	NewFunction() *value.FunctionObject

	// PushCompilerRoot and PopCompilerRoot bracket the lifetime of one
	// in-progress function compilation. While a function's body is being
	// compiled, its FunctionObject isn't reachable from anywhere else
	// yet (it is only stored into the enclosing chunk's constant pool
	// once the body finishes) — the chain of in-progress compiler frames
	// is realized here as an explicit root stack owned by the VM rather
	// than a second traversal path through compiler internals, so the
	// collector can still find those functions if it runs mid-compile.
	PushCompilerRoot(fn *value.FunctionObject)
	PopCompilerRoot()
}

// FunctionType distinguishes the handful of ways a compiler frame gets
// its implicit behavior: what slot 0 is named, what a bare `return;`
// emits, and whether `this`/`super` are in scope.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeScript
	TypeMethod
	TypeInitializer
)

type local struct {
	name       string
	depth      int // -1 = declared but not yet initialized
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// frame is one compiler activation, one per function body being
// compiled (including the synthetic top-level script). Frames chain by
// enclosing pointer; the GC does not walk this chain, it finds each
// frame's function through the Heap's PushCompilerRoot stack.
type frame struct {
	enclosing  *frame
	function   *value.FunctionObject
	chunk      *chunk.Chunk
	typ        FunctionType
	locals     []local
	scopeDepth int
	upvalues   []upvalueRef
}

func (c *Compiler) newFrame(typ FunctionType, name string) *frame {
	fn := c.heap.NewFunction()
	// Root the function before interning its name: the intern itself can
	// allocate, and nothing else references fn yet.
	c.heap.PushCompilerRoot(fn)
	ch := chunk.New()
	fn.Chunk = ch
	if name != "" {
		fn.Name = c.heap.InternString(name)
	}

	f := &frame{enclosing: c.fr, function: fn, chunk: ch, typ: typ}

	// Slot 0 is reserved for the receiver in methods/initializers, empty
	// (unnamed, unreferenceable) for plain functions and the script.
	slot0 := local{depth: 0}
	if typ == TypeMethod || typ == TypeInitializer {
		slot0.name = "this"
	}
	f.locals = append(f.locals, slot0)
	return f
}

// classState tracks the innermost class being compiled, chained by
// enclosing pointer so nested class declarations (if ever parsed) don't
// clobber the outer one's `this`/`super` availability.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler holds all state for one compilation pass.
type Compiler struct {
	lex       *lexer.Lexer
	heap      Heap
	current   lexer.Token
	previous  lexer.Token
	hadError  bool
	panicMode bool
	errs      []string

	fr    *frame
	class *classState
}

// CompileError reports every accumulated compile error from one pass.
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Compile compiles source into a top-level script function. heap is used
// to intern identifier and string-literal constants onto the same heap
// the VM will later execute against.
func Compile(source string, heap Heap) (*value.FunctionObject, error) {
	c := &Compiler{
		lex:  lexer.New(source),
		heap: heap,
	}
	c.fr = c.newFrame(TypeScript, "")

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}

	fn := c.endFrame()
	if c.hadError {
		return nil, &CompileError{Messages: c.errs}
	}
	return fn, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.Next()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *Compiler) error(message string)          { c.errorAt(c.previous, message) }

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var where string
	switch tok.Type {
	case lexer.TokenEOF:
		where = " at end"
	case lexer.TokenError:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.errs = append(c.errs, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, message))
}

// synchronize discards tokens until it reaches a likely statement
// boundary, so one mistake doesn't cascade into a wall of spurious
// errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

// --- emission -----------------------------------------------------------

func (c *Compiler) currentChunk() *chunk.Chunk { return c.fr.chunk }

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op chunk.OpCode) {
	c.currentChunk().WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitOpByte(op chunk.OpCode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 65535 {
		c.error("loop body too large")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset & 0xff))
}

// emitJump emits a two-byte-operand jump instruction with a placeholder
// offset and returns the offset of the first placeholder byte, to be
// patched later by patchJump.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 65535 {
		c.error("too much code to jump over")
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitReturn() {
	if c.fr.typ == TypeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx, err := c.currentChunk().AddConstant(v)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(value.Obj(c.heap.InternString(name)))
}

// endFrame finishes the current frame, returning its finished function
// and popping back to the enclosing frame.
func (c *Compiler) endFrame() *value.FunctionObject {
	c.emitReturn()
	fn := c.fr.function
	fn.UpvalueCount = len(c.fr.upvalues)
	c.fr = c.fr.enclosing
	c.heap.PopCompilerRoot()
	return fn
}

// --- scope ---------------------------------------------------------------

func (c *Compiler) beginScope() { c.fr.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fr.scopeDepth--
	for len(c.fr.locals) > 0 && c.fr.locals[len(c.fr.locals)-1].depth > c.fr.scopeDepth {
		last := c.fr.locals[len(c.fr.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.fr.locals = c.fr.locals[:len(c.fr.locals)-1]
	}
}

// --- declarations ----------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(className.Lexeme)
	c.declareVariable()

	c.emitOpByte(chunk.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.class}
	c.class = cs

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		c.variable(false)
		if className.Lexeme == c.previous.Lexeme {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariableByName(className.Lexeme, false)
		c.emitOp(chunk.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariableByName(className.Lexeme, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // the class itself, left on stack for METHOD ops

	if cs.hasSuperclass {
		c.endScope()
	}
	c.class = cs.enclosing
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	name := c.previous.Lexeme
	nameConstant := c.identifierConstant(name)

	typ := TypeMethod
	if name == initializerName {
		typ = TypeInitializer
	}
	c.function(typ)
	c.emitOpByte(chunk.OpMethod, nameConstant)
}

func (c *Compiler) function(typ FunctionType) {
	name := c.previous.Lexeme
	c.fr = c.newFrame(typ, name)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.fr.function.Arity++
			if c.fr.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	upvalues := c.fr.upvalues
	fn := c.endFrame()

	c.emitOpByte(chunk.OpClosure, c.makeConstant(value.Obj(fn)))
	for _, uv := range upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

// --- statements ------------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fr.typ == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.fr.typ == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

// --- variables, locals, upvalues ------------------------------------------

// parseVariable consumes an identifier and, for a local, declares it;
// returns the constant-table index to use with DEFINE_GLOBAL (ignored
// for locals).
func (c *Compiler) parseVariable(message string) byte {
	c.consume(lexer.TokenIdentifier, message)
	c.declareVariable()
	if c.fr.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) declareVariable() {
	if c.fr.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := len(c.fr.locals) - 1; i >= 0; i-- {
		l := c.fr.locals[i]
		if l.depth != -1 && l.depth < c.fr.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	if len(c.fr.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fr.locals = append(c.fr.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.fr.scopeDepth == 0 {
		return
	}
	c.fr.locals[len(c.fr.locals)-1].depth = c.fr.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fr.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

// resolveLocal finds name in fr's locals, innermost first. Reading a
// local whose depth is still -1 (its own initializer is still being
// compiled, e.g. `var a = a;`) is a compile error rather than a read of
// stale stack data.
func (c *Compiler) resolveLocal(fr *frame, name string) int {
	for i := len(fr.locals) - 1; i >= 0; i-- {
		if fr.locals[i].name == name {
			if fr.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) resolveUpvalue(fr *frame, name string) int {
	if fr.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fr.enclosing, name); local != -1 {
		fr.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fr, byte(local), true)
	}
	if up := c.resolveUpvalue(fr.enclosing, name); up != -1 {
		return c.addUpvalue(fr, byte(up), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(fr *frame, index byte, isLocal bool) int {
	for i, uv := range fr.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fr.upvalues) >= maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fr.upvalues = append(fr.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fr.upvalues) - 1
}

func (c *Compiler) argumentList() byte {
	var argc int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if argc == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(argc)
}
