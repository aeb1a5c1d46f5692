package value

import "fmt"

// ObjType tags the variant of a heap Object. Every heap object begins
// with a common header: {type tag, mark bit, next-in-allocation-list
// pointer}.
type ObjType byte

const (
	ObjString ObjType = iota
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
)

func (t ObjType) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjNative:
		return "native"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Object is satisfied by every heap-allocated value. The GC enumerates
// all live objects by walking Next from the VM's object-list head and
// uses Marked to implement the tri-color mark-sweep collector.
type Object interface {
	Kind() ObjType
	IsMarked() bool
	SetMarked(bool)
	GetNext() Object
	SetNext(Object)
}

// Header is embedded by every concrete Object implementation: a mark
// bit plus the intrusive next-in-allocation-list pointer that is the
// GC's only enumeration mechanism over the heap.
type Header struct {
	Marked bool
	Next   Object
}

func (h *Header) IsMarked() bool    { return h.Marked }
func (h *Header) SetMarked(m bool)  { h.Marked = m }
func (h *Header) GetNext() Object   { return h.Next }
func (h *Header) SetNext(o Object)  { h.Next = o }

// StringObject is a heap-allocated, interned string: byte length,
// 32-bit FNV-1a hash computed at allocation, and the character payload.
// Two live StringObjects with equal bytes never coexist — that
// invariant is enforced by the intern table (internal/table), not by
// this type itself.
type StringObject struct {
	Header
	Chars string
	Hash  uint32
}

func (*StringObject) Kind() ObjType { return ObjString }

// Chunk is the opaque payload of a FunctionObject's compiled body. It is
// declared here as `interface{}` (rather than *chunk.Chunk) solely to
// avoid value <-> chunk import cycle: chunk.Chunk.Constants is
// []value.Value, so chunk must import value, and value cannot also
// import chunk. Callers that need the concrete type type-assert it to
// *chunk.Chunk once, when a function starts executing.
type Chunk = interface{}

// FunctionObject is a compiled function or the synthetic top-level
// script.
type FunctionObject struct {
	Header
	Name         *StringObject // nil for the top-level script
	Arity        int
	UpvalueCount int
	Chunk        Chunk
}

func (*FunctionObject) Kind() ObjType { return ObjFunction }

// NativeFn is the signature of a built-in function implemented in Go:
// given already-evaluated arguments it returns a Value or an error that
// becomes a runtime error at the call site.
type NativeFn func(args []Value) (Value, error)

// NativeObject wraps a Go function exposed to loxvm programs as a
// callable.
type NativeObject struct {
	Header
	Name     string
	Arity    int
	Function NativeFn
}

func (*NativeObject) Kind() ObjType { return ObjNative }

// UpvalueObject is an indirect reference to a variable that outlives
// the stack frame that declared it. While Location points into a live
// VM stack slot the upvalue is "open"; once closed, Location points at
// Closed inside this same object and NextOpen is no longer meaningful.
type UpvalueObject struct {
	Header
	Location *Value
	Closed   Value
	NextOpen *UpvalueObject // only valid while open; VM's open-upvalue list link
}

func (*UpvalueObject) Kind() ObjType { return ObjUpvalue }

// Close copies the referenced value into this upvalue's own storage and
// redirects Location to point at it.
func (u *UpvalueObject) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ClosureObject pairs a FunctionObject with the upvalues it captured at
// creation time.
type ClosureObject struct {
	Header
	Function *FunctionObject
	Upvalues []*UpvalueObject
}

func (*ClosureObject) Kind() ObjType { return ObjClosure }

// StringTable is the subset of internal/table.Table's API that the
// object model needs for class method tables and instance field
// tables. Declaring it here (rather than importing the table package
// directly) keeps value a leaf package; internal/table.Table satisfies
// this interface.
type StringTable interface {
	Get(key *StringObject) (Value, bool)
	Set(key *StringObject, val Value) bool
	Delete(key *StringObject) bool
	Each(fn func(key *StringObject, val Value))
}

// ClassObject is a class: a name and a method table. Single
// inheritance is realized at INHERIT time by copying the superclass's
// methods into the subclass's own table, so a ClassObject never needs a
// superclass pointer at runtime.
type ClassObject struct {
	Header
	Name    *StringObject
	Methods StringTable
}

func (*ClassObject) Kind() ObjType { return ObjClass }

// InstanceObject is a runtime object: the class it was created from plus its
// own field table. Method lookup on an instance checks fields first,
// then the class's method table — implemented by the VM, not here,
// since it additionally needs call-frame semantics.
type InstanceObject struct {
	Header
	Class  *ClassObject
	Fields StringTable
}

func (*InstanceObject) Kind() ObjType { return ObjInstance }

// BoundMethodObject pairs a receiver with the closure to invoke when the
// bound method is called — produced by GET_PROPERTY resolving a method
// name on an instance.
type BoundMethodObject struct {
	Header
	Receiver Value
	Method   *ClosureObject
}

func (*BoundMethodObject) Kind() ObjType { return ObjBoundMethod }

func printObject(o Object) string {
	switch obj := o.(type) {
	case *StringObject:
		return obj.Chars
	case *FunctionObject:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Name.Chars)
	case *NativeObject:
		return fmt.Sprintf("<native fn %s>", obj.Name)
	case *ClosureObject:
		return printObject(obj.Function)
	case *UpvalueObject:
		return "<upvalue>"
	case *ClassObject:
		return obj.Name.Chars
	case *InstanceObject:
		return fmt.Sprintf("<class %s instance>", obj.Class.Name.Chars)
	case *BoundMethodObject:
		return printObject(obj.Method)
	default:
		return "<object>"
	}
}

// IsString reports whether v holds a *StringObject.
func IsString(v Value) bool {
	return v.IsObject() && v.AsObject().Kind() == ObjString
}

// AsString asserts v to *StringObject; callers must check IsString (or
// know statically) first, matching the unchecked AsX accessors above.
func AsString(v Value) *StringObject { return v.AsObject().(*StringObject) }
