// Package value implements loxvm's dynamic Value representation and heap
// object model. A Value is a small tagged union of {nil,
// bool, number, object pointer}; heap objects (strings, functions,
// closures, upvalues, classes, instances, bound methods) all share a
// common Header that the garbage collector uses to walk and mark the
// object graph.
//
// This package intentionally knows nothing about bytecode chunks or
// hash tables: FunctionObject.Chunk is stored as an opaque interface{}
// (the concrete *chunk.Chunk lives in the chunk package, which itself
// depends on value for its constant pool) and ClassObject/InstanceObject
// store their members behind the StringTable interface (implemented by
// the table package) rather than a concrete struct, so that value has
// no import-cycle dependency on either.
package value

import "strconv"

// Type is the tag discriminating a Value's active representation.
type Type byte

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeObject
)

// Value is a dynamically typed datum: nil, a boolean, an IEEE-754
// double, or a pointer to a heap Object. Values are small and copied by
// value throughout the VM and compiler. A NaN-boxed 64-bit-word
// representation is an equally valid alternative encoding for the same
// semantics; this package picks the simpler tagged-variant form.
type Value struct {
	typ    Type
	b      bool
	number float64
	obj    Object
}

// Nil is the canonical nil Value.
var Nil = Value{typ: TypeNil}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{typ: TypeNumber, number: n} }

// Obj wraps a heap object pointer. Passing a nil Object is a caller bug
// (use Nil instead); it is not guarded against since it only matters for
// hand-written VM internals, not user-facing behavior.
func Obj(o Object) Value { return Value{typ: TypeObject, obj: o} }

func (v Value) Type() Type { return v.typ }

func (v Value) IsNil() bool    { return v.typ == TypeNil }
func (v Value) IsBool() bool   { return v.typ == TypeBool }
func (v Value) IsNumber() bool { return v.typ == TypeNumber }
func (v Value) IsObject() bool { return v.typ == TypeObject }

func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObject() Object  { return v.obj }

// IsFalsey reports whether v is falsey under loxvm's truthiness rule:
// nil and boolean false are falsey, everything else (including 0 and
// "") is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.b)
}

// Equal implements loxvm's `==`: total across tags (different types are
// always unequal), pointer identity for objects (safe because strings
// are interned), and ordinary IEEE-754 comparison for numbers — so NaN
// is never equal to itself, even boxed.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNil:
		return true
	case TypeBool:
		return a.b == b.b
	case TypeNumber:
		return a.number == b.number
	case TypeObject:
		return a.obj == b.obj
	default:
		return false
	}
}

// Print renders v the way the `print` statement and the REPL do: nil ->
// "nil", bools -> "true"/"false", numbers -> shortest round-trip
// decimal, strings -> raw bytes, functions -> "<fn NAME>" or "<script>",
// classes -> class name, instances -> "<class NAME instance>", bound
// methods -> like the underlying function.
func Print(v Value) string {
	switch v.typ {
	case TypeNil:
		return "nil"
	case TypeBool:
		if v.b {
			return "true"
		}
		return "false"
	case TypeNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case TypeObject:
		return printObject(v.obj)
	default:
		return "<invalid value>"
	}
}
