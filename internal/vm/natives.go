package vm

import (
	"errors"
	"time"

	"github.com/kristofer/loxvm/internal/value"
)

// registerNatives installs the small set of built-in functions every
// loxvm program starts with: clock for benchmarking fib-style scripts,
// plus str/len/type so scripts can inspect values without a standard
// library of their own. Each is an ordinary global, shadowable like any
// other via GET_GLOBAL/SET_GLOBAL.
func registerNatives(vm *VM) {
	vm.defineNative("clock", 0, nativeClock)
	vm.defineNative("str", 1, vm.nativeStr)
	vm.defineNative("len", 1, nativeLen)
	vm.defineNative("type", 1, vm.nativeType)
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	nameObj := vm.InternString(name)
	vm.push(value.Obj(nameObj))
	native := vm.newNative(name, arity, fn)
	vm.push(value.Obj(native))
	vm.globals.Set(nameObj, vm.peek(0))
	vm.pop()
	vm.pop()
}

func nativeClock(args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

func (vm *VM) nativeStr(args []value.Value) (value.Value, error) {
	return value.Obj(vm.InternString(value.Print(args[0]))), nil
}

func nativeLen(args []value.Value) (value.Value, error) {
	if !value.IsString(args[0]) {
		return value.Nil, errors.New("len() expects a string")
	}
	return value.Number(float64(len(value.AsString(args[0]).Chars))), nil
}

func (vm *VM) nativeType(args []value.Value) (value.Value, error) {
	return value.Obj(vm.InternString(typeName(args[0]))), nil
}

func typeName(v value.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return "bool"
	case v.IsNumber():
		return "number"
	case v.IsObject():
		switch v.AsObject().(type) {
		case *value.StringObject:
			return "string"
		case *value.FunctionObject, *value.ClosureObject, *value.NativeObject, *value.BoundMethodObject:
			return "function"
		case *value.ClassObject:
			return "class"
		case *value.InstanceObject:
			return "instance"
		default:
			return "object"
		}
	default:
		return "object"
	}
}
