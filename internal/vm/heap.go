package vm

import (
	"unsafe"

	"github.com/kristofer/loxvm/internal/table"
	"github.com/kristofer/loxvm/internal/value"
)

// objectSize is a coarse, fixed per-object accounting unit. loxvm
// doesn't track exact byte sizes of Go allocations (the runtime doesn't
// expose them); bytesAllocated only needs to grow monotonically with
// live heap objects so the next_gc threshold in gc.go has something
// meaningful to compare against.
const objectSize = 48

// track links a freshly allocated object at the head of the VM's object
// list and charges its size against bytesAllocated, running a collection
// first if StressGC is set or the threshold has been crossed.
func (vm *VM) track(o value.Object) {
	vm.bytesAllocated += objectSize
	if vm.StressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
	o.SetNext(vm.objects)
	vm.objects = o
}

// InternString implements compiler.Heap: it returns the canonical
// *value.StringObject for chars, allocating and tracking a new one only
// if an equal string isn't already interned. The nascent string is
// pushed onto the VM stack before the table insertion and popped after:
// interning is itself an allocating call that could trigger a collection
// before the string is stored anywhere else reachable.
func (vm *VM) InternString(chars string) *value.StringObject {
	hash := value.HashString(chars)
	if existing := vm.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.StringObject{Chars: chars, Hash: hash}
	vm.push(value.Obj(s))
	vm.track(s)
	vm.strings.Set(s, value.Bool(true))
	vm.pop()
	return s
}

// concatenate allocates the string produced by `a + b` where both
// operands are strings.
func (vm *VM) concatenate(a, b *value.StringObject) *value.StringObject {
	return vm.InternString(a.Chars + b.Chars)
}

// NewFunction implements compiler.Heap.
func (vm *VM) NewFunction() *value.FunctionObject {
	fn := &value.FunctionObject{}
	vm.track(fn)
	return fn
}

// PushCompilerRoot and PopCompilerRoot implement compiler.Heap (see its
// doc comment): they keep an in-progress function reachable for the
// GC's compiler-chain root while its body is still being compiled.
func (vm *VM) PushCompilerRoot(fn *value.FunctionObject) {
	vm.compilerRoots = append(vm.compilerRoots, fn)
}

func (vm *VM) PopCompilerRoot() {
	vm.compilerRoots = vm.compilerRoots[:len(vm.compilerRoots)-1]
}

func (vm *VM) newClosure(fn *value.FunctionObject) *value.ClosureObject {
	cl := &value.ClosureObject{
		Function: fn,
		Upvalues: make([]*value.UpvalueObject, fn.UpvalueCount),
	}
	vm.track(cl)
	return cl
}

func (vm *VM) newClass(name *value.StringObject) *value.ClassObject {
	cls := &value.ClassObject{Name: name, Methods: table.New()}
	vm.track(cls)
	return cls
}

func (vm *VM) newInstance(cls *value.ClassObject) *value.InstanceObject {
	inst := &value.InstanceObject{Class: cls, Fields: table.New()}
	vm.track(inst)
	return inst
}

func (vm *VM) newBoundMethod(receiver value.Value, method *value.ClosureObject) *value.BoundMethodObject {
	bm := &value.BoundMethodObject{Receiver: receiver, Method: method}
	vm.track(bm)
	return bm
}

func (vm *VM) newNative(name string, arity int, fn value.NativeFn) *value.NativeObject {
	n := &value.NativeObject{Name: name, Arity: arity, Function: fn}
	vm.track(n)
	return n
}

// captureUpvalue finds or creates the upvalue for the stack slot at
// absolute index slot, keeping the open-upvalue list sorted by
// descending stack address.
func (vm *VM) captureUpvalue(slot int) *value.UpvalueObject {
	var prev *value.UpvalueObject
	cur := vm.openUpvalues
	for cur != nil && vm.slotOf(cur) > slot {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && vm.slotOf(cur) == slot {
		return cur
	}

	created := &value.UpvalueObject{Location: &vm.stack[slot]}
	vm.track(created)
	created.NextOpen = cur

	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// slotOf recovers the absolute stack index an open upvalue's Location
// points at. The stack is a fixed array field (never reallocated), so a
// pointer into it stays valid for the VM's lifetime; unsafe is only used
// here to recover the index the open-upvalue list's ordering compares by.
func (vm *VM) slotOf(u *value.UpvalueObject) int {
	base := unsafe.Pointer(&vm.stack[0])
	ptr := unsafe.Pointer(u.Location)
	return int((uintptr(ptr) - uintptr(base)) / unsafe.Sizeof(vm.stack[0]))
}

// closeUpvalues closes every open upvalue at or above absolute stack
// index last.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.slotOf(vm.openUpvalues) >= last {
		u := vm.openUpvalues
		u.Close()
		vm.openUpvalues = u.NextOpen
	}
}
