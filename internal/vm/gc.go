package vm

import (
	"github.com/kristofer/loxvm/internal/chunk"
	"github.com/kristofer/loxvm/internal/table"
	"github.com/kristofer/loxvm/internal/value"
)

// gcGrowFactor is how much nextGC grows relative to the live heap size
// measured just after a collection.
const gcGrowFactor = 2

// collectGarbage runs one full tri-color mark-sweep cycle: mark every
// root, work the grey list to blacken reachable objects, drop
// unreachable strings from the intern table, then sweep the object
// list freeing everything left unmarked.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.sweepStrings()
	vm.sweep()

	vm.nextGC = vm.bytesAllocated * gcGrowFactor
}

// markRoots marks every root the collector must treat as always
// reachable: the value stack, the closures pinned by each active call
// frame, the open-upvalue list, the globals table, the interned "init"
// string, and the chain of in-progress compiler functions.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}

	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}

	for u := vm.openUpvalues; u != nil; u = u.NextOpen {
		vm.markObject(u)
	}

	vm.markTable(vm.globals)

	vm.markObject(vm.initString)

	for _, fn := range vm.compilerRoots {
		vm.markObject(fn)
	}
}

func (vm *VM) markValue(v value.Value) {
	if v.IsObject() {
		vm.markObject(v.AsObject())
	}
}

func (vm *VM) markTable(t *table.Table) {
	t.Each(func(key *value.StringObject, val value.Value) {
		vm.markObject(key)
		vm.markValue(val)
	})
}

// markObject marks o and pushes it onto the grey worklist, unless it is
// nil or already marked — the grey worklist avoids revisiting an
// object already marked.
func (vm *VM) markObject(o value.Object) {
	if o == nil || o.IsMarked() {
		return
	}
	o.SetMarked(true)
	vm.grayStack = append(vm.grayStack, o)
}

// traceReferences drains the grey worklist, blackening each object by
// marking everything it points to: pop an object off the grey
// worklist, mark everything it references, move it to black.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		last := len(vm.grayStack) - 1
		o := vm.grayStack[last]
		vm.grayStack = vm.grayStack[:last]
		vm.blacken(o)
	}
}

func (vm *VM) blacken(o value.Object) {
	switch obj := o.(type) {
	case *value.StringObject:
		// No outgoing references.
	case *value.NativeObject:
		// No outgoing references.
	case *value.FunctionObject:
		if obj.Name != nil {
			vm.markObject(obj.Name)
		}
		c := obj.Chunk.(*chunk.Chunk)
		for _, v := range c.Constants {
			vm.markValue(v)
		}
	case *value.ClosureObject:
		vm.markObject(obj.Function)
		for _, u := range obj.Upvalues {
			if u != nil {
				vm.markObject(u)
			}
		}
	case *value.UpvalueObject:
		vm.markValue(obj.Closed)
	case *value.ClassObject:
		vm.markObject(obj.Name)
		if methods, ok := obj.Methods.(*table.Table); ok {
			vm.markTable(methods)
		}
	case *value.InstanceObject:
		vm.markObject(obj.Class)
		if fields, ok := obj.Fields.(*table.Table); ok {
			vm.markTable(fields)
		}
	case *value.BoundMethodObject:
		vm.markValue(obj.Receiver)
		vm.markObject(obj.Method)
	}
}

// sweepStrings drops any interned string with no other surviving
// reference before the general sweep reclaims it.
func (vm *VM) sweepStrings() {
	vm.strings.RemoveUnless(func(key *value.StringObject) bool {
		return key.IsMarked()
	})
}

// sweep walks the intrusive object list, freeing (unlinking) every
// unmarked object and clearing the mark bit on every survivor so the
// next cycle starts clean.
func (vm *VM) sweep() {
	var prev value.Object
	cur := vm.objects

	for cur != nil {
		if cur.IsMarked() {
			cur.SetMarked(false)
			prev = cur
			cur = cur.GetNext()
			continue
		}

		cur = cur.GetNext()
		if prev == nil {
			vm.objects = cur
		} else {
			prev.SetNext(cur)
		}
		vm.bytesAllocated -= objectSize
	}
}
