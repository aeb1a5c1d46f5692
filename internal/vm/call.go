package vm

import "github.com/kristofer/loxvm/internal/value"

// callValue dispatches CALL on the callee sitting at stack_top-argc-1,
// branching on its heap-object tag. It returns a *RuntimeError rather
// than panicking so the dispatch loop in run.go can fold it into the
// usual error path.
func (vm *VM) callValue(callee value.Value, argc int) *RuntimeError {
	if !callee.IsObject() {
		return vm.runtimeError("Can only call functions, methods, or classes.")
	}

	switch obj := callee.AsObject().(type) {
	case *value.ClosureObject:
		return vm.call(obj, argc)

	case *value.NativeObject:
		if obj.Arity >= 0 && argc != obj.Arity {
			return vm.runtimeError("Expected %d arguments but got %d.", obj.Arity, argc)
		}
		args := vm.stack[vm.stackTop-argc : vm.stackTop]
		result, err := obj.Function(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.stackTop -= argc + 1
		vm.push(result)
		return nil

	case *value.ClassObject:
		instanceSlot := vm.stackTop - argc - 1
		vm.stack[instanceSlot] = value.Obj(vm.newInstance(obj))
		if initializer, ok := obj.Methods.Get(vm.initString); ok {
			return vm.call(initializer.AsObject().(*value.ClosureObject), argc)
		}
		if argc != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argc)
		}
		return nil

	case *value.BoundMethodObject:
		vm.stack[vm.stackTop-argc-1] = obj.Receiver
		return vm.call(obj.Method, argc)

	default:
		return vm.runtimeError("Can only call functions, methods, or classes.")
	}
}

func (vm *VM) call(closure *value.ClosureObject, argc int) *RuntimeError {
	if argc != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("Stack overflow.")
	}

	vm.frames[vm.frameCount] = CallFrame{
		closure: closure,
		ip:      0,
		slots:   vm.stackTop - argc - 1,
	}
	vm.frameCount++
	return nil
}

// invoke combines GET_PROPERTY and CALL into one dispatch: a field of
// the same name shadows a method, same as an ordinary property read.
func (vm *VM) invoke(name *value.StringObject, argc int) *RuntimeError {
	receiver := vm.peek(argc)
	inst, ok := receiver.AsObject().(*value.InstanceObject)
	if !receiver.IsObject() || !ok {
		return vm.runtimeError("Only instances have properties.")
	}

	if field, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argc-1] = field
		return vm.callValue(field, argc)
	}

	return vm.invokeFromClass(inst.Class, name, argc)
}

func (vm *VM) invokeFromClass(cls *value.ClassObject, name *value.StringObject, argc int) *RuntimeError {
	method, ok := cls.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.AsObject().(*value.ClosureObject), argc)
}

// bindMethod resolves name on cls into a BoundMethodObject pairing the
// current stack-top receiver with the found closure, replacing the
// receiver on the stack — produced by GET_PROPERTY on an instance.
func (vm *VM) bindMethod(cls *value.ClassObject, name *value.StringObject) *RuntimeError {
	method, ok := cls.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.newBoundMethod(vm.peek(0), method.AsObject().(*value.ClosureObject))
	vm.pop()
	vm.push(value.Obj(bound))
	return nil
}
