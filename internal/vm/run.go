package vm

import (
	"fmt"

	"github.com/kristofer/loxvm/internal/chunk"
	"github.com/kristofer/loxvm/internal/table"
	"github.com/kristofer/loxvm/internal/value"
)

// run is the dispatch loop: fetch one opcode byte, switch on it, repeat.
// Every case completes before the next begins — there is no yielding
// mid-instruction.
func (vm *VM) run() *RuntimeError {
	for {
		f := vm.currentFrame()
		op := chunk.OpCode(vm.readByte(f))

		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant(f))

		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := int(vm.readByte(f))
			vm.push(vm.stack[f.slots+slot])
		case chunk.OpSetLocal:
			slot := int(vm.readByte(f))
			vm.stack[f.slots+slot] = vm.peek(0)

		case chunk.OpGetUpvalue:
			idx := vm.readByte(f)
			vm.push(*f.closure.Upvalues[idx].Location)
		case chunk.OpSetUpvalue:
			idx := vm.readByte(f)
			*f.closure.Upvalues[idx].Location = vm.peek(0)

		case chunk.OpGetGlobal:
			name := vm.readString(f)
			val, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(val)
		case chunk.OpDefineGlobal:
			name := vm.readString(f)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := vm.readString(f)
			if wasNew := vm.globals.Set(name, vm.peek(0)); wasNew {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case chunk.OpGetProperty:
			if err := vm.getProperty(f); err != nil {
				return err
			}
		case chunk.OpSetProperty:
			if err := vm.setProperty(f); err != nil {
				return err
			}
		case chunk.OpGetSuper:
			name := vm.readString(f)
			superclass := vm.pop().AsObject().(*value.ClassObject)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpGreater:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}

		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}

		case chunk.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case chunk.OpPrint:
			fmt.Fprintln(vm.Stdout, value.Print(vm.pop()))

		case chunk.OpJump:
			offset := vm.readShort(f)
			f.ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readShort(f)
			if vm.peek(0).IsFalsey() {
				f.ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readShort(f)
			f.ip -= int(offset)

		case chunk.OpCall:
			argc := int(vm.readByte(f))
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
		case chunk.OpInvoke:
			name := vm.readString(f)
			argc := int(vm.readByte(f))
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
		case chunk.OpSuperInvoke:
			name := vm.readString(f)
			argc := int(vm.readByte(f))
			superclass := vm.pop().AsObject().(*value.ClassObject)
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}

		case chunk.OpClosure:
			fn := vm.readConstant(f).AsObject().(*value.FunctionObject)
			closure := vm.newClosure(fn)
			vm.push(value.Obj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(f)
				index := vm.readByte(f)
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(f.slots + int(index))
				} else {
					closure.Upvalues[i] = f.closure.Upvalues[index]
				}
			}
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the top-level script closure itself
				return nil
			}
			vm.stackTop = f.slots
			vm.push(result)

		case chunk.OpClass:
			name := vm.readString(f)
			vm.push(value.Obj(vm.newClass(name)))

		case chunk.OpInherit:
			if err := vm.inherit(); err != nil {
				return err
			}

		case chunk.OpMethod:
			name := vm.readString(f)
			method := vm.peek(0)
			cls := vm.peek(1).AsObject().(*value.ClassObject)
			cls.Methods.Set(name, method)
			vm.pop()

		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

func (vm *VM) binaryNumberOp(apply func(a, b float64) value.Value) *RuntimeError {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop(), vm.pop()
	vm.push(apply(a.AsNumber(), b.AsNumber()))
	return nil
}

func (vm *VM) add() *RuntimeError {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case value.IsString(a) && value.IsString(b):
		// Operands stay on the stack until the result exists, so a
		// collection triggered by the allocation can still reach them.
		result := vm.concatenate(value.AsString(a), value.AsString(b))
		vm.pop()
		vm.pop()
		vm.push(value.Obj(result))
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

func (vm *VM) getProperty(f *CallFrame) *RuntimeError {
	name := vm.readString(f)
	receiver := vm.peek(0)
	inst, ok := receiver.AsObject().(*value.InstanceObject)
	if !receiver.IsObject() || !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	if field, ok := inst.Fields.Get(name); ok {
		vm.pop()
		vm.push(field)
		return nil
	}
	return vm.bindMethod(inst.Class, name)
}

func (vm *VM) setProperty(f *CallFrame) *RuntimeError {
	name := vm.readString(f)
	receiver := vm.peek(1)
	inst, ok := receiver.AsObject().(*value.InstanceObject)
	if !receiver.IsObject() || !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	inst.Fields.Set(name, vm.peek(0))
	v := vm.pop()
	vm.pop()
	vm.push(v)
	return nil
}

func (vm *VM) inherit() *RuntimeError {
	superVal := vm.peek(1)
	superclass, ok := superVal.AsObject().(*value.ClassObject)
	if !superVal.IsObject() || !ok {
		return vm.runtimeError("Superclass must be a class.")
	}
	subclass := vm.peek(0).AsObject().(*value.ClassObject)
	table.AddAll(superclass.Methods.(*table.Table), subclass.Methods.(*table.Table))
	vm.pop() // the subclass value pushed solely for this copy
	return nil
}
