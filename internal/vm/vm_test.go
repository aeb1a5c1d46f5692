package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (string, *VM) {
	t.Helper()
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	result, err := machine.Interpret(source)
	if err != nil {
		t.Logf("interpret result=%v err=%v stderr=%s", result, err, errOut.String())
	}
	return out.String(), machine
}

func runExpectError(t *testing.T, source string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	_, err := machine.Interpret(source)
	require.Error(t, err)
	return errOut.String()
}

func TestArithmeticPrecedence(t *testing.T) {
	out, _ := run(t, `print 1 + 2 * 3;`)
	require.Equal(t, "7\n", out)
}

func TestStringInterningEquality(t *testing.T) {
	out, _ := run(t, `
		var a = "hello" + " " + "world";
		var b = "hello world";
		print a == b;
	`)
	require.Equal(t, "true\n", out)
}

func TestFibonacciRecursion(t *testing.T) {
	out, _ := run(t, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	require.Equal(t, "55\n", out)
}

func TestClosureCounter(t *testing.T) {
	out, _ := run(t, `
		fun makeCounter() {
			var count = 0;
			fun counter() {
				count = count + 1;
				return count;
			}
			return counter;
		}
		var c = makeCounter();
		print c();
		print c();
		print c();
	`)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestClassInheritanceAndSuper(t *testing.T) {
	out, _ := run(t, `
		class Animal {
			speak() {
				print "...";
			}
		}
		class Dog < Animal {
			speak() {
				super.speak();
				print "Woof";
			}
		}
		Dog().speak();
	`)
	require.Equal(t, "...\nWoof\n", out)
}

func TestInitializerAndThis(t *testing.T) {
	out, _ := run(t, `
		class Point {
			init(x, y) {
				this.x = x;
				this.y = y;
			}
			sum() {
				return this.x + this.y;
			}
		}
		var p = Point(3, 4);
		print p.sum();
	`)
	require.Equal(t, "7\n", out)
}

func TestStressGCKeepsValuesAlive(t *testing.T) {
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	machine.StressGC = true

	_, err := machine.Interpret(`
		class Node {
			init(value, next) {
				this.value = value;
				this.next = next;
			}
		}
		var list = nil;
		var i = 0;
		while (i < 50) {
			list = Node(i, list);
			i = i + 1;
		}
		var n = list;
		var sum = 0;
		while (n != nil) {
			sum = sum + n.value;
			n = n.next;
		}
		print sum;
	`)
	require.NoError(t, err)
	require.Equal(t, "1225\n", out.String())
}

func TestFieldShadowsMethod(t *testing.T) {
	out, _ := run(t, `
		class Box {
			value() { return "method"; }
		}
		var b = Box();
		b.value = "field";
		print b.value;
	`)
	require.Equal(t, "field\n", out)
}

func TestStackOverflowIsRuntimeError(t *testing.T) {
	stderr := runExpectError(t, `
		fun recurse() {
			return recurse();
		}
		recurse();
	`)
	require.Contains(t, stderr, "Stack overflow.")
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	stderr := runExpectError(t, `
		fun add(a, b) { return a + b; }
		add(1);
	`)
	require.Contains(t, stderr, "Expected 2 arguments but got 1.")
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	stderr := runExpectError(t, `print nope;`)
	require.Contains(t, stderr, "Undefined variable 'nope'.")
}

func TestRuntimeErrorPrintsStackTrace(t *testing.T) {
	stderr := runExpectError(t, `
		fun inner() { return 1 + nil; }
		fun outer() { return inner(); }
		outer();
	`)
	require.Contains(t, stderr, "Operands must be two numbers or two strings.")
	require.Contains(t, stderr, "in inner()")
	require.Contains(t, stderr, "in outer()")
	require.Contains(t, stderr, "in script")
}

func TestVMRemainsUsableAfterRuntimeError(t *testing.T) {
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut

	_, err := machine.Interpret(`var a = 1; print a + nil;`)
	require.Error(t, err)

	// Globals defined before the error survive; the same VM keeps working.
	_, err = machine.Interpret(`print a;`)
	require.NoError(t, err)
	require.Contains(t, out.String(), "1\n")
}

func TestNativeClockAndType(t *testing.T) {
	out, _ := run(t, `
		print type(1);
		print type("s");
		print type(nil);
		print type(true);
		print clock() >= 0;
	`)
	require.Equal(t, "number\nstring\nnil\nbool\ntrue\n", out)
}
