package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthiness(t *testing.T) {
	require.True(t, Nil.IsFalsey())
	require.True(t, Bool(false).IsFalsey())
	require.False(t, Bool(true).IsFalsey())
	require.False(t, Number(0).IsFalsey())
	require.False(t, Obj(&StringObject{Chars: ""}).IsFalsey())
}

func TestEqualAcrossTypesIsFalse(t *testing.T) {
	require.False(t, Equal(Nil, Bool(false)))
	require.False(t, Equal(Number(0), Bool(false)))
	require.True(t, Equal(Nil, Nil))
}

func TestNaNNeverEqualsItself(t *testing.T) {
	nan := Number(math.NaN())
	require.False(t, Equal(nan, nan))
}

func TestObjectEqualityIsPointerIdentity(t *testing.T) {
	a := &StringObject{Chars: "hi"}
	b := &StringObject{Chars: "hi"}
	require.False(t, Equal(Obj(a), Obj(b)), "distinct allocations must compare unequal without interning")
	require.True(t, Equal(Obj(a), Obj(a)))
}

func TestPrintFormats(t *testing.T) {
	require.Equal(t, "nil", Print(Nil))
	require.Equal(t, "true", Print(Bool(true)))
	require.Equal(t, "false", Print(Bool(false)))
	require.Equal(t, "1.5", Print(Number(1.5)))
	require.Equal(t, "3", Print(Number(3)))
	require.Equal(t, "hi", Print(Obj(&StringObject{Chars: "hi"})))

	fn := &FunctionObject{Name: &StringObject{Chars: "add"}}
	require.Equal(t, "<fn add>", Print(Obj(fn)))

	script := &FunctionObject{}
	require.Equal(t, "<script>", Print(Obj(script)))

	class := &ClassObject{Name: &StringObject{Chars: "Pair"}}
	require.Equal(t, "Pair", Print(Obj(class)))

	inst := &InstanceObject{Class: class}
	require.Equal(t, "<class Pair instance>", Print(Obj(inst)))
}
