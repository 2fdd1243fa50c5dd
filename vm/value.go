package vm

import (
	"fmt"
	"math"
)

// Kind identifies a Value variant. The numeric order of the comparable
// kinds is their type rank.
type Kind uint8

const (
	KindBoolean Kind = iota + 1
	KindNumber
	KindString
	KindTable
	KindPicture
	KindFunction
	KindObject
)

var kindNames = [...]string{
	KindBoolean:  "boolean",
	KindNumber:   "number",
	KindString:   "string",
	KindTable:    "table",
	KindPicture:  "picture",
	KindFunction: "function",
	KindObject:   "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Comparable reports whether values of this kind take part in the total order.
func (k Kind) Comparable() bool {
	return k >= KindBoolean && k <= KindPicture
}

// Value is an immutable tagged variant. The concrete types are Bool,
// Number, String, *Table, *Picture, *Function and *Object; the set is
// closed by the unexported marker method.
//
// A nil Value means "undefined" and only ever appears in global and
// local slots that have not been assigned yet.
type Value interface {
	Kind() Kind
	// String returns the short display form.
	String() string
	value()
}

// Bool is a Boolean value.
type Bool bool

// Number is a finite double.
type Number float64

// String is an immutable string of code points.
type String string

const (
	True  Bool = true
	False Bool = false
)

func (Bool) Kind() Kind   { return KindBoolean }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }

func (Bool) value()   {}
func (Number) value() {}
func (String) value() {}

// NewNumber returns f as a Number, rejecting NaN and the infinities.
func NewNumber(f float64) (Number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, typeErrorf("%v is not a finite number", f)
	}
	return Number(f), nil
}

// Picture is an opaque host image handle identified by name.
type Picture struct {
	Name   string
	Width  int
	Height int
	// Handle is whatever the host needs to draw the image.
	Handle any
}

func (*Picture) Kind() Kind { return KindPicture }
func (*Picture) value()     {}

// Function is the entry point of an assembled function body.
type Function struct {
	Name      string
	PC        int
	NumLocals int
	// StackLen is the deepest operand depth reached in the body.
	StackLen int
}

func (*Function) Kind() Kind { return KindFunction }
func (*Function) value()     {}

// Bool / number helpers used throughout the operators.

// Truth returns b as a Bool value.
func Truth(b bool) Bool {
	return Bool(b)
}

// AsInt returns v as an int if it is a Number holding an exact integer.
func AsInt(v Value) (int, error) {
	n, ok := v.(Number)
	if !ok {
		return 0, typeErrorf("%s is not a number", v)
	}
	f := float64(n)
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, typeErrorf("%s is not an integer", n)
	}
	return int(f), nil
}
