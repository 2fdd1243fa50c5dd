package vm

import (
	"strings"
)

// Operand helpers. By convention x is the deeper operand (a1) and y the
// top of the stack (a0), so "x y -" computes x - y.

func number(f float64) (Value, error) {
	n, err := NewNumber(f)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// MaxStringBytes bounds the strings concatenation and repetition can
// build.
const MaxStringBytes = 1 << 24

func add(x, y Value) (Value, error) {
	switch a := x.(type) {
	case Number:
		if b, ok := y.(Number); ok {
			return number(float64(a) + float64(b))
		}
	case String:
		if b, ok := y.(String); ok {
			if len(a)+len(b) > MaxStringBytes {
				return nil, typeErrorf("Cannot add %s to %s: the result would exceed %d bytes", x, y, MaxStringBytes)
			}
			return a + b, nil
		}
	case *Table:
		if b, ok := y.(*Table); ok {
			return Union(a, b), nil
		}
	}
	return nil, typeErrorf("Cannot add %s to %s", x, y)
}

func sub(x, y Value) (Value, error) {
	switch a := x.(type) {
	case Number:
		switch b := y.(type) {
		case Number:
			return number(float64(a) - float64(b))
		case String:
			s := []rune(b)
			n, err := count(a, len(s), "remove", b)
			if err != nil {
				return nil, err
			}
			return String(s[n:]), nil
		}
	case String:
		if b, ok := y.(Number); ok {
			s := []rune(a)
			n, err := count(b, len(s), "remove", a)
			if err != nil {
				return nil, err
			}
			return String(s[:len(s)-n]), nil
		}
	case *Table:
		if b, ok := y.(*Table); ok {
			return Difference(a, b), nil
		}
	}
	return nil, typeErrorf("Cannot subtract %s from %s", y, x)
}

func mul(x, y Value) (Value, error) {
	switch a := x.(type) {
	case Number:
		switch b := y.(type) {
		case Number:
			return number(float64(a) * float64(b))
		case String:
			return repeat(b, a)
		}
	case String:
		if b, ok := y.(Number); ok {
			return repeat(a, b)
		}
	}
	return nil, typeErrorf("Cannot multiply %s by %s", x, y)
}

func div(x, y Value) (Value, error) {
	switch a := x.(type) {
	case Number:
		switch b := y.(type) {
		case Number:
			return number(float64(a) / float64(b))
		case String:
			s := []rune(b)
			n, err := count(a, len(s), "keep", b)
			if err != nil {
				return nil, err
			}
			return String(s[:n]), nil
		}
	case String:
		if b, ok := y.(Number); ok {
			s := []rune(a)
			n, err := count(b, len(s), "keep", a)
			if err != nil {
				return nil, err
			}
			return String(s[len(s)-n:]), nil
		}
	case *Table:
		if b, ok := y.(*Table); ok {
			return Intersection(a, b), nil
		}
	}
	return nil, typeErrorf("Cannot divide %s by %s", x, y)
}

// count checks that n is an integer character count between 0 and limit.
func count(n Number, limit int, verb string, s String) (int, error) {
	i, err := AsInt(n)
	if err != nil {
		return 0, err
	}
	if i < 0 || i > limit {
		return 0, typeErrorf("Cannot %s %s characters from %s: index out of range", verb, n, s)
	}
	return i, nil
}

func repeat(s String, n Number) (Value, error) {
	i, err := AsInt(n)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, typeErrorf("Cannot concatenate %s copies of %s", n, s)
	}
	if len(s) > 0 && i > MaxStringBytes/len(s) {
		return nil, typeErrorf("Cannot concatenate %s copies of %s: the result would exceed %d bytes", n, s, MaxStringBytes)
	}
	return String(strings.Repeat(string(s), i)), nil
}

func binaryMath(name string, x, y Value, fn func(x, y float64) float64) (Value, error) {
	a, okx := x.(Number)
	b, oky := y.(Number)
	if !okx || !oky {
		return nil, typeErrorf("Cannot apply %s to %s and %s; two numbers are required", name, x, y)
	}
	return number(fn(float64(a), float64(b)))
}

func unaryMath(name string, x Value, fn func(float64) float64) (Value, error) {
	a, ok := x.(Number)
	if !ok {
		return nil, typeErrorf("Cannot apply %s to %s; a number is required", name, x)
	}
	return number(fn(float64(a)))
}

func neg(x Value) (Value, error) {
	switch a := x.(type) {
	case Number:
		return -a, nil
	case String:
		s := []rune(a)
		for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
			s[i], s[j] = s[j], s[i]
		}
		return String(s), nil
	}
	return nil, typeErrorf("Cannot negate %s", x)
}

// get indexes a string, table or object.
func get(t, k Value) (Value, error) {
	var (
		v  Value
		ok bool
	)
	switch x := t.(type) {
	case String:
		if _, isNum := k.(Number); !isNum {
			return nil, typeErrorf("Cannot subscript %s by %s", t, k)
		}
		i, err := AsInt(k)
		if err != nil {
			return nil, typeErrorf("String subscript must be an integer, not %s", k)
		}
		s := []rune(x)
		if i < 0 || i >= len(s) {
			return nil, typeErrorf("String index out of range: %d", i)
		}
		return String(s[i]), nil
	case *Table:
		v, ok = x.Get(k)
	case *Object:
		name, isStr := k.(String)
		if !isStr {
			return nil, typeErrorf("Cannot subscript %s by %s", t, k)
		}
		v, ok = x.Field(string(name))
	default:
		return nil, typeErrorf("Cannot subscript %s", t)
	}
	if !ok {
		return nil, undefinedf("%s[%s] is not defined", t, k)
	}
	return v, nil
}

// contains is the non-faulting probe matching get.
func contains(t, k Value) (bool, error) {
	switch x := t.(type) {
	case String:
		i, err := AsInt(k)
		return err == nil && i >= 0 && i < len([]rune(x)), nil
	case *Table:
		return x.Contains(k), nil
	case *Object:
		name, isStr := k.(String)
		if !isStr {
			return false, nil
		}
		_, ok := x.Field(string(name))
		return ok, nil
	}
	return false, typeErrorf("Cannot subscript %s", t)
}
