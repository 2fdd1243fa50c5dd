package vm

import (
	"cmp"
	"strings"
)

// Compare orders two values. Values of different kinds order by type
// rank; within a kind booleans put false first, numbers and strings use
// their natural order, tables compare their iteration sequences
// pointwise and pictures compare by name. Functions and objects are not
// comparable and yield a TypeError.
func Compare(x, y Value) (int, error) {
	if x == nil || y == nil {
		return 0, undefinedf("cannot compare an undefined value")
	}
	kx, ky := x.Kind(), y.Kind()
	if !kx.Comparable() {
		return 0, typeErrorf("%s is not comparable", x)
	}
	if !ky.Comparable() {
		return 0, typeErrorf("%s is not comparable", y)
	}
	if kx != ky {
		return cmp.Compare(kx, ky), nil
	}
	switch a := x.(type) {
	case Bool:
		b := y.(Bool)
		switch {
		case a == b:
			return 0, nil
		case !bool(a):
			return -1, nil
		}
		return 1, nil
	case Number:
		return cmp.Compare(float64(a), float64(y.(Number))), nil
	case String:
		return strings.Compare(string(a), string(y.(String))), nil
	case *Table:
		return compareTables(a, y.(*Table))
	case *Picture:
		return strings.Compare(a.Name, y.(*Picture).Name), nil
	}
	return 0, typeErrorf("%s is not comparable", x)
}

// Equal reports whether x and y compare equal. Incomparable values are
// never equal and never fault.
func Equal(x, y Value) bool {
	c, err := Compare(x, y)
	return err == nil && c == 0
}

// compareTables walks both tables in key order. A key that sorts earlier
// marks an entry the other table lacks at that position, so that table
// is the larger one and the key comparison is inverted.
func compareTables(a, b *Table) (int, error) {
	if a == b {
		return 0, nil
	}
	ca, cb := a.Cursor(), b.Cursor()
	for ca != nil && cb != nil {
		c, err := Compare(ca.Key(), cb.Key())
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return -c, nil
		}
		c, err = Compare(ca.Value(), cb.Value())
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
		ca, cb = ca.Next(), cb.Next()
	}
	switch {
	case ca != nil:
		return 1, nil
	case cb != nil:
		return -1, nil
	}
	return 0, nil
}

// keyable reports whether v may be stored as a table key: it must be
// comparable and, for tables, contain only keyable keys and values.
func keyable(v Value) bool {
	if v == nil || !v.Kind().Comparable() {
		return false
	}
	t, ok := v.(*Table)
	if !ok {
		return true
	}
	for k, x := range t.All() {
		if !keyable(k) || !keyable(x) {
			return false
		}
	}
	return true
}

// mustCompare is used inside the table, where every stored key is
// keyable and so every comparison is total.
func mustCompare(x, y Value) int {
	c, err := Compare(x, y)
	if err != nil {
		panic("vm: table key comparison failed: " + err.Error())
	}
	return c
}
