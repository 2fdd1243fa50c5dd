package vm

import (
	"math"
	"strconv"
	"strings"
)

// Short forms. These are what String() returns and what DUMP prints for
// values nested inside a table or object.

func (b Bool) String() string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (n Number) String() string {
	return formatNumber(float64(n))
}

func (s String) String() string {
	return string(s)
}

func (t *Table) String() string {
	return "TABLE(" + strconv.Itoa(t.Len()) + " keys)"
}

func (p *Picture) String() string {
	return p.Name
}

func (f *Function) String() string {
	return f.Name
}

// formatNumber prints integers without a fractional part and everything
// else in the shortest form that round-trips.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		if f == 0 {
			return "0"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Describe returns the verbose form of v: tables and objects are
// expanded one level into sorted key=value lists.
func Describe(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<undefined>"
	case *Table:
		var sb strings.Builder
		sb.WriteByte('[')
		first := true
		for k, val := range x.All() {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(k.String())
			sb.WriteByte('=')
			sb.WriteString(short(val))
		}
		sb.WriteByte(']')
		return sb.String()
	case *Object:
		var sb strings.Builder
		sb.WriteString(x.String())
		sb.WriteByte('(')
		for i, name := range x.FieldNames() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(short(x.fields[name]))
		}
		sb.WriteByte(')')
		return sb.String()
	}
	return short(v)
}

func short(v Value) string {
	if v == nil {
		return "<undefined>"
	}
	return v.String()
}

// Quote renders s as a source literal. Control characters, quotes,
// backslashes and anything outside printable ASCII become \HEX/ escapes.
func Quote(s String) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range string(s) {
		if r < ' ' || r == '"' || r == '\\' || r > '~' {
			sb.WriteByte('\\')
			sb.WriteString(strings.ToUpper(strconv.FormatInt(int64(r), 16)))
			sb.WriteByte('/')
		} else {
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
