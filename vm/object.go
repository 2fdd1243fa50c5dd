package vm

import (
	"maps"
	"slices"
	"strconv"
)

// Object type tags.
const (
	SpriteType = "SPRITE"
	WindowType = "WINDOW"
)

// Object is a labeled record of named fields with a creation-order
// identity. It is the only mutable value: SET replaces a field in place,
// and only with a value of the same kind as the one it replaces.
type Object struct {
	Type   string
	ID     uint64
	fields map[string]Value
}

func (*Object) Kind() Kind { return KindObject }
func (*Object) value()     {}

func (o *Object) String() string {
	return o.Type + ":" + strconv.FormatUint(o.ID, 10)
}

// Field returns the named field.
func (o *Object) Field(name string) (Value, bool) {
	v, ok := o.fields[name]
	return v, ok
}

// FieldNames returns the field names in sorted order.
func (o *Object) FieldNames() []string {
	return slices.Sorted(maps.Keys(o.fields))
}

// Set assigns an existing field.
func (o *Object) Set(name string, v Value) error {
	old, ok := o.fields[name]
	if !ok {
		return undefinedf("%s has no attribute '%s'", o, name)
	}
	if v == nil || old.Kind() != v.Kind() {
		return typeErrorf("cannot set %s.%s to %s: expected a %s", o, name, v, old.Kind())
	}
	o.fields[name] = v
	return nil
}

// Number returns a numeric field, or 0 if it is missing.
func (o *Object) Number(name string) float64 {
	n, _ := o.fields[name].(Number)
	return float64(n)
}

// Flag returns a boolean field, or false if it is missing.
func (o *Object) Flag(name string) bool {
	b, _ := o.fields[name].(Bool)
	return bool(b)
}

// Picture returns the Picture field of a sprite.
func (o *Object) Picture() *Picture {
	p, _ := o.fields["Picture"].(*Picture)
	return p
}

func newSprite(id uint64, pic *Picture) *Object {
	return &Object{
		Type: SpriteType,
		ID:   id,
		fields: map[string]Value{
			"X":         Number(0),
			"Y":         Number(0),
			"W":         Number(pic.Width),
			"H":         Number(pic.Height),
			"Depth":     Number(0),
			"Picture":   pic,
			"IsVisible": False,
		},
	}
}

func newWindow(id uint64, width, height int) *Object {
	return &Object{
		Type: WindowType,
		ID:   id,
		fields: map[string]Value{
			"X":         Number(0),
			"Y":         Number(0),
			"W":         Number(width),
			"H":         Number(height),
			"R":         Number(0),
			"G":         Number(0),
			"B":         Number(0),
			"IsVisible": True,
		},
	}
}
