package vm

import (
	"iter"
	"math/rand/v2"
)

// Table is an immutable sorted association from keys to values. It is a
// treap: a binary search tree on keys that is also a max-heap on random
// node priorities, which keeps it balanced in expectation. Put copies
// only the path it touches, so tables share structure freely.
type Table struct {
	root *node
}

type node struct {
	key, val    Value
	left, right *node
	prio        uint32
	size        int
}

var emptyTable = &Table{}

// EmptyTable returns the distinguished empty table.
func EmptyTable() *Table {
	return emptyTable
}

func (*Table) Kind() Kind { return KindTable }
func (*Table) value()     {}

func size(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func (n *node) fix() *node {
	n.size = 1 + size(n.left) + size(n.right)
	return n
}

// Len returns the number of keys.
func (t *Table) Len() int {
	return size(t.root)
}

// Get returns the value stored at k. A key that could never be stored
// (a function, an object, or a table holding one) is simply absent.
func (t *Table) Get(k Value) (Value, bool) {
	if !keyable(k) {
		return nil, false
	}
	n := t.root
	for n != nil {
		switch c := mustCompare(k, n.key); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n.val, true
		}
	}
	return nil, false
}

// Contains reports whether k is a key of t.
func (t *Table) Contains(k Value) bool {
	_, ok := t.Get(k)
	return ok
}

// Put returns a new table with k mapped to v. The receiver is unchanged.
func (t *Table) Put(k, v Value) (*Table, error) {
	if !keyable(k) {
		return nil, typeErrorf("'%s' cannot be used as key in a table", k)
	}
	if v == nil {
		return nil, undefinedf("cannot store an undefined value at key '%s'", k)
	}
	return &Table{root: insert(t.root, k, v)}, nil
}

// insert returns a freshly allocated path from the root to the new or
// replaced node, so the rotations below may mutate what it returns.
func insert(n *node, k, v Value) *node {
	if n == nil {
		return &node{key: k, val: v, prio: rand.Uint32(), size: 1}
	}
	m := *n
	switch c := mustCompare(k, n.key); {
	case c < 0:
		m.left = insert(n.left, k, v)
		if m.left.prio > m.prio {
			return rotateRight(&m)
		}
	case c > 0:
		m.right = insert(n.right, k, v)
		if m.right.prio > m.prio {
			return rotateLeft(&m)
		}
	default:
		m.val = v
		return &m
	}
	return m.fix()
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n.fix()
	return l.fix()
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n.fix()
	return r.fix()
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// Cursor is an immutable position in a table's key order. A nil *Cursor
// is past the end. Cursors never observe later Puts, since the nodes
// they reference are never mutated.
type Cursor struct {
	n    *node
	rest *Cursor
}

func descend(n *node, rest *Cursor) *Cursor {
	for ; n != nil; n = n.left {
		rest = &Cursor{n: n, rest: rest}
	}
	return rest
}

// Cursor returns a fresh cursor at the smallest key, or nil if t is empty.
func (t *Table) Cursor() *Cursor {
	return descend(t.root, nil)
}

// Key returns the key at the cursor.
func (c *Cursor) Key() Value { return c.n.key }

// Value returns the value at the cursor.
func (c *Cursor) Value() Value { return c.n.val }

// Next returns the cursor at the following key, or nil at the end.
func (c *Cursor) Next() *Cursor {
	return descend(c.n.right, c.rest)
}

// All yields every key/value pair in key order.
func (t *Table) All() iter.Seq2[Value, Value] {
	return func(yield func(Value, Value) bool) {
		for c := t.Cursor(); c != nil; c = c.Next() {
			if !yield(c.Key(), c.Value()) {
				return
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Set arithmetic
// ---------------------------------------------------------------------------

// Union returns a with every entry of b added, b winning on shared keys.
func Union(a, b *Table) *Table {
	root := a.root
	for k, v := range b.All() {
		root = insert(root, k, v)
	}
	return wrap(root)
}

// Difference returns the entries of a whose keys are not in b.
func Difference(a, b *Table) *Table {
	var root *node
	for k, v := range a.All() {
		if !b.Contains(k) {
			root = insert(root, k, v)
		}
	}
	return wrap(root)
}

// Intersection returns the entries of a whose keys are also in b.
func Intersection(a, b *Table) *Table {
	var root *node
	for k, v := range a.All() {
		if b.Contains(k) {
			root = insert(root, k, v)
		}
	}
	return wrap(root)
}

func wrap(root *node) *Table {
	if root == nil {
		return emptyTable
	}
	return &Table{root: root}
}

// TableOf builds a table from alternating keys and values. It panics on
// a bad key and is meant for host code and tests.
func TableOf(kv ...Value) *Table {
	if len(kv)%2 != 0 {
		panic("vm: TableOf needs key/value pairs")
	}
	t := EmptyTable()
	for i := 0; i < len(kv); i += 2 {
		var err error
		if t, err = t.Put(kv[i], kv[i+1]); err != nil {
			panic(err)
		}
	}
	return t
}
