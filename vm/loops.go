package vm

// LoopKind distinguishes the two loop constructs.
type LoopKind uint8

const (
	// LoopBare is a LOOP ... WHILE ... NEXT context: NEXT always re-enters.
	LoopBare LoopKind = iota
	// LoopIteration is a FOR context stepping an iterator.
	LoopIteration
)

// LoopContext is an open loop. Contexts live by value in the machine's
// arena; Enclosing is the arena index of the next context out within the
// same frame, or -1.
type LoopContext struct {
	Kind      LoopKind
	LoopPC    int
	ElsePC    int
	BreakPC   int
	Enclosing int
	iter      iterator
}

// iterator steps a FOR loop. advance returns the next key and value, or
// ok false once the loop is exhausted.
type iterator interface {
	advance() (k, v Value, ok bool)
}

// cursorIterator walks a table in key order.
type cursorIterator struct {
	c *Cursor
}

func (it *cursorIterator) advance() (Value, Value, bool) {
	if it.c == nil {
		return nil, nil, false
	}
	k, v := it.c.Key(), it.c.Value()
	it.c = it.c.Next()
	return k, v, true
}

// rangeIterator counts 0..n-1 without building a table.
type rangeIterator struct {
	i, n int
}

func (it *rangeIterator) advance() (Value, Value, bool) {
	if it.i >= it.n {
		return nil, nil, false
	}
	k := Number(it.i)
	it.i++
	return k, k, true
}

// stringIterator maps each index of a string to its character.
type stringIterator struct {
	chars []rune
	i     int
}

func (it *stringIterator) advance() (Value, Value, bool) {
	if it.i >= len(it.chars) {
		return nil, nil, false
	}
	k, v := Number(it.i), String(it.chars[it.i])
	it.i++
	return k, v, true
}

// openLoop pushes a loop context. A nil iter opens a bare LOOP.
func (m *Machine) openLoop(ins *Instruction, iter iterator) {
	ctx := LoopContext{
		Kind:      LoopBare,
		LoopPC:    ins.Target,
		ElsePC:    ins.Else,
		BreakPC:   ins.Break,
		Enclosing: m.frame.loop,
		iter:      iter,
	}
	if iter != nil {
		ctx.Kind = LoopIteration
	}
	m.loops = append(m.loops, ctx)
	m.frame.loop = len(m.loops) - 1
}

// closeLoop discards the context at idx, and every context opened
// inside it, then continues at pc.
func (m *Machine) closeLoop(idx, pc int) {
	m.frame.loop = m.loops[idx].Enclosing
	m.loops = m.loops[:idx]
	m.frame.pc = pc
}

// next re-enters the innermost loop. An iteration context yields its
// next key and value, or closes and continues at its else branch when
// it is exhausted.
func (m *Machine) next(r *Registers) {
	idx := m.frame.loop
	ctx := &m.loops[idx]
	if ctx.Kind == LoopBare {
		m.frame.pc = ctx.LoopPC
		return
	}
	k, v, ok := ctx.iter.advance()
	if !ok {
		m.closeLoop(idx, ctx.ElsePC)
		return
	}
	r.push(k)
	r.push(v)
	m.frame.pc = ctx.LoopPC
}

// iterate returns an iterator over v: a number n counts 0..n-1, a string
// maps each index to its character and a table yields its own entries.
func iterate(v Value) (iterator, error) {
	switch x := v.(type) {
	case Number:
		n, err := AsInt(x)
		if err != nil {
			return nil, err
		}
		return &rangeIterator{n: n}, nil
	case String:
		return &stringIterator{chars: []rune(x)}, nil
	case *Table:
		return &cursorIterator{c: x.Cursor()}, nil
	}
	return nil, typeErrorf("Can't iterate through %s", v)
}
