package vm

import (
	"math"
)

// exec runs one instruction against the register window. The assembler
// has already proven that every pop finds an operand, so operands are
// read from r.A without checking.
func (m *Machine) exec(ins *Instruction, r *Registers) (Signal, error) {
	f := m.frame
	a0, a1, a2 := r.A[0], r.A[1], r.A[2]

	switch ins.Op {
	// ---------------------------------------------------------------------
	// Variables
	// ---------------------------------------------------------------------
	case OpConst:
		r.push(ins.Const)
	case OpLoad:
		v := m.globals[ins.Slot]
		if v == nil {
			return Continue, undefinedf("Global variable %s not defined", ins.Name)
		}
		r.push(v)
	case OpStore:
		m.globals[ins.Slot] = a0
	case OpLLoad:
		v := f.locals[ins.Slot]
		if v == nil {
			return Continue, undefinedf("Local variable %d (%s) not defined", ins.Slot, ins.Name)
		}
		r.push(v)
	case OpLStore:
		f.locals[ins.Slot] = a0
	case OpSet:
		o, ok := a1.(*Object)
		if !ok {
			return Continue, typeErrorf("Cannot apply SET to %s; an object is required", a1)
		}
		if err := o.Set(ins.Name, a0); err != nil {
			return Continue, err
		}
		if o.Type == SpriteType {
			m.touched[o.ID] = o
		}

	// ---------------------------------------------------------------------
	// Control flow
	// ---------------------------------------------------------------------
	case OpIf:
		b, ok := a0.(Bool)
		if !ok {
			return Continue, typeErrorf("IF requires a boolean, not '%s'", a0)
		}
		if !b {
			f.pc = ins.Target
		}
	case OpGoto:
		f.pc = ins.Target
	case OpLoop:
		m.openLoop(ins, nil)
	case OpFor:
		it, err := iterate(a0)
		if err != nil {
			return Continue, err
		}
		m.openLoop(ins, it)
		m.next(r)
	case OpWhile:
		b, ok := a0.(Bool)
		if !ok {
			return Continue, typeErrorf("Cannot execute WHILE %s; a boolean is required", a0)
		}
		if !b {
			m.closeLoop(f.loop, m.loops[f.loop].ElsePC)
		}
	case OpNext:
		m.next(r)
	case OpBreak:
		idx := f.loop
		for range ins.Slot - 1 {
			idx = m.loops[idx].Enclosing
		}
		m.closeLoop(idx, m.loops[idx].BreakPC)
	case OpCall:
		fn, ok := a1.(*Function)
		args, isTable := a0.(*Table)
		if !ok || !isTable {
			return Continue, typeErrorf("Can't call %s as a function (passing %s)", a1, a0)
		}
		if m.profiler != nil {
			m.profiler.RecordCall(fn)
		}
		m.frame = newFrame(fn, f, len(m.loops))
		r.push(args)
	case OpReturn:
		m.loops = m.loops[:f.loopBase]
		m.frame = f.caller
		r.push(a0)
	case OpWait:
		return Yielded, nil
	case OpEnd:
		return Terminated, nil

	// ---------------------------------------------------------------------
	// Arithmetic and math
	// ---------------------------------------------------------------------
	case OpAdd:
		return m.result(r)(add(a1, a0))
	case OpSub:
		return m.result(r)(sub(a1, a0))
	case OpMul:
		return m.result(r)(mul(a1, a0))
	case OpDiv:
		return m.result(r)(div(a1, a0))
	case OpMod:
		return m.result(r)(binaryMath("%", a1, a0, func(x, y float64) float64 {
			return x - y*math.Floor(x/y)
		}))
	case OpPow:
		return m.result(r)(binaryMath("**", a1, a0, math.Pow))
	case OpAbs:
		return m.result(r)(unaryMath("ABS", a0, math.Abs))
	case OpCeil:
		return m.result(r)(unaryMath("CEIL", a0, math.Ceil))
	case OpFloor:
		return m.result(r)(unaryMath("FLOOR", a0, math.Floor))
	case OpRound:
		return m.result(r)(unaryMath("ROUND", a0, func(x float64) float64 {
			return math.Floor(x + 0.5)
		}))
	case OpSqrt:
		if n, ok := a0.(Number); ok && n < 0 {
			return Continue, typeErrorf("Cannot square root negative number %s", n)
		}
		return m.result(r)(unaryMath("SQRT", a0, math.Sqrt))
	case OpNeg:
		return m.result(r)(neg(a0))
	case OpLen:
		switch x := a0.(type) {
		case String:
			r.push(Number(len([]rune(x))))
		case *Table:
			r.push(Number(x.Len()))
		default:
			return Continue, typeErrorf("Cannot apply LEN to %s", a0)
		}

	// ---------------------------------------------------------------------
	// Comparison and logic
	// ---------------------------------------------------------------------
	case OpEq:
		r.push(Truth(Equal(a1, a0)))
	case OpNe:
		r.push(Truth(!Equal(a1, a0)))
	case OpCmpNe, OpLt, OpLe, OpGt, OpGe:
		c, err := Compare(a1, a0)
		if err != nil {
			return Continue, err
		}
		r.push(Truth(ordered(ins.Op, c)))
	case OpMin, OpMax:
		c, err := Compare(a1, a0)
		if err != nil {
			return Continue, err
		}
		if (ins.Op == OpMin) == (c < 0) {
			r.push(a1)
		} else {
			r.push(a0)
		}
	case OpAnd, OpOr, OpXor:
		x, okx := a1.(Bool)
		y, oky := a0.(Bool)
		if !okx || !oky {
			return Continue, typeErrorf("Cannot apply %s to %s and %s; two booleans are required",
				m.reg.Info(ins.Op).Word, a1, a0)
		}
		switch ins.Op {
		case OpAnd:
			r.push(x && y)
		case OpOr:
			r.push(x || y)
		default:
			r.push(Truth(x != y))
		}
	case OpNot:
		b, ok := a0.(Bool)
		if !ok {
			return Continue, typeErrorf("Cannot apply NOT to %s; a boolean is required", a0)
		}
		r.push(!b)

	// ---------------------------------------------------------------------
	// Tables and indexing
	// ---------------------------------------------------------------------
	case OpTrue:
		r.push(True)
	case OpFalse:
		r.push(False)
	case OpTable:
		r.push(EmptyTable())
	case OpGet:
		v, err := get(a1, a0)
		if err != nil {
			return Continue, err
		}
		r.push(v)
	case OpContains:
		ok, err := contains(a1, a0)
		if err != nil {
			return Continue, err
		}
		r.push(Truth(ok))
	case OpDGet:
		t, ok := a1.(*Table)
		if !ok {
			return Continue, typeErrorf("Cannot assign to %s[%s]; a table is required", a1, a0)
		}
		v, found := t.Get(a0)
		if !found {
			return Continue, undefinedf("%s[%s] is not defined", a1, a0)
		}
		r.push(t)
		r.push(a0)
		r.push(v)
	case OpPut:
		t, ok := a2.(*Table)
		if !ok {
			return Continue, typeErrorf("'%s' is not a table", a2)
		}
		nt, err := t.Put(a1, a0)
		if err != nil {
			return Continue, err
		}
		r.push(nt)

	// ---------------------------------------------------------------------
	// Stack, output and host-facing builtins
	// ---------------------------------------------------------------------
	case OpDrop:
	case OpDropTable:
		if t, ok := a0.(*Table); !ok || t.Len() != 0 {
			return Continue, typeErrorf("A function can be called as a subroutine only if it returns [] (the empty table)")
		}
	case OpDump:
		if s, ok := a0.(String); ok {
			m.console.Print(string(s))
		} else {
			m.console.Print(Describe(a0))
		}
	case OpRandom:
		r.push(Number(m.rng.Float64()))
	case OpKeys:
		r.push(m.keyTable)
	case OpSprite:
		pic, ok := a0.(*Picture)
		if !ok {
			return Continue, typeErrorf("Cannot apply SPRITE %s; a picture is required", a0)
		}
		o := newSprite(m.newID(), pic)
		m.touched[o.ID] = o
		r.push(o)
	case OpWindow:
		r.push(m.window)
	case OpCls:
		for _, o := range m.touched {
			o.fields["IsVisible"] = False
		}

	default:
		return Continue, typeErrorf("unknown opcode %s", ins.Op)
	}
	return Continue, nil
}

// result returns a function that pushes v, so that a two-valued
// operator helper can be returned from exec in one line.
func (m *Machine) result(r *Registers) func(Value, error) (Signal, error) {
	return func(v Value, err error) (Signal, error) {
		if err != nil {
			return Continue, err
		}
		r.push(v)
		return Continue, nil
	}
}

func ordered(op Opcode, c int) bool {
	switch op {
	case OpCmpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	}
	return c >= 0
}
