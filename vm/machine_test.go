package vm_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newMachine(t *testing.T, src string, cfg vm.Config) (*vm.Machine, *vm.Recorder) {
	t.Helper()
	reg := vm.NewRegistry()
	prog, err := compiler.Assemble(reg, src)
	if err != nil {
		t.Fatalf("Assemble(%q): %v", src, err)
	}
	rec := &vm.Recorder{}
	if cfg.Console == nil {
		cfg.Console = rec
	}
	return vm.NewMachine(reg, prog, cfg), rec
}

// runToEnd ticks until the machine stops yielding.
func runToEnd(t *testing.T, src string) ([]string, vm.Signal, error) {
	t.Helper()
	m, rec := newMachine(t, src, vm.Config{Width: 400, Height: 300})
	for i := 0; i < 100; i++ {
		sig, err := m.Tick()
		if sig != vm.Yielded {
			return rec.Lines, sig, err
		}
	}
	t.Fatalf("program %q still yielding after 100 ticks", src)
	return nil, 0, nil
}

func expectOutput(t *testing.T, src string, want ...string) {
	t.Helper()
	got, sig, err := runToEnd(t, src)
	if err != nil {
		t.Fatalf("run %q: %v", src, err)
	}
	if sig != vm.Terminated {
		t.Errorf("run %q: signal = %s, want terminated", src, sig)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("run %q: output = %q, want %q", src, got, want)
	}
}

func expectFault(t *testing.T, src string, kind error, fragment string) {
	t.Helper()
	_, sig, err := runToEnd(t, src)
	if sig != vm.Faulted {
		t.Fatalf("run %q: signal = %s, want faulted", src, sig)
	}
	if !errors.Is(err, kind) {
		t.Errorf("run %q: error = %v, want %v", src, err, kind)
	}
	if !strings.Contains(err.Error(), fragment) {
		t.Errorf("run %q: error = %q, want it to mention %q", src, err, fragment)
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestBooleanComparison(t *testing.T) {
	expectOutput(t, `FALSE TRUE == NOT DUMP ; END`, "TRUE")
}

func TestTableConstructionOrder(t *testing.T) {
	expectOutput(t, `TABLE 0 "A" PUT 1 "B" PUT DUMP`, "[0=A, 1=B]")
	expectOutput(t, `TABLE 1 "B" PUT 0 "A" PUT DUMP`, "[0=A, 1=B]")
}

func TestForOverString(t *testing.T) {
	// The body starts with the index below the character.
	expectOutput(t, `"Hi" FOR LSTORE(c) DROP ; LLOAD(c) DUMP ; NEXT ; ELSE ;`, "H", "i")
	expectOutput(t, `"Hi" FOR DROP LSTORE(c) ; LLOAD(c) DUMP ; NEXT ; ELSE ;`, "0", "1")
	expectOutput(t, `"Hi" FOR LSTORE(c) DROP ; LLOAD(c) DUMP ; NEXT "done" DUMP ELSE`, "H", "i", "done")
	expectOutput(t, `"" FOR DROP DROP ; "body" DUMP ; NEXT "empty" DUMP ELSE`, "empty")
}

func TestForOverNumberAndTable(t *testing.T) {
	expectOutput(t, `3 FOR DROP DUMP ; NEXT ELSE`, "0", "1", "2")
	expectOutput(t, `TABLE "b" 2 PUT "a" 1 PUT FOR DUMP DUMP ; NEXT ELSE`, "1", "a", "2", "b")
	expectFault(t, `1.5 FOR DROP DROP NEXT ELSE`, vm.ErrType, "not an integer")
	expectFault(t, `TRUE FOR DROP DROP NEXT ELSE`, vm.ErrType, "Can't iterate through TRUE")
}

func TestForOverLargeRange(t *testing.T) {
	// The range is walked one number at a time, never materialised.
	expectOutput(t, `1000000000000 FOR DUMP DROP ; BREAK NEXT ELSE "after" DUMP`, "0", "after")
	expectOutput(t, `0 1 - FOR DROP DROP NEXT "none" DUMP ELSE`, "none")
}

func TestStringSizeLimit(t *testing.T) {
	expectFault(t, `"ab" 1000000000000 * LEN DUMP`, vm.ErrType, "exceed")
	expectFault(t, `1000000000000 "ab" * LEN DUMP`, vm.ErrType, "exceed")
	expectFault(t, `"a" 16777216 * "b" + LEN DUMP`, vm.ErrType, "exceed")
	expectOutput(t, `"" 1000000000000 * LEN DUMP`, "0")
	expectOutput(t, `"a" 16777216 * LEN DUMP`, "16777216")
}

func TestStringEscapes(t *testing.T) {
	expectOutput(t, `"a\22/b" DUMP`, `a"b`)
	expectOutput(t, `"x\A/" LEN DUMP`, "2")
}

func TestFunctionCall(t *testing.T) {
	src := `LOAD(double) TABLE 0 5 PUT CALL STORE(r) ; LOAD(r) DUMP ;
DEF(double) 0 GET 2 * RETURN`
	m, rec := newMachine(t, src, vm.Config{})
	sig, err := m.Tick()
	if sig != vm.Terminated || err != nil {
		t.Fatalf("Tick = %s, %v; want terminated", sig, err)
	}
	if got := m.Global("r"); got != vm.Number(10) {
		t.Errorf("r = %v, want Number 10", got)
	}
	if !reflect.DeepEqual(rec.Lines, []string{"10"}) {
		t.Errorf("output = %q, want [10]", rec.Lines)
	}
}

func TestRecursion(t *testing.T) {
	src := `LOAD(fact) TABLE 0 5 PUT CALL DUMP
DEF(fact)
  0 GET LSTORE(n) ;
  LLOAD(n) 1 <= IF 1 RETURN THEN ELSE
  LLOAD(n) LOAD(fact) TABLE 0 LLOAD(n) 1 - PUT CALL * RETURN`
	expectOutput(t, src, "120")
}

func TestSubroutineCall(t *testing.T) {
	expectOutput(t, `LOAD(f) TABLE CALL DROPTABLE ; "ok" DUMP DEF(f) RETURN`, "ok")
	expectFault(t, `LOAD(f) TABLE CALL DROPTABLE DEF(f) DROP 1 RETURN`, vm.ErrType, "subroutine")
}

func TestCallNonFunction(t *testing.T) {
	expectFault(t, `1 TABLE CALL DROP`, vm.ErrType, "Can't call 1 as a function (passing TABLE(0 keys))")
	expectFault(t, `LOAD(f) 1 CALL DROP DEF(f) RETURN`, vm.ErrType, "Can't call f")
}

func TestWaitPreservesState(t *testing.T) {
	src := `1 STORE(x) ; 5 LSTORE(y) ; WAIT LOAD(x) DUMP ; LLOAD(y) DUMP ; END`
	m, rec := newMachine(t, src, vm.Config{})

	sig, err := m.Tick()
	if sig != vm.Yielded || err != nil {
		t.Fatalf("first Tick = %s, %v; want yielded", sig, err)
	}
	if len(rec.Lines) != 0 {
		t.Errorf("output before resume = %q, want none", rec.Lines)
	}
	if got := m.Global("x"); got != vm.Number(1) {
		t.Errorf("x after yield = %v, want 1", got)
	}

	sig, err = m.Tick()
	if sig != vm.Terminated || err != nil {
		t.Fatalf("second Tick = %s, %v; want terminated", sig, err)
	}
	if !reflect.DeepEqual(rec.Lines, []string{"1", "5"}) {
		t.Errorf("output = %q, want [1 5]", rec.Lines)
	}

	if sig, _ := m.Tick(); sig != vm.Terminated {
		t.Errorf("Tick after END = %s, want terminated", sig)
	}
	if m.Ticks() != 2 {
		t.Errorf("Ticks = %d, want 2", m.Ticks())
	}
}

func TestStep(t *testing.T) {
	m, rec := newMachine(t, `"a" DUMP WAIT "b" DUMP`, vm.Config{})
	want := []vm.Signal{vm.Continue, vm.Continue, vm.Yielded, vm.Continue, vm.Continue, vm.Terminated}
	for i, w := range want {
		sig, err := m.Step()
		if err != nil || sig != w {
			t.Fatalf("Step %d = %s, %v; want %s", i, sig, err, w)
		}
	}
	if !reflect.DeepEqual(rec.Lines, []string{"a", "b"}) {
		t.Errorf("output = %q", rec.Lines)
	}
	if m.Steps() != len(want) {
		t.Errorf("Steps = %d, want %d", m.Steps(), len(want))
	}
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func TestLoopWhile(t *testing.T) {
	src := `0 STORE(i) ;
LOOP LOAD(i) 3 < WHILE
  LOAD(i) DUMP ;
  LOAD(i) 1 + STORE(i) ;
NEXT "done" DUMP ELSE`
	expectOutput(t, src, "0", "1", "2", "done")
}

func TestBreak(t *testing.T) {
	src := `10 FOR STORE(v) DROP ;
  LOAD(v) 3 == IF BREAK THEN ELSE
  LOAD(v) DUMP ;
NEXT "exhausted" DUMP ELSE "after" DUMP`
	expectOutput(t, src, "0", "1", "2", "after")
}

func TestBreakOutOfNestedLoops(t *testing.T) {
	src := `3 FOR DROP DROP ;
  3 FOR DROP STORE(j) ;
    LOAD(j) 1 == IF BREAK(2) THEN ELSE
    LOAD(j) DUMP ;
  NEXT ELSE
NEXT "inner" DUMP ELSE "out" DUMP`
	expectOutput(t, src, "0", "out")

	merged := strings.Replace(src, "BREAK(2)", "BREAK BREAK", 1)
	expectOutput(t, merged, "0", "out")
}

func TestReturnFromInsideLoop(t *testing.T) {
	src := `LOAD(find) TABLE CALL DUMP ; 2 FOR DROP DUMP ; NEXT ELSE
DEF(find) DROP
  10 FOR STORE(k) DROP ; LOAD(k) 4 == IF LOAD(k) RETURN THEN ELSE NEXT ELSE
  0 1 - RETURN`
	expectOutput(t, src, "4", "0", "1")
}

func TestRunawayTick(t *testing.T) {
	m, _ := newMachine(t, `LOOP TRUE WHILE NEXT ELSE`, vm.Config{MaxSteps: 100})
	sig, err := m.Tick()
	if sig != vm.Faulted || err == nil {
		t.Fatalf("Tick = %s, %v; want faulted", sig, err)
	}
	if !strings.Contains(err.Error(), "100 instructions") {
		t.Errorf("error = %q", err)
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`1 2 + DUMP`, "3"},
		{`7 2 - DUMP`, "5"},
		{`3 4 * DUMP`, "12"},
		{`1 4 / DUMP`, "0.25"},
		{`0 7 - 3 % DUMP`, "2"},
		{`2 10 ** DUMP`, "1024"},
		{`2.5 ROUND DUMP`, "3"},
		{`0 2.5 - ROUND DUMP`, "-2"},
		{`2.1 CEIL DUMP`, "3"},
		{`2.9 FLOOR DUMP`, "2"},
		{`0 4 - ABS DUMP`, "4"},
		{`16 SQRT DUMP`, "4"},
		{`3 NEG DUMP`, "-3"},
		{`3 5 MIN DUMP`, "3"},
		{`"a" "b" MAX DUMP`, "b"},
		{`"ab" "cd" + DUMP`, "abcd"},
		{`2 "Hello" - DUMP`, "llo"},
		{`"Hello" 2 - DUMP`, "Hel"},
		{`2 "Hello" / DUMP`, "He"},
		{`"Hello" 2 / DUMP`, "lo"},
		{`3 "ab" * DUMP`, "ababab"},
		{`"ab" 0 * DUMP`, ""},
		{`"abc" NEG DUMP`, "cba"},
		{`"abc" LEN DUMP`, "3"},
		{`TABLE 1 TRUE PUT LEN DUMP`, "1"},
		{`TABLE 0 "a" PUT TABLE 1 "b" PUT + DUMP`, "[0=a, 1=b]"},
		{`TABLE 0 "a" PUT 1 "b" PUT TABLE 1 0 PUT - DUMP`, "[0=a]"},
		{`TABLE 0 "a" PUT 1 "b" PUT TABLE 1 0 PUT / DUMP`, "[1=b]"},
	}
	for _, tc := range tests {
		expectOutput(t, tc.src, tc.want)
	}
}

func TestArithmeticFaults(t *testing.T) {
	tests := []struct {
		src      string
		fragment string
	}{
		{`"a" 1 + DUMP`, "Cannot add a to 1"},
		{`TABLE TABLE * DUMP`, "Cannot multiply"},
		{`"Hi" 5 - DUMP`, "index out of range"},
		{`1.5 "Hi" / DUMP`, "not an integer"},
		{`"ab" 0 1 - * DUMP`, "copies"},
		{`1 0 / DUMP`, "not a finite number"},
		{`0 1 - SQRT DUMP`, "negative"},
		{`TRUE 1 AND DUMP`, "two booleans"},
		{`1 NOT DUMP`, "a boolean is required"},
	}
	for _, tc := range tests {
		expectFault(t, tc.src, vm.ErrType, tc.fragment)
	}
}

func TestComparisons(t *testing.T) {
	src := `1 2 < DUMP ; 2 2 <= DUMP ; 1 2 > DUMP ; 2 1 >= DUMP ; 1 2 <> DUMP ; "a" "a" != DUMP`
	expectOutput(t, src, "TRUE", "TRUE", "FALSE", "TRUE", "TRUE", "FALSE")
}

func TestIncomparableEquality(t *testing.T) {
	src := `LOAD(f) LOAD(f) == DUMP ; LOAD(f) LOAD(f) != DUMP ; WINDOW 1 == DUMP DEF(f) RETURN`
	expectOutput(t, src, "FALSE", "TRUE", "FALSE")
	expectFault(t, `LOAD(f) LOAD(f) < DUMP DEF(f) RETURN`, vm.ErrType, "not comparable")
	expectFault(t, `WINDOW 1 <> DUMP`, vm.ErrType, "not comparable")
}

func TestLogic(t *testing.T) {
	expectOutput(t, `TRUE FALSE AND DUMP ; TRUE FALSE OR DUMP ; TRUE TRUE XOR DUMP`, "FALSE", "TRUE", "FALSE")

	// XOR yields a boolean value that later operators accept.
	expectOutput(t, `TRUE FALSE XOR DUMP ; FALSE FALSE XOR NOT DUMP`, "TRUE", "TRUE")
	expectOutput(t, `TRUE FALSE XOR IF "yes" DUMP THEN "no" DUMP ELSE`, "yes")
}

func TestIndexing(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"Hi" 1 GET DUMP`, "i"},
		{`TABLE "a" 1 PUT "a" GET DUMP`, "1"},
		{`WINDOW "W" GET DUMP`, "400"},
		{`TABLE "a" 1 PUT "a" CONTAINS DUMP`, "TRUE"},
		{`TABLE "b" CONTAINS DUMP`, "FALSE"},
		{`"Hi" 2 CONTAINS DUMP`, "FALSE"},
		{`"Hi" 0 CONTAINS DUMP`, "TRUE"},
		{`WINDOW "R" CONTAINS DUMP`, "TRUE"},
		{`WINDOW 1 CONTAINS DUMP`, "FALSE"},
		// DGET leaves table, key and value for a read-modify-write.
		{`TABLE "a" 1 PUT "a" DGET 1 + PUT DUMP`, "[a=2]"},
	}
	for _, tc := range tests {
		expectOutput(t, tc.src, tc.want)
	}
}

func TestIndexingFaults(t *testing.T) {
	expectFault(t, `"Hi" 2 GET DUMP`, vm.ErrType, "out of range")
	expectFault(t, `"Hi" 0.5 GET DUMP`, vm.ErrType, "must be an integer")
	expectFault(t, `TABLE "a" GET DUMP`, vm.ErrUndefined, "TABLE(0 keys)[a] is not defined")
	expectFault(t, `TABLE "a" DGET DROP DROP DROP`, vm.ErrUndefined, "is not defined")
	expectFault(t, `WINDOW "Z" GET DUMP`, vm.ErrUndefined, "is not defined")
	expectFault(t, `1 2 GET DUMP`, vm.ErrType, "Cannot subscript 1")
	expectFault(t, `1 2 3 PUT DUMP`, vm.ErrType, "'1' is not a table")
	expectFault(t, `TABLE WINDOW 1 PUT DUMP`, vm.ErrType, "cannot be used as key")
}

func TestUndefinedVariables(t *testing.T) {
	expectFault(t, `LOAD(nope) DUMP`, vm.ErrUndefined, "Global variable nope not defined")
	expectFault(t, `LLOAD(x) DUMP`, vm.ErrUndefined, "Local variable 0 (x) not defined")
}

func TestFaultIsSticky(t *testing.T) {
	m, _ := newMachine(t, `"a" 1 + DUMP`, vm.Config{})
	_, err1 := m.Tick()
	sig, err2 := m.Tick()
	if sig != vm.Faulted || err2 != err1 {
		t.Errorf("second Tick = %s, %v; want the first fault again", sig, err2)
	}
	var rerr *vm.RuntimeError
	if !errors.As(err1, &rerr) {
		t.Fatalf("error %T is not a *vm.RuntimeError", err1)
	}
	if rerr.PC != 2 || rerr.Op != "+" {
		t.Errorf("fault at %d %q, want 2 \"+\"", rerr.PC, rerr.Op)
	}
}

// ---------------------------------------------------------------------------
// Objects and host-facing builtins
// ---------------------------------------------------------------------------

func TestWindowObject(t *testing.T) {
	expectOutput(t, `WINDOW 255 SET(R) ; WINDOW "R" GET DUMP`, "255")
	expectFault(t, `WINDOW "red" SET(R)`, vm.ErrType, "cannot set WINDOW:1.R")
	expectFault(t, `WINDOW 1 SET(Speed)`, vm.ErrUndefined, "no attribute 'Speed'")
	expectFault(t, `1 2 SET(X)`, vm.ErrType, "an object is required")
}

func TestSprites(t *testing.T) {
	src := `LOAD(ship) SPRITE STORE(s) ;
LOAD(s) TRUE SET(IsVisible) ;
LOAD(s) 3 SET(Depth) ;
LOAD(s) DUMP ;
LOAD(s2) SPRITE STORE(t) ;`
	m, rec := newMachine(t, src, vm.Config{})
	pic := &vm.Picture{Name: "ship", Width: 8, Height: 4}
	if err := m.Define("ship", pic); err != nil {
		t.Fatal(err)
	}
	if err := m.Define("s2", pic); err != nil {
		t.Fatal(err)
	}
	if sig, err := m.Tick(); sig != vm.Terminated {
		t.Fatalf("Tick = %s, %v", sig, err)
	}
	want := "SPRITE:2(Depth=3, H=4, IsVisible=TRUE, Picture=ship, W=8, X=0, Y=0)"
	if len(rec.Lines) != 1 || rec.Lines[0] != want {
		t.Errorf("output = %q, want %q", rec.Lines, want)
	}
	// A new sprite counts as touched even before any SET.
	touched := m.Touched()
	if len(touched) != 2 || touched[2] == nil || touched[3] == nil {
		t.Errorf("touched = %v, want sprites 2 and 3", touched)
	}
	if s, ok := m.Global("t").(*vm.Object); !ok || s.ID != 3 {
		t.Errorf("second sprite = %v, want SPRITE:3", m.Global("t"))
	}
}

func TestCls(t *testing.T) {
	src := `LOAD(p) SPRITE STORE(s) ; LOAD(s) TRUE SET(IsVisible) ; CLS LOAD(s) "IsVisible" GET DUMP`
	m, rec := newMachine(t, src, vm.Config{})
	if err := m.Define("p", &vm.Picture{Name: "p"}); err != nil {
		t.Fatal(err)
	}
	m.Tick()
	if !reflect.DeepEqual(rec.Lines, []string{"FALSE"}) {
		t.Errorf("output = %q, want [FALSE]", rec.Lines)
	}
}

func TestClsHidesUntouchedSprite(t *testing.T) {
	src := `LOAD(p) SPRITE STORE(s) ; CLS LOAD(s) "IsVisible" GET DUMP`
	m, rec := newMachine(t, src, vm.Config{})
	if err := m.Define("p", &vm.Picture{Name: "p"}); err != nil {
		t.Fatal(err)
	}
	m.Tick()
	if len(m.Touched()) != 1 {
		t.Errorf("touched = %v, want the new sprite", m.Touched())
	}
	if !reflect.DeepEqual(rec.Lines, []string{"FALSE"}) {
		t.Errorf("output = %q, want [FALSE]", rec.Lines)
	}
}

func TestSpriteNeedsPicture(t *testing.T) {
	expectFault(t, `1 SPRITE DROP`, vm.ErrType, "a picture is required")
}

type fixedKeys map[string]bool

func (k fixedKeys) Keys() map[string]bool { return k }

func TestKeys(t *testing.T) {
	keys := fixedKeys{"Space": true, "LeftArrow": false}
	m, rec := newMachine(t, `KEYS "Space" GET DUMP ; KEYS "LeftArrow" GET DUMP ; KEYS LEN DUMP`, vm.Config{Keys: keys})
	m.Tick()
	if !reflect.DeepEqual(rec.Lines, []string{"TRUE", "FALSE", "2"}) {
		t.Errorf("output = %q", rec.Lines)
	}
}

func TestRandomIsSeeded(t *testing.T) {
	src := `RANDOM DUMP ; RANDOM DUMP`
	m1, rec1 := newMachine(t, src, vm.Config{Seed: 42})
	m2, rec2 := newMachine(t, src, vm.Config{Seed: 42})
	m1.Tick()
	m2.Tick()
	if !reflect.DeepEqual(rec1.Lines, rec2.Lines) || len(rec1.Lines) != 2 {
		t.Errorf("outputs %q and %q should match", rec1.Lines, rec2.Lines)
	}
}

func TestDefine(t *testing.T) {
	m, _ := newMachine(t, `LOAD(alien) DROP DEF(f) RETURN`, vm.Config{})
	if err := m.Define("ghost", vm.True); err == nil {
		t.Error("Define of an unused name should fail")
	}
	if err := m.Define("f", vm.True); err == nil || !strings.Contains(err.Error(), "more than once") {
		t.Errorf("Define over a function: error = %v", err)
	}
	if err := m.Define("alien", &vm.Picture{Name: "alien"}); err != nil {
		t.Fatalf("Define alien: %v", err)
	}
	if err := m.Define("alien", &vm.Picture{Name: "alien"}); err == nil {
		t.Error("second Define should fail")
	}
}

func TestProgramReuse(t *testing.T) {
	reg := vm.NewRegistry()
	prog, err := compiler.Assemble(reg, `LOAD(x) DUMP`)
	if err != nil {
		t.Fatal(err)
	}
	a := vm.NewMachine(reg, prog, vm.Config{Console: &vm.Recorder{}})
	b := vm.NewMachine(reg, prog, vm.Config{Console: &vm.Recorder{}})
	if err := a.Define("x", vm.True); err != nil {
		t.Fatal(err)
	}
	if b.Global("x") != nil || prog.Values[0] != nil {
		t.Error("Define on one machine leaked into the program or another machine")
	}
}

// ---------------------------------------------------------------------------
// Console
// ---------------------------------------------------------------------------

func TestLineConsole(t *testing.T) {
	var buf bytes.Buffer
	m, _ := newMachine(t, `"one\A/tw" DUMP ; "o" DUMP ; "\A/" DUMP ; "tail" DUMP`, vm.Config{Console: vm.NewLineConsole(&buf)})
	if sig, err := m.Tick(); sig != vm.Terminated {
		t.Fatalf("Tick = %s, %v", sig, err)
	}
	if got, want := buf.String(), "one\ntwo\ntail\n"; got != want {
		t.Errorf("console output = %q, want %q", got, want)
	}
}

func TestDisassemble(t *testing.T) {
	reg := vm.NewRegistry()
	prog, err := compiler.Assemble(reg, "TRUE IF 1 DUMP THEN 2 DUMP ELSE\nDEF(f) RETURN")
	if err != nil {
		t.Fatal(err)
	}
	listing := vm.Disassemble(prog)
	for _, want := range []string{"0001  IF(5)", "0004  GOTO(7)", "0007  END", "f: ; locals=0 stack=1", "[  0] f (function)"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}
