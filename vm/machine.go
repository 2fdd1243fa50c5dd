package vm

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/tliron/commonlog"
)

// Signal is the outcome of executing instructions.
type Signal int

const (
	// Continue means the machine can keep running within this tick.
	Continue Signal = iota
	// Yielded means WAIT suspended the tick; call Tick again later.
	Yielded
	// Terminated means END ran; the program finished normally.
	Terminated
	// Faulted means a run-time error ended the run.
	Faulted
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Yielded:
		return "yielded"
	case Terminated:
		return "terminated"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// KeySource supplies the keyboard snapshot read by KEYS.
type KeySource interface {
	Keys() map[string]bool
}

// Console receives DUMP output, one rendering per call.
type Console interface {
	Print(s string)
}

// Config configures a Machine. The zero value is usable.
type Config struct {
	// Width and Height size the window object.
	Width, Height int
	// MaxSteps bounds the instructions a single tick may execute; zero
	// means no bound.
	MaxSteps int
	// Seed seeds RANDOM; zero picks a random seed.
	Seed uint64
	Keys KeySource
	// Console defaults to a LineConsole writing to stdout.
	Console Console
	// Profiler, if set, counts instructions and calls.
	Profiler *Profiler
}

// Registers is the window through which an instruction sees the operand
// stack. A holds the popped operands with A[0] the former top; the
// instruction writes N results to R, and R[N-1] becomes the new top.
type Registers struct {
	A [3]Value
	R [3]Value
	N int
}

func (r *Registers) push(v Value) {
	r.R[r.N] = v
	r.N++
}

// frame is one activation of a function body.
type frame struct {
	fn     *Function
	pc     int
	locals []Value
	// stack holds operands between instructions, sized by the function's
	// StackLen at call time.
	stack []Value
	sp    int
	// loop is the arena index of the innermost open loop context, or -1.
	loop int
	// loopBase is the arena length when the frame was entered.
	loopBase int
	caller   *frame
}

func newFrame(fn *Function, caller *frame, loopBase int) *frame {
	slots := make([]Value, fn.NumLocals+fn.StackLen)
	return &frame{
		fn:       fn,
		pc:       fn.PC,
		locals:   slots[:fn.NumLocals:fn.NumLocals],
		stack:    slots[fn.NumLocals:],
		loop:     -1,
		loopBase: loopBase,
		caller:   caller,
	}
}

// Machine executes an assembled Program one tick at a time. It is not
// safe for concurrent use.
type Machine struct {
	reg     *Registry
	prog    *Program
	globals []Value
	frame   *frame
	loops   []LoopContext

	window  *Object
	touched map[uint64]*Object
	nextID  uint64

	keys     KeySource
	keyTable *Table
	console  Console
	rng      *rand.Rand
	maxSteps int
	profiler *Profiler

	state Signal
	err   error
	ticks int
	steps int

	log commonlog.Logger
}

// NewMachine prepares prog to run from its main body. The program's
// global values are copied, so one Program can back many machines.
func NewMachine(reg *Registry, prog *Program, cfg Config) *Machine {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	console := cfg.Console
	if console == nil {
		console = StdoutConsole()
	}
	m := &Machine{
		reg:      reg,
		prog:     prog,
		globals:  append([]Value(nil), prog.Values...),
		touched:  make(map[uint64]*Object),
		keys:     cfg.Keys,
		keyTable: EmptyTable(),
		console:  console,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		maxSteps: cfg.MaxSteps,
		profiler: cfg.Profiler,
		log:      commonlog.GetLogger("nifki.vm"),
	}
	m.window = newWindow(m.newID(), cfg.Width, cfg.Height)
	m.frame = newFrame(prog.Main, nil, 0)
	return m
}

func (m *Machine) newID() uint64 {
	m.nextID++
	return m.nextID
}

// Program returns the program being run.
func (m *Machine) Program() *Program { return m.prog }

// Window returns the window object.
func (m *Machine) Window() *Object { return m.window }

// Ticks returns the number of ticks started so far.
func (m *Machine) Ticks() int { return m.ticks }

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() int { return m.steps }

// State returns Continue while the machine can run, otherwise the
// terminal signal and, for Faulted, the fault.
func (m *Machine) State() (Signal, error) { return m.state, m.err }

// Define binds value to the global called name before the program uses
// it. Each global may be initialised only once, and a function body
// counts as its initialisation.
func (m *Machine) Define(name string, value Value) error {
	slot, ok := m.prog.Globals[name]
	if !ok {
		return fmt.Errorf("Global variable '%s' is not used", name)
	}
	if m.globals[slot] != nil {
		return fmt.Errorf("Global variable '%s' is initialized more than once", name)
	}
	m.globals[slot] = value
	return nil
}

// Global returns the current value of a global, or nil if it is unset.
func (m *Machine) Global(name string) Value {
	slot, ok := m.prog.Globals[name]
	if !ok {
		return nil
	}
	return m.globals[slot]
}

// Touched returns the sprites assigned by SET since they were last
// pruned, keyed by identity.
func (m *Machine) Touched() map[uint64]*Object {
	return m.touched
}

// Prune drops every touched sprite for which keep returns false.
func (m *Machine) Prune(keep func(*Object) bool) {
	for id, o := range m.touched {
		if !keep(o) {
			delete(m.touched, id)
		}
	}
}

// Tick runs until WAIT, END or a fault. Once the machine has terminated
// or faulted every further call returns the same outcome.
func (m *Machine) Tick() (Signal, error) {
	if m.state != Continue {
		return m.state, m.err
	}
	m.ticks++
	m.refreshKeys()
	for n := 0; ; n++ {
		if m.maxSteps > 0 && n >= m.maxSteps {
			f := m.frame
			return m.fault(f.pc, m.prog.Code[f.pc], typeErrorf("tick exceeded %d instructions without WAIT", m.maxSteps))
		}
		sig, err := m.Step()
		if sig != Continue {
			m.log.Debugf("tick %d: %s after %d instructions", m.ticks, sig, n+1)
			return sig, err
		}
	}
}

// Step executes exactly one instruction.
func (m *Machine) Step() (Signal, error) {
	if m.state != Continue {
		return m.state, m.err
	}
	f := m.frame
	pc := f.pc
	if pc < 0 || pc >= len(m.prog.Code) {
		m.state = Faulted
		m.err = &RuntimeError{Kind: FaultType, Msg: fmt.Sprintf("program counter %d out of range", pc), PC: pc}
		m.flush()
		return m.state, m.err
	}
	ins := m.prog.Code[pc]
	f.pc++
	m.steps++
	if m.profiler != nil {
		m.profiler.RecordOp(ins.Op)
	}

	var r Registers
	for i := range m.reg.Info(ins.Op).StackPop {
		f.sp--
		r.A[i] = f.stack[f.sp]
		f.stack[f.sp] = nil
	}

	sig, err := m.exec(&ins, &r)
	if err != nil {
		return m.fault(pc, ins, err)
	}

	// CALL and RETURN switch frames, so results go to whichever frame
	// is current now.
	dst := m.frame
	for i := range r.N {
		dst.stack[dst.sp] = r.R[i]
		dst.sp++
	}

	if sig == Terminated {
		m.state = Terminated
		m.flush()
	}
	return sig, nil
}

func (m *Machine) fault(pc int, ins Instruction, err error) (Signal, error) {
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		located := *rerr
		located.PC = pc
		located.Op = ins.String()
		err = &located
	}
	m.state = Faulted
	m.err = err
	m.flush()
	m.log.Debugf("fault: %s", err)
	return Faulted, err
}

func (m *Machine) flush() {
	if f, ok := m.console.(interface{ Flush() }); ok {
		f.Flush()
	}
}

func (m *Machine) refreshKeys() {
	if m.keys == nil {
		return
	}
	t := EmptyTable()
	for name, down := range m.keys.Keys() {
		t, _ = t.Put(String(name), Bool(down))
	}
	m.keyTable = t
}
