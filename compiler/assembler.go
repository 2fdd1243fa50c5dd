package compiler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/nifki/vm"
)

// ---------------------------------------------------------------------------
// Assembler: two-pass compiler from assembly text to a vm.Program
// ---------------------------------------------------------------------------

// Assembler turns assembly source into programs for one operator
// registry. It holds no per-source state and may be reused.
type Assembler struct {
	reg *vm.Registry
	log commonlog.Logger
}

// New returns an assembler for reg.
func New(reg *vm.Registry) *Assembler {
	return &Assembler{reg: reg, log: commonlog.GetLogger("nifki.compiler")}
}

// Assemble compiles source. The main body runs first and ends with an
// implicit END; DEF(name) bodies follow it in any order. Every error is
// a *SyntaxError.
func (a *Assembler) Assemble(source string) (*vm.Program, error) {
	s := &assembly{
		reg:     a.reg,
		lex:     NewLexer(source),
		globals: make(map[string]int),
	}
	s.advance()
	prog, err := s.program()
	if err != nil {
		a.log.Debugf("assembly failed: %s", err)
		return nil, err
	}
	a.log.Debugf("assembled %d instructions, %d globals", len(prog.Code), len(prog.Names))
	return prog, nil
}

// Assemble compiles source with the given registry.
func Assemble(reg *vm.Registry, source string) (*vm.Program, error) {
	return New(reg).Assemble(source)
}

// body tracks one function body: its locals and its deepest operand
// depth.
type body struct {
	locals   map[string]int
	maxDepth int
	main     bool
}

type assembly struct {
	reg *vm.Registry
	lex *Lexer
	tok Token

	code    []vm.Instruction
	globals map[string]int
	names   []string
	values  []vm.Value

	fn *body
}

func (s *assembly) advance() {
	s.tok = s.lex.NextToken()
}

func (s *assembly) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Pos: tok.Pos, End: tok.End}
}

func (s *assembly) emit(tok Token, ins vm.Instruction) int {
	ins.Line = tok.Pos.Line
	s.code = append(s.code, ins)
	return len(s.code) - 1
}

// apply checks an instruction's arity against the running depth and
// returns the depth after it.
func (s *assembly) apply(tok Token, sp int, op vm.Opcode) (int, error) {
	info := s.reg.Info(op)
	if sp < info.StackPop {
		return 0, s.errorf(tok, "Stack underflow")
	}
	sp += info.StackPush - info.StackPop
	s.note(sp)
	return sp, nil
}

func (s *assembly) note(sp int) {
	if sp > s.fn.maxDepth {
		s.fn.maxDepth = sp
	}
}

func (s *assembly) global(name string) int {
	if slot, ok := s.globals[name]; ok {
		return slot
	}
	slot := len(s.names)
	s.globals[name] = slot
	s.names = append(s.names, name)
	s.values = append(s.values, nil)
	return slot
}

func (s *assembly) local(name string) int {
	if slot, ok := s.fn.locals[name]; ok {
		return slot
	}
	slot := len(s.fn.locals)
	s.fn.locals[name] = slot
	return slot
}

func (s *assembly) function(name string, pc int) *vm.Function {
	return &vm.Function{
		Name:      name,
		PC:        pc,
		NumLocals: len(s.fn.locals),
		StackLen:  s.fn.maxDepth,
	}
}

// program parses the main body and then every DEF body.
func (s *assembly) program() (*vm.Program, error) {
	s.fn = &body{locals: make(map[string]int), main: true}
	if err := s.block(0, 0, 0); err != nil {
		return nil, err
	}
	s.emit(s.tok, vm.Instruction{Op: vm.OpEnd})
	main := s.function("<main>", 0)

	for s.tok.Type != TokenEOF {
		tok := s.tok
		if tok.Type == TokenError {
			return nil, s.errorf(tok, "%s", tok.Literal)
		}
		if tok.Type != TokenCall || tok.Name != "DEF" {
			return nil, s.errorf(tok, "Expected DEF(name) but found %s", tok.Literal)
		}
		if !tok.Closed {
			return nil, s.errorf(tok, "Missing ')' in %s", tok.Literal)
		}
		if tok.Arg == "" {
			return nil, s.errorf(tok, "DEF needs a function name")
		}
		s.advance()

		slot := s.global(tok.Arg)
		if s.values[slot] != nil {
			return nil, s.errorf(tok, "Function %s is defined more than once", tok.Arg)
		}
		s.fn = &body{locals: make(map[string]int)}
		pc := len(s.code)
		if err := s.block(1, -1, 0); err != nil {
			return nil, err
		}
		s.values[slot] = s.function(tok.Arg, pc)
	}

	return &vm.Program{
		Code:    s.code,
		Globals: s.globals,
		Names:   s.names,
		Values:  s.values,
		Main:    main,
	}, nil
}

func (s *assembly) atBlockEnd() bool {
	switch s.tok.Type {
	case TokenEOF:
		return true
	case TokenWord:
		return s.reg.IsStopWord(s.tok.Literal)
	case TokenCall:
		return s.tok.Name == "DEF"
	}
	return false
}

// block parses instructions until a stop word, a DEF or the end of
// input, starting at operand depth sp and required to finish at exit.
// loops counts the enclosing loops of the current function. A block
// that ends in RETURN or BREAK never falls through, so its depth is not
// checked against exit.
func (s *assembly) block(sp, exit, loops int) error {
	s.note(sp)
	for !s.atBlockEnd() {
		tok := s.tok
		var err error
		switch tok.Type {
		case TokenError:
			return s.errorf(tok, "%s", tok.Literal)

		case TokenString:
			s.advance()
			str, derr := DecodeString(tok.Arg)
			if derr != nil {
				return s.errorf(tok, "%s", derr)
			}
			s.emit(tok, vm.Instruction{Op: vm.OpConst, Const: vm.String(str)})
			sp, err = s.apply(tok, sp, vm.OpConst)

		case TokenNumber:
			s.advance()
			f, perr := strconv.ParseFloat(tok.Literal, 64)
			if perr != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				return s.errorf(tok, "Bad number: %s", tok.Literal)
			}
			s.emit(tok, vm.Instruction{Op: vm.OpConst, Const: vm.Number(f)})
			sp, err = s.apply(tok, sp, vm.OpConst)

		case TokenCall:
			if !tok.Closed {
				return s.errorf(tok, "Missing ')' in %s", tok.Literal)
			}
			if tok.Name == "BREAK" {
				n, perr := strconv.Atoi(tok.Arg)
				if perr != nil || n < 1 {
					return s.errorf(tok, "Bad BREAK count: %s", tok.Arg)
				}
				s.advance()
				return s.breakOut(tok, sp, n, loops)
			}
			s.advance()
			sp, err = s.callForm(tok, sp)

		case TokenWord:
			s.advance()
			switch tok.Literal {
			case ";":
				if sp != 0 {
					return s.errorf(tok, "Stack contains %d items; should be 0 at ';'", sp)
				}
			case "IF":
				sp, err = s.ifBlock(tok, sp, loops)
			case "LOOP":
				sp, err = s.loopBlock(tok, sp, loops)
			case "FOR":
				sp, err = s.forBlock(tok, sp, loops)
			case "BREAK":
				n := 1
				for s.tok.Type == TokenWord && s.tok.Literal == "BREAK" {
					n++
					s.advance()
				}
				return s.breakOut(tok, sp, n, loops)
			case "RETURN":
				if s.fn.main {
					return s.errorf(tok, "RETURN outside a function")
				}
				if sp != 1 {
					return s.errorf(tok, "Stack should contain 1 item (the result) before executing RETURN, not %d", sp)
				}
				s.emit(tok, vm.Instruction{Op: vm.OpReturn})
				return nil
			default:
				op, ok := s.reg.Lookup(tok.Literal)
				if !ok {
					return s.errorf(tok, "Unknown instruction: %s", tok.Literal)
				}
				s.emit(tok, vm.Instruction{Op: op})
				sp, err = s.apply(tok, sp, op)
			}
		}
		if err != nil {
			return err
		}
	}

	if sp != exit {
		if exit < 0 {
			return s.errorf(s.tok, "Function body must end with RETURN")
		}
		return s.errorf(s.tok, "Stack contains %d items; should be %d", sp, exit)
	}
	return nil
}

// callForm assembles LOAD, STORE, LLOAD, LSTORE and SET.
func (s *assembly) callForm(tok Token, sp int) (int, error) {
	ins := vm.Instruction{Name: tok.Arg}
	switch tok.Name {
	case "LOAD":
		ins.Op, ins.Slot = vm.OpLoad, s.global(tok.Arg)
	case "STORE":
		ins.Op, ins.Slot = vm.OpStore, s.global(tok.Arg)
	case "LLOAD":
		ins.Op, ins.Slot = vm.OpLLoad, s.local(tok.Arg)
	case "LSTORE":
		ins.Op, ins.Slot = vm.OpLStore, s.local(tok.Arg)
	case "SET":
		ins.Op = vm.OpSet
	default:
		return 0, s.errorf(tok, "Unknown instruction: %s", tok.Literal)
	}
	if tok.Arg == "" {
		return 0, s.errorf(tok, "%s needs a name", tok.Name)
	}
	s.emit(tok, ins)
	return s.apply(tok, sp, ins.Op)
}

func (s *assembly) expect(word string) error {
	if s.tok.Type == TokenError {
		return s.errorf(s.tok, "%s", s.tok.Literal)
	}
	if s.tok.Type != TokenWord || s.tok.Literal != word {
		found := s.tok.Literal
		if s.tok.Type == TokenEOF {
			found = "end of input"
		}
		return s.errorf(s.tok, "Expected %s but found %s", word, found)
	}
	s.advance()
	return nil
}

// ifBlock assembles "cond IF then THEN else ELSE".
func (s *assembly) ifBlock(tok Token, sp, loops int) (int, error) {
	if sp != 1 {
		return 0, s.errorf(tok, "Stack should contain 1 item (the condition) before IF, not %d", sp)
	}
	ifPC := s.emit(tok, vm.Instruction{Op: vm.OpIf})
	if err := s.block(0, 0, loops); err != nil {
		return 0, err
	}
	thenTok := s.tok
	if err := s.expect("THEN"); err != nil {
		return 0, err
	}
	gotoPC := s.emit(thenTok, vm.Instruction{Op: vm.OpGoto})
	s.code[ifPC].Target = len(s.code)
	if err := s.block(0, 0, loops); err != nil {
		return 0, err
	}
	if err := s.expect("ELSE"); err != nil {
		return 0, err
	}
	s.code[gotoPC].Target = len(s.code)
	return 0, nil
}

// loopBlock assembles "LOOP cond WHILE body NEXT else ELSE".
func (s *assembly) loopBlock(tok Token, sp, loops int) (int, error) {
	if sp != 0 {
		return 0, s.errorf(tok, "Stack contains %d items; should be 0 before LOOP", sp)
	}
	loopPC := s.emit(tok, vm.Instruction{Op: vm.OpLoop})
	s.code[loopPC].Target = len(s.code)
	if err := s.block(0, 1, loops+1); err != nil {
		return 0, err
	}
	whileTok := s.tok
	if err := s.expect("WHILE"); err != nil {
		return 0, err
	}
	s.emit(whileTok, vm.Instruction{Op: vm.OpWhile})
	if err := s.block(0, 0, loops+1); err != nil {
		return 0, err
	}
	nextTok := s.tok
	if err := s.expect("NEXT"); err != nil {
		return 0, err
	}
	s.emit(nextTok, vm.Instruction{Op: vm.OpNext})
	s.code[loopPC].Else = len(s.code)
	if err := s.block(0, 0, loops); err != nil {
		return 0, err
	}
	if err := s.expect("ELSE"); err != nil {
		return 0, err
	}
	s.code[loopPC].Break = len(s.code)
	return 0, nil
}

// forBlock assembles "iterable FOR body NEXT else ELSE". The body starts
// with the key and the value on the stack, value on top.
func (s *assembly) forBlock(tok Token, sp, loops int) (int, error) {
	if sp != 1 {
		return 0, s.errorf(tok, "Stack should contain 1 item (the iterable) before FOR, not %d", sp)
	}
	forPC := s.emit(tok, vm.Instruction{Op: vm.OpFor})
	s.code[forPC].Target = len(s.code)
	if err := s.block(2, 0, loops+1); err != nil {
		return 0, err
	}
	nextTok := s.tok
	if err := s.expect("NEXT"); err != nil {
		return 0, err
	}
	s.emit(nextTok, vm.Instruction{Op: vm.OpNext})
	s.code[forPC].Else = len(s.code)
	if err := s.block(0, 0, loops); err != nil {
		return 0, err
	}
	if err := s.expect("ELSE"); err != nil {
		return 0, err
	}
	s.code[forPC].Break = len(s.code)
	return 0, nil
}

func (s *assembly) breakOut(tok Token, sp, n, loops int) error {
	if sp != 0 {
		return s.errorf(tok, "Stack contains %d items; should be 0 before BREAK", sp)
	}
	if n > loops {
		return s.errorf(tok, "%d BREAK instructions, but only %d enclosing loops", n, loops)
	}
	s.emit(tok, vm.Instruction{Op: vm.OpBreak, Slot: n})
	return nil
}
