package vm

import (
	"fmt"
	"maps"
	"slices"
)

// Opcode identifies an instruction.
type Opcode byte

const (
	// ========================================================================
	// Operand-carrying instructions, emitted by the assembler
	// ========================================================================

	OpConst  Opcode = iota // Push a literal
	OpLoad                 // Push a global: LOAD(name)
	OpStore                // Pop into a global: STORE(name)
	OpLLoad                // Push a local: LLOAD(name)
	OpLStore               // Pop into a local: LSTORE(name)
	OpSet                  // Pop value and object, assign field: SET(name)

	// ========================================================================
	// Control flow
	// ========================================================================

	OpIf     // Pop boolean, jump to Target when false
	OpGoto   // Jump to Target
	OpLoop   // Open a bare loop context
	OpFor    // Pop an iterable, open an iteration context
	OpWhile  // Pop boolean, leave the loop when false
	OpNext   // Re-enter the current loop
	OpBreak  // Close Count loop contexts
	OpReturn // Pop result, resume the caller
	OpCall   // Pop args table and function, enter the function
	OpWait   // Yield the tick
	OpEnd    // Terminate the run

	// ========================================================================
	// Arithmetic and math
	// ========================================================================

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpAbs
	OpCeil
	OpFloor
	OpRound
	OpSqrt
	OpNeg
	OpLen

	// ========================================================================
	// Comparison and logic
	// ========================================================================

	OpEq
	OpNe
	OpCmpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpMin
	OpMax
	OpAnd
	OpOr
	OpXor
	OpNot

	// ========================================================================
	// Constants, tables and indexing
	// ========================================================================

	OpTrue
	OpFalse
	OpTable
	OpGet
	OpContains
	OpDGet
	OpPut

	// ========================================================================
	// Stack, output and host-facing builtins
	// ========================================================================

	OpDrop
	OpDropTable
	OpDump
	OpRandom
	OpKeys
	OpSprite
	OpWindow
	OpCls

	opCount
)

// OpcodeInfo describes an instruction's static contract. Word is the bare
// word that assembles to it, or empty for instructions only the
// assembler emits.
type OpcodeInfo struct {
	Name      string
	Word      string
	StackPop  int
	StackPush int
}

var opcodeInfoTable = [opCount]OpcodeInfo{
	OpConst:  {"CONST", "", 0, 1},
	OpLoad:   {"LOAD", "", 0, 1},
	OpStore:  {"STORE", "", 1, 0},
	OpLLoad:  {"LLOAD", "", 0, 1},
	OpLStore: {"LSTORE", "", 1, 0},
	OpSet:    {"SET", "", 2, 0},

	OpIf:     {"IF", "", 1, 0},
	OpGoto:   {"GOTO", "", 0, 0},
	OpLoop:   {"LOOP", "", 0, 0},
	OpFor:    {"FOR", "", 1, 2},
	OpWhile:  {"WHILE", "", 1, 0},
	OpNext:   {"NEXT", "", 0, 0},
	OpBreak:  {"BREAK", "", 0, 0},
	OpReturn: {"RETURN", "", 1, 0},
	OpCall:   {"CALL", "CALL", 2, 1},
	OpWait:   {"WAIT", "WAIT", 0, 0},
	OpEnd:    {"END", "END", 0, 0},

	OpAdd:   {"ADD", "+", 2, 1},
	OpSub:   {"SUB", "-", 2, 1},
	OpMul:   {"MUL", "*", 2, 1},
	OpDiv:   {"DIV", "/", 2, 1},
	OpMod:   {"MOD", "%", 2, 1},
	OpPow:   {"POW", "**", 2, 1},
	OpAbs:   {"ABS", "ABS", 1, 1},
	OpCeil:  {"CEIL", "CEIL", 1, 1},
	OpFloor: {"FLOOR", "FLOOR", 1, 1},
	OpRound: {"ROUND", "ROUND", 1, 1},
	OpSqrt:  {"SQRT", "SQRT", 1, 1},
	OpNeg:   {"NEG", "NEG", 1, 1},
	OpLen:   {"LEN", "LEN", 1, 1},

	OpEq:    {"EQ", "==", 2, 1},
	OpNe:    {"NE", "!=", 2, 1},
	OpCmpNe: {"CMPNE", "<>", 2, 1},
	OpLt:    {"LT", "<", 2, 1},
	OpLe:    {"LE", "<=", 2, 1},
	OpGt:    {"GT", ">", 2, 1},
	OpGe:    {"GE", ">=", 2, 1},
	OpMin:   {"MIN", "MIN", 2, 1},
	OpMax:   {"MAX", "MAX", 2, 1},
	OpAnd:   {"AND", "AND", 2, 1},
	OpOr:    {"OR", "OR", 2, 1},
	OpXor:   {"XOR", "XOR", 2, 1},
	OpNot:   {"NOT", "NOT", 1, 1},

	OpTrue:     {"TRUE", "TRUE", 0, 1},
	OpFalse:    {"FALSE", "FALSE", 0, 1},
	OpTable:    {"TABLE", "TABLE", 0, 1},
	OpGet:      {"GET", "GET", 2, 1},
	OpContains: {"CONTAINS", "CONTAINS", 2, 1},
	OpDGet:     {"DGET", "DGET", 2, 3},
	OpPut:      {"PUT", "PUT", 3, 1},

	OpDrop:      {"DROP", "DROP", 1, 0},
	OpDropTable: {"DROPTABLE", "DROPTABLE", 1, 0},
	OpDump:      {"DUMP", "DUMP", 1, 0},
	OpRandom:    {"RANDOM", "RANDOM", 0, 1},
	OpKeys:      {"KEYS", "KEYS", 0, 1},
	OpSprite:    {"SPRITE", "SPRITE", 1, 1},
	OpWindow:    {"WINDOW", "WINDOW", 0, 1},
	OpCls:       {"CLS", "CLS", 0, 0},
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	if op < opCount {
		return opcodeInfoTable[op].Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// Stop words end a block without being consumed by it.
var stopWords = []string{"THEN", "WHILE", "NEXT", "ELSE"}

// Registry maps source words to opcodes. It is built once and shared,
// read-only, by the assembler and the engine.
type Registry struct {
	words map[string]Opcode
	stop  map[string]bool
}

// NewRegistry builds the standard operator registry.
func NewRegistry() *Registry {
	r := &Registry{
		words: make(map[string]Opcode),
		stop:  make(map[string]bool),
	}
	for op, info := range opcodeInfoTable {
		if info.Word != "" {
			r.words[info.Word] = Opcode(op)
		}
	}
	for _, w := range stopWords {
		r.stop[w] = true
	}
	return r
}

// Lookup returns the opcode a bare word assembles to.
func (r *Registry) Lookup(word string) (Opcode, bool) {
	op, ok := r.words[word]
	return op, ok
}

// Info returns the static contract of op.
func (r *Registry) Info(op Opcode) OpcodeInfo {
	if op < opCount {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Name: op.String()}
}

// IsStopWord reports whether word ends a block.
func (r *Registry) IsStopWord(word string) bool {
	return r.stop[word]
}

// Words returns every bare operator word, sorted.
func (r *Registry) Words() []string {
	return slices.Sorted(maps.Keys(r.words))
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one assembled instruction. Only the operand fields its
// opcode uses are set.
type Instruction struct {
	Op    Opcode
	Const Value  // OpConst
	Slot  int    // global or local slot; break count for OpBreak
	Name  string // variable or field name, for messages and listings
	// Target is the jump target of IF and GOTO and the re-entry point of
	// LOOP and FOR.
	Target int
	Else   int // LOOP, FOR: taken when the loop finishes normally
	Break  int // LOOP, FOR: taken on BREAK
	Line   int
}

// String renders the instruction in source-like syntax.
func (ins Instruction) String() string {
	switch ins.Op {
	case OpConst:
		if s, ok := ins.Const.(String); ok {
			return Quote(s)
		}
		return ins.Const.String()
	case OpLoad, OpStore, OpLLoad, OpLStore, OpSet:
		return ins.Op.String() + "(" + ins.Name + ")"
	case OpIf, OpGoto:
		return fmt.Sprintf("%s(%d)", ins.Op, ins.Target)
	case OpLoop, OpFor:
		return fmt.Sprintf("%s(%d, %d, %d)", ins.Op, ins.Target, ins.Else, ins.Break)
	case OpBreak:
		return fmt.Sprintf("BREAK(%d)", ins.Slot)
	}
	if ins.Op < opCount && opcodeInfoTable[ins.Op].Word != "" {
		return opcodeInfoTable[ins.Op].Word
	}
	return ins.Op.String()
}

// Program is the output of the assembler.
type Program struct {
	Code []Instruction
	// Globals maps each global name to its slot.
	Globals map[string]int
	// Names lists global names by slot.
	Names []string
	// Values holds the initial global values by slot; nil is undefined.
	// Function bodies are filled in by the assembler, pictures by the
	// host.
	Values []Value
	Main   *Function
}

// Slot returns the slot of a global name.
func (p *Program) Slot(name string) (int, bool) {
	i, ok := p.Globals[name]
	return i, ok
}
