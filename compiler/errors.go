package compiler

import "fmt"

// SyntaxError is an assembly fault. There is no partial program: the
// first SyntaxError ends assembly.
type SyntaxError struct {
	Msg string
	Pos Position // start of the offending token
	End Position // end of the offending token
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at line %d", e.Msg, e.Pos.Line)
}

// Line returns the 1-based source line of the fault.
func (e *SyntaxError) Line() int {
	return e.Pos.Line
}
