package vm

import (
	"errors"
	"fmt"
)

// Sentinels for the two run-time fault classes.
var (
	ErrType      = errors.New("type error")
	ErrUndefined = errors.New("not defined")
)

// FaultKind classifies a RuntimeError.
type FaultKind int

const (
	FaultType FaultKind = iota
	FaultUndefined
)

func (k FaultKind) String() string {
	if k == FaultUndefined {
		return "UndefinedError"
	}
	return "TypeError"
}

// RuntimeError is a fault raised while executing an instruction. It is
// fatal to the run.
type RuntimeError struct {
	Kind FaultKind
	Msg  string
	// PC and Op locate the failing instruction; PC is -1 when the error
	// was raised outside the dispatch loop.
	PC int
	Op string
}

func (e *RuntimeError) Error() string {
	if e.PC < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s (at %04d %s)", e.Kind, e.Msg, e.PC, e.Op)
}

// Is lets errors.Is match the ErrType and ErrUndefined sentinels.
func (e *RuntimeError) Is(target error) bool {
	switch target {
	case ErrType:
		return e.Kind == FaultType
	case ErrUndefined:
		return e.Kind == FaultUndefined
	}
	return false
}

func typeErrorf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: FaultType, Msg: fmt.Sprintf(format, args...), PC: -1}
}

func undefinedf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: FaultUndefined, Msg: fmt.Sprintf(format, args...), PC: -1}
}
