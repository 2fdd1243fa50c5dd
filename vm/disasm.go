package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func Disassemble(p *Program) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; Nifki program: %d instructions, %d globals\n", len(p.Code), len(p.Names)))

	// Function entry points, by PC
	entries := map[int]*Function{p.Main.PC: p.Main}
	for _, v := range p.Values {
		if fn, ok := v.(*Function); ok {
			entries[fn.PC] = fn
		}
	}

	// Globals
	if len(p.Names) > 0 {
		sb.WriteString("; Globals:\n")
		for i, name := range p.Names {
			kind := "unbound"
			if v := p.Values[i]; v != nil {
				kind = v.Kind().String()
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s (%s)\n", i, name, kind))
		}
	}

	for pc, ins := range p.Code {
		if fn, ok := entries[pc]; ok {
			sb.WriteString(fmt.Sprintf("\n%s: ; locals=%d stack=%d\n", fn.Name, fn.NumLocals, fn.StackLen))
		}
		sb.WriteString(fmt.Sprintf("%04d  %-24s", pc, ins))
		if ins.Line > 0 {
			sb.WriteString(fmt.Sprintf(" ; line %d", ins.Line))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
