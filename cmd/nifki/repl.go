package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/vm"
)

const (
	historyFile = ".nifki_history"
	promptMain  = "nifki> "
	promptCont  = "  ...> "
	replTicks   = 100
)

const replBanner = `Nifki REPL. Each entry is assembled and run as a whole program.
A line ending in an unclosed block continues. :dis shows the last
program, :quit exits.`

// runREPL reads programs until EOF and runs each on a fresh machine,
// printing its DUMP output.
func runREPL() int {
	fmt.Println(replBanner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	reg := vm.NewRegistry()
	asm := compiler.New(reg)
	ln.SetCompleter(func(line string) []string {
		i := strings.LastIndexAny(line, " \t") + 1
		prefix := strings.ToUpper(line[i:])
		var out []string
		for _, w := range reg.Words() {
			if strings.HasPrefix(w, prefix) {
				out = append(out, line[:i]+w)
			}
		}
		return out
	})

	var last *vm.Program
	for {
		src, ok := readProgram(ln, asm)
		if !ok {
			fmt.Println()
			return 0
		}
		switch strings.TrimSpace(src) {
		case "":
			continue
		case ":quit":
			return 0
		case ":dis":
			if last == nil {
				fmt.Println("nothing assembled yet")
			} else {
				fmt.Print(vm.Disassemble(last))
			}
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		prog, err := asm.Assemble(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			continue
		}
		last = prog

		console := vm.StdoutConsole()
		m := vm.NewMachine(reg, prog, vm.Config{Width: 400, Height: 300, MaxSteps: 1_000_000, Console: console})
		var sig vm.Signal
		for range replTicks {
			if sig, err = m.Tick(); sig != vm.Yielded {
				break
			}
		}
		console.Flush()
		switch sig {
		case vm.Faulted:
			fmt.Fprintln(os.Stderr, red(err.Error()))
		case vm.Yielded:
			fmt.Println(yellow(fmt.Sprintf("still running after %d ticks", replTicks)))
		}
	}
}

// readProgram reads lines until they assemble or fail for a reason other
// than running out of input.
func readProgram(ln *liner.State, asm *compiler.Assembler) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := asm.Assemble(src); err != nil && incomplete(err) {
			continue
		}
		return src, true
	}
}

// incomplete reports whether err only says the input stopped inside a
// block.
func incomplete(err error) bool {
	var se *compiler.SyntaxError
	return errors.As(err, &se) && strings.HasSuffix(se.Msg, "but found end of input")
}
