package host_test

import (
	"testing"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/vm"
)

func newMachine(t *testing.T, src string, cfg vm.Config) *vm.Machine {
	t.Helper()
	reg := vm.NewRegistry()
	prog, err := compiler.Assemble(reg, src)
	if err != nil {
		t.Fatalf("Assemble(%q): %v", src, err)
	}
	if cfg.Console == nil {
		cfg.Console = &vm.Recorder{}
	}
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = 400, 300
	}
	return vm.NewMachine(reg, prog, cfg)
}
