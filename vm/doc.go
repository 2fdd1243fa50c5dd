// Package vm implements the Nifki virtual machine.
//
// This package contains:
//   - the value model and its total order
//   - the persistent sorted table
//   - the operator registry and instruction set
//   - the register-window execution engine (Machine)
//   - sprite and window objects read by the host between ticks
package vm
