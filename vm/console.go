package vm

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// LineConsole buffers DUMP output and writes it to an io.Writer one
// line at a time. A line ends at a newline, written in source as \A/.
type LineConsole struct {
	w   *bufio.Writer
	buf strings.Builder
}

// NewLineConsole returns a console writing to w.
func NewLineConsole(w io.Writer) *LineConsole {
	return &LineConsole{w: bufio.NewWriter(w)}
}

// StdoutConsole returns a console writing to standard output.
func StdoutConsole() *LineConsole {
	return NewLineConsole(os.Stdout)
}

// Print appends s, emitting every line it completes.
func (c *LineConsole) Print(s string) {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			c.buf.WriteString(s)
			return
		}
		c.buf.WriteString(s[:i])
		c.emit()
		s = s[i+1:]
	}
}

// Flush writes any pending partial line.
func (c *LineConsole) Flush() {
	if c.buf.Len() > 0 {
		c.emit()
	}
}

func (c *LineConsole) emit() {
	c.w.WriteString(c.buf.String())
	c.w.WriteByte('\n')
	c.w.Flush()
	c.buf.Reset()
}

// Recorder is a Console that keeps every rendering it is given.
type Recorder struct {
	Lines []string
}

// Print records s.
func (r *Recorder) Print(s string) {
	r.Lines = append(r.Lines, s)
}
