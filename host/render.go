package host

import (
	"fmt"
	"io"
	"strings"
)

// Renderer presents a Scene.
type Renderer interface {
	Render(Scene) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Scene) error

func (f RendererFunc) Render(s Scene) error { return f(s) }

// TextRenderer writes a one-line summary of each frame, for running
// games without a display.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a TextRenderer writing to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(s Scene) error {
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d: camera (%g,%g %gx%g) bg #%02x%02x%02x",
		s.Frame, s.Camera.X, s.Camera.Y, s.Camera.W, s.Camera.H,
		s.Background.R, s.Background.G, s.Background.B)
	for _, sp := range s.Sprites {
		name := "?"
		if sp.Picture != nil {
			name = sp.Picture.Name
		}
		fmt.Fprintf(&b, " %s@%g,%g", name, sp.Bounds.X, sp.Bounds.Y)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(r.w, b.String())
	return err
}
