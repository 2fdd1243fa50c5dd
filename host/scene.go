package host

import (
	"cmp"
	"math"
	"slices"

	"github.com/chazu/nifki/vm"
)

// Rect is a rectangle in game coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Color is an 8-bit RGB colour.
type Color struct {
	R, G, B uint8
}

// SpriteView is what a renderer needs to draw one sprite.
type SpriteView struct {
	ID      uint64
	Picture *vm.Picture
	Bounds  Rect
	Depth   float64
}

// Scene is one frame: the visible window region, the background colour
// and the sprites in draw order.
type Scene struct {
	Frame      int
	Camera     Rect
	Background Color
	Sprites    []SpriteView
}

// CollectScene forgets touched sprites that are no longer visible and
// returns the rest ordered for drawing: deeper sprites first, then older
// sprites first.
func CollectScene(m *vm.Machine) Scene {
	m.Prune(func(o *vm.Object) bool { return o.Flag("IsVisible") })

	win := m.Window()
	scene := Scene{
		Frame:      m.Ticks(),
		Camera:     bounds(win),
		Background: Color{channel(win.Number("R")), channel(win.Number("G")), channel(win.Number("B"))},
	}
	for id, o := range m.Touched() {
		scene.Sprites = append(scene.Sprites, SpriteView{
			ID:      id,
			Picture: o.Picture(),
			Bounds:  bounds(o),
			Depth:   o.Number("Depth"),
		})
	}
	slices.SortFunc(scene.Sprites, func(a, b SpriteView) int {
		if c := cmp.Compare(b.Depth, a.Depth); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return scene
}

func bounds(o *vm.Object) Rect {
	return Rect{o.Number("X"), o.Number("Y"), o.Number("W"), o.Number("H")}
}

// channel maps a colour component in [0, 1] to a byte, clamping.
func channel(v float64) uint8 {
	c := math.Round(255 * v)
	switch {
	case c < 0 || math.IsNaN(c):
		return 0
	case c > 255:
		return 255
	}
	return uint8(c)
}
