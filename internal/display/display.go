// Package display renders text and lines into a 1-bit off-screen buffer
// and presents it on a panel (SSD1306 OLED, console or nothing).
package display

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// Display is the drawing surface used by the renderer.
type Display interface {
	// Initialize prepares the panel. Must be called once before drawing.
	Initialize() error
	// ClearBuffer blanks the off-screen buffer.
	ClearBuffer()
	// DrawText draws s with its top-left corner at (x, y).
	DrawText(x, y, scale int16, s string)
	// DrawLine draws a one pixel line between both points, inclusive.
	DrawLine(x0, y0, x1, y1 int16)
	// Present pushes the off-screen buffer to the panel.
	Present() error
}

// Panel shows a finished frame.
type Panel interface {
	Init() error
	Show(fb *Framebuffer) error
}

// Panel geometry of the 0.91" SSD1306 module.
const (
	Width  = 128
	Height = 32
)

// fontAscent converts a top-left text position into the font baseline.
const fontAscent = 7

var colorOn = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

var (
	_ Display           = (*Framebuffer)(nil)
	_ drivers.Displayer = (*Framebuffer)(nil)
)

// Framebuffer is a 1-bit off-screen buffer. It satisfies
// tinygo.org/x/drivers.Displayer so tinyfont can draw into it.
// Not safe for concurrent use; the renderer owns it.
type Framebuffer struct {
	width  int16
	height int16
	bits   []byte
	panel  Panel
	font   tinyfont.Fonter
}

// NewFramebuffer creates a buffer of the given size presenting to panel.
// A nil panel discards frames.
func NewFramebuffer(width, height int16, panel Panel) *Framebuffer {
	n := (int(width)*int(height) + 7) / 8
	return &Framebuffer{
		width:  width,
		height: height,
		bits:   make([]byte, n),
		panel:  panel,
		font:   &proggy.TinySZ8pt7b,
	}
}

// Initialize initializes the panel.
func (f *Framebuffer) Initialize() error {
	if f.panel == nil {
		return nil
	}
	return f.panel.Init()
}

// Size returns the buffer dimensions.
func (f *Framebuffer) Size() (x, y int16) {
	return f.width, f.height
}

// SetPixel lights the pixel for any visible non-black color and clears it
// otherwise. Out of range coordinates are ignored.
func (f *Framebuffer) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return
	}
	i := int(y)*int(f.width) + int(x)
	if c.A != 0 && (c.R|c.G|c.B) != 0 {
		f.bits[i/8] |= 1 << (i % 8)
	} else {
		f.bits[i/8] &^= 1 << (i % 8)
	}
}

// Pixel reports whether (x, y) is lit.
func (f *Framebuffer) Pixel(x, y int16) bool {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return false
	}
	i := int(y)*int(f.width) + int(x)
	return f.bits[i/8]&(1<<(i%8)) != 0
}

// Display presents the buffer. It lets the framebuffer stand in for a
// tinygo display driver.
func (f *Framebuffer) Display() error {
	return f.Present()
}

// ClearBuffer blanks the buffer.
func (f *Framebuffer) ClearBuffer() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}

// DrawText draws s with tinyfont. Scale > 1 enlarges every font pixel to a
// scale x scale block.
func (f *Framebuffer) DrawText(x, y, scale int16, s string) {
	if scale <= 1 {
		tinyfont.WriteLine(f, f.font, x, y+fontAscent, s, colorOn)
		return
	}
	sd := &scaled{fb: f, ox: x, oy: y, scale: scale}
	tinyfont.WriteLine(sd, f.font, 0, fontAscent, s, colorOn)
}

// DrawLine draws a line with Bresenham's algorithm.
func (f *Framebuffer) DrawLine(x0, y0, x1, y1 int16) {
	dx := abs16(x1 - x0)
	dy := -abs16(y1 - y0)
	sx, sy := int16(1), int16(1)
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		f.SetPixel(x0, y0, colorOn)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// Present hands the buffer to the panel.
func (f *Framebuffer) Present() error {
	if f.panel == nil {
		return nil
	}
	return f.panel.Show(f)
}

// Lit returns the number of lit pixels.
func (f *Framebuffer) Lit() int {
	n := 0
	for _, b := range f.bits {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

// scaled maps font pixels onto blocks of the underlying framebuffer.
type scaled struct {
	fb     *Framebuffer
	ox, oy int16
	scale  int16
}

func (s *scaled) Size() (x, y int16) {
	w, h := s.fb.Size()
	return w / s.scale, h / s.scale
}

func (s *scaled) SetPixel(x, y int16, c color.RGBA) {
	for dy := int16(0); dy < s.scale; dy++ {
		for dx := int16(0); dx < s.scale; dx++ {
			s.fb.SetPixel(s.ox+x*s.scale+dx, s.oy+y*s.scale+dy, c)
		}
	}
}

func (s *scaled) Display() error {
	return nil
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}
