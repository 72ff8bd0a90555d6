package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Console prints frames as block characters, two pixel rows per line.
// Used on the bench when no OLED is attached.
type Console struct {
	w     io.Writer
	style lipgloss.Style
}

// NewConsole creates a console panel writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w: w,
		style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
	}
}

// Init does nothing; the console is always ready.
func (c *Console) Init() error {
	return nil
}

// Show writes one framed frame.
func (c *Console) Show(fb *Framebuffer) error {
	if _, err := fmt.Fprintln(c.w, c.style.Render(Ascii(fb))); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}

// Ascii renders fb with half-block characters, two pixel rows per line.
func Ascii(fb *Framebuffer) string {
	w, h := fb.Size()
	var b strings.Builder
	for y := int16(0); y < h; y += 2 {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := int16(0); x < w; x++ {
			top, bottom := fb.Pixel(x, y), fb.Pixel(x, y+1)
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}
