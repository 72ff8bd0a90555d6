//go:build !linux

package display

import "errors"

// DefaultI2CAddr is the usual address of 128x32 SSD1306 modules.
const DefaultI2CAddr = 0x3C

// SSD1306 is not available on non-Linux platforms.
type SSD1306 struct{}

// NewSSD1306 returns a panel whose Init always fails on non-Linux platforms.
func NewSSD1306(busName string, addr uint16) *SSD1306 {
	return &SSD1306{}
}

// Init is not implemented on non-Linux platforms.
func (p *SSD1306) Init() error {
	return errors.New("display: ssd1306 not supported on this platform (requires Linux)")
}

// Show is not implemented on non-Linux platforms.
func (p *SSD1306) Show(fb *Framebuffer) error {
	return errors.New("display: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *SSD1306) Close() error {
	return nil
}
