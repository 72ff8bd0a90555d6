//go:build linux

package display

import (
	"fmt"
	"image"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// DefaultI2CAddr is the usual address of 128x32 SSD1306 modules.
const DefaultI2CAddr = 0x3C

// SSD1306 presents frames on an SSD1306 OLED attached to a Linux I2C bus.
type SSD1306 struct {
	busName string
	addr    uint16
	bus     i2c.BusCloser
	dev     *ssd1306.Dev
	img     *image1bit.VerticalLSB
}

// NewSSD1306 creates a panel on the named I2C bus ("" = first bus).
// The bus is opened by Init.
func NewSSD1306(busName string, addr uint16) *SSD1306 {
	return &SSD1306{busName: busName, addr: addr}
}

// Init opens the bus and configures the controller.
func (p *SSD1306) Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(p.busName)
	if err != nil {
		return fmt.Errorf("open i2c bus %q: %w", p.busName, err)
	}
	if err := p.attach(bus); err != nil {
		bus.Close()
		return err
	}
	p.bus = bus
	return nil
}

// attach configures the controller over an already open bus.
func (p *SSD1306) attach(bus i2c.Bus) error {
	opts := ssd1306.DefaultOpts
	opts.W = Width
	opts.H = Height
	dev, err := ssd1306.NewI2C(addrBus{Bus: bus, addr: p.addr}, &opts)
	if err != nil {
		return fmt.Errorf("ssd1306 at %#x: %w", p.addr, err)
	}
	p.dev = dev
	p.img = image1bit.NewVerticalLSB(image.Rect(0, 0, Width, Height))
	return nil
}

// Show converts the frame to the controller's page layout and flushes it.
func (p *SSD1306) Show(fb *Framebuffer) error {
	if p.dev == nil {
		return fmt.Errorf("ssd1306: not initialized")
	}
	w, h := fb.Size()
	for y := int16(0); y < h; y++ {
		for x := int16(0); x < w; x++ {
			p.img.SetBit(int(x), int(y), image1bit.Bit(fb.Pixel(x, y)))
		}
	}
	if err := p.dev.Draw(p.img.Bounds(), p.img, image.Point{}); err != nil {
		return fmt.Errorf("ssd1306 draw: %w", err)
	}
	return nil
}

// Close blanks the panel and releases the I2C bus.
func (p *SSD1306) Close() error {
	if p.bus == nil {
		return nil
	}
	if p.dev != nil {
		p.dev.Halt()
	}
	return p.bus.Close()
}

// addrBus pins every transaction to the configured address. The periph
// driver always talks to 0x3C; modules strapped to 0x3D need this.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}
