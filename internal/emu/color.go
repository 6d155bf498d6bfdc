package emu

import "fmt"

// ColorKind discriminates the three representations a cell color can
// have on the wire.
type ColorKind uint8

const (
	// ColorDefault is the sentinel meaning "whatever the renderer's
	// current default is". It resolves at render time, never inside the
	// emulator, so a theme change re-renders the same buffer
	// consistently.
	ColorDefault ColorKind = iota
	// ColorIndexed is a palette index 0-255; 0-7 are the named ANSI
	// colors, 8-15 their bright variants.
	ColorIndexed
	// ColorRGB is a 24-bit truecolor value.
	ColorRGB
)

// Color is a comparable color value.
type Color struct {
	Kind  ColorKind
	Index uint8
	RGB   uint32 // 0xRRGGBB, valid when Kind == ColorRGB
}

// Default is the unset color sentinel.
var Default = Color{}

// Indexed returns a palette color.
func Indexed(i uint8) Color {
	return Color{Kind: ColorIndexed, Index: i}
}

// RGB returns a truecolor value.
func RGB(r, g, b uint8) Color {
	return Color{Kind: ColorRGB, RGB: uint32(r)<<16 | uint32(g)<<8 | uint32(b)}
}

// Resolve substitutes def for the default sentinel. Concrete colors
// pass through unchanged.
func (c Color) Resolve(def Color) Color {
	if c.Kind == ColorDefault {
		return def
	}
	return c
}

// Hex renders the color as a #rrggbb string for truecolor and indexed
// values (using the standard xterm 256-color palette), or "" for the
// default sentinel.
func (c Color) Hex() string {
	switch c.Kind {
	case ColorRGB:
		return fmt.Sprintf("#%06x", c.RGB)
	case ColorIndexed:
		return fmt.Sprintf("#%06x", xterm256[c.Index])
	default:
		return ""
	}
}

// xterm256 is the standard 256-color palette as packed 0xRRGGBB.
var xterm256 = func() [256]uint32 {
	var p [256]uint32
	base := [16]uint32{
		0x000000, 0x800000, 0x008000, 0x808000,
		0x000080, 0x800080, 0x008080, 0xc0c0c0,
		0x808080, 0xff0000, 0x00ff00, 0xffff00,
		0x0000ff, 0xff00ff, 0x00ffff, 0xffffff,
	}
	copy(p[:16], base[:])
	// 6x6x6 color cube.
	levels := [6]uint32{0x00, 0x5f, 0x87, 0xaf, 0xd7, 0xff}
	i := 16
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				p[i] = levels[r]<<16 | levels[g]<<8 | levels[b]
				i++
			}
		}
	}
	// Grayscale ramp.
	for g := 0; g < 24; g++ {
		v := uint32(8 + g*10)
		p[i] = v<<16 | v<<8 | v
		i++
	}
	return p
}()
