// Copyright 2025 Certen Protocol
//
// Image Grid - uniform RGBA byte view of a raster image
// The grid is the unit every codec operates on; 4 bytes per pixel in
// raster order, alpha always last

package imaging

import (
	"encoding/binary"
	"fmt"
	"image"
)

// Luminance weights per Rec.601. Embedding code distributes luminance
// deltas across R, G, B with these same weights.
const (
	WeightR = 0.299
	WeightG = 0.587
	WeightB = 0.114
)

// weightNorm is the squared norm of the weight vector; dividing by it makes
// a projected delta move the recomputed luminance by exactly that delta.
const weightNorm = WeightR*WeightR + WeightG*WeightG + WeightB*WeightB

// Grid is a width x height raster of 4-channel (R,G,B,A) bytes.
type Grid struct {
	Width  int
	Height int

	// Pix holds the pixel data in R,G,B,A raster order; len = Width*Height*4.
	Pix []byte
}

// NewGrid allocates a zeroed grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// FromImage converts any image.Image into a grid. NRGBA sources are copied
// byte for byte; the generic path goes through RGBA(), which premultiplies
// and would disturb low bits of translucent pixels.
func FromImage(img image.Image) *Grid {
	bounds := img.Bounds()
	g := NewGrid(bounds.Dx(), bounds.Dy())

	if src, ok := img.(*image.NRGBA); ok {
		rowLen := g.Width * 4
		for y := 0; y < g.Height; y++ {
			srcRow := src.Pix[y*src.Stride:]
			copy(g.Pix[y*rowLen:(y+1)*rowLen], srcRow[:rowLen])
		}
		return g
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, a := img.At(x, y).RGBA()
			g.Pix[i] = byte(r >> 8)
			g.Pix[i+1] = byte(gr >> 8)
			g.Pix[i+2] = byte(b >> 8)
			g.Pix[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return g
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Width:  g.Width,
		Height: g.Height,
		Pix:    make([]byte, len(g.Pix)),
	}
	copy(out.Pix, g.Pix)
	return out
}

// At returns the R,G,B,A bytes of pixel (x, y).
func (g *Grid) At(x, y int) (r, gr, b, a byte) {
	i := (y*g.Width + x) * 4
	return g.Pix[i], g.Pix[i+1], g.Pix[i+2], g.Pix[i+3]
}

// Set writes the R,G,B,A bytes of pixel (x, y).
func (g *Grid) Set(x, y int, r, gr, b, a byte) {
	i := (y*g.Width + x) * 4
	g.Pix[i] = r
	g.Pix[i+1] = gr
	g.Pix[i+2] = b
	g.Pix[i+3] = a
}

// canonicalMagic prefixes the canonical byte form of a grid.
var canonicalMagic = []byte("ICPX")

// CanonicalBytes returns the stable byte encoding used for all chain hashing:
// "ICPX" || u32be width || u32be height || raw RGBA bytes. Two independent
// implementations hashing the same pixels agree on this form, which a
// compressed container format would not guarantee.
func (g *Grid) CanonicalBytes() []byte {
	out := make([]byte, 0, 12+len(g.Pix))
	out = append(out, canonicalMagic...)
	out = binary.BigEndian.AppendUint32(out, uint32(g.Width))
	out = binary.BigEndian.AppendUint32(out, uint32(g.Height))
	out = append(out, g.Pix...)
	return out
}

// Luminance returns the Rec.601 luminance plane of the grid.
func (g *Grid) Luminance() []float64 {
	out := make([]float64, g.Width*g.Height)
	for p := 0; p < len(out); p++ {
		i := p * 4
		out[p] = WeightR*float64(g.Pix[i]) + WeightG*float64(g.Pix[i+1]) + WeightB*float64(g.Pix[i+2])
	}
	return out
}

// ApplyLuminanceDelta shifts pixel (x, y) so its recomputed luminance moves
// by delta, distributing the shift across R, G, B proportionally to the
// Rec.601 weights. Channels clamp to [0,255]; alpha is untouched.
func (g *Grid) ApplyLuminanceDelta(x, y int, delta float64) {
	i := (y*g.Width + x) * 4
	scaled := delta / weightNorm
	g.Pix[i] = clampByte(float64(g.Pix[i]) + scaled*WeightR)
	g.Pix[i+1] = clampByte(float64(g.Pix[i+1]) + scaled*WeightG)
	g.Pix[i+2] = clampByte(float64(g.Pix[i+2]) + scaled*WeightB)
}

// Rotate returns a pixel-exact copy of the grid rotated counter-clockwise by
// deg, which must be 0, 90, 180 or 270. Nearest-neighbour mapping only; no
// interpolation, so LSB content survives.
func (g *Grid) Rotate(deg int) (*Grid, error) {
	switch ((deg % 360) + 360) % 360 {
	case 0:
		return g.Clone(), nil

	case 90:
		out := NewGrid(g.Height, g.Width)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				r, gr, b, a := g.At(x, y)
				out.Set(y, g.Width-1-x, r, gr, b, a)
			}
		}
		return out, nil

	case 180:
		out := NewGrid(g.Width, g.Height)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				r, gr, b, a := g.At(x, y)
				out.Set(g.Width-1-x, g.Height-1-y, r, gr, b, a)
			}
		}
		return out, nil

	case 270:
		out := NewGrid(g.Height, g.Width)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				r, gr, b, a := g.At(x, y)
				out.Set(g.Height-1-y, x, r, gr, b, a)
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("imaging: rotation %d is not a multiple of 90", deg)
	}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
