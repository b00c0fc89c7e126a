// Copyright 2025 Certen Protocol
//
// Image Codecs - decode, lossless PNG for files, WebP snapshots

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Registered decoders for image.Decode.
	_ "image/jpeg"
	_ "golang.org/x/image/webp"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
)

// SnapshotCodec is the codec tag recorded on snapshots.
const SnapshotCodec = "webp"

// DefaultSnapshotWidth is the target thumbnail width when none is given.
const DefaultSnapshotWidth = 160

// Decode parses encoded image bytes (PNG, WebP or JPEG) into a grid.
func Decode(data []byte) (*Grid, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return FromImage(img), nil
}

// EncodePNG encodes the grid as a lossless PNG for file output.
func EncodePNG(g *Grid) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g.toNRGBA()); err != nil {
		return nil, fmt.Errorf("imaging: png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeSnapshotWebP downscales the grid to targetWidth (aspect preserved)
// and encodes it as WebP. No quality setting is taken or recorded:
// nativewebp emits lossless VP8L, which has no quality knob.
func EncodeSnapshotWebP(g *Grid, targetWidth int) (width, height int, data []byte, err error) {
	if targetWidth <= 0 {
		targetWidth = DefaultSnapshotWidth
	}
	if targetWidth > g.Width {
		targetWidth = g.Width
	}

	height = g.Height * targetWidth / g.Width
	if height < 1 {
		height = 1
	}
	width = targetWidth

	small := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), g.toNRGBA(), g.bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err = nativewebp.Encode(&buf, small, nil); err != nil {
		return 0, 0, nil, fmt.Errorf("imaging: webp encode: %w", err)
	}
	return width, height, buf.Bytes(), nil
}

// toNRGBA wraps the grid's pixel buffer as an image without copying.
func (g *Grid) toNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    g.Pix,
		Stride: g.Width * 4,
		Rect:   g.bounds(),
	}
}

func (g *Grid) bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}
