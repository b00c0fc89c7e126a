// Copyright 2025 Certen Protocol
//
// DCT Metadata Codec - embeds the critical-metadata record in mid-frequency
// coefficients of 8x8 luminance blocks
// Survives moderate lossy recompression; the spatial LSB layer does not

package dct

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/certen/imagechain/pkg/canonical"
	"github.com/certen/imagechain/pkg/chain"
	"github.com/certen/imagechain/pkg/imaging"
)

// RecordMagic opens the framed metadata record.
const RecordMagic = "ICMETA1"

// DefaultQuant is the quantization step carrying one bit per coefficient.
const DefaultQuant = 4.0

// bitsPerBlock is fixed by the embedding position set.
const bitsPerBlock = len(embedPositions)

// embedPositions are the mid-frequency (u, v) coefficients used per block,
// in embedding order. Low-frequency positions are visible; high-frequency
// positions die first under recompression.
var embedPositions = [5][2]int{{1, 2}, {2, 1}, {2, 2}, {3, 1}, {1, 3}}

// ErrCapacityExceeded is returned when the image has too few full blocks to
// hold the framed record.
var ErrCapacityExceeded = errors.New("dct: capacity exceeded")

// Codec embeds and extracts critical-metadata records.
type Codec struct {
	// Quant is the quantization step. Both sides must agree on it.
	Quant float64
}

// NewCodec returns a codec with the default quantization step.
func NewCodec() *Codec {
	return &Codec{Quant: DefaultQuant}
}

// =============================================================================
// Record framing
// =============================================================================

// BuildRecord frames md as: magic || u16be length || canonical JSON ||
// u32be byte-sum of the JSON payload.
func BuildRecord(md *chain.CriticalMetadata) ([]byte, error) {
	payload, err := canonical.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("dct: encode metadata: %w", err)
	}
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("dct: metadata record %d bytes exceeds frame limit", len(payload))
	}

	out := make([]byte, 0, len(RecordMagic)+2+len(payload)+4)
	out = append(out, RecordMagic...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)))
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint32(out, byteSum(payload))
	return out, nil
}

// parseRecord validates framing and checksums; any failure yields nil.
func parseRecord(buf []byte) *chain.CriticalMetadata {
	headerLen := len(RecordMagic) + 2
	if len(buf) < headerLen {
		return nil
	}
	if string(buf[:len(RecordMagic)]) != RecordMagic {
		return nil
	}

	length := int(binary.BigEndian.Uint16(buf[len(RecordMagic):headerLen]))
	if len(buf) < headerLen+length+4 {
		return nil
	}

	payload := buf[headerLen : headerLen+length]
	storedSum := binary.BigEndian.Uint32(buf[headerLen+length : headerLen+length+4])
	if byteSum(payload) != storedSum {
		return nil
	}

	var md chain.CriticalMetadata
	if err := json.Unmarshal(payload, &md); err != nil {
		return nil
	}
	if !md.ChecksumValid() {
		return nil
	}
	return &md
}

func byteSum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// =============================================================================
// Embedding
// =============================================================================

// CapacityBytes returns how many whole record bytes the grid can carry.
// Partial edge blocks are skipped.
func (c *Codec) CapacityBytes(g *imaging.Grid) int {
	blocks := (g.Width / BlockSize) * (g.Height / BlockSize)
	return blocks * bitsPerBlock / 8
}

// Fits reports whether md's framed record fits in g.
func (c *Codec) Fits(g *imaging.Grid, md *chain.CriticalMetadata) bool {
	record, err := BuildRecord(md)
	if err != nil {
		return false
	}
	return len(record) <= c.CapacityBytes(g)
}

// Embed writes md into g's luminance DCT coefficients in place.
//
// Per coefficient: the quantized bin index k = floor(coeff/Quant) carries
// one bit by parity. A matching bin keeps its index; a mismatch moves k one
// step away from zero, keeping magnitudes above the detection floor. The
// coefficient is then placed at the bin center so decode-side floor(k)
// tolerates up to Quant/2 of drift from clamping and recompression.
func (c *Codec) Embed(g *imaging.Grid, md *chain.CriticalMetadata) error {
	record, err := BuildRecord(md)
	if err != nil {
		return err
	}
	if len(record) > c.CapacityBytes(g) {
		return fmt.Errorf("%w: record %d bytes, capacity %d bytes",
			ErrCapacityExceeded, len(record), c.CapacityBytes(g))
	}

	lum := g.Luminance()
	bits := bitReader{data: record}

	blocksX := g.Width / BlockSize
	blocksY := g.Height / BlockSize

	var spatial, coeffs, restored Block
	for by := 0; by < blocksY && !bits.done(); by++ {
		for bx := 0; bx < blocksX && !bits.done(); bx++ {
			loadBlock(lum, g.Width, bx, by, &spatial)
			Forward(&spatial, &coeffs)

			for _, pos := range embedPositions {
				bit, ok := bits.next()
				if !ok {
					break
				}
				u, v := pos[0], pos[1]
				coeffs[v][u] = c.quantizeToBit(coeffs[v][u], bit)
			}

			Inverse(&coeffs, &restored)
			applyBlock(g, bx, by, &spatial, &restored)
		}
	}
	return nil
}

// quantizeToBit returns the coefficient re-placed so its quantized bin
// parity equals bit.
func (c *Codec) quantizeToBit(coeff float64, bit byte) float64 {
	k := int(math.Floor(coeff / c.Quant))
	if parity(k) != bit {
		if k >= 0 {
			k++
		} else {
			k--
		}
	}
	return (float64(k) + 0.5) * c.Quant
}

// Extract reads the metadata record from g, or nil when none is present.
// Extraction never fails with an error; a bad image is simply not carrying
// a record.
func (c *Codec) Extract(g *imaging.Grid) *chain.CriticalMetadata {
	capacity := c.CapacityBytes(g)
	if capacity < len(RecordMagic)+2+4 {
		return nil
	}

	lum := g.Luminance()
	blocksX := g.Width / BlockSize
	blocksY := g.Height / BlockSize

	buf := make([]byte, 0, capacity)
	var cur byte
	var nbits int

	var spatial, coeffs Block
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			loadBlock(lum, g.Width, bx, by, &spatial)
			Forward(&spatial, &coeffs)

			for _, pos := range embedPositions {
				u, v := pos[0], pos[1]
				k := int(math.Floor(coeffs[v][u] / c.Quant))
				cur = cur<<1 | parity(k)
				nbits++
				if nbits == 8 {
					buf = append(buf, cur)
					cur, nbits = 0, 0

					// Cheap early out: a wrong magic can never recover.
					if len(buf) == len(RecordMagic) && string(buf) != RecordMagic {
						return nil
					}
				}
			}
		}
	}
	return parseRecord(buf)
}

// =============================================================================
// Block plumbing
// =============================================================================

// loadBlock copies one 8x8 tile of the luminance plane into dst.
func loadBlock(lum []float64, width, bx, by int, dst *Block) {
	baseX := bx * BlockSize
	baseY := by * BlockSize
	for y := 0; y < BlockSize; y++ {
		row := (baseY+y)*width + baseX
		for x := 0; x < BlockSize; x++ {
			dst[y][x] = lum[row+x]
		}
	}
}

// applyBlock projects the luminance change of one tile back onto RGB,
// clamped, alpha untouched.
func applyBlock(g *imaging.Grid, bx, by int, before, after *Block) {
	baseX := bx * BlockSize
	baseY := by * BlockSize
	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			target := after[y][x]
			if target < 0 {
				target = 0
			} else if target > 255 {
				target = 255
			}
			delta := target - before[y][x]
			if delta != 0 {
				g.ApplyLuminanceDelta(baseX+x, baseY+y, delta)
			}
		}
	}
}

// parity maps a (possibly negative) bin index to its parity bit.
func parity(k int) byte {
	return byte(((k % 2) + 2) % 2)
}

// bitReader streams record bytes MSB-first.
type bitReader struct {
	data []byte
	pos  int // bit offset
}

func (r *bitReader) next() (byte, bool) {
	if r.done() {
		return 0, false
	}
	b := r.data[r.pos/8]
	bit := (b >> (7 - r.pos%8)) & 1
	r.pos++
	return bit, true
}

func (r *bitReader) done() bool {
	return r.pos >= len(r.data)*8
}
