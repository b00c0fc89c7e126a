// Copyright 2025 Certen Protocol
//
// LSB Codec - spatial-domain bit channel over the least-significant bits of
// R, G, B; alpha bytes never touched

package lsb

import (
	"errors"
	"fmt"

	"github.com/certen/imagechain/pkg/imaging"
)

// ErrCapacityExceeded is returned when the replicated frame does not fit in
// the image's non-alpha bytes.
var ErrCapacityExceeded = errors.New("lsb: capacity exceeded")

// ExtractResult is the outcome of reading the LSB plane. Extraction is a
// diagnosis, not an error path: a missing or unrecoverable frame is reported
// through the fields, never raised.
type ExtractResult struct {
	// Payload is the inflated frame payload, nil when no frame recovered.
	Payload []byte

	// Recovered is true when a frame parsed after majority decode.
	Recovered bool

	// CorruptionDetected is true when any replication group disagreed.
	CorruptionDetected bool

	// ErrorRate is the fraction of replication groups that disagreed.
	ErrorRate float64
}

// CapacityBits returns the number of payload bits the grid can carry:
// one per non-alpha byte.
func CapacityBits(g *imaging.Grid) int {
	return len(g.Pix) / 4 * 3
}

// Embed writes the triple-replicated frame into g's LSB plane in place.
// Bits are taken MSB-first from each replicated byte.
//
// A byte whose LSB must flip can move +1 or -1; both carry the same bit.
// The sign is chosen per pixel to cancel accumulated luminance drift, so
// the spatial write barely disturbs the frequency-domain layer beneath it.
func Embed(g *imaging.Grid, frame []byte) error {
	replicated := Replicate(frame)
	needed := len(replicated) * 8
	if capacity := CapacityBits(g); needed > capacity {
		return fmt.Errorf("%w: need %d bits, have %d", ErrCapacityExceeded, needed, capacity)
	}

	weights := [3]float64{imaging.WeightR, imaging.WeightG, imaging.WeightB}

	bit := 0
	var drift float64
	for i := 0; i < len(g.Pix) && bit < needed; i++ {
		if i%4 == 3 {
			continue // alpha
		}

		b := replicated[bit/8]
		v := (b >> (7 - bit%8)) & 1
		bit++

		cur := g.Pix[i]
		if cur&1 == v {
			continue
		}

		w := weights[i%4]
		switch {
		case cur == 0:
			cur++
			drift += w
		case cur == 255:
			cur--
			drift -= w
		case drift > 0:
			cur--
			drift -= w
		default:
			cur++
			drift += w
		}
		g.Pix[i] = cur
	}
	return nil
}

// Extract reads the whole LSB plane, majority-decodes it, and scans for a
// frame. The corruption fields are measured over the recovered frame's
// replication groups only; LSBs past the frame are natural image content
// and would always disagree.
func Extract(g *imaging.Grid) *ExtractResult {
	plane := readPlane(g)
	decoded, _ := MajorityDecode(plane)

	result := &ExtractResult{}

	frame := ScanFrame(decoded)
	if frame == nil {
		return result
	}

	region := plane[frame.Start*3 : (frame.Start+frame.Length)*3]
	_, mismatches := MajorityDecode(region)

	result.Payload = frame.Payload
	result.Recovered = true
	result.CorruptionDetected = mismatches > 0
	result.ErrorRate = float64(mismatches) / float64(frame.Length)
	return result
}

// readPlane packs every non-alpha LSB into a byte buffer, MSB-first.
func readPlane(g *imaging.Grid) []byte {
	bits := CapacityBits(g)
	out := make([]byte, bits/8)

	bit := 0
	for i := 0; i < len(g.Pix) && bit < len(out)*8; i++ {
		if i%4 == 3 {
			continue
		}
		out[bit/8] = out[bit/8]<<1 | g.Pix[i]&1
		bit++
	}
	return out
}
