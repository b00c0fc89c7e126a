// Copyright 2025 Certen Protocol
//
// LSB Frame - magic/length/checksum framing around the DEFLATE-compressed
// payload, byte-exact on the wire

package lsb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const (
	// FrameMagic opens an LSB frame.
	FrameMagic = "ICLSB01"

	// EndMarker closes an LSB frame at the position implied by the length.
	EndMarker = "ICEND01"

	// frameHeaderLen is magic + u32 length + u32 checksum.
	frameHeaderLen = len(FrameMagic) + 4 + 4
)

// BuildFrame compresses payload with DEFLATE and frames it:
// magic || u32be length || u32be checksum || compressed || end marker.
// The checksum is the byte sum of the compressed data mod 2^32.
func BuildFrame(payload []byte) ([]byte, error) {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("lsb: deflate init: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("lsb: deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lsb: deflate: %w", err)
	}

	data := compressed.Bytes()
	out := make([]byte, 0, frameHeaderLen+len(data)+len(EndMarker))
	out = append(out, FrameMagic...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = binary.BigEndian.AppendUint32(out, byteSum(data))
	out = append(out, data...)
	out = append(out, EndMarker...)
	return out, nil
}

// ScannedFrame locates a recovered frame inside the decoded byte stream.
type ScannedFrame struct {
	// Payload is the inflated frame payload.
	Payload []byte

	// Start is the byte offset of the frame magic in the scanned buffer.
	Start int

	// Length is the total on-wire frame length including header and end
	// marker.
	Length int
}

// ScanFrame searches buf for a well-formed frame and returns the inflated
// payload with its position. The scanner tolerates false starts: a magic
// match whose length, end marker or checksum does not hold advances one byte
// and retries. Returns nil when no frame parses.
func ScanFrame(buf []byte) *ScannedFrame {
	magic := []byte(FrameMagic)
	for start := 0; start+frameHeaderLen+len(EndMarker) <= len(buf); start++ {
		idx := bytes.Index(buf[start:], magic)
		if idx < 0 {
			return nil
		}
		start += idx

		if frame := tryParseAt(buf[start:]); frame != nil {
			frame.Start = start
			return frame
		}
	}
	return nil
}

// tryParseAt attempts to parse a frame at the start of buf.
func tryParseAt(buf []byte) *ScannedFrame {
	if len(buf) < frameHeaderLen+len(EndMarker) {
		return nil
	}

	length := int(binary.BigEndian.Uint32(buf[len(FrameMagic):]))
	checksum := binary.BigEndian.Uint32(buf[len(FrameMagic)+4:])

	end := frameHeaderLen + length
	if length < 0 || end+len(EndMarker) > len(buf) {
		return nil
	}
	if string(buf[end:end+len(EndMarker)]) != EndMarker {
		return nil
	}

	data := buf[frameHeaderLen:end]
	if byteSum(data) != checksum {
		return nil
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	return &ScannedFrame{Payload: payload, Length: end + len(EndMarker)}
}

func byteSum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
