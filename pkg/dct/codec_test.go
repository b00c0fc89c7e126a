// Copyright 2025 Certen Protocol
//
// DCT Metadata Codec Tests

package dct

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/certen/imagechain/pkg/chain"
	"github.com/certen/imagechain/pkg/imaging"
)

// testMetadata builds a representative record with realistic hash lengths.
func testMetadata() *chain.CriticalMetadata {
	md := &chain.CriticalMetadata{
		ChainID:         strings.Repeat("ab", 32),
		VersionCount:    3,
		LastVersionHash: strings.Repeat("cd", 32),
	}
	md.Checksum = md.ComputeChecksum()
	return md
}

// gradientGrid builds a mid-tone gradient that keeps luminance away from the
// clamp boundaries.
func gradientGrid(w, h int) *imaging.Grid {
	g := imaging.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := byte(60 + (x+y)*130/(w+h))
			g.Set(x, y, v, v, v, 255)
		}
	}
	return g
}

func TestBuildRecord_Framing(t *testing.T) {
	record, err := BuildRecord(testMetadata())
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	if !bytes.HasPrefix(record, []byte(RecordMagic)) {
		t.Fatal("record must start with the magic")
	}

	length := int(binary.BigEndian.Uint16(record[len(RecordMagic):]))
	wantTotal := len(RecordMagic) + 2 + length + 4
	if len(record) != wantTotal {
		t.Errorf("record length mismatch: got %d, want %d", len(record), wantTotal)
	}

	payload := record[len(RecordMagic)+2 : len(RecordMagic)+2+length]
	storedSum := binary.BigEndian.Uint32(record[len(record)-4:])
	if byteSum(payload) != storedSum {
		t.Error("framing checksum mismatch")
	}
}

func TestParseRecord_RejectsCorruption(t *testing.T) {
	record, err := BuildRecord(testMetadata())
	if err != nil {
		t.Fatalf("build record: %v", err)
	}

	if parseRecord(record) == nil {
		t.Fatal("pristine record must parse")
	}

	// Bad magic.
	bad := append([]byte{}, record...)
	bad[0] ^= 0xFF
	if parseRecord(bad) != nil {
		t.Error("corrupted magic must yield nil")
	}

	// Bad framing checksum.
	bad = append([]byte{}, record...)
	bad[len(bad)-1] ^= 0xFF
	if parseRecord(bad) != nil {
		t.Error("corrupted checksum must yield nil")
	}

	// Bad payload byte (framing checksum catches it).
	bad = append([]byte{}, record...)
	bad[len(RecordMagic)+2+3] ^= 0x01
	if parseRecord(bad) != nil {
		t.Error("corrupted payload must yield nil")
	}

	// Truncated record.
	if parseRecord(record[:10]) != nil {
		t.Error("truncated record must yield nil")
	}
}

func TestCodec_CapacityBytes(t *testing.T) {
	codec := NewCodec()

	// 256x256 = 1024 blocks * 5 bits = 640 bytes.
	g := imaging.NewGrid(256, 256)
	if got := codec.CapacityBytes(g); got != 640 {
		t.Errorf("capacity mismatch: got %d, want 640", got)
	}

	// Partial edge blocks are skipped: 260x260 still counts 32x32 blocks.
	g = imaging.NewGrid(260, 260)
	if got := codec.CapacityBytes(g); got != 640 {
		t.Errorf("edge-block capacity mismatch: got %d, want 640", got)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec()
	g := gradientGrid(256, 256)
	original := g.Clone()
	md := testMetadata()

	if !codec.Fits(g, md) {
		t.Fatal("record must fit a 256x256 image")
	}
	if err := codec.Embed(g, md); err != nil {
		t.Fatalf("embed: %v", err)
	}

	got := codec.Extract(g)
	if got == nil {
		t.Fatal("extract returned nil on a freshly embedded image")
	}
	if got.ChainID != md.ChainID {
		t.Errorf("chain_id mismatch: got %s, want %s", got.ChainID, md.ChainID)
	}
	if got.VersionCount != md.VersionCount {
		t.Errorf("version_count mismatch: got %d, want %d", got.VersionCount, md.VersionCount)
	}
	if got.LastVersionHash != md.LastVersionHash {
		t.Errorf("last_version_hash mismatch: got %s, want %s", got.LastVersionHash, md.LastVersionHash)
	}

	// Embedding distortion stays modest: mean squared luminance error per
	// pixel under 25.
	before := original.Luminance()
	after := g.Luminance()
	var mse float64
	for i := range before {
		d := after[i] - before[i]
		mse += d * d
	}
	mse /= float64(len(before))
	if mse > 25 {
		t.Errorf("embedding MSE too high: %f", mse)
	}
}

func TestCodec_TooSmall(t *testing.T) {
	codec := NewCodec()
	g := gradientGrid(64, 64) // 64 blocks, 40 bytes capacity

	if codec.Fits(g, testMetadata()) {
		t.Error("record must not fit a 64x64 image")
	}
	if err := codec.Embed(g, testMetadata()); err == nil {
		t.Error("embed into a too-small image must fail")
	}
	if codec.Extract(g) != nil {
		t.Error("extract from a clean image must yield nil")
	}
}

func TestCodec_ExtractFromCleanImage(t *testing.T) {
	codec := NewCodec()
	if md := codec.Extract(gradientGrid(256, 256)); md != nil {
		t.Errorf("clean image must yield nil metadata, got %+v", md)
	}
}
