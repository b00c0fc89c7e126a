// Copyright 2025 Certen Protocol
//
// Pipeline Tests - full commit / download / re-ingest / extract / verify
// round trips across both embedding domains

package steg

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/certen/imagechain/pkg/canonical"
	"github.com/certen/imagechain/pkg/chain"
	"github.com/certen/imagechain/pkg/cryptoscheme"
	"github.com/certen/imagechain/pkg/imaging"
	"github.com/certen/imagechain/pkg/lsb"
)

// gradient builds the deterministic mid-tone test canvas. 256x256 gives the
// frequency-domain layer 1024 blocks, comfortably above the record minimum.
func gradient(w, h int) *imaging.Grid {
	g := imaging.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := byte(60 + (x+y)*130/(w+h))
			g.Set(x, y, v, byte(int(v)+10), byte(int(v)+20), 255)
		}
	}
	return g
}

func newSession(t *testing.T, detect bool) (*chain.Session, *Extractor) {
	t.Helper()
	embedder := NewEmbedder(zerolog.Nop())
	extractor := NewExtractor(zerolog.Nop())

	var detector chain.PayloadDetector
	if detect {
		detector = extractor
	}
	s, err := chain.NewSession("Studio", cryptoscheme.SchemeECDSAP256, embedder, detector, zerolog.Nop())
	require.NoError(t, err)
	return s, extractor
}

// commitOnce drives one ingest+commit and returns the embedded canvas.
func commitOnce(t *testing.T, s *chain.Session, canvas *imaging.Grid, edits []chain.EditOp) *imaging.Grid {
	t.Helper()
	embedded, _, err := s.Commit(canvas, edits)
	require.NoError(t, err)
	return embedded
}

// pngRoundTrip simulates download and re-upload of the committed file.
func pngRoundTrip(t *testing.T, g *imaging.Grid) *imaging.Grid {
	t.Helper()
	data, err := imaging.EncodePNG(g)
	require.NoError(t, err)
	decoded, err := imaging.Decode(data)
	require.NoError(t, err)
	return decoded
}

// =============================================================================
// Scenario: initial commit round trip
// =============================================================================

func TestPipeline_InitialCommitRoundTrip(t *testing.T) {
	source := gradient(256, 256)
	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(source))

	wantChainID := canonical.HashBytes(source.CanonicalBytes())
	require.Equal(t, wantChainID, s.Payload().ChainID)

	embedded := commitOnce(t, s, source, nil)
	uploaded := pngRoundTrip(t, embedded)

	result := extractor.ExtractWithRotations(uploaded)
	require.Equal(t, DiagnosisFull, result.Diagnosis)
	require.Equal(t, 0, result.Rotation)
	require.Equal(t, wantChainID, result.Payload.ChainID)
	require.Len(t, result.Payload.History, 1)

	entry := result.Payload.History[0]
	require.Equal(t, 1, entry.Version)
	require.Empty(t, entry.ParentHash)
	require.NotNil(t, entry.Snapshot)

	// The recovered chain verifies end to end.
	pubPEM, err := s.Strategy().ExportPublicPEM()
	require.NoError(t, err)
	verify := chain.NewVerifier(chain.DefaultVerifierConfig()).Verify(result.Payload, pubPEM)
	require.True(t, verify.Valid)
}

// =============================================================================
// Scenario: second commit with edits
// =============================================================================

func TestPipeline_SecondCommit(t *testing.T) {
	source := gradient(256, 256)
	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(source))

	v1 := commitOnce(t, s, source, nil)
	v2 := commitOnce(t, s, v1, []chain.EditOp{chain.Brightness(1.3), chain.Filter(chain.FilterSepia)})

	uploaded := pngRoundTrip(t, v2)
	result := extractor.ExtractWithRotations(uploaded)
	require.Equal(t, DiagnosisFull, result.Diagnosis)
	require.Len(t, result.Payload.History, 2)

	first, second := result.Payload.History[0], result.Payload.History[1]
	require.Equal(t, 2, second.Version)
	wantParent, err := first.EntryHash()
	require.NoError(t, err)
	require.Equal(t, wantParent, second.ParentHash)
	require.NotNil(t, second.Snapshot, "destructive filter op forces a snapshot")

	pubPEM, err := s.Strategy().ExportPublicPEM()
	require.NoError(t, err)
	verify := chain.NewVerifier(chain.DefaultVerifierConfig()).Verify(result.Payload, pubPEM)
	require.True(t, verify.Valid)
}

// =============================================================================
// Scenario: lossy pass destroys the spatial layer
// =============================================================================

func TestPipeline_MetadataSurvivesSpatialLoss(t *testing.T) {
	source := gradient(256, 256)
	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(source))

	v1 := commitOnce(t, s, source, nil)
	v2 := commitOnce(t, s, v1, []chain.EditOp{chain.Brightness(1.3)})
	tip := s.Payload().Last().SHA256

	// Truncate every blue LSB: the spatial frame is shredded while the
	// luminance plane barely moves, as a quantizing recompression would.
	damaged := v2.Clone()
	for i := 2; i < len(damaged.Pix); i += 4 {
		damaged.Pix[i] &= 0xFE
	}

	result := extractor.ExtractWithRotations(damaged)
	require.Equal(t, DiagnosisMetadataOnly, result.Diagnosis)
	require.NotNil(t, result.CriticalMetadata)
	require.Equal(t, s.Payload().ChainID, result.CriticalMetadata.ChainID)
	require.Equal(t, 2, result.CriticalMetadata.VersionCount)
	require.Equal(t, tip, result.CriticalMetadata.LastVersionHash)
	require.True(t, result.CriticalMetadata.ChecksumValid())
}

// =============================================================================
// Scenario: single corrupted carrier bit
// =============================================================================

func TestPipeline_SingleBitCorruptionRecovers(t *testing.T) {
	source := gradient(256, 256)
	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(source))

	v1 := commitOnce(t, s, source, nil)
	v2 := commitOnce(t, s, v1, []chain.EditOp{chain.Brightness(1.3)})

	damaged := v2.Clone()
	damaged.Pix[13] ^= 0x01 // one carrier LSB inside the frame region

	details := extractor.ExtractWithDetails(damaged)
	require.True(t, details.Recovered)
	require.NotNil(t, details.Payload)
	require.Len(t, details.Payload.History, 2)
	require.True(t, details.CorruptionDetected)
	require.Greater(t, details.ErrorRate, 0.0)
}

// =============================================================================
// Scenario: rotated uploads
// =============================================================================

func TestPipeline_RotationRecovery(t *testing.T) {
	source := gradient(256, 256)
	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(source))
	embedded := commitOnce(t, s, source, nil)

	for _, deg := range []int{90, 180, 270} {
		rotated, err := embedded.Rotate(deg)
		require.NoError(t, err)

		result := extractor.ExtractWithRotations(rotated)
		require.Equal(t, DiagnosisFull, result.Diagnosis, "rotation %d", deg)
		require.Len(t, result.Payload.History, 1, "rotation %d", deg)

		// Undoing a counter-clockwise rotation by deg takes 360-deg more.
		require.Equal(t, (360-deg)%360, result.Rotation, "rotation %d", deg)
	}
}

// =============================================================================
// Scenario: tampered embedded bytes
// =============================================================================

func TestPipeline_TamperedHistoryDetected(t *testing.T) {
	source := gradient(256, 256)
	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(source))

	v1 := commitOnce(t, s, source, nil)
	v2 := commitOnce(t, s, v1, []chain.EditOp{chain.Brightness(1.3)})

	uploaded := pngRoundTrip(t, v2)
	result := extractor.ExtractWithRotations(uploaded)
	require.Equal(t, DiagnosisFull, result.Diagnosis)

	// Tamper with the recovered payload the way a modified embed would
	// surface: the first entry's timestamp changes.
	result.Payload.History[0].Timestamp = "2001-01-01T00:00:00Z"

	pubPEM, err := s.Strategy().ExportPublicPEM()
	require.NoError(t, err)
	verify := chain.NewVerifier(chain.DefaultVerifierConfig()).Verify(result.Payload, pubPEM)
	require.False(t, verify.Valid)
	require.False(t, verify.Entries[0].SignatureValid)
	require.False(t, verify.Entries[1].ChainLinkValid)
}

// =============================================================================
// Scenario: payload adoption on re-ingest
// =============================================================================

func TestPipeline_AdoptionContinuesChain(t *testing.T) {
	source := gradient(256, 256)
	s1, _ := newSession(t, false)
	require.NoError(t, s1.Ingest(source))
	v1 := commitOnce(t, s1, source, nil)
	originalChainID := s1.Payload().ChainID

	// A second session (fresh keys) re-ingests the downloaded file and
	// continues the same lineage.
	uploaded := pngRoundTrip(t, v1)
	s2, extractor := newSession(t, true)
	require.NoError(t, s2.Ingest(uploaded))
	require.Equal(t, originalChainID, s2.Payload().ChainID)
	require.Len(t, s2.Payload().History, 1)

	v2 := commitOnce(t, s2, uploaded, []chain.EditOp{chain.Filter(chain.FilterGrayscale)})
	result := extractor.ExtractWithRotations(v2)
	require.Equal(t, DiagnosisFull, result.Diagnosis)
	require.Len(t, result.Payload.History, 2)
	require.Equal(t, originalChainID, result.Payload.ChainID)
}

// =============================================================================
// Boundary: capacity
// =============================================================================

func TestPipeline_CapacityExceededOnTinyImage(t *testing.T) {
	tiny := gradient(16, 16)
	s, _ := newSession(t, false)
	require.NoError(t, s.Ingest(tiny))

	_, _, err := s.Commit(tiny, nil)
	require.ErrorIs(t, err, lsb.ErrCapacityExceeded)
	require.Empty(t, s.Payload().History)
}

func TestPipeline_DCTSkippedOnSmallImage(t *testing.T) {
	// 96x96 fits the spatial frame but only 144 blocks (90 record bytes),
	// far below the metadata record.
	small := imaging.NewGrid(96, 96)
	for i := range small.Pix {
		if i%4 == 3 {
			small.Pix[i] = 255
		} else {
			small.Pix[i] = 120
		}
	}

	s, extractor := newSession(t, false)
	require.NoError(t, s.Ingest(small))

	embedded, _, err := s.Commit(small, nil)
	require.NoError(t, err)

	details := extractor.ExtractWithDetails(embedded)
	require.True(t, details.Recovered, "spatial payload must survive")
	require.False(t, details.DCTExtracted)
	require.Nil(t, details.CriticalMetadata)
	require.Nil(t, details.Payload.DctMetadata)
}

// =============================================================================
// Embedder details
// =============================================================================

func TestEmbedder_DoesNotMutateInput(t *testing.T) {
	source := gradient(256, 256)
	pristine := source.Clone()

	s, _ := newSession(t, false)
	require.NoError(t, s.Ingest(source))
	_ = commitOnce(t, s, source, nil)

	require.Equal(t, pristine.Pix, source.Pix, "commit must not mutate the caller's canvas")
}

func TestEmbedder_ReportsDCTState(t *testing.T) {
	embedder := NewEmbedder(zerolog.Nop())
	payload := &chain.ChainedPayload{ChainID: canonical.HashBytes([]byte("seed")), History: []chain.HistoryEntry{}}

	big, err := embedder.EmbedWithDetails(gradient(256, 256), payload)
	require.NoError(t, err)
	require.True(t, big.DCTEmbedded)

	small, err := embedder.EmbedWithDetails(gradient(64, 64), payload)
	require.NoError(t, err)
	require.False(t, small.DCTEmbedded)
}
