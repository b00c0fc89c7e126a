// Copyright 2025 Certen Protocol
//
// Steganography Embedder - drives the dual-domain write
// Order is fixed: DCT first, LSB second. The LSB layer operates on the
// DCT-adjusted pixels and must be the last writer.

package steg

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/certen/imagechain/pkg/chain"
	"github.com/certen/imagechain/pkg/dct"
	"github.com/certen/imagechain/pkg/imaging"
	"github.com/certen/imagechain/pkg/lsb"
)

// EmbedResult reports what the embedder wrote.
type EmbedResult struct {
	// Canvas is the embedded copy; the input grid is never modified.
	Canvas *imaging.Grid

	// DCTEmbedded is false when the image had too few blocks for the
	// metadata record; the commit still succeeds on the LSB layer alone.
	DCTEmbedded bool
}

// Embedder writes a chained payload into a canvas across both domains.
type Embedder struct {
	dct    *dct.Codec
	logger zerolog.Logger
}

// NewEmbedder creates an embedder.
func NewEmbedder(logger zerolog.Logger) *Embedder {
	return &Embedder{
		dct:    dct.NewCodec(),
		logger: logger,
	}
}

// EmbedWithDetails clones g, writes the critical metadata into the DCT
// layer (when it fits), then writes the full payload into the LSB layer.
func (e *Embedder) EmbedWithDetails(g *imaging.Grid, p *chain.ChainedPayload) (*EmbedResult, error) {
	out := g.Clone()
	result := &EmbedResult{Canvas: out}

	md := chain.NewCriticalMetadata(p)
	if e.dct.Fits(out, md) {
		if err := e.dct.Embed(out, md); err != nil {
			return nil, fmt.Errorf("steg: dct embed: %w", err)
		}
		result.DCTEmbedded = true
	} else {
		e.logger.Warn().
			Str("chain_id", p.ChainID).
			Int("width", g.Width).
			Int("height", g.Height).
			Msg("image too small for the dct metadata record; spatial layer only")
	}

	payload, err := p.EmbeddableBytes()
	if err != nil {
		return nil, fmt.Errorf("steg: encode payload: %w", err)
	}
	frame, err := lsb.BuildFrame(payload)
	if err != nil {
		return nil, err
	}
	if err := lsb.Embed(out, frame); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("chain_id", p.ChainID).
		Int("frame_bytes", len(frame)).
		Bool("dct_embedded", result.DCTEmbedded).
		Msg("payload embedded")
	return result, nil
}

// Embed implements chain.Embedder.
func (e *Embedder) Embed(g *imaging.Grid, p *chain.ChainedPayload) (*imaging.Grid, error) {
	result, err := e.EmbedWithDetails(g, p)
	if err != nil {
		return nil, err
	}
	return result.Canvas, nil
}
