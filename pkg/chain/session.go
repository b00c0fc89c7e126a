// Copyright 2025 Certen Protocol
//
// Chain Session - owns the key pair and the in-memory payload for one
// editing lineage
// Sessions are values, not singletons; the editor holds one and drives it

package chain

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/certen/imagechain/pkg/canonical"
	"github.com/certen/imagechain/pkg/cryptoscheme"
	"github.com/certen/imagechain/pkg/imaging"
)

// State is the session lifecycle state.
type State string

const (
	// StateIdle is the zero state; signer and scheme are unset.
	StateIdle State = "idle"

	// StateConfigured has signer and scheme but no image yet.
	StateConfigured State = "configured"

	// StateInitialized has keys, a chain identity and a payload; commits
	// are accepted.
	StateInitialized State = "initialized"
)

// Embedder writes a payload into a canvas and returns the embedded copy.
// Implemented by the steganography driver; the chain engine only fixes the
// contract.
type Embedder interface {
	Embed(g *imaging.Grid, p *ChainedPayload) (*imaging.Grid, error)
}

// PayloadDetector recovers a payload already embedded in a canvas, or nil.
// Used on ingest to adopt an existing chain.
type PayloadDetector interface {
	Detect(g *imaging.Grid) *ChainedPayload
}

// Session drives the append-only lifecycle of one image lineage. The key
// pair is owned by the session exclusively and is read-only for signing;
// the payload is replaced whole on each commit.
type Session struct {
	id       uuid.UUID
	state    State
	signer   string
	scheme   cryptoscheme.Scheme
	strategy cryptoscheme.Strategy
	payload  *ChainedPayload

	embedder Embedder
	detector PayloadDetector
	logger   zerolog.Logger
}

// NewSession creates a configured session. detector may be nil when payload
// adoption is not wanted.
func NewSession(signer string, scheme cryptoscheme.Scheme, embedder Embedder, detector PayloadDetector, logger zerolog.Logger) (*Session, error) {
	if signer == "" {
		return nil, ErrNoSigner
	}
	if !scheme.IsValid() {
		return nil, fmt.Errorf("%w: %q", cryptoscheme.ErrUnsupportedScheme, scheme)
	}
	if embedder == nil {
		return nil, fmt.Errorf("chain: embedder is required")
	}

	id := uuid.New()
	return &Session{
		id:       id,
		state:    StateConfigured,
		signer:   signer,
		scheme:   scheme,
		embedder: embedder,
		detector: detector,
		logger:   logger.With().Str("session_id", id.String()).Logger(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Payload returns the current payload (nil before Ingest).
func (s *Session) Payload() *ChainedPayload { return s.payload }

// Strategy returns the signing strategy (nil before Ingest unless supplied
// via UseStrategy).
func (s *Session) Strategy() cryptoscheme.Strategy { return s.strategy }

// UseStrategy installs an existing key pair (e.g. loaded from a PEM file)
// instead of generating one on ingest. The strategy's scheme must match the
// session's.
func (s *Session) UseStrategy(strategy cryptoscheme.Strategy) error {
	if strategy.Scheme() != s.scheme {
		return fmt.Errorf("chain: strategy scheme %s does not match session scheme %s",
			strategy.Scheme(), s.scheme)
	}
	s.strategy = strategy
	return nil
}

// Ingest moves the session to Initialized: keys are generated (unless
// installed), the chain identity is computed from the image's canonical
// pixels, and an already-embedded payload is adopted when detected.
func (s *Session) Ingest(g *imaging.Grid) error {
	if s.state != StateConfigured {
		return fmt.Errorf("%w: ingest from %s", ErrInvalidState, s.state)
	}

	if s.strategy == nil {
		strategy, err := cryptoscheme.Generate(s.scheme)
		if err != nil {
			return err
		}
		s.strategy = strategy
	}

	chainID := canonical.HashBytes(g.CanonicalBytes())

	if s.detector != nil {
		if adopted := s.detector.Detect(g); adopted != nil {
			// Continuing an existing lineage: the chain identity stays with
			// the original upload, not this re-ingested file.
			adopted.DctMetadata = nil
			s.payload = adopted
			s.state = StateInitialized
			s.logger.Info().
				Str("chain_id", adopted.ChainID).
				Int("versions", len(adopted.History)).
				Msg("adopted embedded payload")
			return nil
		}
	}

	s.payload = &ChainedPayload{
		ChainID: chainID,
		History: []HistoryEntry{},
	}
	s.state = StateInitialized
	s.logger.Info().Str("chain_id", chainID).Msg("chain created")
	return nil
}

// Commit appends exactly one entry for the current canvas and returns the
// canvas with the updated payload embedded. The input grid is not modified.
//
// Empty commits after version 1 are rejected: the stored sha256 is the
// pre-embedding canvas hash, and an edit-free commit would duplicate it.
func (s *Session) Commit(g *imaging.Grid, edits []EditOp) (*imaging.Grid, *HistoryEntry, error) {
	if s.state != StateInitialized {
		return nil, nil, fmt.Errorf("%w: commit from %s", ErrInvalidState, s.state)
	}
	if edits == nil {
		edits = []EditOp{}
	}

	version := 1
	parentHash := ""
	if last := s.payload.Last(); last != nil {
		version = last.Version + 1
		var err error
		if parentHash, err = last.EntryHash(); err != nil {
			return nil, nil, fmt.Errorf("chain: hash parent entry: %w", err)
		}
	}
	if version > 1 && len(edits) == 0 {
		return nil, nil, ErrEmptyCommit
	}

	canvasHash := canonical.HashBytes(g.CanonicalBytes())

	builder := NewEntryBuilder().
		WithVersion(version).
		WithCanvasHash(canvasHash).
		WithSigner(s.signer, s.scheme).
		WithEditLog(edits)
	if parentHash != "" {
		builder.WithParentHash(parentHash)
	}

	if version == 1 || HasDestructive(edits) {
		snap, err := buildSnapshot(g)
		if err != nil {
			return nil, nil, err
		}
		builder.WithSnapshot(snap)
	}

	entry, err := builder.Sign(s.strategy)
	if err != nil {
		return nil, nil, err
	}

	// Whole-value replacement: the session payload is swapped only after
	// embedding succeeds.
	updated := &ChainedPayload{
		ChainID: s.payload.ChainID,
		History: append(append([]HistoryEntry{}, s.payload.History...), *entry),
	}

	embedded, err := s.embedder.Embed(g, updated)
	if err != nil {
		return nil, nil, err
	}

	s.payload = updated
	s.logger.Info().
		Str("chain_id", updated.ChainID).
		Int("version", entry.Version).
		Str("sha256", entry.SHA256).
		Int("edits", len(edits)).
		Msg("entry committed")
	return embedded, entry, nil
}

// Reset discards the key pair, signer and payload. Entries never leave the
// process except through an exported image or key file.
func (s *Session) Reset() {
	s.state = StateIdle
	s.signer = ""
	s.scheme = ""
	s.strategy = nil
	s.payload = nil
	s.logger.Info().Msg("session reset")
}

// buildSnapshot renders the preview for destructive and initial versions.
func buildSnapshot(g *imaging.Grid) (*Snapshot, error) {
	w, h, data, err := imaging.EncodeSnapshotWebP(g, imaging.DefaultSnapshotWidth)
	if err != nil {
		return nil, fmt.Errorf("chain: snapshot: %w", err)
	}
	return &Snapshot{
		Width:  w,
		Height: h,
		Codec:  imaging.SnapshotCodec,
		Data:   base64.StdEncoding.EncodeToString(data),
	}, nil
}
