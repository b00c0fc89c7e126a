// Copyright 2025 Certen Protocol
//
// Chain Types - the chained version history that rides inside an image
// A payload is a linked list of signed HistoryEntry records plus the
// chain identity of the original upload

package chain

import (
	"encoding/json"
	"fmt"

	"github.com/certen/imagechain/pkg/canonical"
	"github.com/certen/imagechain/pkg/cryptoscheme"
)

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a small lossy preview of a version's canvas. Present on the
// initial version and on any version whose edit log contains a destructive
// op; absent otherwise.
type Snapshot struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Codec  string `json:"codec"` // "webp"

	// Data is the base64-encoded encoded preview.
	Data string `json:"data"`
}

// =============================================================================
// History Entry
// =============================================================================

// HistoryEntry is one immutable, signed record in the version chain.
type HistoryEntry struct {
	// Version is a positive integer, strictly increasing from 1.
	Version int `json:"version"`

	// SHA256 is the hex hash of the pre-embedding canonical pixel encoding
	// of this version's canvas.
	SHA256 string `json:"sha256"`

	// ParentHash is the SHA256 of the previous entry's canonical form
	// (signature removed), absent on version 1.
	ParentHash string `json:"parent_hash,omitempty"`

	// Timestamp is an RFC-3339 UTC string.
	Timestamp string `json:"timestamp"`

	// Signer is a free-form identity string.
	Signer string `json:"signer"`

	// SigScheme names the signature scheme for this entry.
	SigScheme cryptoscheme.Scheme `json:"sig_scheme"`

	// EditLog is the ordered sequence of edits that produced this version.
	// Ops are descriptive only and are never re-applied during verification.
	EditLog []EditOp `json:"edit_log"`

	// Snapshot is the optional preview (see Snapshot).
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// Signature is the base64 signature over the canonical serialization of
	// all other fields.
	Signature string `json:"signature,omitempty"`
}

// SigningBytes returns the canonical serialization of the entry with the
// signature field removed (not blanked). This is the exact byte sequence
// that is signed and verified.
func (e *HistoryEntry) SigningBytes() ([]byte, error) {
	unsigned := *e
	unsigned.Signature = ""
	if unsigned.EditLog == nil {
		unsigned.EditLog = []EditOp{}
	}
	return canonical.Marshal(&unsigned)
}

// EntryHash returns the hex SHA-256 of the entry's canonical form with the
// signature removed. The next entry's parent_hash commits to this value, so
// tampering with any signed field breaks the successor's link as well as
// this entry's signature.
func (e *HistoryEntry) EntryHash() (string, error) {
	signingBytes, err := e.SigningBytes()
	if err != nil {
		return "", err
	}
	return canonical.HashBytes(signingBytes), nil
}

// =============================================================================
// Chained Payload
// =============================================================================

// ChainedPayload is the complete record embedded in an image: the chain
// identity, the full history, and any critical metadata recovered from the
// frequency-domain layer when the spatial layer failed.
type ChainedPayload struct {
	// ChainID is the hex SHA-256 of the original uploaded image's canonical
	// pixel encoding. Constant across all versions of one chain.
	ChainID string `json:"chain_id"`

	// History is the ordered sequence of entries, oldest first.
	History []HistoryEntry `json:"history"`

	// DctMetadata is set only on extraction, from the frequency-domain
	// layer; it is never round-tripped through the spatial layer.
	DctMetadata *CriticalMetadata `json:"dct_metadata,omitempty"`
}

// Last returns the most recent entry, or nil for an empty chain.
func (p *ChainedPayload) Last() *HistoryEntry {
	if len(p.History) == 0 {
		return nil
	}
	return &p.History[len(p.History)-1]
}

// ToJSON serializes the payload to JSON.
func (p *ChainedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ToJSONPretty serializes the payload to pretty-printed JSON.
func (p *ChainedPayload) ToJSONPretty() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// EmbeddableBytes returns the canonical JSON carried by the spatial layer:
// the payload without its dct_metadata field.
func (p *ChainedPayload) EmbeddableBytes() ([]byte, error) {
	stripped := ChainedPayload{
		ChainID: p.ChainID,
		History: p.History,
	}
	if stripped.History == nil {
		stripped.History = []HistoryEntry{}
	}
	return canonical.Marshal(&stripped)
}

// FromJSON deserializes a payload from JSON.
func FromJSON(data []byte) (*ChainedPayload, error) {
	var p ChainedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("chain: parse payload: %w", err)
	}
	return &p, nil
}

// =============================================================================
// Critical Metadata (frequency-domain layer)
// =============================================================================

// CriticalMetadata is the short record the frequency-domain layer carries:
// enough to identify the chain and its tip when the full payload is lost.
type CriticalMetadata struct {
	ChainID         string `json:"chain_id"`
	VersionCount    int    `json:"version_count"`
	LastVersionHash string `json:"last_version_hash"`

	// Checksum is the metadata-level checksum over
	// "{chain_id}|{version_count}|{last_version_hash}" (see ComputeChecksum).
	Checksum string `json:"checksum"`
}

// NewCriticalMetadata derives the critical metadata for a payload.
func NewCriticalMetadata(p *ChainedPayload) *CriticalMetadata {
	md := &CriticalMetadata{
		ChainID:      p.ChainID,
		VersionCount: len(p.History),
	}
	if last := p.Last(); last != nil {
		md.LastVersionHash = last.SHA256
	}
	md.Checksum = md.ComputeChecksum()
	return md
}

// ComputeChecksum returns the lower 32 bits of the 31-multiplier rolling sum
// over "{chain_id}|{version_count}|{last_version_hash}", hex-padded to 8
// characters.
func (m *CriticalMetadata) ComputeChecksum() string {
	input := fmt.Sprintf("%s|%d|%s", m.ChainID, m.VersionCount, m.LastVersionHash)
	var sum uint32
	for _, c := range input {
		sum = 31*sum + uint32(c)
	}
	return fmt.Sprintf("%08x", sum)
}

// ChecksumValid reports whether the stored checksum matches the fields.
func (m *CriticalMetadata) ChecksumValid() bool {
	return m.Checksum == m.ComputeChecksum()
}

// =============================================================================
// Payload Summary
// =============================================================================

// Summary is a quick overview of a payload for listings and CLI output.
type Summary struct {
	ChainID       string `json:"chain_id"`
	VersionCount  int    `json:"version_count"`
	LastVersion   int    `json:"last_version,omitempty"`
	LastSigner    string `json:"last_signer,omitempty"`
	LastTimestamp string `json:"last_timestamp,omitempty"`
	LastHash      string `json:"last_hash,omitempty"`
}

// ToSummary creates a summary from a payload.
func (p *ChainedPayload) ToSummary() *Summary {
	s := &Summary{
		ChainID:      p.ChainID,
		VersionCount: len(p.History),
	}
	if last := p.Last(); last != nil {
		s.LastVersion = last.Version
		s.LastSigner = last.Signer
		s.LastTimestamp = last.Timestamp
		s.LastHash = last.SHA256
	}
	return s
}
