// Copyright 2025 Certen Protocol
//
// Chain Verifier - per-entry signature and linkage verification
// A signature that does not verify marks the entry invalid; it never raises

package chain

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/imagechain/pkg/canonical"
	"github.com/certen/imagechain/pkg/cryptoscheme"
	"github.com/certen/imagechain/pkg/imaging"
)

// VerifierConfig configures chain verification.
type VerifierConfig struct {
	// IsUploaded marks the payload as recovered from an uploaded file. An
	// uploaded file's pixels already carry an embedded payload, so its hash
	// necessarily differs from the tip's pre-embedding sha256; the live
	// canvas comparison is disabled.
	IsUploaded bool
}

// DefaultVerifierConfig returns the configuration for uploaded files.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{IsUploaded: true}
}

// Verifier verifies chained payloads against a public key.
type Verifier struct {
	config VerifierConfig
}

// NewVerifier creates a verifier.
func NewVerifier(config VerifierConfig) *Verifier {
	return &Verifier{config: config}
}

// =============================================================================
// Verification Results
// =============================================================================

// EntryResult is the verification outcome for one history entry.
type EntryResult struct {
	Version        int    `json:"version"`
	SignatureValid bool   `json:"signature_valid"`
	ChainLinkValid bool   `json:"chain_link_valid"`
	Error          string `json:"error,omitempty"`
}

// ChainVerifyResult is the verification outcome for a whole payload.
type ChainVerifyResult struct {
	ReportID uuid.UUID `json:"report_id"`

	// Valid is true when every entry's signature and chain link verified.
	Valid bool `json:"valid"`

	// CorruptionDetected is true when the payload's critical metadata
	// disagrees with its history, or the live canvas hash comparison failed.
	CorruptionDetected bool `json:"corruption_detected"`

	// CanvasHashValid reports the live canvas comparison; nil when the
	// check was not performed (uploaded files, or no canvas supplied).
	CanvasHashValid *bool `json:"canvas_hash_valid,omitempty"`

	Entries []EntryResult `json:"entries"`
	Errors  []string      `json:"errors,omitempty"`

	VerifiedAt time.Time `json:"verified_at"`
}

// =============================================================================
// Verification
// =============================================================================

// Verify checks every entry of payload against publicKeyPEM: the signature
// over the canonical form, and the parent linkage. Signature mismatches are
// reported per entry, never raised.
func (v *Verifier) Verify(payload *ChainedPayload, publicKeyPEM string) *ChainVerifyResult {
	return v.VerifyWithCanvas(payload, publicKeyPEM, nil)
}

// VerifyWithCanvas additionally compares canvas's canonical hash with the
// tip entry's sha256 when the verifier is inspecting a live editor canvas
// (config.IsUploaded false). canvas may be nil.
func (v *Verifier) VerifyWithCanvas(payload *ChainedPayload, publicKeyPEM string, canvas *imaging.Grid) *ChainVerifyResult {
	result := &ChainVerifyResult{
		ReportID:   uuid.New(),
		VerifiedAt: time.Now().UTC(),
	}

	if payload == nil || len(payload.History) == 0 {
		result.Errors = append(result.Errors, "payload has no history to verify")
		return result
	}

	pub, keyScheme, err := cryptoscheme.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("public key: %v", err))
		return result
	}

	result.Entries = make([]EntryResult, len(payload.History))
	allValid := true

	for i := range payload.History {
		entry := &payload.History[i]
		er := EntryResult{Version: entry.Version}

		er.SignatureValid = v.verifySignature(entry, pub, keyScheme, &er)
		er.ChainLinkValid = v.verifyChainLink(payload, i, &er)

		if !er.SignatureValid || !er.ChainLinkValid {
			allValid = false
		}
		result.Entries[i] = er
	}

	// Critical metadata agreement: only enforced when both sides exist.
	if md := payload.DctMetadata; md != nil {
		if md.VersionCount != len(payload.History) || md.LastVersionHash != payload.Last().SHA256 {
			result.CorruptionDetected = true
			result.Errors = append(result.Errors, "critical metadata disagrees with history")
		}
	}

	// Live canvas comparison. Skipped for uploaded files: their pixels embed
	// a payload, so the hash cannot match the pre-embedding tip hash.
	if !v.config.IsUploaded && canvas != nil {
		match := canonical.HashBytes(canvas.CanonicalBytes()) == payload.Last().SHA256
		result.CanvasHashValid = &match
		if !match {
			result.CorruptionDetected = true
			result.Errors = append(result.Errors, "canvas pixels do not match the tip entry hash")
		}
	}

	result.Valid = allValid && !result.CorruptionDetected
	return result
}

// verifySignature recomputes the canonical form and checks the signature
// under the entry's declared scheme.
func (v *Verifier) verifySignature(entry *HistoryEntry, pub interface{}, keyScheme cryptoscheme.Scheme, er *EntryResult) bool {
	if entry.SigScheme != keyScheme {
		er.Error = fmt.Sprintf("entry scheme %s does not match key scheme %s", entry.SigScheme, keyScheme)
		return false
	}

	signingBytes, err := entry.SigningBytes()
	if err != nil {
		er.Error = fmt.Sprintf("canonicalize: %v", err)
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(entry.Signature)
	if err != nil {
		er.Error = fmt.Sprintf("signature is not valid base64: %v", err)
		return false
	}

	ok, err := cryptoscheme.VerifyDetached(pub, entry.SigScheme, signingBytes, sig)
	if err != nil {
		er.Error = fmt.Sprintf("verify: %v", err)
		return false
	}
	if !ok && er.Error == "" {
		er.Error = "signature verification failed"
	}
	return ok
}

// verifyChainLink checks version continuity and parent hash linkage.
func (v *Verifier) verifyChainLink(payload *ChainedPayload, i int, er *EntryResult) bool {
	entry := &payload.History[i]

	if i == 0 {
		if entry.Version != 1 {
			er.Error = fmt.Sprintf("first entry version must be 1, got %d", entry.Version)
			return false
		}
		if entry.ParentHash != "" {
			er.Error = "first entry must not have a parent hash"
			return false
		}
		return true
	}

	prev := &payload.History[i-1]
	if entry.Version != prev.Version+1 {
		er.Error = fmt.Sprintf("version %d does not follow %d", entry.Version, prev.Version)
		return false
	}
	prevHash, err := prev.EntryHash()
	if err != nil {
		er.Error = fmt.Sprintf("hash previous entry: %v", err)
		return false
	}
	if entry.ParentHash != prevHash {
		er.Error = fmt.Sprintf("parent hash %s does not match previous entry hash %s", entry.ParentHash, prevHash)
		return false
	}
	return true
}
