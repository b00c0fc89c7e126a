// Copyright 2025 Certen Protocol
//
// Entry Builder - constructs and signs one HistoryEntry
// The canonical form is signed; the signature rides alongside, never inside

package chain

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/certen/imagechain/pkg/cryptoscheme"
)

// EntryBuilder assembles a HistoryEntry field by field and signs it.
type EntryBuilder struct {
	version    int
	canvasHash string
	parentHash string
	timestamp  string
	signer     string
	scheme     cryptoscheme.Scheme
	editLog    []EditOp
	snapshot   *Snapshot
}

// NewEntryBuilder creates a builder with the timestamp defaulted to now.
func NewEntryBuilder() *EntryBuilder {
	return &EntryBuilder{
		timestamp: time.Now().UTC().Format(time.RFC3339),
		editLog:   []EditOp{},
	}
}

// WithVersion sets the entry version.
func (b *EntryBuilder) WithVersion(version int) *EntryBuilder {
	b.version = version
	return b
}

// WithCanvasHash sets the pre-embedding canvas hash.
func (b *EntryBuilder) WithCanvasHash(hash string) *EntryBuilder {
	b.canvasHash = hash
	return b
}

// WithParentHash sets the hash of the previous entry's canonical form.
// Leave unset on version 1.
func (b *EntryBuilder) WithParentHash(hash string) *EntryBuilder {
	b.parentHash = hash
	return b
}

// WithSigner sets the signer identity and scheme.
func (b *EntryBuilder) WithSigner(signer string, scheme cryptoscheme.Scheme) *EntryBuilder {
	b.signer = signer
	b.scheme = scheme
	return b
}

// WithEditLog sets the edit log.
func (b *EntryBuilder) WithEditLog(ops []EditOp) *EntryBuilder {
	if ops == nil {
		ops = []EditOp{}
	}
	b.editLog = ops
	return b
}

// WithSnapshot attaches a preview snapshot.
func (b *EntryBuilder) WithSnapshot(snap *Snapshot) *EntryBuilder {
	b.snapshot = snap
	return b
}

// WithTimestamp overrides the default timestamp. ts must be RFC-3339 UTC.
func (b *EntryBuilder) WithTimestamp(ts string) *EntryBuilder {
	b.timestamp = ts
	return b
}

// Sign validates the builder, assembles the entry, and signs its canonical
// form with strategy.
func (b *EntryBuilder) Sign(strategy cryptoscheme.Strategy) (*HistoryEntry, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if strategy.Scheme() != b.scheme {
		return nil, fmt.Errorf("chain: builder scheme %s does not match strategy %s",
			b.scheme, strategy.Scheme())
	}

	entry := &HistoryEntry{
		Version:    b.version,
		SHA256:     b.canvasHash,
		ParentHash: b.parentHash,
		Timestamp:  b.timestamp,
		Signer:     b.signer,
		SigScheme:  b.scheme,
		EditLog:    b.editLog,
		Snapshot:   b.snapshot,
	}

	signingBytes, err := entry.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("chain: canonicalize entry: %w", err)
	}

	sig, err := strategy.Sign(signingBytes)
	if err != nil {
		return nil, err
	}
	entry.Signature = base64.StdEncoding.EncodeToString(sig)
	return entry, nil
}

// validate checks that all required fields are set and consistent.
func (b *EntryBuilder) validate() error {
	if b.version < 1 {
		return fmt.Errorf("chain: version must be >= 1, got %d", b.version)
	}
	if b.canvasHash == "" {
		return fmt.Errorf("chain: canvas hash is required")
	}
	if b.version == 1 && b.parentHash != "" {
		return fmt.Errorf("chain: version 1 must not have a parent hash")
	}
	if b.version > 1 && b.parentHash == "" {
		return fmt.Errorf("chain: version %d requires a parent hash", b.version)
	}
	if b.signer == "" {
		return ErrNoSigner
	}
	if !b.scheme.IsValid() {
		return fmt.Errorf("%w: %q", cryptoscheme.ErrUnsupportedScheme, b.scheme)
	}
	if _, err := time.Parse(time.RFC3339, b.timestamp); err != nil {
		return fmt.Errorf("chain: timestamp is not valid RFC3339: %w", err)
	}
	return nil
}
