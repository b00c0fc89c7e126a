// Copyright 2025 Certen Protocol
//
// Chain Invariants - structural checks a well-formed payload must satisfy
//
// These checks are derivable from the payload alone; they do not verify
// signatures cryptographically (the Verifier does, given a public key).

package chain

import (
	"fmt"
	"strings"
	"time"
)

// CheckInvariants verifies the structural invariants of a payload:
// versions start at 1 and increase by one, parent hashes link each entry to
// its predecessor, the chain identity is set, and any attached critical
// metadata agrees with the history it describes.
//
// Typical usage:
//
//	if err := chain.CheckInvariants(p); err != nil {
//	    // Reject the payload before any signature work
//	}
func CheckInvariants(p *ChainedPayload) error {
	if p == nil {
		return fmt.Errorf("chain: payload cannot be nil")
	}

	var violations []string
	add := func(msg string) {
		violations = append(violations, msg)
	}

	// -----------------------
	// Chain identity
	// -----------------------
	if p.ChainID == "" {
		add("chain_id must not be empty")
	} else if len(p.ChainID) != 64 || !isLowerHex(p.ChainID) {
		add(fmt.Sprintf("chain_id %q is not a lowercase hex SHA-256", p.ChainID))
	}

	// -----------------------
	// History linkage
	// -----------------------
	for i := range p.History {
		e := &p.History[i]

		if i == 0 {
			if e.Version != 1 {
				add(fmt.Sprintf("history[0].version must be 1, got %d", e.Version))
			}
			if e.ParentHash != "" {
				add("history[0].parent_hash must be absent")
			}
		} else {
			prev := &p.History[i-1]
			if e.Version != prev.Version+1 {
				add(fmt.Sprintf("history[%d].version must be %d, got %d", i, prev.Version+1, e.Version))
			}
			if e.ParentHash == "" {
				add(fmt.Sprintf("history[%d].parent_hash must not be empty", i))
			} else if prevHash, err := prev.EntryHash(); err != nil {
				add(fmt.Sprintf("failed to hash history[%d]: %v", i-1, err))
			} else if e.ParentHash != prevHash {
				add(fmt.Sprintf("history[%d].parent_hash (%s) must equal the hash of history[%d] (%s)",
					i, e.ParentHash, i-1, prevHash))
			}
		}

		if e.SHA256 == "" {
			add(fmt.Sprintf("history[%d].sha256 must not be empty", i))
		}
		if e.Timestamp == "" {
			add(fmt.Sprintf("history[%d].timestamp must not be empty", i))
		} else if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
			add(fmt.Sprintf("history[%d].timestamp is not valid RFC3339: %v", i, err))
		}
		if !e.SigScheme.IsValid() {
			add(fmt.Sprintf("history[%d].sig_scheme has invalid value: %q", i, e.SigScheme))
		}
		if e.Signature == "" {
			add(fmt.Sprintf("history[%d].signature must not be empty", i))
		}
	}

	// -----------------------
	// Critical metadata agreement
	// -----------------------
	if md := p.DctMetadata; md != nil && len(p.History) > 0 {
		if md.VersionCount != len(p.History) {
			add(fmt.Sprintf("dct_metadata.version_count (%d) must equal history length (%d)",
				md.VersionCount, len(p.History)))
		}
		if last := p.Last(); last != nil && md.LastVersionHash != last.SHA256 {
			add(fmt.Sprintf("dct_metadata.last_version_hash (%s) must equal tip sha256 (%s)",
				md.LastVersionHash, last.SHA256))
		}
	}

	if len(violations) > 0 {
		return fmt.Errorf("chain invariant violations (%d):\n- %s",
			len(violations), strings.Join(violations, "\n- "))
	}
	return nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
