// Copyright 2025 Certen Protocol
//
// Chain package errors

package chain

import "errors"

var (
	// ErrEmptyCommit is returned when a commit after version 1 carries no
	// edits. The stored sha256 is the pre-embedding canvas hash, so an
	// edit-free commit would duplicate its parent's canvas hash; versions
	// keep unique canvas hashes by refusing such commits.
	ErrEmptyCommit = errors.New("chain: empty commit after version 1")

	// ErrInvalidState is returned when a session operation is called out of
	// order (e.g. Commit before Ingest).
	ErrInvalidState = errors.New("chain: invalid session state")

	// ErrNoSigner is returned when a session is configured without a signer
	// identity.
	ErrNoSigner = errors.New("chain: signer identity is required")
)
