// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package signer defines the capability contract for the independent signing
// authorities that hold the wallet's private keys, and provides the built-in
// backend implementations. The coordinator only ever sees the Backend
// interface, never a concrete backend type.
package signer

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Backend is a signing authority holding one of the wallet's three private
// keys. Implementations own their session state exclusively. All backends
// must be safe for use from a single signing flow; no concurrent use of a
// single Backend is supported.
type Backend interface {
	// Connect establishes a live session with the backend. Connect is
	// idempotent; connecting an already-connected backend is a no-op.
	Connect(ctx context.Context) error
	// Disconnect releases any session state. Idempotent.
	Disconnect()
	// IsConnected reports whether a live session exists. Pure query.
	IsConnected() bool
	// PublicKey returns the backend's public key. Fails with
	// tern.ErrNotConnected if there is no live session.
	PublicKey() (*btcec.PublicKey, error)
	// Sign signs the 32-byte digest, returning the DER-encoded signature
	// with the 1-byte sighash type appended. Sign may block on user
	// interaction, e.g. a physical confirmation, so callers should supply a
	// context with a deadline. Fails with tern.ErrNotConnected if there is
	// no live session, or tern.ErrSigningFailed if the backend cannot
	// produce a signature for the digest.
	Sign(ctx context.Context, digest []byte) ([]byte, error)
}
