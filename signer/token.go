// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package signer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tern-wallet/tern/tern"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
)

// Token is a hardware-token backend. The key never leaves the token; this
// implementation models a token in-process with a session-scoped secp256k1
// key and an optional confirmation delay standing in for the physical button
// press. Signing is real ECDSA over the provided digest.
type Token struct {
	name string
	log  tern.Logger

	// confirmDelay models the time a user takes to physically confirm the
	// signing request on the token.
	confirmDelay time.Duration

	mtx       sync.Mutex
	connected bool
	key       *btcec.PrivateKey
	// fixedKey, if set, is used for every session instead of generating a
	// fresh key on connect.
	fixedKey *btcec.PrivateKey
}

var _ Backend = (*Token)(nil)

// NewToken creates a token backend that generates a fresh key per session.
func NewToken(name string, log tern.Logger) *Token {
	return &Token{name: name, log: log}
}

// NewSeededToken creates a token backend with a fixed private key, so the
// same public key is presented across sessions. The key must be a 32-byte
// secp256k1 scalar.
func NewSeededToken(name string, keyB []byte, log tern.Logger) (*Token, error) {
	if len(keyB) != 32 {
		return nil, fmt.Errorf("invalid key length %d", len(keyB))
	}
	priv, _ := btcec.PrivKeyFromBytes(keyB)
	return &Token{name: name, fixedKey: priv, log: log}, nil
}

// SetConfirmDelay sets the simulated user-confirmation delay applied to every
// Sign call.
func (t *Token) SetConfirmDelay(d time.Duration) {
	t.confirmDelay = d
}

// Connect establishes the token session. Idempotent.
func (t *Token) Connect(_ context.Context) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.connected {
		return nil
	}
	if t.fixedKey != nil {
		t.key = t.fixedKey
	} else {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			return fmt.Errorf("error generating session key: %w", err)
		}
		t.key = key
	}
	t.connected = true
	t.log.Infof("token %s connected", t.name)
	return nil
}

// Disconnect releases the session. Idempotent.
func (t *Token) Disconnect() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	t.key = nil
	t.log.Infof("token %s disconnected", t.name)
}

// IsConnected reports whether a session exists.
func (t *Token) IsConnected() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.connected
}

// PublicKey returns the session key's public key.
func (t *Token) PublicKey() (*btcec.PublicKey, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.connected {
		return nil, tern.NewError(tern.ErrNotConnected, t.name)
	}
	return t.key.PubKey(), nil
}

// Sign signs the digest with the session key, returning the DER signature
// with the SigHashAll byte appended.
func (t *Token) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.connected {
		return nil, tern.NewError(tern.ErrNotConnected, t.name)
	}
	if len(digest) != 32 {
		return nil, tern.NewError(tern.ErrSigningFailed,
			fmt.Sprintf("digest length %d, expected 32", len(digest)))
	}
	if t.confirmDelay > 0 {
		select {
		case <-time.After(t.confirmDelay):
		case <-ctx.Done():
			return nil, tern.NewError(tern.ErrSigningTimeout, t.name)
		}
	}
	sig := ecdsa.Sign(t.key, digest)
	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}
