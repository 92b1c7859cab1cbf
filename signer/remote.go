// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/ternnet"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Remote is a backend for a remote key custodian reachable over an HTTP JSON
// API. The custodian holds the private key; this backend only relays digests
// and signatures.
//
// API surface:
//
//	GET  {addr}/api/v1/key  -> {"pubkey":"<33-byte hex>"}
//	POST {addr}/api/v1/sign {"digest":"<32-byte hex>"} -> {"signature":"<DER+sighash hex>"}
type Remote struct {
	name string
	addr string
	log  tern.Logger

	mtx       sync.Mutex
	connected bool
	pubKey    *btcec.PublicKey
}

var _ Backend = (*Remote)(nil)

// NewRemote creates a remote custodian backend for the API at addr.
func NewRemote(name, addr string, log tern.Logger) *Remote {
	return &Remote{name: name, addr: addr, log: log}
}

// Connect fetches and caches the custodian's public key, establishing the
// session. Idempotent.
func (r *Remote) Connect(ctx context.Context) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.connected {
		return nil
	}
	var resp struct {
		PubKey tern.Bytes `json:"pubkey"`
	}
	if err := ternnet.Get(ctx, r.addr+"/api/v1/key", &resp); err != nil {
		return fmt.Errorf("error fetching custodian key: %w", err)
	}
	pubKey, err := btcec.ParsePubKey(resp.PubKey)
	if err != nil {
		return fmt.Errorf("invalid custodian pubkey %s: %w", resp.PubKey, err)
	}
	r.pubKey = pubKey
	r.connected = true
	r.log.Infof("remote custodian %s connected at %s", r.name, r.addr)
	return nil
}

// Disconnect drops the session. Idempotent.
func (r *Remote) Disconnect() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if !r.connected {
		return
	}
	r.connected = false
	r.pubKey = nil
	r.log.Infof("remote custodian %s disconnected", r.name)
}

// IsConnected reports whether a session exists.
func (r *Remote) IsConnected() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.connected
}

// PublicKey returns the custodian's public key cached at Connect.
func (r *Remote) PublicKey() (*btcec.PublicKey, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if !r.connected {
		return nil, tern.NewError(tern.ErrNotConnected, r.name)
	}
	return r.pubKey, nil
}

// Sign relays the digest to the custodian and returns the signature. The
// custodian may hold the request for operator approval, so the context
// deadline bounds the wait.
func (r *Remote) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	r.mtx.Lock()
	connected := r.connected
	r.mtx.Unlock()
	if !connected {
		return nil, tern.NewError(tern.ErrNotConnected, r.name)
	}
	reqB, err := json.Marshal(&struct {
		Digest tern.Bytes `json:"digest"`
	}{Digest: digest})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Signature tern.Bytes `json:"signature"`
	}
	err = ternnet.Post(ctx, r.addr+"/api/v1/sign", &resp, reqB,
		ternnet.WithRequestHeader("Content-Type", "application/json"))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, tern.NewError(tern.ErrSigningTimeout, r.name)
		}
		return nil, tern.NewError(tern.ErrSigningFailed, err.Error())
	}
	if len(resp.Signature) == 0 {
		return nil, tern.NewError(tern.ErrSigningFailed, "custodian returned an empty signature")
	}
	return resp.Signature, nil
}
