// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package coord drives a 2-of-3 signing round across independent signer
// backends and assembles the final unlocking script. Backends are invoked
// strictly sequentially because signer devices commonly require exclusive
// physical or session access, and because the assembled script must be
// deterministic.
package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tern-wallet/tern/signer"
	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/btc"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// defaultSignTimeout bounds a single backend Sign call. Hardware confirmation
// takes user-scale time.
const defaultSignTimeout = time.Minute

// Coordinator collects signatures from signer backends and binds the
// unlocking script. A Coordinator is stateless between signing rounds; each
// SignTransaction call is atomic, either fully succeeding or binding nothing.
type Coordinator struct {
	log         tern.Logger
	signTimeout time.Duration
}

// New creates a Coordinator.
func New(log tern.Logger) *Coordinator {
	return &Coordinator{
		log:         log,
		signTimeout: defaultSignTimeout,
	}
}

// SetSignTimeout overrides the per-backend signing timeout.
func (c *Coordinator) SetSignTimeout(d time.Duration) {
	c.signTimeout = d
}

// SignTransaction has each backend sign the digest for the input at inputIdx
// and assembles the unlocking script. The input transaction is never mutated;
// the returned transaction is a signed copy.
//
// At least 2 backends must be supplied. All supplied backends are invoked, in
// the caller's order, but the unlocking script always carries exactly 2
// signatures ordered to match the pubkey order of the redeem script,
// regardless of the order backends were supplied. A signature from a key not
// in the redeem script fails the round.
func (c *Coordinator) SignTransaction(ctx context.Context, tx *wire.MsgTx, redeemScript []byte,
	backends []signer.Backend, inputIdx int) (*wire.MsgTx, error) {

	if len(backends) < btc.RequiredSigners {
		return nil, tern.NewError(tern.ErrInsufficientSigners,
			fmt.Sprintf("got %d backends", len(backends)))
	}

	digest, err := btc.SigHash(tx, inputIdx, redeemScript, txscript.SigHashAll)
	if err != nil {
		return nil, err
	}

	keys, err := btc.ExtractRedeemKeys(redeemScript)
	if err != nil {
		return nil, err
	}

	// Collect one signature per backend, sequentially.
	sigs := make([][]byte, 0, len(backends))
	for i, backend := range backends {
		if !backend.IsConnected() {
			return nil, tern.NewError(tern.ErrNotConnected, fmt.Sprintf("backend %d", i))
		}
		signCtx, cancel := context.WithTimeout(ctx, c.signTimeout)
		sig, err := backend.Sign(signCtx, digest)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, tern.NewError(tern.ErrSigningTimeout, fmt.Sprintf("backend %d", i))
			}
			if errors.Is(err, tern.ErrNotConnected) || errors.Is(err, tern.ErrSigningTimeout) ||
				errors.Is(err, tern.ErrSigningFailed) {
				return nil, err
			}
			return nil, tern.NewError(tern.ErrSigningFailed, err.Error())
		}
		c.log.Debugf("collected signature %d of %d", i+1, len(backends))
		sigs = append(sigs, sig)
	}

	// On-chain validation requires signatures in redeem-script key order, not
	// backend invocation order. Match each script key to a collected
	// signature by verification against the digest.
	ordered := make([][]byte, 0, btc.RequiredSigners)
	used := make([]bool, len(sigs))
	for _, pubKey := range keys {
		if len(ordered) == btc.RequiredSigners {
			break
		}
		for i, sigB := range sigs {
			if used[i] || len(sigB) < 9 {
				continue
			}
			// Strip the trailing sighash-type byte before parsing.
			sig, err := ecdsa.ParseDERSignature(sigB[:len(sigB)-1])
			if err != nil {
				return nil, tern.NewError(tern.ErrSigningFailed,
					fmt.Sprintf("backend %d returned an undecodable signature: %v", i, err))
			}
			if sig.Verify(digest, pubKey) {
				ordered = append(ordered, sigB)
				used[i] = true
				break
			}
		}
	}
	if len(ordered) < btc.RequiredSigners {
		return nil, tern.NewError(tern.ErrSigningFailed,
			fmt.Sprintf("only %d of %d signatures match wallet keys", len(ordered), btc.RequiredSigners))
	}

	sigScript, err := btc.UnlockingScript(ordered, redeemScript)
	if err != nil {
		return nil, err
	}

	signedTx := tx.Copy()
	signedTx.TxIn[inputIdx].SignatureScript = sigScript
	c.log.Infof("transaction %s input %d signed with %d signatures",
		signedTx.TxHash(), inputIdx, btc.RequiredSigners)
	return signedTx, nil
}

// VerifyTransaction evaluates the unlocking script on the input at inputIdx
// against the P2SH payment script for the redeem script, running the full
// script engine. A nil error means the 2-of-3 spending condition is
// satisfied. inputValue is the value of the spent output in satoshis; legacy
// script evaluation does not commit to it, so zero is acceptable when the
// value is unknown.
func (c *Coordinator) VerifyTransaction(tx *wire.MsgTx, redeemScript []byte, inputIdx int, inputValue int64) error {
	if inputIdx < 0 || inputIdx >= len(tx.TxIn) {
		return tern.NewError(tern.ErrInputIndexOutOfRange,
			fmt.Sprintf("input %d of %d", inputIdx, len(tx.TxIn)))
	}
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		return err
	}
	prevOuts := txscript.NewCannedPrevOutputFetcher(pkScript, inputValue)
	vm, err := txscript.NewEngine(pkScript, tx, inputIdx, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(tx, prevOuts), inputValue, prevOuts)
	if err != nil {
		return fmt.Errorf("error creating script engine: %w", err)
	}
	if err := vm.Execute(); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}
