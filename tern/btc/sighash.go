// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"fmt"

	"github.com/tern-wallet/tern/tern"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SigHash computes the legacy signature hash for the input at idx, with the
// redeem script substituted as the subscript. This is the 32-byte digest that
// each signer backend signs. Only SigHashAll is supported; any other sighash
// type returns ErrUnsupportedSigHash.
func SigHash(tx *wire.MsgTx, idx int, redeemScript []byte, hashType txscript.SigHashType) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, tern.NewError(tern.ErrInputIndexOutOfRange,
			fmt.Sprintf("input %d of %d", idx, len(tx.TxIn)))
	}
	if hashType != txscript.SigHashAll {
		return nil, tern.NewError(tern.ErrUnsupportedSigHash, fmt.Sprintf("type 0x%02x", hashType))
	}
	digest, err := txscript.CalcSignatureHash(redeemScript, hashType, tx, idx)
	if err != nil {
		return nil, fmt.Errorf("error calculating signature hash: %w", err)
	}
	return digest, nil
}
