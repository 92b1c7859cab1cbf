// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"bytes"
	"encoding/hex"

	"github.com/tern-wallet/tern/tern"

	"github.com/btcsuite/btcd/wire"
)

// MsgTxToBytes serializes the transaction in the legacy (non-segwit) wire
// format.
func MsgTxToBytes(msgTx *wire.MsgTx) ([]byte, error) {
	txB := make([]byte, 0, msgTx.SerializeSize())
	buf := bytes.NewBuffer(txB)
	if err := msgTx.SerializeNoWitness(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MsgTxFromBytes deserializes a transaction from the wire format. The entire
// byte slice must be consumed; truncated streams and streams with trailing
// garbage both fail with ErrMalformedTransaction.
func MsgTxFromBytes(txB []byte) (*wire.MsgTx, error) {
	r := bytes.NewReader(txB)
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(r); err != nil {
		return nil, tern.NewError(tern.ErrMalformedTransaction, err.Error())
	}
	if r.Len() != 0 {
		return nil, tern.NewError(tern.ErrMalformedTransaction,
			"trailing bytes after transaction")
	}
	return msgTx, nil
}

// MsgTxToHex produces the hex encoding of the serialized transaction. This is
// the interchange format between the build, sign and broadcast steps.
func MsgTxToHex(msgTx *wire.MsgTx) (string, error) {
	txB, err := MsgTxToBytes(msgTx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(txB), nil
}

// MsgTxFromHex decodes a hex-encoded transaction.
func MsgTxFromHex(txHex string) (*wire.MsgTx, error) {
	txB, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, tern.NewError(tern.ErrMalformedTransaction, err.Error())
	}
	return MsgTxFromBytes(txB)
}
