// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"fmt"

	"github.com/tern-wallet/tern/tern"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// RequiredSigners is the multisig threshold. The wallet policy is fixed
	// at 2-of-3.
	RequiredSigners = 2

	// TotalKeys is the number of public keys committed to by the redeem
	// script.
	TotalKeys = 3

	// Size of a serialized compressed pubkey.
	pubkeyLength = 33

	// DERSigLength is the maximum length of a DER encoded signature plus the
	// 1-byte sighash type.
	DERSigLength = 73

	// RedeemScriptSize is the exact size of the 2-of-3 redeem script:
	//   - OP_2
	//   - 3 x (OP_DATA_33 + 33 bytes compressed pubkey)
	//   - OP_3
	//   - OP_CHECKMULTISIG
	RedeemScriptSize = 1 + TotalKeys*(1+pubkeyLength) + 1 + 1

	// SigScriptSize is the worst case (largest) serialize size of the script
	// that spends the 2-of-3 P2SH output:
	//   - OP_0
	//   - 2 x (OP_DATA_73 + 72 bytes DER signature + 1 byte sighash)
	//   - OP_PUSHDATA1 + 1 byte length
	//   - 105 bytes redeem script
	SigScriptSize = 1 + RequiredSigners*(1+DERSigLength) + 2 + RedeemScriptSize

	// RedeemP2SHInputSize is the worst case size of a transaction input
	// spending the wallet's P2SH output.
	// prevout (36 bytes) + varint sig script size (3 bytes for > 252)
	// + sig script + sequence (4 bytes)
	RedeemP2SHInputSize = 36 + 3 + SigScriptSize + 4

	// P2SHOutputSize is the serialized size of a P2SH output.
	// 8 bytes value + 1 byte varint script size + 23 bytes pkScript
	P2SHOutputSize = 8 + 1 + 23

	// P2PKHOutputSize is the serialized size of a P2PKH output.
	// 8 bytes value + 1 byte varint script size + 25 bytes pkScript
	P2PKHOutputSize = 8 + 1 + 25

	// MsgTxOverhead is 4 bytes version + 4 bytes locktime + 2 bytes of
	// varints for the number of transaction inputs and outputs.
	MsgTxOverhead = 4 + 4 + 2

	// DustThreshold is the minimum change value, in satoshis, for which a
	// change output will be added to a transaction. Anything below this is
	// left to the miner as fee.
	DustThreshold = 1000
)

// MultiSigScript builds the canonical 2-of-3 redeem script committing to the
// provided serialized compressed pubkeys. Key order is preserved, so the same
// keys in the same order always produce a byte-identical script, and any
// reordering produces a different script (and therefore a different address).
func MultiSigScript(pubKeys [][]byte) ([]byte, error) {
	if len(pubKeys) != TotalKeys {
		return nil, tern.NewError(tern.ErrInvalidKeyCount, fmt.Sprintf("got %d keys", len(pubKeys)))
	}
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_2)
	for i, pk := range pubKeys {
		if len(pk) != pubkeyLength {
			return nil, fmt.Errorf("public key at index %d is not a compressed pubkey", i)
		}
		if _, err := btcec.ParsePubKey(pk); err != nil {
			return nil, fmt.Errorf("invalid public key at index %d: %w", i, err)
		}
		b.AddData(pk)
	}
	return b.AddOp(txscript.OP_3).AddOp(txscript.OP_CHECKMULTISIG).Script()
}

// ScriptAddress derives the P2SH address for the redeem script on the given
// network. The address is hash160(script) with the network's script-hash
// version byte, base58check encoded.
func ScriptAddress(redeemScript []byte, chainParams *chaincfg.Params) (*btcutil.AddressScriptHash, error) {
	return btcutil.NewAddressScriptHash(redeemScript, chainParams)
}

// ExtractRedeemKeys extracts the three pubkeys from a 2-of-3 redeem script,
// in script order. An error is returned if the script is not of the exact
// form produced by MultiSigScript.
func ExtractRedeemKeys(redeemScript []byte) ([]*btcec.PublicKey, error) {
	// The redeem script is of the form:
	//  OP_2 <33-byte pubkey> <33-byte pubkey> <33-byte pubkey> OP_3 OP_CHECKMULTISIG
	if len(redeemScript) != RedeemScriptSize ||
		redeemScript[0] != txscript.OP_2 ||
		redeemScript[RedeemScriptSize-2] != txscript.OP_3 ||
		redeemScript[RedeemScriptSize-1] != txscript.OP_CHECKMULTISIG {

		return nil, fmt.Errorf("not a 2-of-3 multisig redeem script")
	}
	keys := make([]*btcec.PublicKey, 0, TotalKeys)
	for i := 0; i < TotalKeys; i++ {
		offset := 1 + i*(1+pubkeyLength)
		if redeemScript[offset] != txscript.OP_DATA_33 {
			return nil, fmt.Errorf("expected pubkey push at script offset %d", offset)
		}
		pubKey, err := btcec.ParsePubKey(redeemScript[offset+1 : offset+1+pubkeyLength])
		if err != nil {
			return nil, fmt.Errorf("error parsing redeem script pubkey %d: %w", i, err)
		}
		keys = append(keys, pubKey)
	}
	return keys, nil
}

// UnlockingScript assembles the signature script that spends the 2-of-3
// P2SH output:
//
//	OP_0 <sig1> <sig2> <redeem script>
//
// The leading OP_0 compensates for the extra stack item consumed by
// OP_CHECKMULTISIG. Each signature must be DER encoded with the sighash type
// appended, and the signatures must be ordered to match the order of their
// pubkeys in the redeem script.
func UnlockingScript(sigs [][]byte, redeemScript []byte) ([]byte, error) {
	if len(sigs) != RequiredSigners {
		return nil, fmt.Errorf("expected %d signatures, got %d", RequiredSigners, len(sigs))
	}
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, sig := range sigs {
		b.AddData(sig)
	}
	return b.AddData(redeemScript).Script()
}

// EstimateSerializeSize is the pre-signing estimate of the final serialized
// transaction size, assuming every input spends the wallet's P2SH output and
// counting worst case signature sizes. The signed transaction can only be
// smaller.
func EstimateSerializeSize(inputCount, outputCount int) uint64 {
	return uint64(MsgTxOverhead + inputCount*RedeemP2SHInputSize + outputCount*P2PKHOutputSize)
}
