// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/tern-wallet/tern/tern"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// testKeys returns three deterministic keypairs.
func testKeys(t *testing.T) ([]*btcec.PrivateKey, [][]byte) {
	t.Helper()
	privs := make([]*btcec.PrivateKey, 0, TotalKeys)
	pubs := make([][]byte, 0, TotalKeys)
	for i := byte(1); i <= TotalKeys; i++ {
		seed := bytes.Repeat([]byte{i}, 32)
		priv, _ := btcec.PrivKeyFromBytes(seed)
		privs = append(privs, priv)
		pubs = append(pubs, priv.PubKey().SerializeCompressed())
	}
	return privs, pubs
}

func TestMultiSigScript(t *testing.T) {
	_, pubKeys := testKeys(t)

	script, err := MultiSigScript(pubKeys)
	if err != nil {
		t.Fatalf("MultiSigScript error: %v", err)
	}
	if len(script) != RedeemScriptSize {
		t.Fatalf("script size %d, expected %d", len(script), RedeemScriptSize)
	}
	if script[0] != txscript.OP_2 || script[len(script)-2] != txscript.OP_3 ||
		script[len(script)-1] != txscript.OP_CHECKMULTISIG {
		t.Fatalf("unexpected script structure %x", script)
	}

	// Same keys, same script.
	again, err := MultiSigScript(pubKeys)
	if err != nil {
		t.Fatalf("MultiSigScript repeat error: %v", err)
	}
	if !bytes.Equal(script, again) {
		t.Fatalf("script not deterministic: %x != %x", script, again)
	}

	// Reordered keys produce a different script and a different address.
	reordered := [][]byte{pubKeys[1], pubKeys[0], pubKeys[2]}
	otherScript, err := MultiSigScript(reordered)
	if err != nil {
		t.Fatalf("MultiSigScript reordered error: %v", err)
	}
	if bytes.Equal(script, otherScript) {
		t.Fatalf("reordered keys produced an identical script")
	}
	addr, err := ScriptAddress(script, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("ScriptAddress error: %v", err)
	}
	otherAddr, err := ScriptAddress(otherScript, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("ScriptAddress reordered error: %v", err)
	}
	if addr.String() == otherAddr.String() {
		t.Fatalf("reordered keys produced the same address %s", addr)
	}
}

func TestMultiSigScriptBadKeys(t *testing.T) {
	_, pubKeys := testKeys(t)

	for _, n := range []int{0, 1, 2, 4} {
		keys := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			keys = append(keys, pubKeys[i%TotalKeys])
		}
		if _, err := MultiSigScript(keys); !errors.Is(err, tern.ErrInvalidKeyCount) {
			t.Fatalf("expected ErrInvalidKeyCount for %d keys, got %v", n, err)
		}
	}

	// Right count, wrong length key.
	bad := [][]byte{pubKeys[0], pubKeys[1], pubKeys[2][:32]}
	if _, err := MultiSigScript(bad); err == nil {
		t.Fatalf("no error for truncated pubkey")
	}

	// Right length, not on the curve.
	junk := make([]byte, 33)
	junk[0] = 0x02
	bad = [][]byte{pubKeys[0], pubKeys[1], junk}
	if _, err := MultiSigScript(bad); err == nil {
		t.Fatalf("no error for invalid pubkey")
	}
}

func TestExtractRedeemKeys(t *testing.T) {
	_, pubKeys := testKeys(t)
	script, err := MultiSigScript(pubKeys)
	if err != nil {
		t.Fatalf("MultiSigScript error: %v", err)
	}
	keys, err := ExtractRedeemKeys(script)
	if err != nil {
		t.Fatalf("ExtractRedeemKeys error: %v", err)
	}
	if len(keys) != TotalKeys {
		t.Fatalf("extracted %d keys, expected %d", len(keys), TotalKeys)
	}
	for i, key := range keys {
		if !bytes.Equal(key.SerializeCompressed(), pubKeys[i]) {
			t.Fatalf("key %d mismatch", i)
		}
	}

	if _, err := ExtractRedeemKeys(script[:len(script)-1]); err == nil {
		t.Fatalf("no error for truncated script")
	}
	if _, err := ExtractRedeemKeys(nil); err == nil {
		t.Fatalf("no error for nil script")
	}
	mangled := make([]byte, len(script))
	copy(mangled, script)
	mangled[0] = txscript.OP_3
	if _, err := ExtractRedeemKeys(mangled); err == nil {
		t.Fatalf("no error for wrong threshold op")
	}
}

func TestUnlockingScript(t *testing.T) {
	_, pubKeys := testKeys(t)
	redeemScript, err := MultiSigScript(pubKeys)
	if err != nil {
		t.Fatalf("MultiSigScript error: %v", err)
	}

	sig := make([]byte, DERSigLength-2)
	sig[0] = 0x30
	sigScript, err := UnlockingScript([][]byte{sig, sig}, redeemScript)
	if err != nil {
		t.Fatalf("UnlockingScript error: %v", err)
	}
	if sigScript[0] != txscript.OP_0 {
		t.Fatalf("unlocking script does not start with OP_0")
	}
	if len(sigScript) > SigScriptSize {
		t.Fatalf("unlocking script size %d exceeds worst case %d", len(sigScript), SigScriptSize)
	}

	if _, err := UnlockingScript([][]byte{sig}, redeemScript); err == nil {
		t.Fatalf("no error for one signature")
	}
	if _, err := UnlockingScript([][]byte{sig, sig, sig}, redeemScript); err == nil {
		t.Fatalf("no error for three signatures")
	}
}

func TestEstimateSerializeSize(t *testing.T) {
	want := uint64(MsgTxOverhead + RedeemP2SHInputSize + 2*P2PKHOutputSize)
	if sz := EstimateSerializeSize(1, 2); sz != want {
		t.Fatalf("estimated size %d, expected %d", sz, want)
	}
	if sz1, sz2 := EstimateSerializeSize(1, 1), EstimateSerializeSize(2, 1); sz2-sz1 != RedeemP2SHInputSize {
		t.Fatalf("input size delta %d, expected %d", sz2-sz1, RedeemP2SHInputSize)
	}
}

func mustParseHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}
