// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package wallet maintains the 2-of-3 multisig wallet session: the key set,
// the derived P2SH address, and a snapshot of spendable outputs. The snapshot
// is process-local state; callers must not run concurrent builds against a
// wallet they are mutating.
package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/btc"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// DefaultFeeRate is used when the caller does not specify a fee rate, in
// satoshis per vbyte.
const DefaultFeeRate = 10

// UTXO is an unspent output paying to the wallet address, as reported by the
// chain data source. Amounts are integer satoshis; floating point BTC is a
// presentation concern only.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"amount"`
	Confirmations uint32 `json:"confirmations"`
	// Spent is set once the output has been consumed by a built transaction.
	// Spent outputs remain in the snapshot until the next UTXO refresh but
	// are never selected again.
	Spent bool `json:"spent,omitempty"`
}

// walletFile is the persisted wallet state.
type walletFile struct {
	Name       string       `json:"wallet_name"`
	PublicKeys []tern.Bytes `json:"public_keys"`
	Address    string       `json:"p2sh_address"`
	UTXOs      []*UTXO      `json:"utxos"`
}

// Wallet is a 2-of-3 multisig wallet session.
type Wallet struct {
	log         tern.Logger
	dir         string
	chainParams *chaincfg.Params

	mtx          sync.RWMutex
	name         string
	pubKeys      [][]byte
	redeemScript []byte
	address      btcutil.Address
	utxos        []*UTXO
}

// New creates a Wallet manager rooted at dir. No wallet is loaded yet.
func New(dir string, chainParams *chaincfg.Params, log tern.Logger) (*Wallet, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("error creating wallet directory: %w", err)
	}
	return &Wallet{
		log:         log,
		dir:         dir,
		chainParams: chainParams,
	}, nil
}

// Create creates a new 2-of-3 wallet from exactly three serialized compressed
// pubkeys, persists it, and returns the P2SH address. Key order matters; the
// same keys in a different order produce a different address.
func (w *Wallet) Create(name string, pubKeys [][]byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	redeemScript, err := btc.MultiSigScript(pubKeys)
	if err != nil {
		return "", err
	}
	addr, err := btc.ScriptAddress(redeemScript, w.chainParams)
	if err != nil {
		return "", fmt.Errorf("error deriving address: %w", err)
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.name = name
	w.pubKeys = pubKeys
	w.redeemScript = redeemScript
	w.address = addr
	w.utxos = nil
	if err := w.save(); err != nil {
		return "", err
	}
	w.log.Infof("created 2-of-3 wallet %q with address %s", name, addr)
	return addr.String(), nil
}

// Load loads a previously created wallet and returns its P2SH address. The
// redeem script and address are re-derived from the stored keys and checked
// against the stored address, so a corrupted wallet file is rejected rather
// than silently spending from the wrong script.
func (w *Wallet) Load(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	b, err := os.ReadFile(w.path(name))
	if err != nil {
		return "", fmt.Errorf("error reading wallet file: %w", err)
	}
	var wf walletFile
	if err := json.Unmarshal(b, &wf); err != nil {
		return "", fmt.Errorf("error parsing wallet file: %w", err)
	}
	pubKeys := make([][]byte, 0, len(wf.PublicKeys))
	for _, pk := range wf.PublicKeys {
		pubKeys = append(pubKeys, pk)
	}
	redeemScript, err := btc.MultiSigScript(pubKeys)
	if err != nil {
		return "", err
	}
	addr, err := btc.ScriptAddress(redeemScript, w.chainParams)
	if err != nil {
		return "", fmt.Errorf("error deriving address: %w", err)
	}
	if addr.String() != wf.Address {
		return "", fmt.Errorf("wallet file address %s does not match derived address %s",
			wf.Address, addr)
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.name = wf.Name
	w.pubKeys = pubKeys
	w.redeemScript = redeemScript
	w.address = addr
	w.utxos = wf.UTXOs
	w.log.Infof("loaded wallet %q with address %s, %d utxos", name, addr, len(wf.UTXOs))
	return addr.String(), nil
}

// Address returns the wallet's P2SH address, or an empty string if no wallet
// is loaded.
func (w *Wallet) Address() string {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	if w.address == nil {
		return ""
	}
	return w.address.String()
}

// RedeemScript returns a copy of the wallet's redeem script.
func (w *Wallet) RedeemScript() []byte {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	script := make([]byte, len(w.redeemScript))
	copy(script, w.redeemScript)
	return script
}

// UpdateUTXOs replaces the UTXO snapshot and persists the wallet.
func (w *Wallet) UpdateUTXOs(utxos []*UTXO) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.name == "" {
		return tern.ErrNoWalletLoaded
	}
	w.utxos = utxos
	if err := w.save(); err != nil {
		return err
	}
	w.log.Infof("wallet %q now tracking %d utxos", w.name, len(utxos))
	return nil
}

// UTXOs returns a copy of the current snapshot.
func (w *Wallet) UTXOs() []*UTXO {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	utxos := make([]*UTXO, len(w.utxos))
	for i, u := range w.utxos {
		c := *u
		utxos[i] = &c
	}
	return utxos
}

// Balance sums the unspent amounts in the snapshot, in satoshis.
func (w *Wallet) Balance() uint64 {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	var sum uint64
	for _, u := range w.utxos {
		if !u.Spent {
			sum += u.Amount
		}
	}
	return sum
}

// BuildTransaction selects outputs from the snapshot, in snapshot order, to
// cover the requested payments plus the estimated fee, and assembles an
// unsigned transaction. Selection is greedy first-fit, deterministic but not
// minimal. Payment outputs are ordered by destination address so the built
// transaction is reproducible. If the remainder after payments and fee
// exceeds the dust threshold, a change output to changeAddr (the wallet
// address when empty) is appended; otherwise the remainder is left as fee.
// Selected outputs are marked spent in the snapshot.
func (w *Wallet) BuildTransaction(outputs map[string]uint64, feeRate uint64, changeAddr string) (*wire.MsgTx, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.name == "" || len(w.redeemScript) == 0 {
		return nil, tern.ErrNoWalletLoaded
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no outputs requested")
	}
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	if changeAddr == "" {
		changeAddr = w.address.String()
	}

	unspent := make([]*UTXO, 0, len(w.utxos))
	for _, u := range w.utxos {
		if !u.Spent {
			unspent = append(unspent, u)
		}
	}
	if len(unspent) == 0 {
		return nil, tern.ErrNoUtxosAvailable
	}

	// Deterministic output order.
	addrs := make([]string, 0, len(outputs))
	var requested uint64
	for addr, amt := range outputs {
		if amt == 0 {
			return nil, fmt.Errorf("zero-value output to %s", addr)
		}
		addrs = append(addrs, addr)
		requested += amt
	}
	sort.Strings(addrs)

	// Greedy in-order selection. The fee estimate grows with the input
	// count, so the target is recomputed as inputs accumulate. The estimate
	// includes the prospective change output.
	var sum, fee uint64
	selected := make([]*UTXO, 0, len(unspent))
	enough := false
	for _, u := range unspent {
		selected = append(selected, u)
		sum += u.Amount
		fee = btc.EstimateSerializeSize(len(selected), len(addrs)+1) * feeRate
		if sum >= requested+fee {
			enough = true
			break
		}
	}
	if !enough {
		return nil, tern.NewError(tern.ErrInsufficientFunds,
			fmt.Sprintf("%d available, %d requested plus %d fee", sum, requested, fee))
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range selected {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %s: %w", u.TxID, err)
		}
		op := wire.NewOutPoint(txHash, u.Vout)
		msgTx.AddTxIn(wire.NewTxIn(op, nil, nil))
	}
	for _, addr := range addrs {
		pkScript, err := w.payScript(addr)
		if err != nil {
			return nil, err
		}
		msgTx.AddTxOut(wire.NewTxOut(int64(outputs[addr]), pkScript))
	}

	change := sum - requested - fee
	if change > btc.DustThreshold {
		pkScript, err := w.payScript(changeAddr)
		if err != nil {
			return nil, fmt.Errorf("bad change address: %w", err)
		}
		msgTx.AddTxOut(wire.NewTxOut(int64(change), pkScript))
	} else if change > 0 {
		w.log.Debugf("dropping dust change of %d satoshis to fee", change)
	}

	for _, u := range selected {
		u.Spent = true
	}
	if err := w.save(); err != nil {
		return nil, err
	}

	w.log.Infof("built unsigned tx %s: %d inputs, %d outputs, %d fee",
		msgTx.TxHash(), len(msgTx.TxIn), len(msgTx.TxOut), fee)
	return msgTx, nil
}

// payScript builds the payment script for an address string on the wallet's
// network.
func (w *Wallet) payScript(addr string) ([]byte, error) {
	a, err := btcutil.DecodeAddress(addr, w.chainParams)
	if err != nil {
		return nil, fmt.Errorf("error decoding address %s: %w", addr, err)
	}
	if !a.IsForNet(w.chainParams) {
		return nil, fmt.Errorf("address %s is not for network %s", addr, w.chainParams.Name)
	}
	return txscript.PayToAddrScript(a)
}

// save writes the wallet file. Callers must hold the write lock.
func (w *Wallet) save() error {
	if w.name == "" {
		return tern.ErrNoWalletLoaded
	}
	pubKeys := make([]tern.Bytes, 0, len(w.pubKeys))
	for _, pk := range w.pubKeys {
		pubKeys = append(pubKeys, pk)
	}
	wf := &walletFile{
		Name:       w.name,
		PublicKeys: pubKeys,
		Address:    w.address.String(),
		UTXOs:      w.utxos,
	}
	b, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling wallet file: %w", err)
	}
	if err := os.WriteFile(w.path(w.name), b, 0600); err != nil {
		return fmt.Errorf("error writing wallet file: %w", err)
	}
	return nil
}

func (w *Wallet) path(name string) string {
	return filepath.Join(w.dir, name+".json")
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid wallet name %q", name)
	}
	return nil
}
