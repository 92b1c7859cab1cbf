// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package chain is the boundary to blockchain data. The core depends only on
// the Client contract; Gateway is an implementation backed by an
// esplora-style HTTP API. Transport errors propagate to the caller for retry
// decisions; nothing here retries silently.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/ternnet"
	"github.com/tern-wallet/tern/wallet"
)

// TxStatus is the network's view of a transaction.
type TxStatus struct {
	TxID        string `json:"txid"`
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// Client is the blockchain collaborator contract consumed by the wallet
// coordinator. Implementations must be safe for concurrent use.
type Client interface {
	// UTXOs fetches the unspent outputs paying to addr, with confirmation
	// counts relative to the current tip.
	UTXOs(ctx context.Context, addr string) ([]*wallet.UTXO, error)
	// Broadcast submits a serialized transaction, hex encoded, returning the
	// txid. Re-broadcast of an already-accepted transaction is a no-op from
	// the network's perspective.
	Broadcast(ctx context.Context, txHex string) (string, error)
	// TxStatus fetches the confirmation status of a transaction.
	TxStatus(ctx context.Context, txid string) (*TxStatus, error)
	// TipHeight returns the current best block height.
	TipHeight(ctx context.Context) (uint64, error)
}

// Gateway is a Client over an esplora-style HTTP API.
type Gateway struct {
	apiURL string
	apiKey string
	log    tern.Logger
}

var _ Client = (*Gateway)(nil)

// NewGateway creates a Gateway for the API rooted at apiURL. apiKey may be
// empty; when set it is sent as a bearer token.
func NewGateway(apiURL, apiKey string, log tern.Logger) (*Gateway, error) {
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", apiURL)
	}
	return &Gateway{
		apiURL: apiURL,
		apiKey: apiKey,
		log:    log,
	}, nil
}

func (g *Gateway) opts() []*ternnet.RequestOption {
	if g.apiKey == "" {
		return nil
	}
	return []*ternnet.RequestOption{ternnet.WithRequestHeader("Authorization", "Bearer "+g.apiKey)}
}

// UTXOs fetches the unspent outputs for addr.
func (g *Gateway) UTXOs(ctx context.Context, addr string) ([]*wallet.UTXO, error) {
	tip, err := g.TipHeight(ctx)
	if err != nil {
		return nil, err
	}
	var res []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  uint64 `json:"value"`
		Status struct {
			Confirmed   bool   `json:"confirmed"`
			BlockHeight uint64 `json:"block_height"`
		} `json:"status"`
	}
	uri := fmt.Sprintf("%s/address/%s/utxo", g.apiURL, addr)
	if err := ternnet.Get(ctx, uri, &res, g.opts()...); err != nil {
		return nil, fmt.Errorf("error fetching utxos: %w", err)
	}
	utxos := make([]*wallet.UTXO, 0, len(res))
	for _, r := range res {
		var confs uint64
		if r.Status.Confirmed && r.Status.BlockHeight > 0 && tip >= r.Status.BlockHeight {
			confs = tip - r.Status.BlockHeight + 1
		}
		utxos = append(utxos, &wallet.UTXO{
			TxID:          r.TxID,
			Vout:          r.Vout,
			Amount:        r.Value,
			Confirmations: uint32(confs),
		})
	}
	g.log.Debugf("found %d utxos for address %s", len(utxos), addr)
	return utxos, nil
}

// Broadcast submits the transaction to the network.
func (g *Gateway) Broadcast(ctx context.Context, txHex string) (string, error) {
	reqB, err := json.Marshal(&struct {
		Tx string `json:"tx"`
	}{Tx: txHex})
	if err != nil {
		return "", err
	}
	var res struct {
		TxID string `json:"txid"`
	}
	opts := append(g.opts(), ternnet.WithRequestHeader("Content-Type", "application/json"))
	if err := ternnet.Post(ctx, g.apiURL+"/tx", &res, reqB, opts...); err != nil {
		return "", fmt.Errorf("error broadcasting transaction: %w", err)
	}
	if res.TxID == "" {
		return "", fmt.Errorf("broadcast accepted but no txid returned")
	}
	g.log.Infof("broadcast transaction %s", res.TxID)
	return res.TxID, nil
}

// TxStatus fetches the confirmation status of txid.
func (g *Gateway) TxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var res struct {
		Status struct {
			Confirmed   bool   `json:"confirmed"`
			BlockHeight uint64 `json:"block_height"`
			BlockHash   string `json:"block_hash"`
		} `json:"status"`
	}
	if err := ternnet.Get(ctx, g.apiURL+"/tx/"+txid, &res, g.opts()...); err != nil {
		return nil, fmt.Errorf("error fetching tx status: %w", err)
	}
	return &TxStatus{
		TxID:        txid,
		Confirmed:   res.Status.Confirmed,
		BlockHeight: res.Status.BlockHeight,
		BlockHash:   res.Status.BlockHash,
	}, nil
}

// TipHeight returns the current best block height.
func (g *Gateway) TipHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := ternnet.Get(ctx, g.apiURL+"/blocks/tip/height", &height, g.opts()...); err != nil {
		return 0, fmt.Errorf("error fetching tip height: %w", err)
	}
	return height, nil
}
