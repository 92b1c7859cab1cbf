// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tern-wallet/tern/tern"
)

var tLogger = tern.StdOutLogger("TEST", tern.LevelTrace)

const (
	tTxID = "aa00000000000000000000000000000000000000000000000000000000000000"
	tAddr = "3P14159f73E4gFr7JterCCQh9QjiTjiZrG"
)

// tAPI is a scripted esplora-style API server.
type tAPI struct {
	tip       uint64
	confirmed atomic.Bool
	blockHt   uint64
	authToken string
	authFails atomic.Int64
}

func (a *tAPI) handler() http.Handler {
	mux := http.NewServeMux()
	auth := func(r *http.Request) bool {
		if a.authToken == "" {
			return true
		}
		if r.Header.Get("Authorization") != "Bearer "+a.authToken {
			a.authFails.Add(1)
			return false
		}
		return true
	}
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, "%d", a.tip)
	})
	mux.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/utxo") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `[
			{"txid":"%s","vout":1,"value":100000000,"status":{"confirmed":true,"block_height":%d}},
			{"txid":"%s","vout":0,"value":50000000,"status":{"confirmed":false}}
		]`, tTxID, a.tip-5, tTxID)
	})
	mux.HandleFunc("/tx/", func(w http.ResponseWriter, r *http.Request) {
		if a.confirmed.Load() {
			fmt.Fprintf(w, `{"status":{"confirmed":true,"block_height":%d,"block_hash":"00deadbeef"}}`, a.blockHt)
			return
		}
		fmt.Fprint(w, `{"status":{"confirmed":false}}`)
	})
	mux.HandleFunc("/tx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Tx string `json:"tx"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tx == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"txid":"%s"}`, tTxID)
	})
	return mux
}

func newTestGateway(t *testing.T, api *tAPI) (*Gateway, func()) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	g, err := NewGateway(srv.URL, api.authToken, tLogger)
	if err != nil {
		srv.Close()
		t.Fatalf("NewGateway error: %v", err)
	}
	return g, srv.Close
}

func TestGateway(t *testing.T) {
	api := &tAPI{tip: 800_000, blockHt: 799_999, authToken: "hunter2"}
	g, shutdown := newTestGateway(t, api)
	defer shutdown()
	ctx := context.Background()

	tip, err := g.TipHeight(ctx)
	if err != nil {
		t.Fatalf("TipHeight error: %v", err)
	}
	if tip != api.tip {
		t.Fatalf("tip %d, expected %d", tip, api.tip)
	}

	utxos, err := g.UTXOs(ctx, tAddr)
	if err != nil {
		t.Fatalf("UTXOs error: %v", err)
	}
	if len(utxos) != 2 {
		t.Fatalf("%d utxos, expected 2", len(utxos))
	}
	// Confirmed at tip-5 means 6 confirmations.
	if utxos[0].Confirmations != 6 {
		t.Fatalf("confirmations %d, expected 6", utxos[0].Confirmations)
	}
	if utxos[0].Amount != 100_000_000 || utxos[0].Vout != 1 {
		t.Fatalf("unexpected utxo %+v", utxos[0])
	}
	if utxos[1].Confirmations != 0 {
		t.Fatalf("mempool utxo has %d confirmations", utxos[1].Confirmations)
	}

	txid, err := g.Broadcast(ctx, "0100beef")
	if err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if txid != tTxID {
		t.Fatalf("broadcast txid %s, expected %s", txid, tTxID)
	}

	status, err := g.TxStatus(ctx, tTxID)
	if err != nil {
		t.Fatalf("TxStatus error: %v", err)
	}
	if status.Confirmed {
		t.Fatalf("unconfirmed tx reported confirmed")
	}
	api.confirmed.Store(true)
	status, err = g.TxStatus(ctx, tTxID)
	if err != nil {
		t.Fatalf("TxStatus error: %v", err)
	}
	if !status.Confirmed || status.BlockHeight != api.blockHt {
		t.Fatalf("unexpected status %+v", status)
	}

	if fails := api.authFails.Load(); fails != 0 {
		t.Fatalf("%d requests failed authorization", fails)
	}

	if _, err := NewGateway("", "", tLogger); err == nil {
		t.Fatalf("no error for empty API URL")
	}
}

func TestGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer srv.Close()
	g, err := NewGateway(srv.URL, "", tLogger)
	if err != nil {
		t.Fatalf("NewGateway error: %v", err)
	}
	ctx := context.Background()
	if _, err := g.TipHeight(ctx); err == nil {
		t.Fatalf("no error from failing tip height endpoint")
	}
	if _, err := g.UTXOs(ctx, tAddr); err == nil {
		t.Fatalf("no error from failing utxo endpoint")
	}
	if _, err := g.Broadcast(ctx, "0100beef"); err == nil {
		t.Fatalf("no error from failing broadcast endpoint")
	}
}

func TestMonitorConfirmation(t *testing.T) {
	api := &tAPI{tip: 800_000, blockHt: 799_999}
	api.confirmed.Store(true)
	g, shutdown := newTestGateway(t, api)
	defer shutdown()

	m := NewMonitor(g, tLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	res := <-m.WaitForConfirmation(ctx, tTxID, 2, time.Minute)
	if res.Err != nil {
		t.Fatalf("WaitForConfirmation error: %v", res.Err)
	}
	if res.Confs != 2 {
		t.Fatalf("confirmations %d, expected 2", res.Confs)
	}
	if res.Status == nil || res.Status.BlockHeight != api.blockHt {
		t.Fatalf("unexpected status %+v", res.Status)
	}
}

func TestMonitorTimeout(t *testing.T) {
	api := &tAPI{tip: 800_000}
	g, shutdown := newTestGateway(t, api)
	defer shutdown()

	m := NewMonitor(g, tLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	res := <-m.WaitForConfirmation(ctx, tTxID, 1, 50*time.Millisecond)
	if !errors.Is(res.Err, tern.ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", res.Err)
	}
}
