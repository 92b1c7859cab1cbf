// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tern-wallet/tern/chain"
	"github.com/tern-wallet/tern/coord"
	"github.com/tern-wallet/tern/signer"
	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/btc"
	"github.com/tern-wallet/tern/wallet"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

var version = semver{major: 0, minor: 1, patch: 0}

// semver holds tern's semver values.
type semver struct {
	major, minor, patch uint32
}

// String satisfies fmt.Stringer.
func (s semver) String() string {
	return fmt.Sprintf("%d.%d.%d", s.major, s.minor, s.patch)
}

const commandUsage = `Commands:
  createwallet <name> <pubkey1> <pubkey2> <pubkey3>
  loadwallet   <name>
  connect      <backend>
  pubkey       <backend>
  updateutxos  <name>
  createtx     <name> <address> <amount BTC> [change address]
  signtx       <name> <tx file> <backend> <backend> [backend]
  verify       <name> <tx file>
  broadcast    <tx file>
  status       <txid>
  waitconf     <txid> [confirmations]`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// session aggregates the pieces a command may need.
type session struct {
	cfg      *config
	log      tern.Logger
	wallet   *wallet.Wallet
	registry *signer.Registry
	coord    *coord.Coordinator
	gateway  *chain.Gateway
}

// gatewayOrErr returns the chain gateway, or an error if no API URL is
// configured.
func (s *session) gatewayOrErr() (*chain.Gateway, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("no blockchain API configured. set apiurl")
	}
	return s.gateway, nil
}

func run() error {
	cfg, args, stop, err := configure()
	if err != nil {
		return fmt.Errorf("unable to configure: %w", err)
	}
	if stop {
		return nil
	}
	if len(args) < 1 {
		return fmt.Errorf("no command specified\n%s", commandUsage)
	}

	lm, closeLogger, err := initLogging(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	w, err := wallet.New(cfg.WalletDir, cfg.chainParams(), lm.NewLogger("WLLT"))
	if err != nil {
		return err
	}

	registry := signer.NewRegistry(lm.NewLogger("SGNR"))
	defer registry.DisconnectAll()
	if err := registerBackends(registry, cfg); err != nil {
		return err
	}

	coordinator := coord.New(lm.NewLogger("CORD"))
	coordinator.SetSignTimeout(cfg.SignTimeout)

	s := &session{
		cfg:      cfg,
		log:      lm.NewLogger("TERN"),
		wallet:   w,
		registry: registry,
		coord:    coordinator,
	}
	if cfg.APIURL != "" {
		s.gateway, err = chain.NewGateway(cfg.APIURL, cfg.APIKey, lm.NewLogger("CHN"))
		if err != nil {
			return err
		}
	}

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "createwallet":
		return cmdCreateWallet(s, cmdArgs)
	case "loadwallet":
		return cmdLoadWallet(s, cmdArgs)
	case "connect":
		return cmdConnect(ctx, s, cmdArgs)
	case "pubkey":
		return cmdPubKey(ctx, s, cmdArgs)
	case "updateutxos":
		return cmdUpdateUTXOs(ctx, s, cmdArgs)
	case "createtx":
		return cmdCreateTx(s, cmdArgs)
	case "signtx":
		return cmdSignTx(ctx, s, cmdArgs)
	case "verify":
		return cmdVerify(s, cmdArgs)
	case "broadcast":
		return cmdBroadcast(ctx, s, cmdArgs)
	case "status":
		return cmdStatus(ctx, s, cmdArgs)
	case "waitconf":
		return cmdWaitConf(ctx, s, cmdArgs)
	default:
		return fmt.Errorf("unrecognized command %q\n%s", cmd, commandUsage)
	}
}

// registerBackends registers the built-in drivers and declares the backends
// from the config.
func registerBackends(registry *signer.Registry, cfg *config) error {
	if err := registry.RegisterDriver("token", signer.TokenDriver); err != nil {
		return err
	}
	if err := registry.RegisterDriver("remote", signer.RemoteDriver); err != nil {
		return err
	}
	for _, decl := range cfg.Tokens {
		id, keyHex, _ := strings.Cut(decl, "=")
		var key tern.Bytes
		if keyHex != "" {
			b, err := hex.DecodeString(keyHex)
			if err != nil {
				return fmt.Errorf("bad token key for %q: %w", id, err)
			}
			key = b
		}
		if err := registry.AddBackend(&signer.Config{ID: id, Type: "token", Key: key}); err != nil {
			return err
		}
	}
	for _, decl := range cfg.Remotes {
		id, addr, found := strings.Cut(decl, "=")
		if !found {
			return fmt.Errorf("remote backend %q requires id=url", decl)
		}
		if err := registry.AddBackend(&signer.Config{ID: id, Type: "remote", Addr: addr}); err != nil {
			return err
		}
	}
	return nil
}

func cmdCreateWallet(s *session, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: createwallet <name> <pubkey1> <pubkey2> <pubkey3>")
	}
	pubKeys := make([][]byte, 0, 3)
	for _, pkHex := range args[1:] {
		pk, err := hex.DecodeString(pkHex)
		if err != nil {
			return fmt.Errorf("bad pubkey %q: %w", pkHex, err)
		}
		pubKeys = append(pubKeys, pk)
	}
	addr, err := s.wallet.Create(args[0], pubKeys)
	if err != nil {
		return err
	}
	fmt.Printf("created wallet %q with address %s\n", args[0], addr)
	return nil
}

func cmdLoadWallet(s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: loadwallet <name>")
	}
	addr, err := s.wallet.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("wallet %q\naddress: %s\nbalance: %s\n", args[0], addr,
		btcutil.Amount(s.wallet.Balance()))
	return nil
}

func cmdConnect(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: connect <backend>")
	}
	backend, err := s.registry.Backend(args[0])
	if err != nil {
		return err
	}
	if err := backend.Connect(ctx); err != nil {
		return err
	}
	fmt.Printf("backend %q connected\n", args[0])
	return nil
}

func cmdPubKey(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pubkey <backend>")
	}
	backend, err := s.registry.Backend(args[0])
	if err != nil {
		return err
	}
	if err := backend.Connect(ctx); err != nil {
		return err
	}
	pubKey, err := backend.PublicKey()
	if err != nil {
		return err
	}
	fmt.Printf("%x\n", pubKey.SerializeCompressed())
	return nil
}

func cmdUpdateUTXOs(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: updateutxos <name>")
	}
	gateway, err := s.gatewayOrErr()
	if err != nil {
		return err
	}
	addr, err := s.wallet.Load(args[0])
	if err != nil {
		return err
	}
	utxos, err := gateway.UTXOs(ctx, addr)
	if err != nil {
		return err
	}
	if err := s.wallet.UpdateUTXOs(utxos); err != nil {
		return err
	}
	fmt.Printf("%d utxos, balance %s\n", len(utxos), btcutil.Amount(s.wallet.Balance()))
	return nil
}

func cmdCreateTx(s *session, args []string) error {
	if len(args) != 3 && len(args) != 4 {
		return fmt.Errorf("usage: createtx <name> <address> <amount BTC> [change address]")
	}
	if _, err := s.wallet.Load(args[0]); err != nil {
		return err
	}
	amtFloat, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("bad amount %q: %w", args[2], err)
	}
	amt, err := btcutil.NewAmount(amtFloat)
	if err != nil {
		return err
	}
	var changeAddr string
	if len(args) == 4 {
		changeAddr = args[3]
	}
	msgTx, err := s.wallet.BuildTransaction(
		map[string]uint64{args[1]: uint64(amt)}, s.cfg.FeeRate, changeAddr)
	if err != nil {
		return err
	}
	txHex, err := btc.MsgTxToHex(msgTx)
	if err != nil {
		return err
	}
	txFile := filepath.Join(s.cfg.WalletDir, args[0]+"-unsigned.tx")
	if err := os.WriteFile(txFile, []byte(txHex), 0600); err != nil {
		return err
	}
	fmt.Printf("unsigned transaction %s written to %s\n%s\n", msgTx.TxHash(), txFile, txHex)
	return nil
}

func cmdSignTx(ctx context.Context, s *session, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: signtx <name> <tx file> <backend> <backend> [backend]")
	}
	if _, err := s.wallet.Load(args[0]); err != nil {
		return err
	}
	msgTx, err := readTxFile(args[1])
	if err != nil {
		return err
	}
	backends := make([]signer.Backend, 0, len(args[2:]))
	for _, id := range args[2:] {
		backend, err := s.registry.Backend(id)
		if err != nil {
			return err
		}
		backends = append(backends, backend)
	}
	redeemScript := s.wallet.RedeemScript()
	signedTx := msgTx
	for idx := range msgTx.TxIn {
		signedTx, err = s.coord.SignTransaction(ctx, signedTx, redeemScript, backends, idx)
		if err != nil {
			return err
		}
	}
	for idx := range signedTx.TxIn {
		if err := s.coord.VerifyTransaction(signedTx, redeemScript, idx, 0); err != nil {
			return fmt.Errorf("signed transaction failed verification on input %d: %w", idx, err)
		}
	}
	txHex, err := btc.MsgTxToHex(signedTx)
	if err != nil {
		return err
	}
	txFile := filepath.Join(s.cfg.WalletDir, args[0]+"-signed.tx")
	if err := os.WriteFile(txFile, []byte(txHex), 0600); err != nil {
		return err
	}
	fmt.Printf("signed transaction %s written to %s\n%s\n", signedTx.TxHash(), txFile, txHex)
	return nil
}

func cmdVerify(s *session, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: verify <name> <tx file>")
	}
	if _, err := s.wallet.Load(args[0]); err != nil {
		return err
	}
	msgTx, err := readTxFile(args[1])
	if err != nil {
		return err
	}
	redeemScript := s.wallet.RedeemScript()
	for idx := range msgTx.TxIn {
		if err := s.coord.VerifyTransaction(msgTx, redeemScript, idx, 0); err != nil {
			return err
		}
	}
	fmt.Println("transaction verified")
	return nil
}

func cmdBroadcast(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: broadcast <tx file>")
	}
	gateway, err := s.gatewayOrErr()
	if err != nil {
		return err
	}
	txHex, err := readTxHex(args[0])
	if err != nil {
		return err
	}
	txid, err := gateway.Broadcast(ctx, txHex)
	if err != nil {
		return err
	}
	fmt.Println(txid)
	return nil
}

func cmdStatus(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: status <txid>")
	}
	gateway, err := s.gatewayOrErr()
	if err != nil {
		return err
	}
	status, err := gateway.TxStatus(ctx, args[0])
	if err != nil {
		return err
	}
	if status.Confirmed {
		fmt.Printf("confirmed in block %d (%s)\n", status.BlockHeight, status.BlockHash)
	} else {
		fmt.Println("unconfirmed")
	}
	return nil
}

func cmdWaitConf(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return fmt.Errorf("usage: waitconf <txid> [confirmations]")
	}
	gateway, err := s.gatewayOrErr()
	if err != nil {
		return err
	}
	confs := uint64(1)
	if len(args) == 2 {
		confs, err = strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad confirmation count %q: %w", args[1], err)
		}
	}
	monitor := chain.NewMonitor(gateway, s.log)
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	fmt.Printf("waiting for %d confirmation(s) of %s\n", confs, args[0])
	res := <-monitor.WaitForConfirmation(ctx, args[0], confs, chain.DefaultConfTimeout)
	if res.Err != nil {
		return res.Err
	}
	fmt.Printf("transaction %s confirmed with %d confirmation(s) at height %d\n",
		args[0], res.Confs, res.Status.BlockHeight)
	return nil
}

// readTxHex reads a transaction hand-off file written by createtx/signtx.
func readTxHex(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading transaction file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func readTxFile(path string) (*wire.MsgTx, error) {
	txHex, err := readTxHex(path)
	if err != nil {
		return nil, err
	}
	return btc.MsgTxFromHex(txHex)
}
