// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "tern.conf"
	defaultLogFilename    = "tern.log"
	defaultFeeRate        = 10 // sat/vB
	defaultSignTimeout    = time.Minute
)

var (
	appDir            = btcutil.AppDataDir("tern", false)
	defaultConfigPath = filepath.Join(appDir, defaultConfigFilename)
	defaultWalletDir  = filepath.Join(appDir, "wallets")
	defaultLogPath    = filepath.Join(appDir, "logs", defaultLogFilename)
)

// config defines the configuration options for the tern CLI.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Config      string `short:"C" long:"config" description:"Path to configuration file"`
	Testnet     bool   `long:"testnet" description:"Use the test network"`
	WalletDir   string `long:"walletdir" description:"Directory for wallet files"`
	APIURL      string `long:"apiurl" description:"Base URL of the blockchain API"`
	APIKey      string `long:"apikey" default-mask:"-" description:"Bearer token for the blockchain API"`
	FeeRate     uint64 `long:"feerate" description:"Fee rate in satoshis/vbyte for created transactions"`
	SignTimeout time.Duration `long:"signtimeout" description:"How long to wait for a single signer before aborting the round"`
	LogLevel    string `short:"d" long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}, or subsystem=level pairs"`
	LogPath     string `long:"logpath" description:"Path of the log file"`

	// Signing backends. Tokens hold a session key in-process; remotes relay
	// to a custodian API.
	Tokens  []string `long:"token" description:"Declare a hardware token backend: id or id=hex-privkey (repeatable)"`
	Remotes []string `long:"remote" description:"Declare a remote custodian backend: id=url (repeatable)"`
}

// chainParams returns the network parameters selected by the config.
func (cfg *config) chainParams() *chaincfg.Params {
	if cfg.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// configure parses command line options and a config file if present. Returns
// an instantiated *config, leftover command line arguments, and a bool that
// is true if there is nothing further to do (i.e. version was printed and we
// can exit), or a parsing error, in that order.
func configure() (*config, []string, bool, error) {
	stop := true
	cfg := &config{
		Config:      defaultConfigPath,
		WalletDir:   defaultWalletDir,
		LogPath:     defaultLogPath,
		LogLevel:    "info",
		FeeRate:     defaultFeeRate,
		SignTimeout: defaultSignTimeout,
	}
	preParser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	_, err := preParser.Parse()
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Printf("%v\n%s\n", err, commandUsage)
			return nil, nil, stop, nil
		}
		return nil, nil, false, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if cfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil, nil, stop, nil
	}

	parser := flags.NewParser(cfg, flags.Default|flags.PassDoubleDash)

	if fileExists(cfg.Config) {
		// Load additional config from file.
		err = flags.NewIniParser(parser).ParseFile(cfg.Config)
		if err != nil {
			return nil, nil, false, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		return nil, nil, false, err
	}

	return cfg, remainingArgs, false, nil
}
