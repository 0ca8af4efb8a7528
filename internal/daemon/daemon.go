// Package daemon holds the process-wide state of the cosigner: the
// loaded configuration, the key material, and the outpoint ledger
// handle. State is constructed once at startup and is read-only
// afterwards; the ledger synchronizes itself internally.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/danielabrozzoni/cosignerd/internal/keys"
	"github.com/danielabrozzoni/cosignerd/internal/ledger"
	"github.com/danielabrozzoni/cosignerd/internal/types"
)

// File names under the data directory
const (
	IdentityKeyFile = "noise_secret"
	LedgerFile      = "cosignerd.db"
	LogFileName     = "log"
	PidFileName     = "cosignerd.pid"
)

// DefaultDataDirName is the datadir created under $HOME when the
// configuration does not name one
const DefaultDataDirName = ".cosignerd"

var ErrNoHomeDir = errors.New("cannot resolve default datadir: no home directory")

// State is the daemon's global state
type State struct {
	Config      *types.Config
	DataDir     string
	IdentityKey crypto.PrivKey
	SigningKey  *btcec.PrivateKey
	Ledger      *ledger.Store
}

// Initialize builds the daemon state from a validated configuration.
// It creates the data directory with owner-only permissions, loads or
// creates the transport identity key, decodes the signing key and opens
// the ledger. Any failure here is fatal: the daemon must not serve
// requests with missing key material or an unreachable ledger.
func Initialize(cfg *types.Config) (*State, error) {
	dataDir, err := resolveDataDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	if err := createDataDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create datadir %s: %w", dataDir, err)
	}

	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve datadir path: %w", err)
	}

	keyManager := keys.NewKeyManager()

	identityKey, err := keyManager.LoadOrCreateIdentityKey(filepath.Join(dataDir, IdentityKeyFile))
	if err != nil {
		return nil, fmt.Errorf("identity key initialization failed: %w", err)
	}

	signingKey, err := keyManager.ParseSigningKey(cfg.Node.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("signing key initialization failed: %w", err)
	}

	store, err := ledger.Open(filepath.Join(dataDir, LedgerFile))
	if err != nil {
		return nil, fmt.Errorf("ledger initialization failed: %w", err)
	}

	return &State{
		Config:      cfg,
		DataDir:     dataDir,
		IdentityKey: identityKey,
		SigningKey:  signingKey,
		Ledger:      store,
	}, nil
}

// Close releases the resources held by the state
func (s *State) Close() error {
	if s == nil {
		return nil
	}
	return s.Ledger.Close()
}

// LogFile returns the path of the daemon log file
func (s *State) LogFile() string {
	return filepath.Join(s.DataDir, LogFileName)
}

// PidFile returns the path of the daemon pid file
func (s *State) PidFile() string {
	return filepath.Join(s.DataDir, PidFileName)
}

// DBFile returns the path of the outpoint ledger
func (s *State) DBFile() string {
	return filepath.Join(s.DataDir, LedgerFile)
}

// WritePidFile records the current process id in the datadir
func (s *State) WritePidFile() error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.PidFile(), []byte(pid+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// RemovePidFile removes the pid file on clean shutdown
func (s *State) RemovePidFile() {
	_ = os.Remove(s.PidFile())
}

// resolveDataDir expands an empty datadir to ~/.cosignerd
func resolveDataDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHomeDir, err)
	}
	return filepath.Join(home, DefaultDataDirName), nil
}

// createDataDir creates the datadir with owner-only permissions. An
// existing directory is left as is.
func createDataDir(path string) error {
	return os.MkdirAll(path, 0o700)
}
