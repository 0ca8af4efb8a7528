// Package keys handles the daemon's cryptographic key material: the
// hot Bitcoin signing key from the configuration and the long-lived
// transport identity key stored in the data directory.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// SigningKeyBytes is the decoded length of the hex signing key
	SigningKeyBytes = 32
	// IdentitySeedBytes is the size of the identity key seed file
	IdentitySeedBytes = ed25519.SeedSize
	// IdentityFileMode is the permission set of the identity key file.
	// The file is created once and never rewritten, so read-only for the
	// owner is enough.
	IdentityFileMode = 0o400
)

var (
	ErrZeroIdentityKey  = errors.New("identity key is all zeroes")
	ErrBadIdentitySize  = errors.New("identity key file has wrong size")
	ErrZeroSigningKey   = errors.New("signing key is all zeroes")
	ErrBadSigningKeyLen = errors.New("signing key must decode to 32 bytes")
)

// KeyManager handles cryptographic key operations
type KeyManager struct{}

// NewKeyManager creates a new KeyManager instance
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// GenerateSigningKey generates a fresh Bitcoin private key and returns it
// hex-encoded for storage in the configuration file
func (km *KeyManager) GenerateSigningKey() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}

	return hex.EncodeToString(priv.Serialize()), nil
}

// ValidateSigningKey validates that a signing key string is valid hex of
// the correct length. An empty string is valid: a key will be generated.
func (km *KeyManager) ValidateSigningKey(signingKeyHex string) error {
	if signingKeyHex == "" {
		return nil
	}

	_, err := km.ParseSigningKey(signingKeyHex)
	return err
}

// ParseSigningKey decodes a hex signing key into a usable private key
func (km *KeyManager) ParseSigningKey(signingKeyHex string) (*btcec.PrivateKey, error) {
	keyBytes, err := hex.DecodeString(signingKeyHex)
	if err != nil {
		return nil, fmt.Errorf("signing key must be valid hex: %w", err)
	}

	if len(keyBytes) != SigningKeyBytes {
		return nil, fmt.Errorf("%w, got %d", ErrBadSigningKeyLen, len(keyBytes))
	}

	if isAllZero(keyBytes) {
		return nil, ErrZeroSigningKey
	}

	priv, _ := btcec.PrivKeyFromBytes(keyBytes)
	return priv, nil
}

// LoadOrCreateIdentityKey returns the daemon's transport identity key,
// creating it on first run. The seed file is created with O_EXCL so an
// existing key is never overwritten; on load the seed must be exactly
// IdentitySeedBytes long and not all zeroes.
func (km *KeyManager) LoadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	seed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return km.createIdentityKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity key file %s: %w", path, err)
	}

	if len(seed) != IdentitySeedBytes {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d",
			ErrBadIdentitySize, path, len(seed), IdentitySeedBytes)
	}
	if isAllZero(seed) {
		return nil, fmt.Errorf("%w: %s", ErrZeroIdentityKey, path)
	}

	return identityFromSeed(seed)
}

// createIdentityKey generates fresh key material and persists the seed.
// The file is opened write-only with create-new semantics and owner-only
// read permissions, matching the key's create-exactly-once contract.
func (km *KeyManager) createIdentityKey(path string) (crypto.PrivKey, error) {
	seed := make([]byte, IdentitySeedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate identity key: %w", err)
	}

	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, IdentityFileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity key file %s: %w", path, err)
	}

	if _, err := fd.Write(seed); err != nil {
		fd.Close()
		return nil, fmt.Errorf("failed to write identity key file %s: %w", path, err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		return nil, fmt.Errorf("failed to sync identity key file %s: %w", path, err)
	}
	if err := fd.Close(); err != nil {
		return nil, fmt.Errorf("failed to close identity key file %s: %w", path, err)
	}

	return identityFromSeed(seed)
}

// identityFromSeed expands an Ed25519 seed into a libp2p private key
func identityFromSeed(seed []byte) (crypto.PrivKey, error) {
	edKey := ed25519.NewKeyFromSeed(seed)
	priv, err := crypto.UnmarshalEd25519PrivateKey(edKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert identity key: %w", err)
	}
	return priv, nil
}

// ManagerPeerID converts a manager's base64 Ed25519 public key into the
// libp2p peer ID it will present on the wire
func (km *KeyManager) ManagerPeerID(publicKeyBase64 string) (peer.ID, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return "", fmt.Errorf("manager public key must be valid base64: %w", err)
	}

	if len(keyBytes) != ed25519.PublicKeySize {
		return "", fmt.Errorf("manager public key must be %d bytes, got %d",
			ed25519.PublicKeySize, len(keyBytes))
	}

	pub, err := crypto.UnmarshalEd25519PublicKey(keyBytes)
	if err != nil {
		return "", fmt.Errorf("invalid manager public key: %w", err)
	}

	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to derive manager peer ID: %w", err)
	}

	return id, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
