package keys

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseSigningKey(t *testing.T) {
	km := NewKeyManager()

	keyHex, err := km.GenerateSigningKey()
	require.NoError(t, err)
	require.Len(t, keyHex, SigningKeyBytes*2)

	priv, err := km.ParseSigningKey(keyHex)
	require.NoError(t, err)
	require.Equal(t, keyHex, hex.EncodeToString(priv.Serialize()))
}

func TestValidateSigningKey(t *testing.T) {
	km := NewKeyManager()

	require.NoError(t, km.ValidateSigningKey("")) // empty: will be generated

	cases := []struct {
		name string
		key  string
	}{
		{"not hex", "zzzz"},
		{"too short", "abcd"},
		{"too long", strings.Repeat("ab", 33)},
		{"all zero", strings.Repeat("00", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, km.ValidateSigningKey(tc.key))
		})
	}
}

func TestIdentityKeyCreateOnce(t *testing.T) {
	km := NewKeyManager()
	path := filepath.Join(t.TempDir(), "noise_secret")

	created, err := km.LoadOrCreateIdentityKey(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(IdentitySeedBytes), info.Size())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(IdentityFileMode), info.Mode().Perm())
	}

	// A second call loads the same key instead of generating a new one.
	loaded, err := km.LoadOrCreateIdentityKey(path)
	require.NoError(t, err)
	require.True(t, created.Equals(loaded))
}

func TestIdentityKeyRejectsZeroSeed(t *testing.T) {
	km := NewKeyManager()
	path := filepath.Join(t.TempDir(), "noise_secret")

	require.NoError(t, os.WriteFile(path, make([]byte, IdentitySeedBytes), 0o400))

	_, err := km.LoadOrCreateIdentityKey(path)
	require.ErrorIs(t, err, ErrZeroIdentityKey)
}

func TestIdentityKeyRejectsWrongSize(t *testing.T) {
	km := NewKeyManager()
	path := filepath.Join(t.TempDir(), "noise_secret")

	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0o400))

	_, err := km.LoadOrCreateIdentityKey(path)
	require.ErrorIs(t, err, ErrBadIdentitySize)
}

func TestManagerPeerID(t *testing.T) {
	km := NewKeyManager()

	// Derive a manager identity the same way a manager wallet would.
	path := filepath.Join(t.TempDir(), "noise_secret")
	priv, err := km.LoadOrCreateIdentityKey(path)
	require.NoError(t, err)

	pubBytes, err := priv.GetPublic().Raw()
	require.NoError(t, err)

	id, err := km.ManagerPeerID(base64.StdEncoding.EncodeToString(pubBytes))
	require.NoError(t, err)
	require.NoError(t, id.Validate())

	_, err = km.ManagerPeerID("not base64 @@@")
	require.Error(t, err)

	_, err = km.ManagerPeerID(base64.StdEncoding.EncodeToString([]byte{0x01}))
	require.Error(t, err)
}
