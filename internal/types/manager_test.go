package types

import (
	"encoding/base64"
	"strings"
	"testing"
)

func validKey() string {
	key := make([]byte, ManagerKeyBytes)
	copy(key, []byte("manager-wallet-key"))
	return base64.StdEncoding.EncodeToString(key)
}

func TestManagerValidate(t *testing.T) {
	mgr := ManagerConfig{Name: "wallet", PublicKey: validKey()}
	if err := mgr.Validate(); err != nil {
		t.Fatalf("valid manager rejected: %v", err)
	}
}

func TestManagerValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"too long", base64.StdEncoding.EncodeToString(make([]byte, 64))},
		{"all zero", base64.StdEncoding.EncodeToString(make([]byte, ManagerKeyBytes))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mgr := ManagerConfig{PublicKey: tc.key}
			if err := mgr.Validate(); err == nil {
				t.Fatalf("expected validation error for %s key", tc.name)
			}
		})
	}
}

func TestManagerString(t *testing.T) {
	mgr := ManagerConfig{Name: "wallet", PublicKey: validKey()}
	s := mgr.String()
	if !strings.Contains(s, "wallet") {
		t.Errorf("String() missing name: %s", s)
	}
	if strings.Contains(s, mgr.PublicKey) {
		t.Errorf("String() must not leak the full key: %s", s)
	}
}

func TestManagerEqual(t *testing.T) {
	a := ManagerConfig{Name: "a", PublicKey: validKey()}
	b := ManagerConfig{Name: "b", PublicKey: validKey()}
	if !a.Equal(&b) {
		t.Error("managers with the same key must be equal")
	}

	other := make([]byte, ManagerKeyBytes)
	other[0] = 0xff
	c := ManagerConfig{PublicKey: base64.StdEncoding.EncodeToString(other)}
	if a.Equal(&c) {
		t.Error("managers with different keys must not be equal")
	}
}

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"/ip4/127.0.0.1/tcp/8383",
		"/ip4/0.0.0.0/tcp/9000",
		"/ip6/::1/tcp/8383",
		"/dns4/cosigner.example.com/tcp/8383",
	}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("valid address %s rejected: %v", addr, err)
		}
	}

	invalid := []string{
		"",
		"127.0.0.1:8383",
		"/ip4/999.1.1.1/tcp/8383",
		"/ip4/127.0.0.1/tcp/0",
		"/ip4/127.0.0.1/tcp/70000",
		"/ip4/127.0.0.1/udp/8383",
		"/dns4/bad..host/tcp/8383",
	}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("invalid address %s accepted", addr)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Network.Addresses) == 0 {
		t.Fatal("default config must have a listen address")
	}
	for _, addr := range cfg.Network.Addresses {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("default address %s invalid: %v", addr, err)
		}
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected default logging config: %+v", cfg.Logging)
	}
}
