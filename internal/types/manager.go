// Package types contains data structures shared across the daemon
package types

import (
	"encoding/base64"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Constants for validation
const (
	// ManagerKeyBytes defines the decoded length of a manager transport
	// public key (Ed25519)
	ManagerKeyBytes = 32
)

// ManagerConfig represents one manager allowed to request signatures.
// Only streams opened by a configured manager identity are served.
type ManagerConfig struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// PublicKey is the base64-encoded Ed25519 transport public key of the
	// manager's wallet daemon.
	PublicKey string `yaml:"public_key" json:"public_key"`
}

// Validate validates the manager entry format and constraints
func (m *ManagerConfig) Validate() error {
	if m.PublicKey == "" {
		return fmt.Errorf("public key cannot be empty")
	}

	decoded, err := base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil {
		return fmt.Errorf("public key must be valid base64: %w", err)
	}

	if len(decoded) != ManagerKeyBytes {
		return fmt.Errorf("public key must be %d bytes when decoded, got %d bytes",
			ManagerKeyBytes, len(decoded))
	}

	allZero := true
	for _, b := range decoded {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return fmt.Errorf("public key cannot be all zeroes")
	}

	return nil
}

// String returns a string representation of the manager
func (m *ManagerConfig) String() string {
	key := m.PublicKey
	if len(key) > 8 {
		key = key[:8]
	}
	return fmt.Sprintf("Manager{Name: %s, PublicKey: %s...}", m.Name, key)
}

// Equal checks if two managers are equal (same public key)
func (m *ManagerConfig) Equal(other *ManagerConfig) bool {
	return m.PublicKey == other.PublicKey
}

// ValidateAddress validates a single listen multiaddr format
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	// Basic multiaddr validation patterns
	ipv4Pattern := regexp.MustCompile(`^/ip4/(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})/tcp/(\d+)$`)
	ipv6Pattern := regexp.MustCompile(`^/ip6/([^/]+)/tcp/(\d+)$`) // more permissive pattern for IPv6
	dnsPattern := regexp.MustCompile(`^/dns4?/([a-zA-Z0-9.-]+)/tcp/(\d+)$`)

	switch {
	case ipv4Pattern.MatchString(addr):
		return validateIPAddress(addr, ipv4Pattern)
	case ipv6Pattern.MatchString(addr):
		return validateIPAddress(addr, ipv6Pattern)
	case dnsPattern.MatchString(addr):
		return validateDNSAddress(addr, dnsPattern)
	default:
		return fmt.Errorf("unsupported address format: %s", addr)
	}
}

// validateIPAddress validates IPv4/IPv6 multiaddr formats
func validateIPAddress(addr string, pattern *regexp.Regexp) error {
	matches := pattern.FindStringSubmatch(addr)
	if len(matches) != 3 {
		return fmt.Errorf("invalid IP multiaddr format")
	}

	ip := net.ParseIP(matches[1])
	if ip == nil {
		return fmt.Errorf("invalid IP address: %s", matches[1])
	}

	return validatePort(matches[2])
}

// validateDNSAddress validates DNS multiaddr format
func validateDNSAddress(addr string, pattern *regexp.Regexp) error {
	matches := pattern.FindStringSubmatch(addr)
	if len(matches) != 3 {
		return fmt.Errorf("invalid DNS format")
	}

	hostname := matches[1]
	if len(hostname) == 0 || len(hostname) > 253 {
		return fmt.Errorf("invalid hostname length: %s", hostname)
	}

	if strings.Contains(hostname, "..") || strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return fmt.Errorf("invalid hostname format: %s", hostname)
	}

	return validatePort(matches[2])
}

// validatePort validates port number
func validatePort(portStr string) error {
	if portStr == "" {
		return fmt.Errorf("port cannot be empty")
	}

	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}
