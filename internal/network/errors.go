package network

import (
	"errors"
	"fmt"
)

// Common network errors
var (
	ErrPeerNotAllowed = errors.New("peer is not a configured manager")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrNoManagers     = errors.New("no valid manager identities configured")
	ErrInvalidAddress = errors.New("invalid multiaddr format")
)

// StreamError represents a failure on one manager stream with context
type StreamError struct {
	Operation string
	Peer      string
	Cause     error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error in %s with peer %s: %v", e.Operation, e.Peer, e.Cause)
}

// Unwrap returns the underlying error
func (e *StreamError) Unwrap() error {
	return e.Cause
}
