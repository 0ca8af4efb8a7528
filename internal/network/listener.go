// Package network serves the cosigner's single protocol: a manager
// wallet opens a stream, sends framed sign requests, and receives
// framed responses. Everything below the frame boundary (encryption,
// muxing, peer authentication) is libp2p's business; everything above
// it belongs to the message adapter and the policy engine.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/danielabrozzoni/cosignerd/internal/keys"
	"github.com/danielabrozzoni/cosignerd/internal/logger"
	"github.com/danielabrozzoni/cosignerd/internal/message"
	"github.com/danielabrozzoni/cosignerd/internal/policy"
	"github.com/danielabrozzoni/cosignerd/internal/types"
)

// ProtocolID identifies the sign-request protocol
const ProtocolID = protocol.ID("/revault/cosigner/sign/1.0.0")

// MaxFrameSize bounds a single request payload. Spend transactions are
// small; anything larger is hostile.
const MaxFrameSize = 4 << 20

// Listener accepts sign-request streams from configured managers and
// runs them through the policy engine
type Listener struct {
	host    host.Host
	engine  *policy.Engine
	allowed map[peer.ID]struct{}
	log     *logger.Logger
}

// NewListener builds a listener gated on the manager allow-list
func NewListener(h host.Host, engine *policy.Engine, managers []types.ManagerConfig, log *logger.Logger) (*Listener, error) {
	keyManager := keys.NewKeyManager()

	allowed := make(map[peer.ID]struct{}, len(managers))
	for _, mgr := range managers {
		id, err := keyManager.ManagerPeerID(mgr.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("manager %s: %w", mgr.String(), err)
		}
		allowed[id] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil, ErrNoManagers
	}

	return &Listener{
		host:    h,
		engine:  engine,
		allowed: allowed,
		log:     log,
	}, nil
}

// Start registers the stream handler
func (l *Listener) Start() {
	l.host.SetStreamHandler(ProtocolID, l.handleStream)
	l.log.Info("listening for sign requests",
		"protocol", string(ProtocolID), "peer_id", l.host.ID().String())
}

// Stop removes the stream handler
func (l *Listener) Stop() {
	l.host.RemoveStreamHandler(ProtocolID)
}

// Allowed reports whether the given peer may open sign streams
func (l *Listener) Allowed(id peer.ID) bool {
	_, ok := l.allowed[id]
	return ok
}

// handleStream serves one manager stream. Requests are processed
// strictly in order per stream; concurrency comes from concurrent
// streams, which the engine and ledger are built for.
func (l *Listener) handleStream(stream network.Stream) {
	remote := stream.Conn().RemotePeer()

	if !l.Allowed(remote) {
		streamErr := &StreamError{Operation: "open", Peer: remote.String(), Cause: ErrPeerNotAllowed}
		l.log.Warn("rejecting stream", "error", streamErr.Error())
		_ = stream.Reset()
		return
	}

	defer stream.Close()

	for {
		payload, err := readFrame(stream)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Warn("closing manager stream",
					"peer", remote.String(), "error", err.Error())
			}
			return
		}

		reqID := uuid.NewString()
		l.log.Debug("received sign request",
			"request_id", reqID, "peer", remote.String(), "bytes", len(payload))

		respPayload, err := l.serveRequest(reqID, payload)
		if err != nil {
			l.log.Error("failed to encode response",
				"request_id", reqID, "error", err.Error())
			return
		}

		if err := writeFrame(stream, respPayload); err != nil {
			l.log.Warn("failed to write response",
				"request_id", reqID, "peer", remote.String(), "error", err.Error())
			return
		}
	}
}

// serveRequest decodes one payload, runs it through the engine, and
// encodes the outcome. A payload that cannot be decoded yields an
// explicit refusal response, never an aborted process.
func (l *Listener) serveRequest(reqID string, payload []byte) ([]byte, error) {
	req, err := message.DecodeRequest(payload)
	if err != nil {
		l.log.Warn("refusing undecodable request",
			"request_id", reqID, "error", err.Error())
		return message.EncodeResponse(&message.SignResponse{})
	}

	resp := l.engine.Process(req)
	return message.EncodeResponse(resp)
}

// Frames are a 4-byte big-endian length prefix followed by the payload.

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	return payload, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
