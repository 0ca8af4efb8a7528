// Package message translates the opaque byte payloads exchanged with
// manager wallets into domain values and back. The wire format is a
// small JSON envelope carrying a base64-serialized PSBT.
package message

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// MethodSign is the only method manager wallets may request
const MethodSign = "sign"

// SignRequest is a candidate spend transaction submitted for signing
type SignRequest struct {
	Tx *psbt.Packet
}

// SignResponse carries the transaction back with this daemon's
// signatures applied. A nil Tx is an explicit refusal.
type SignResponse struct {
	Tx *psbt.Packet
}

// DecodeError describes why an inbound payload could not be decoded.
// It is a request-level failure: the transport layer reports it to the
// peer, the process keeps running.
type DecodeError struct {
	Stage string // "envelope", "method", "base64" or "psbt"
	Err   error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// signRequestEnvelope is the wire form of a SignRequest
type signRequestEnvelope struct {
	Method string `json:"method"`
	Tx     string `json:"tx"`
}

// signResponseEnvelope is the wire form of a SignResponse. A null tx
// signals refusal.
type signResponseEnvelope struct {
	Tx *string `json:"tx"`
}

// DecodeRequest decodes an inbound payload into a SignRequest. Any
// malformed payload yields a *DecodeError, never a panic.
func DecodeRequest(payload []byte) (*SignRequest, error) {
	var env signRequestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Stage: "envelope", Err: err}
	}

	if env.Method != MethodSign {
		return nil, &DecodeError{Stage: "method", Err: fmt.Errorf("unknown method %q", env.Method)}
	}

	raw, err := base64.StdEncoding.DecodeString(env.Tx)
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: err}
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, &DecodeError{Stage: "psbt", Err: err}
	}

	return &SignRequest{Tx: packet}, nil
}

// EncodeRequest encodes a SignRequest into its wire form. It is used by
// tests and by manager-side tooling.
func EncodeRequest(req *SignRequest) ([]byte, error) {
	if req == nil || req.Tx == nil {
		return nil, fmt.Errorf("cannot encode empty sign request")
	}

	txB64, err := packetBase64(req.Tx)
	if err != nil {
		return nil, err
	}

	return json.Marshal(&signRequestEnvelope{Method: MethodSign, Tx: txB64})
}

// EncodeResponse encodes a SignResponse into its wire form. Encoding is
// total for any valid response, a nil transaction included.
func EncodeResponse(resp *SignResponse) ([]byte, error) {
	env := &signResponseEnvelope{}

	if resp != nil && resp.Tx != nil {
		txB64, err := packetBase64(resp.Tx)
		if err != nil {
			return nil, err
		}
		env.Tx = &txB64
	}

	return json.Marshal(env)
}

// DecodeResponse decodes a response payload. A null tx decodes to a
// response with a nil transaction.
func DecodeResponse(payload []byte) (*SignResponse, error) {
	var env signResponseEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Stage: "envelope", Err: err}
	}

	if env.Tx == nil {
		return &SignResponse{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(*env.Tx)
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: err}
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, &DecodeError{Stage: "psbt", Err: err}
	}

	return &SignResponse{Tx: packet}, nil
}

func packetBase64(packet *psbt.Packet) (string, error) {
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize psbt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
