// Package signer implements the daemon's signing capability over PSBT
// inputs. It knows how to produce ECDSA partial signatures for legacy
// and v0 witness spends and schnorr key-spend signatures for taproot
// inputs. Whether an input may be signed at all is decided by the
// policy engine, not here.
package signer

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrIndexOutOfRange = errors.New("input index out of range")
	ErrMissingUtxo     = errors.New("input carries no spent-output information")
	ErrMissingPrevOuts = errors.New("taproot signing requires every input's previous output")
)

// InputSignature is one signature produced for one transaction input
type InputSignature struct {
	PubKey    []byte
	Signature []byte
	// Taproot marks a schnorr key-spend signature; otherwise the
	// signature is a DER-encoded ECDSA partial signature with the
	// sighash type byte appended.
	Taproot bool
}

// InputSigner signs PSBT inputs with a single private key
type InputSigner struct {
	key *btcec.PrivateKey
}

// New creates an InputSigner over the given key. The key never leaves
// this package.
func New(key *btcec.PrivateKey) *InputSigner {
	return &InputSigner{key: key}
}

// PubKey returns the compressed public key of the signing key
func (s *InputSigner) PubKey() []byte {
	return s.key.PubKey().SerializeCompressed()
}

// Sign produces a signature for the input at idx. It inspects the
// input's spent output to pick the signature scheme. The packet is not
// modified.
func (s *InputSigner) Sign(packet *psbt.Packet, idx int) (*InputSignature, error) {
	if packet == nil || packet.UnsignedTx == nil {
		return nil, fmt.Errorf("nil transaction")
	}
	if idx < 0 || idx >= len(packet.UnsignedTx.TxIn) || idx >= len(packet.Inputs) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, idx)
	}

	prevOut := inputUtxo(packet, idx)
	if prevOut == nil {
		return nil, fmt.Errorf("input %d: %w", idx, ErrMissingUtxo)
	}

	if txscript.IsPayToTaproot(prevOut.PkScript) {
		return s.signTaproot(packet, idx)
	}
	return s.signECDSA(packet, idx, prevOut)
}

// signTaproot produces a schnorr key-spend signature. The BIP 341
// sighash commits to every spent output, so all inputs must carry
// their previous output.
func (s *InputSigner) signTaproot(packet *psbt.Packet, idx int) (*InputSignature, error) {
	fetcher, complete := prevOutFetcher(packet)
	if !complete {
		return nil, fmt.Errorf("input %d: %w", idx, ErrMissingPrevOuts)
	}

	in := &packet.Inputs[idx]
	hashType := in.SighashType // SigHashDefault when unset

	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	hash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, hashType, packet.UnsignedTx, idx, fetcher,
	)
	if err != nil {
		return nil, fmt.Errorf("input %d: taproot sighash: %w", idx, err)
	}

	// Key-spend signatures verify against the tweaked output key
	tweaked := txscript.TweakTaprootPrivKey(*s.key, in.TaprootMerkleRoot)
	sig, err := schnorr.Sign(tweaked, hash)
	if err != nil {
		return nil, fmt.Errorf("input %d: schnorr sign: %w", idx, err)
	}

	sigBytes := sig.Serialize()
	if hashType != txscript.SigHashDefault {
		sigBytes = append(sigBytes, byte(hashType))
	}

	return &InputSignature{
		PubKey:    schnorr.SerializePubKey(tweaked.PubKey()),
		Signature: sigBytes,
		Taproot:   true,
	}, nil
}

// signECDSA produces a DER partial signature for legacy, p2wpkh and
// p2wsh inputs
func (s *InputSigner) signECDSA(packet *psbt.Packet, idx int, prevOut *wire.TxOut) (*InputSignature, error) {
	in := &packet.Inputs[idx]

	hashType := in.SighashType
	if hashType == 0 {
		hashType = txscript.SigHashAll
	}

	var (
		hash []byte
		err  error
	)
	switch {
	case in.WitnessScript != nil:
		fetcher, _ := prevOutFetcher(packet)
		sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
		hash, err = txscript.CalcWitnessSigHash(
			in.WitnessScript, sigHashes, hashType, packet.UnsignedTx, idx, prevOut.Value,
		)

	case txscript.IsPayToWitnessPubKeyHash(prevOut.PkScript):
		fetcher, _ := prevOutFetcher(packet)
		sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
		hash, err = txscript.CalcWitnessSigHash(
			prevOut.PkScript, sigHashes, hashType, packet.UnsignedTx, idx, prevOut.Value,
		)

	default:
		script := prevOut.PkScript
		if in.RedeemScript != nil {
			script = in.RedeemScript
		}
		hash, err = txscript.CalcSignatureHash(script, hashType, packet.UnsignedTx, idx)
	}
	if err != nil {
		return nil, fmt.Errorf("input %d: sighash: %w", idx, err)
	}

	sig := ecdsa.Sign(s.key, hash)

	return &InputSignature{
		PubKey:    s.key.PubKey().SerializeCompressed(),
		Signature: append(sig.Serialize(), byte(hashType)),
	}, nil
}

// inputUtxo resolves the output spent by input idx, from the witness
// utxo if present, otherwise from the full previous transaction
func inputUtxo(packet *psbt.Packet, idx int) *wire.TxOut {
	in := &packet.Inputs[idx]
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo
	}

	if in.NonWitnessUtxo != nil {
		vout := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
		if int(vout) < len(in.NonWitnessUtxo.TxOut) {
			return in.NonWitnessUtxo.TxOut[vout]
		}
	}
	return nil
}

// prevOutFetcher assembles the spent outputs known to the packet. The
// second return reports whether every input's previous output was
// resolvable.
//
// Unresolvable inputs are registered with an empty placeholder output:
// NewTxSigHashes fetches every input's previous output while building
// midstates, and a missing entry would panic there. A v0 sighash only
// commits to the signed input's own script and amount, so the
// placeholder cannot leak into a signature; taproot signing, which does
// commit to all spent outputs, refuses on complete=false.
func prevOutFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher, bool) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	complete := true
	for i, txIn := range packet.UnsignedTx.TxIn {
		utxo := inputUtxo(packet, i)
		if utxo == nil {
			fetcher.AddPrevOut(txIn.PreviousOutPoint, &wire.TxOut{})
			complete = false
			continue
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, utxo)
	}
	return fetcher, complete
}
