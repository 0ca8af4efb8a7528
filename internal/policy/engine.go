// Package policy implements the signing decision logic. For every input
// of a candidate transaction the engine consults the outpoint ledger,
// signs if and only if the outpoint was never signed before, and commits
// the signed fact durably before the signature is released. This
// at-most-once contract is the entire security value of the daemon.
package policy

import (
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/danielabrozzoni/cosignerd/internal/ledger"
	"github.com/danielabrozzoni/cosignerd/internal/logger"
	"github.com/danielabrozzoni/cosignerd/internal/message"
	"github.com/danielabrozzoni/cosignerd/internal/signer"
)

// Ledger is the durable store of signed-outpoint facts consulted by the
// engine. InsertIfAbsent must be atomic with respect to the existence
// check and committed to stable storage before returning true.
type Ledger interface {
	Lookup(op wire.OutPoint) (*ledger.SignedOutpointRecord, error)
	InsertIfAbsent(op wire.OutPoint, rec *ledger.SignedOutpointRecord) (bool, error)
}

// Signer is the opaque signing capability invoked for approved inputs
type Signer interface {
	Sign(packet *psbt.Packet, idx int) (*signer.InputSignature, error)
}

// Engine is the signing policy engine. It is safe for concurrent use:
// the ledger insert is the durable serialization point per outpoint, and
// a per-outpoint lock keeps concurrent requests from computing duplicate
// signatures for the same outpoint.
type Engine struct {
	ledger Ledger
	signer Signer
	log    *logger.Logger
	locks  keyedMutex
}

// NewEngine creates a policy engine over the given ledger and signer
func NewEngine(l Ledger, s Signer, log *logger.Logger) *Engine {
	return &Engine{
		ledger: l,
		signer: s,
		log:    log,
	}
}

// Process decides, input by input, whether to add this daemon's
// signature to the request's transaction. It is total: for any decoded
// request it returns a response and never panics. A response with a nil
// transaction is a refusal.
//
// Inputs that are structurally invalid, already signed, or unsignable
// are left untouched; the remaining inputs still process. Only a ledger
// failure refuses the request wholesale: without a committed record no
// signature may be released.
func (e *Engine) Process(req *message.SignRequest) *message.SignResponse {
	if req == nil || req.Tx == nil || req.Tx.UnsignedTx == nil {
		return &message.SignResponse{}
	}

	tx := req.Tx
	for idx, txIn := range tx.UnsignedTx.TxIn {
		op := txIn.PreviousOutPoint
		if !validOutpoint(op) {
			e.log.Debug("skipping input with invalid outpoint", "input", idx)
			continue
		}

		if err := e.signInput(tx, idx, op); err != nil {
			e.log.Error("refusing request: ledger failure",
				"input", idx, "outpoint", op.String(), "error", err.Error())
			return &message.SignResponse{}
		}
	}

	return &message.SignResponse{Tx: tx}
}

// signInput signs one input unless its outpoint was signed before. A
// non-nil error reports a ledger failure and is fatal to the request;
// everything else resolves to "leave the input unsigned".
func (e *Engine) signInput(tx *psbt.Packet, idx int, op wire.OutPoint) error {
	unlock := e.locks.lock(op)
	defer unlock()

	rec, err := e.ledger.Lookup(op)
	if err != nil {
		return err
	}
	if rec != nil {
		e.log.Debug("outpoint already signed, leaving input untouched",
			"input", idx, "outpoint", op.String())
		return nil
	}

	sig, err := e.signer.Sign(tx, idx)
	if err != nil {
		// Unsignable input (missing witness data, bad index). The
		// request as a whole still processes.
		e.log.Warn("input cannot be signed",
			"input", idx, "outpoint", op.String(), "error", err.Error())
		return nil
	}

	rec = &ledger.SignedOutpointRecord{
		PubKey:    sig.PubKey,
		Signature: sig.Signature,
		SignedAt:  time.Now().UTC(),
	}

	// The final record is committed before the signature is applied to
	// the response. If the insert does not durably succeed, the
	// signature is dropped: an unsigned input is always preferable to
	// the risk of a duplicate signature.
	inserted, err := e.ledger.InsertIfAbsent(op, rec)
	if err != nil {
		return err
	}
	if !inserted {
		e.log.Warn("outpoint signed concurrently, dropping our signature",
			"input", idx, "outpoint", op.String())
		return nil
	}

	applySignature(&tx.Inputs[idx], sig)
	e.log.Info("signed outpoint", "input", idx, "outpoint", op.String())
	return nil
}

// applySignature merges a produced signature into the PSBT input
func applySignature(in *psbt.PInput, sig *signer.InputSignature) {
	if sig.Taproot {
		in.TaprootKeySpendSig = sig.Signature
		return
	}
	in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
		PubKey:    sig.PubKey,
		Signature: sig.Signature,
	})
}

// validOutpoint rejects outpoints that cannot reference a real previous
// output, such as the null outpoint used by coinbase transactions
func validOutpoint(op wire.OutPoint) bool {
	return op.Hash != (chainhash.Hash{})
}
