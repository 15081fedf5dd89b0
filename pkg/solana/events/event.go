package events

import (
	"github.com/gagliardetto/solana-go"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

// Event is an upstream observation consumed by the dispatcher.
// The set of implementations is closed: SignatureObserved and SlotAdvanced.
type Event interface {
	Kind() string
	event()
}

// SignatureObserved reports that a transaction reached a commitment level.
// Err holds the transaction error, nil when it succeeded.
type SignatureObserved struct {
	Signature  solana.Signature
	Commitment commitment.Level
	Slot       uint64
	Err        *string
}

func (SignatureObserved) Kind() string { return "signature" }
func (SignatureObserved) event()       {}

// SlotAdvanced reports a new slot seen by the upstream node.
type SlotAdvanced struct {
	Slot   uint64
	Parent uint64
	Root   uint64
}

func (SlotAdvanced) Kind() string { return "slot" }
func (SlotAdvanced) event()       {}
