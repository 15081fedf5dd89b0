package subscription

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

type KeyKind uint8

const (
	KindSignature KeyKind = iota + 1
	KindSlot
)

func (k KeyKind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindSlot:
		return "slot"
	default:
		return fmt.Sprintf("KeyKind(%d)", uint8(k))
	}
}

// Key identifies what a client watches. Keys are comparable values: two requests for the same
// signature at the same commitment produce equal keys.
type Key struct {
	kind       KeyKind
	signature  solana.Signature
	commitment commitment.Level
}

// SignatureKey watches sig until it reaches at least level.
func SignatureKey(sig solana.Signature, level commitment.Level) Key {
	return Key{kind: KindSignature, signature: sig, commitment: level}
}

// SlotKey is the single key shared by every slot subscriber.
func SlotKey() Key {
	return Key{kind: KindSlot}
}

func (k Key) Kind() KeyKind                { return k.kind }
func (k Key) Signature() solana.Signature  { return k.signature }
func (k Key) Commitment() commitment.Level { return k.commitment }

func (k Key) String() string {
	switch k.kind {
	case KindSignature:
		return fmt.Sprintf("signature(%s, %s)", k.signature, k.commitment)
	case KindSlot:
		return "slot"
	default:
		return "invalid"
	}
}
