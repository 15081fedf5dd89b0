package commitment

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

// Level is a confirmation strength. Stronger levels compare greater.
type Level uint8

const (
	Processed Level = iota + 1
	Confirmed
	Finalized
)

// Levels lists every level from weakest to strongest.
var Levels = []Level{Processed, Confirmed, Finalized}

func (l Level) String() string {
	switch l {
	case Processed:
		return "processed"
	case Confirmed:
		return "confirmed"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

func (l Level) Valid() bool {
	return l >= Processed && l <= Finalized
}

// Satisfies reports whether an observation at l meets a subscription at min.
func (l Level) Satisfies(min Level) bool {
	return l.Valid() && min.Valid() && l >= min
}

// AtMost returns every valid level weaker than or equal to l.
func (l Level) AtMost() []Level {
	out := make([]Level, 0, len(Levels))
	for _, lvl := range Levels {
		if l.Satisfies(lvl) {
			out = append(out, lvl)
		}
	}
	return out
}

func (l Level) RPC() rpc.CommitmentType {
	switch l {
	case Processed:
		return rpc.CommitmentProcessed
	case Finalized:
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func (l Level) ConfirmationStatus() rpc.ConfirmationStatusType {
	switch l {
	case Processed:
		return rpc.ConfirmationStatusProcessed
	case Finalized:
		return rpc.ConfirmationStatusFinalized
	default:
		return rpc.ConfirmationStatusConfirmed
	}
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid commitment level %d", uint8(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Parse accepts the rpc commitment names. "recent", "single" and "max" are the deprecated aliases
// still sent by older clients.
func Parse(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processed", "recent":
		return Processed, nil
	case "confirmed", "single", "singlegossip":
		return Confirmed, nil
	case "finalized", "max", "root":
		return Finalized, nil
	default:
		return 0, fmt.Errorf("unknown commitment level %q", s)
	}
}

// FromConfirmationStatus maps a getSignatureStatuses confirmation status.
func FromConfirmationStatus(s rpc.ConfirmationStatusType) (Level, bool) {
	switch s {
	case rpc.ConfirmationStatusProcessed:
		return Processed, true
	case rpc.ConfirmationStatusConfirmed:
		return Confirmed, true
	case rpc.ConfirmationStatusFinalized:
		return Finalized, true
	default:
		return 0, false
	}
}
