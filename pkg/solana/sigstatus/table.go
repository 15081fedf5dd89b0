package sigstatus

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

// Status is what the bridge knows about one tracked signature.
// Commitment is nil until the signature has been observed on chain.
type Status struct {
	Commitment *commitment.Level
	Slot       uint64
	Err        *string
	TrackedAt  time.Time
	UpdatedAt  time.Time
}

// Table maps signatures to the strongest confirmation observed so far.
// Writers for distinct signatures never contend on a shared lock.
type Table struct {
	statuses *xsync.MapOf[solana.Signature, Status]
}

func NewTable() *Table {
	return &Table{statuses: xsync.NewMapOf[solana.Signature, Status]()}
}

// Track registers a submitted signature with no observed commitment.
// Tracking an already known signature keeps its current status.
func (t *Table) Track(sig solana.Signature) {
	_, loaded := t.statuses.LoadOrStore(sig, Status{TrackedAt: time.Now()})
	if !loaded {
		promSignaturesTracked.Inc()
	}
}

// Observe records a commitment for sig, inserting it if absent. The stored level only ever
// strengthens. It returns true when the stored level changed.
func (t *Table) Observe(sig solana.Signature, level commitment.Level, slot uint64, txErr *string) bool {
	if !level.Valid() {
		return false
	}
	var changed, inserted bool
	t.statuses.Compute(sig, func(cur Status, loaded bool) (Status, bool) {
		now := time.Now()
		if !loaded {
			inserted = true
			cur.TrackedAt = now
		}
		if cur.Commitment != nil && !level.Satisfies(*cur.Commitment) {
			return cur, false
		}
		changed = cur.Commitment == nil || *cur.Commitment != level
		lvl := level
		cur.Commitment = &lvl
		cur.Slot = slot
		cur.Err = txErr
		cur.UpdatedAt = now
		return cur, false
	})
	if inserted {
		promSignaturesTracked.Inc()
	}
	return changed
}

// Get returns the strongest commitment observed for sig.
func (t *Table) Get(sig solana.Signature) (commitment.Level, bool) {
	s, ok := t.statuses.Load(sig)
	if !ok || s.Commitment == nil {
		return 0, false
	}
	return *s.Commitment, true
}

// Status returns the full entry for sig.
func (t *Table) Status(sig solana.Signature) (Status, bool) {
	return t.statuses.Load(sig)
}

// Pending lists tracked signatures that have not reached finalized yet.
func (t *Table) Pending() []solana.Signature {
	var out []solana.Signature
	t.statuses.Range(func(sig solana.Signature, s Status) bool {
		if s.Commitment == nil || *s.Commitment != commitment.Finalized {
			out = append(out, sig)
		}
		return true
	})
	return out
}

// Evict removes entries tracked before cutoff and returns how many were removed.
func (t *Table) Evict(cutoff time.Time) int {
	var evicted int
	t.statuses.Range(func(sig solana.Signature, s Status) bool {
		if !s.TrackedAt.Before(cutoff) {
			return true
		}
		var removed bool
		t.statuses.Compute(sig, func(cur Status, loaded bool) (Status, bool) {
			// re-check under the bucket lock, a concurrent Track may have replaced it
			removed = loaded && cur.TrackedAt.Before(cutoff)
			return cur, removed || !loaded
		})
		if removed {
			evicted++
		}
		return true
	})
	promSignaturesTracked.Sub(float64(evicted))
	return evicted
}

func (t *Table) Len() int {
	return t.statuses.Size()
}
