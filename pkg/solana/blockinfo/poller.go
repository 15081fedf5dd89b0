package blockinfo

import (
	"context"
	"time"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

// TrackedLevels are the commitments the cache keeps snapshots for.
var TrackedLevels = []commitment.Level{commitment.Confirmed, commitment.Finalized}

// Poller refreshes every tracked level of a Cache on a fixed interval.
type Poller struct {
	cache         *Cache
	fetchInterval time.Duration
	lggr          logger.Logger
}

func NewPoller(cache *Cache, fetchInterval time.Duration, lggr logger.Logger) *Poller {
	return &Poller{
		cache:         cache,
		fetchInterval: fetchInterval,
		lggr:          logger.Named(lggr, "BlockInfoPoller"),
	}
}

// Run should be executed as a goroutine. It returns when ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.fetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	for _, level := range TrackedLevels {
		info, err := p.cache.Fetch(ctx, level)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// keep the last known good snapshot
			incUpdateFailure(level)
			p.lggr.Warnw("failed to refresh block information", "commitment", level, "error", err)
			continue
		}

		if prev, ok := p.cache.Read(level); ok && info.Slot < prev.Slot {
			p.lggr.Debugw("ignoring stale block information", "commitment", level, "slot", info.Slot, "cachedSlot", prev.Slot)
			continue
		}
		if err := p.cache.Update(level, info); err != nil {
			p.lggr.Errorw("failed to update block information", "commitment", level, "error", err)
		}
	}
}
