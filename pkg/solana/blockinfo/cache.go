package blockinfo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

// Upstream is the subset of the node client used to seed and refresh the cache.
type Upstream interface {
	SlotWithCommitment(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	LatestBlockhashWithCommitment(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// BlockInformation is an immutable snapshot of the most recent block known at a commitment.
// BlockHeight is the last valid block height reported alongside BlockHash.
type BlockInformation struct {
	BlockHash   string
	BlockHeight uint64
	Slot        uint64
	Commitment  commitment.Level
	UpdatedAt   time.Time
}

// Cache holds one snapshot per tracked commitment. Snapshots are swapped as a whole so a
// reader never pairs a hash with the height or slot of another block.
type Cache struct {
	upstream  Upstream
	confirmed atomic.Pointer[BlockInformation]
	finalized atomic.Pointer[BlockInformation]
}

func NewCache(upstream Upstream) *Cache {
	return &Cache{upstream: upstream}
}

func (c *Cache) slot(level commitment.Level) (*atomic.Pointer[BlockInformation], error) {
	switch level {
	case commitment.Confirmed:
		return &c.confirmed, nil
	case commitment.Finalized:
		return &c.finalized, nil
	default:
		return nil, errors.Errorf("block information is not tracked at %s", level)
	}
}

// Fetch queries the upstream node for a fresh snapshot without storing it.
func (c *Cache) Fetch(ctx context.Context, level commitment.Level) (BlockInformation, error) {
	if _, err := c.slot(level); err != nil {
		return BlockInformation{}, err
	}
	slot, err := c.upstream.SlotWithCommitment(ctx, level.RPC())
	if err != nil {
		return BlockInformation{}, errors.Wrapf(err, "failed to get %s slot", level)
	}
	res, err := c.upstream.LatestBlockhashWithCommitment(ctx, level.RPC())
	if err != nil {
		return BlockInformation{}, errors.Wrapf(err, "failed to get %s blockhash", level)
	}
	if res == nil || res.Value == nil {
		return BlockInformation{}, errors.Errorf("empty %s blockhash response", level)
	}
	return BlockInformation{
		BlockHash:   res.Value.Blockhash.String(),
		BlockHeight: res.Value.LastValidBlockHeight,
		Slot:        slot,
		Commitment:  level,
		UpdatedAt:   time.Now(),
	}, nil
}

// Initialize seeds the snapshot for level. Callers treat an error as a startup failure.
func (c *Cache) Initialize(ctx context.Context, level commitment.Level) (BlockInformation, error) {
	info, err := c.Fetch(ctx, level)
	if err != nil {
		return BlockInformation{}, err
	}
	if err := c.Update(level, info); err != nil {
		return BlockInformation{}, err
	}
	return info, nil
}

// Read returns the current snapshot. ok is false until the level has been initialized.
func (c *Cache) Read(level commitment.Level) (info BlockInformation, ok bool) {
	p, err := c.slot(level)
	if err != nil {
		return BlockInformation{}, false
	}
	cur := p.Load()
	if cur == nil {
		return BlockInformation{}, false
	}
	return *cur, true
}

// Update replaces the snapshot for level in one atomic store.
func (c *Cache) Update(level commitment.Level, info BlockInformation) error {
	p, err := c.slot(level)
	if err != nil {
		return err
	}
	info.Commitment = level
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = time.Now()
	}
	p.Store(&info)
	updateProm(info)
	return nil
}
