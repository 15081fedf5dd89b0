package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/samber/lo"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/sigstatus"
)

// StatusReader queries signature statuses from the upstream node.
type StatusReader interface {
	SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatusesResult, error)
}

// Sink receives the events produced by a listener.
type Sink interface {
	Push(e events.Event) error
}

type ConfirmerConfig interface {
	ConfirmPollPeriod() time.Duration
	MaxSigsToConfirm() int
	ConfirmWorkers() int
}

// Confirmer polls the status of every pending signature and emits a SignatureObserved event
// each time a signature reaches a stronger commitment.
type Confirmer struct {
	reader StatusReader
	table  *sigstatus.Table
	sink   Sink
	cfg    ConfirmerConfig
	lggr   logger.Logger
}

func NewConfirmer(reader StatusReader, table *sigstatus.Table, sink Sink, cfg ConfirmerConfig, lggr logger.Logger) *Confirmer {
	return &Confirmer{
		reader: reader,
		table:  table,
		sink:   sink,
		cfg:    cfg,
		lggr:   logger.Named(lggr, "Confirmer"),
	}
}

// Run polls until ctx is done or the sink is closed.
func (c *Confirmer) Run(ctx context.Context) error {
	pool := pond.NewPool(c.cfg.ConfirmWorkers(), pond.WithContext(ctx))
	defer pool.StopAndWait()

	tick := time.After(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := c.confirm(ctx, pool); errors.Is(err, events.ErrQueueClosed) {
				c.lggr.Infow("event queue closed, confirmer stopping")
				return nil
			}
		}
		tick = time.After(c.cfg.ConfirmPollPeriod())
	}
}

func (c *Confirmer) confirm(ctx context.Context, pool pond.Pool) error {
	sigs := c.table.Pending()
	if len(sigs) == 0 {
		return nil
	}

	// batch sigs no more than MaxSigsToConfirm each
	batches := lo.Chunk(sigs, c.cfg.MaxSigsToConfirm())
	errs := make([]error, len(batches))
	group := pool.NewGroup()
	for i, batch := range batches {
		i, batch := i, batch
		group.Submit(func() {
			errs[i] = c.confirmBatch(ctx, batch)
		})
	}
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		c.lggr.Errorw("confirm batch group failed", "error", err)
	}

	for _, err := range errs {
		if errors.Is(err, events.ErrQueueClosed) {
			return err
		}
	}
	return nil
}

func (c *Confirmer) confirmBatch(ctx context.Context, sigs []solana.Signature) error {
	statuses, err := c.reader.SignatureStatuses(ctx, sigs)
	if err != nil {
		if ctx.Err() == nil {
			c.lggr.Errorw("failed to get signature statuses", "count", len(sigs), "error", err)
		}
		return nil
	}
	if len(statuses) != len(sigs) {
		c.lggr.Errorw("signature status count mismatch", "requested", len(sigs), "received", len(statuses))
		return nil
	}

	for i, res := range statuses {
		// not found could mean the tx was dropped or has not been picked up yet
		if res == nil {
			c.lggr.Debugw("tx state: not found", "signature", sigs[i])
			continue
		}
		level, ok := commitment.FromConfirmationStatus(res.ConfirmationStatus)
		if !ok {
			c.lggr.Warnw("unknown confirmation status", "signature", sigs[i], "status", res.ConfirmationStatus)
			continue
		}
		txErr := describeTxErr(res.Err)
		if !c.table.Observe(sigs[i], level, res.Slot, txErr) {
			continue
		}
		c.lggr.Debugw(fmt.Sprintf("tx state: %s", level), "signature", sigs[i], "slot", res.Slot, "failed", txErr != nil)
		if err := c.sink.Push(events.SignatureObserved{
			Signature:  sigs[i],
			Commitment: level,
			Slot:       res.Slot,
			Err:        txErr,
		}); err != nil {
			return err
		}
	}
	return nil
}

func describeTxErr(v interface{}) *string {
	if v == nil {
		return nil
	}
	var s string
	if b, err := json.Marshal(v); err == nil {
		s = string(b)
	} else {
		s = fmt.Sprint(v)
	}
	return &s
}
