package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/blockinfo"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/client"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/config"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/fanout"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/listener"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/server"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/sigstatus"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/subscription"
)

// Bridge owns the shared state and every long running task of a lite-rpc process.
type Bridge struct {
	cfg     config.Config
	lggr    logger.Logger
	network string

	Cache    *blockinfo.Cache
	Table    *sigstatus.Table
	Registry *subscription.Registry
	Queue    *events.Queue
	Stream   *fanout.Broadcaster[subscription.Envelope]

	dispatcher *subscription.Dispatcher
	poller     *blockinfo.Poller
	confirmer  *listener.Confirmer
	slots      *listener.SlotWatcher
	server     *server.Server
}

// New connects to the upstream node and seeds the block information cache.
// An upstream failure here is fatal: there is nothing meaningful to serve without it.
func New(ctx context.Context, cfg config.Config, lggr logger.Logger) (*Bridge, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	c, err := client.NewClient(cfg.RPCEndpoint(), cfg, cfg.RequestTimeout(), lggr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create rpc client")
	}
	return newBridge(ctx, cfg, c, listener.NewWSSlotSource(cfg.WSEndpoint()), lggr)
}

func newBridge(ctx context.Context, cfg config.Config, reader client.Reader, slots listener.SlotSource, lggr logger.Logger) (*Bridge, error) {
	lggr = logger.Named(lggr, "Bridge")
	defaultLevel, err := commitment.Parse(string(cfg.Commitment()))
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:      cfg,
		lggr:     lggr,
		Cache:    blockinfo.NewCache(reader),
		Table:    sigstatus.NewTable(),
		Registry: subscription.NewRegistry(),
		Queue:    events.NewQueue(),
		Stream:   fanout.New[subscription.Envelope](cfg.NotificationBufferSize()),
	}
	if err := b.initializeCache(ctx); err != nil {
		return nil, err
	}
	b.network = resolveNetwork(reader, lggr)

	b.dispatcher = subscription.NewDispatcher(b.Registry, b.Queue, b.Stream, lggr)
	b.poller = blockinfo.NewPoller(b.Cache, cfg.BlockPollPeriod(), lggr)
	b.confirmer = listener.NewConfirmer(reader, b.Table, b.Queue, cfg, lggr)
	b.slots = listener.NewSlotWatcher(slots, b.Queue, lggr)
	b.server = server.New(cfg, defaultLevel, b.Cache, b.Table, b.Registry, b.Stream, b.Queue, lggr)
	return b, nil
}

// initializeCache seeds every tracked level concurrently and reports all failures together.
func (b *Bridge) initializeCache(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, level := range blockinfo.TrackedLevels {
		wg.Add(1)
		go func(level commitment.Level) {
			defer wg.Done()
			info, err := b.Cache.Initialize(ctx, level)
			if err != nil {
				mu.Lock()
				errs = multierr.Combine(errs, fmt.Errorf("failed to initialize %s block information: %w", level, err))
				mu.Unlock()
				return
			}
			b.lggr.Infow("block information initialized", "commitment", level, "slot", info.Slot, "blockhash", info.BlockHash)
		}(level)
	}
	wg.Wait()
	return errs
}

// resolveNetwork names the cluster behind the upstream node. It is informational only.
func resolveNetwork(reader client.Reader, lggr logger.Logger) string {
	network, err := reader.ChainID()
	if err != nil {
		lggr.Warnw("failed to resolve upstream network", "error", err)
		return "unknown"
	}
	lggr.Infow("upstream network resolved", "network", network)
	return network
}

// Network is the cluster name derived from the upstream genesis hash.
func (b *Bridge) Network() string { return b.network }

// Server is the client facing surface.
func (b *Bridge) Server() *server.Server { return b.server }

// Run starts every task and blocks until ctx is done or one of them fails.
// Producers stop first; the dispatcher then drains the queue and closes the notification
// stream so every connection observes a clean shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.poller.Run(gctx)
		return nil
	})
	g.Go(func() error { return b.confirmer.Run(gctx) })
	g.Go(func() error { return b.slots.Run(gctx) })
	g.Go(func() error { return b.server.Run(gctx) })
	g.Go(func() error {
		b.clean(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		b.Queue.Close()
		return nil
	})
	g.Go(func() error {
		// the dispatcher outlives gctx so in-flight events are still delivered
		err := b.dispatcher.Run(context.Background())
		b.Stream.Close()
		return err
	})

	err := g.Wait()
	b.lggr.Infow("bridge stopped", "error", err)
	return err
}

func (b *Bridge) clean(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.CleanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-b.cfg.SignatureRetention())
			if n := b.Table.Evict(cutoff); n > 0 {
				b.lggr.Debugw("evicted signature statuses", "count", n, "remaining", b.Table.Len())
			}
		}
	}
}
