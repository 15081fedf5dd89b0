package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

// SlotSource opens slot subscriptions on the upstream node.
type SlotSource interface {
	Subscribe(ctx context.Context) (SlotSubscription, error)
}

// SlotSubscription is one live upstream slot stream. Close may be called from any goroutine
// and makes a blocked Recv return an error.
type SlotSubscription interface {
	Recv() (events.SlotAdvanced, error)
	Close()
}

// NewWSSlotSource subscribes through the node's websocket endpoint.
func NewWSSlotSource(endpoint string) SlotSource {
	return &wsSlotSource{endpoint: endpoint}
}

type wsSlotSource struct {
	endpoint string
}

func (s *wsSlotSource) Subscribe(ctx context.Context) (SlotSubscription, error) {
	client, err := ws.Connect(ctx, s.endpoint)
	if err != nil {
		return nil, err
	}
	sub, err := client.SlotSubscribe()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &wsSlotSubscription{client: client, sub: sub}, nil
}

type wsSlotSubscription struct {
	client    *ws.Client
	sub       *ws.SlotSubscription
	closeOnce sync.Once
}

func (s *wsSlotSubscription) Recv() (events.SlotAdvanced, error) {
	res, err := s.sub.Recv()
	if err != nil {
		return events.SlotAdvanced{}, err
	}
	if res == nil {
		return events.SlotAdvanced{}, errors.New("empty slot notification")
	}
	return events.SlotAdvanced{Slot: res.Slot, Parent: res.Parent, Root: res.Root}, nil
}

// Close drops the connection. The client's read loop then fails every subscription, which
// unblocks Recv; Unsubscribe would close the stream channels under a pending Recv instead.
func (s *wsSlotSubscription) Close() {
	s.closeOnce.Do(func() { s.client.Close() })
}

// SlotWatcher forwards upstream slot notifications to a Sink and resubscribes with
// exponential backoff whenever the stream fails.
type SlotWatcher struct {
	source SlotSource
	sink   Sink
	lggr   logger.Logger

	minRetry time.Duration
	maxRetry time.Duration
}

func NewSlotWatcher(source SlotSource, sink Sink, lggr logger.Logger) *SlotWatcher {
	return &SlotWatcher{
		source:   source,
		sink:     sink,
		lggr:     logger.Named(lggr, "SlotWatcher"),
		minRetry: time.Second,
		maxRetry: 30 * time.Second,
	}
}

// Run returns when ctx is done or the sink is closed.
func (w *SlotWatcher) Run(ctx context.Context) error {
	for {
		sub, err := w.subscribe(ctx)
		if err != nil {
			// only a cancelled context ends the retry loop
			return nil
		}
		if w.forward(ctx, sub) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.minRetry):
		}
	}
}

func (w *SlotWatcher) subscribe(ctx context.Context) (SlotSubscription, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.minRetry
	b.MaxInterval = w.maxRetry
	b.MaxElapsedTime = 0 // retry until cancelled

	var sub SlotSubscription
	operation := func() error {
		w.lggr.Infow("subscribing to slot updates")
		s, err := w.source.Subscribe(ctx)
		if err != nil {
			return err
		}
		sub = s
		return nil
	}
	var attempt int
	notify := func(err error, next time.Duration) {
		attempt++
		w.lggr.Warnw("failed to subscribe to slot updates, retrying", "error", err, "attempt", attempt, "nextRetryIn", next)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return sub, nil
}

// forward pumps sub into the sink. It reports whether the watcher should stop.
func (w *SlotWatcher) forward(ctx context.Context, sub SlotSubscription) bool {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-stop:
		}
	}()
	defer sub.Close()

	for {
		slot, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			w.lggr.Errorw("error reading from slot subscription, reconnecting", "error", err)
			return false
		}
		if err := w.sink.Push(slot); err != nil {
			w.lggr.Infow("event queue closed, slot watcher stopping", "error", err)
			return true
		}
	}
}
