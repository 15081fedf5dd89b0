package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

// Source is the consumer side of the event queue.
type Source interface {
	Recv(ctx context.Context) (events.Event, error)
}

// Publisher is the producer side of the notification stream.
type Publisher interface {
	Publish(env Envelope) (int, error)
}

// Dispatcher matches upstream events against the registry and publishes notification envelopes.
// It is the only consumer of its Source.
type Dispatcher struct {
	registry *Registry
	source   Source
	out      Publisher
	lggr     logger.Logger

	encode func(v interface{}) ([]byte, error)
	now    func() time.Time
}

func NewDispatcher(registry *Registry, source Source, out Publisher, lggr logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		source:   source,
		out:      out,
		lggr:     logger.Named(lggr, "Dispatcher"),
		encode:   json.Marshal,
		now:      time.Now,
	}
}

// Run drains the source in order until it is closed or ctx is done.
// Both are a controlled shutdown and return nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.lggr.Debugw("dispatcher started")
	for {
		e, err := d.source.Recv(ctx)
		switch {
		case errors.Is(err, events.ErrQueueClosed):
			d.lggr.Infow("event queue closed, dispatcher stopping")
			return nil
		case ctx.Err() != nil:
			d.lggr.Infow("dispatcher stopping", "reason", ctx.Err())
			return nil
		case err != nil:
			d.lggr.Errorw("failed to receive event", "error", err)
			continue
		}
		d.Dispatch(e)
	}
}

// Dispatch handles one event and returns the envelopes it published.
func (d *Dispatcher) Dispatch(e events.Event) []Envelope {
	promEventsReceived.WithLabelValues(e.Kind()).Inc()

	var envs []Envelope
	switch ev := e.(type) {
	case events.SignatureObserved:
		envs = d.signatureEnvelopes(ev)
	case events.SlotAdvanced:
		envs = d.slotEnvelopes(ev)
	default:
		d.lggr.Errorw("unknown event kind", "kind", e.Kind())
		promEventsDropped.WithLabelValues(dropInvalid).Inc()
		return nil
	}

	published := envs[:0]
	for _, env := range envs {
		n, err := d.out.Publish(env)
		if err != nil {
			d.lggr.Warnw("failed to publish notification", "subscription", env.SubscriptionID, "error", err)
			promEventsDropped.WithLabelValues(dropClosed).Inc()
			continue
		}
		promNotificationsSent.WithLabelValues(env.Method).Inc()
		d.lggr.Debugw("published notification", "subscription", env.SubscriptionID, "method", env.Method, "final", env.IsFinal, "receivers", n)
		published = append(published, env)
	}
	return published
}

// An observation at level L satisfies every subscription whose minimum commitment is at most L.
// Each matched key is its own logical subscription and gets exactly one envelope.
func (d *Dispatcher) signatureEnvelopes(ev events.SignatureObserved) []Envelope {
	if !ev.Commitment.Valid() {
		d.lggr.Errorw("dropping signature event with invalid commitment", "signature", ev.Signature, "commitment", ev.Commitment)
		promEventsDropped.WithLabelValues(dropInvalid).Inc()
		return nil
	}

	var envs []Envelope
	for _, level := range ev.Commitment.AtMost() {
		id, ok := d.registry.Lookup(SignatureKey(ev.Signature, level))
		if !ok {
			continue
		}
		result := signatureResult{
			Context: rpcContext{Slot: ev.Slot},
			Value:   signatureValue{Err: ev.Err},
		}
		env, err := d.envelope(id, MethodSignatureNotification, result, ev.Commitment == commitment.Finalized)
		if err != nil {
			d.lggr.Errorw("failed to encode signature notification", "signature", ev.Signature, "subscription", id, "error", err)
			promEventsDropped.WithLabelValues(dropEncode).Inc()
			continue
		}
		envs = append(envs, env)
	}
	if len(envs) == 0 {
		promEventsDropped.WithLabelValues(dropNoSubscriber).Inc()
	}
	return envs
}

func (d *Dispatcher) slotEnvelopes(ev events.SlotAdvanced) []Envelope {
	id, ok := d.registry.Lookup(SlotKey())
	if !ok {
		promEventsDropped.WithLabelValues(dropNoSubscriber).Inc()
		return nil
	}
	env, err := d.envelope(id, MethodSlotNotification, slotResult{Parent: ev.Parent, Root: ev.Root, Slot: ev.Slot}, false)
	if err != nil {
		d.lggr.Errorw("failed to encode slot notification", "slot", ev.Slot, "error", err)
		promEventsDropped.WithLabelValues(dropEncode).Inc()
		return nil
	}
	return []Envelope{env}
}

func (d *Dispatcher) envelope(id ID, method string, result interface{}, final bool) (Envelope, error) {
	payload, err := d.encode(notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  notificationParams{Result: result, Subscription: id},
	})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		SubscriptionID: id,
		Method:         method,
		IsFinal:        final,
		Payload:        payload,
		CreatedAt:      d.now(),
	}, nil
}
