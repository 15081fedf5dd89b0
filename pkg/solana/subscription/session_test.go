package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/internal/testutils"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/fanout"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

type countingPublisher struct {
	*fanout.Broadcaster[Envelope]
	publishes int
}

func (p *countingPublisher) Publish(env Envelope) (int, error) {
	p.publishes++
	return p.Broadcaster.Publish(env)
}

func TestSession_TwoConnectionsShareOneNotification(t *testing.T) {
	ctx := testutils.Context(t)
	lggr := logger.Test(t)
	r := NewRegistry()
	stream := fanout.New[Envelope](16)
	pub := &countingPublisher{Broadcaster: stream}
	d := NewDispatcher(r, events.NewQueue(), pub, lggr)

	a := NewSession(r, stream, lggr)
	b := NewSession(r, stream, lggr)
	defer a.Close()
	defer b.Close()
	assert.NotEqual(t, a.ID(), b.ID())

	sig := testutils.RandomSignature(t)
	key := SignatureKey(sig, commitment.Confirmed)
	idA := a.Subscribe(key)
	idB := b.Subscribe(key)
	assert.Equal(t, idA, idB)
	assert.Equal(t, 1, r.Len())

	envs := d.Dispatch(events.SignatureObserved{Signature: sig, Commitment: commitment.Confirmed, Slot: 101})
	require.Len(t, envs, 1)
	assert.Equal(t, 1, pub.publishes)

	for _, s := range []*Session{a, b} {
		env, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, idA, env.SubscriptionID)
		assert.Equal(t, envs[0].Payload, env.Payload)
	}
}

func TestSession_FiltersForeignSubscriptions(t *testing.T) {
	ctx := testutils.Context(t)
	lggr := logger.Test(t)
	r := NewRegistry()
	stream := fanout.New[Envelope](16)
	d := NewDispatcher(r, events.NewQueue(), stream, lggr)

	mine := NewSession(r, stream, lggr)
	other := NewSession(r, stream, lggr)
	defer mine.Close()
	defer other.Close()

	other.Subscribe(SlotKey())
	sig := testutils.RandomSignature(t)
	id := mine.Subscribe(SignatureKey(sig, commitment.Processed))

	d.Dispatch(events.SlotAdvanced{Slot: 5})
	d.Dispatch(events.SignatureObserved{Signature: sig, Commitment: commitment.Processed, Slot: 6})

	env, err := mine.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, env.SubscriptionID)
	assert.Equal(t, MethodSignatureNotification, env.Method)
}

func TestSession_FinalReleasesSubscription(t *testing.T) {
	ctx := testutils.Context(t)
	lggr := logger.Test(t)
	r := NewRegistry()
	stream := fanout.New[Envelope](16)
	d := NewDispatcher(r, events.NewQueue(), stream, lggr)

	a := NewSession(r, stream, lggr)
	b := NewSession(r, stream, lggr)
	defer a.Close()
	defer b.Close()

	sig := testutils.RandomSignature(t)
	key := SignatureKey(sig, commitment.Confirmed)
	id := a.Subscribe(key)
	a.Subscribe(key)
	b.Subscribe(key)

	d.Dispatch(events.SignatureObserved{Signature: sig, Commitment: commitment.Finalized, Slot: 105})

	env, err := a.Next(ctx)
	require.NoError(t, err)
	assert.True(t, env.IsFinal)
	assert.False(t, a.Owns(id))
	_, ok := r.Lookup(key)
	assert.True(t, ok, "b still holds a reference")

	env, err = b.Next(ctx)
	require.NoError(t, err)
	assert.True(t, env.IsFinal)
	_, ok = r.Lookup(key)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestSession_UnsubscribeAndClose(t *testing.T) {
	lggr := logger.Test(t)
	r := NewRegistry()
	stream := fanout.New[Envelope](4)
	s := NewSession(r, stream, lggr)
	assert.Equal(t, 1, stream.Receivers())

	slotID := s.Subscribe(SlotKey())
	sigID := s.Subscribe(SignatureKey(testutils.RandomSignature(t), commitment.Finalized))
	assert.True(t, s.Owns(slotID))

	assert.True(t, s.Unsubscribe(slotID))
	assert.False(t, s.Unsubscribe(slotID))
	assert.False(t, s.Owns(slotID))
	_, ok := r.Key(slotID)
	assert.False(t, ok)

	s.Close()
	_, ok = r.Key(sigID)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
	assert.Zero(t, stream.Receivers())

	_, err := s.Next(testutils.Context(t))
	assert.ErrorIs(t, err, fanout.ErrClosed)
}

func TestSession_LagIsSurfaced(t *testing.T) {
	lggr := logger.Test(t)
	r := NewRegistry()
	stream := fanout.New[Envelope](2)
	d := NewDispatcher(r, events.NewQueue(), stream, lggr)
	s := NewSession(r, stream, lggr)
	defer s.Close()
	s.Subscribe(SlotKey())

	for slot := uint64(1); slot <= 5; slot++ {
		d.Dispatch(events.SlotAdvanced{Slot: slot})
	}

	_, err := s.Next(testutils.Context(t))
	var lagged *fanout.LaggedError
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(3), lagged.Missed)

	env, err := s.Next(testutils.Context(t))
	require.NoError(t, err)
	assert.Equal(t, MethodSlotNotification, env.Method)
}

func TestSession_NextWaitsForOwnedEnvelope(t *testing.T) {
	lggr := logger.Test(t)
	r := NewRegistry()
	stream := fanout.New[Envelope](8)
	d := NewDispatcher(r, events.NewQueue(), stream, lggr)
	s := NewSession(r, stream, lggr)
	defer s.Close()

	ctx, cancel := context.WithTimeout(testutils.Context(t), 20*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan Envelope, 1)
	go func() {
		env, err := s.Next(testutils.Context(t))
		if err == nil {
			got <- env
		}
	}()
	id := s.Subscribe(SlotKey())
	d.Dispatch(events.SlotAdvanced{Slot: 1})

	select {
	case env := <-got:
		assert.Equal(t, id, env.SubscriptionID)
	case <-time.After(testutils.WaitTimeout(t)):
		t.Fatal("Next did not return")
	}
}
