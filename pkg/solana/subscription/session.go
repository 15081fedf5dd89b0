package subscription

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/fanout"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
)

// Session is one client connection's view of the notification stream.
// Subscribe and Unsubscribe may be called concurrently with Next.
type Session struct {
	id       uuid.UUID
	registry *Registry
	rx       *fanout.Receiver[Envelope]
	lggr     logger.Logger

	mu    sync.Mutex
	owned map[ID]int // references this session holds on each id
}

func NewSession(registry *Registry, stream *fanout.Broadcaster[Envelope], lggr logger.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:       id,
		registry: registry,
		rx:       stream.Subscribe(),
		lggr:     logger.Named(lggr, "Session").With("session", id.String()),
		owned:    map[ID]int{},
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// Subscribe registers key on behalf of this connection and returns its shared id.
func (s *Session) Subscribe(key Key) ID {
	id := s.registry.Register(key)
	s.mu.Lock()
	s.owned[id]++
	s.mu.Unlock()
	s.lggr.Debugw("subscribed", "key", key.String(), "subscription", id)
	return id
}

// Unsubscribe drops one of this connection's references to id.
// It returns false if the connection does not own id.
func (s *Session) Unsubscribe(id ID) bool {
	s.mu.Lock()
	refs, ok := s.owned[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if refs <= 1 {
		delete(s.owned, id)
	} else {
		s.owned[id] = refs - 1
	}
	s.mu.Unlock()

	s.registry.Release(id)
	s.lggr.Debugw("unsubscribed", "subscription", id)
	return true
}

// Owns reports whether the connection currently holds id.
func (s *Session) Owns(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owned[id]
	return ok
}

// Next returns the next envelope addressed to one of this connection's subscriptions.
// A *fanout.LaggedError means notifications were missed; the caller decides how to recover.
// A final envelope releases the subscription before it is returned.
func (s *Session) Next(ctx context.Context) (Envelope, error) {
	for {
		env, err := s.rx.Recv(ctx)
		if err != nil {
			var lagged *fanout.LaggedError
			if errors.As(err, &lagged) {
				promReceiverLagged.Inc()
				s.lggr.Warnw("session lagged behind notification stream", "missed", lagged.Missed)
			}
			return Envelope{}, err
		}

		s.mu.Lock()
		refs, ok := s.owned[env.SubscriptionID]
		if ok && env.IsFinal {
			delete(s.owned, env.SubscriptionID)
		}
		s.mu.Unlock()
		if !ok {
			continue
		}
		if env.IsFinal {
			for i := 0; i < refs; i++ {
				s.registry.Release(env.SubscriptionID)
			}
		}
		return env, nil
	}
}

// Close releases every subscription still held and detaches from the stream.
func (s *Session) Close() {
	s.mu.Lock()
	owned := s.owned
	s.owned = map[ID]int{}
	s.mu.Unlock()

	for id, refs := range owned {
		for i := 0; i < refs; i++ {
			s.registry.Release(id)
		}
	}
	s.rx.Close()
	s.lggr.Debugw("session closed", "released", len(owned))
}
