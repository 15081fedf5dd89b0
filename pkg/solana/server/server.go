package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/blockinfo"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/fanout"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/sigstatus"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/subscription"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the bridge to clients: JSON-RPC queries over HTTP and subscriptions over
// websocket. It only reads shared state and never calls the upstream node.
type Server struct {
	httpAddr   string
	wsAddr     string
	commitment commitment.Level

	cache    *blockinfo.Cache
	table    *sigstatus.Table
	registry *subscription.Registry
	stream   *fanout.Broadcaster[subscription.Envelope]
	sink     Sink
	lggr     logger.Logger

	upgrader websocket.Upgrader
}

type Config interface {
	HTTPListenAddr() string
	WSListenAddr() string
}

// Sink is the event queue the dispatcher drains.
type Sink interface {
	Push(e events.Event) error
}

func New(
	cfg Config,
	defaultCommitment commitment.Level,
	cache *blockinfo.Cache,
	table *sigstatus.Table,
	registry *subscription.Registry,
	stream *fanout.Broadcaster[subscription.Envelope],
	sink Sink,
	lggr logger.Logger,
) *Server {
	return &Server{
		httpAddr:   cfg.HTTPListenAddr(),
		wsAddr:     cfg.WSListenAddr(),
		commitment: defaultCommitment,
		cache:      cache,
		table:      table,
		registry:   registry,
		stream:     stream,
		sink:       sink,
		lggr:       logger.Named(lggr, "Server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// clients are not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HTTPHandler serves JSON-RPC queries, health and metrics.
func (s *Server) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", s.serveRPC)
	r.Get("/health", s.serveHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// WSHandler upgrades every request to a subscription connection.
func (s *Server) WSHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.serveWS)
	return r
}

// Run listens on both addresses until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	wsLn, err := net.Listen("tcp", s.wsAddr)
	if err != nil {
		_ = httpLn.Close()
		return err
	}
	return s.Serve(ctx, httpLn, wsLn)
}

// Serve accepts on the given listeners until ctx is done. Websocket connections are hijacked
// and outlive it: they keep delivering notifications until the stream is closed.
func (s *Server) Serve(ctx context.Context, httpLn, wsLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range []struct {
		srv *http.Server
		ln  net.Listener
	}{
		{&http.Server{Handler: s.HTTPHandler()}, httpLn},
		{&http.Server{Handler: s.WSHandler()}, wsLn},
	} {
		srv, ln := l.srv, l.ln
		g.Go(func() error {
			s.lggr.Infow("listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// SubscribeSignature tracks sig and subscribes sess to it at lvl. A signature that already
// reached lvl is re-announced through the event queue, since the confirmer only reports changes.
func (s *Server) SubscribeSignature(sess *subscription.Session, sig solana.Signature, lvl commitment.Level) subscription.ID {
	s.table.Track(sig)
	id := sess.Subscribe(subscription.SignatureKey(sig, lvl))

	st, ok := s.table.Status(sig)
	if !ok || st.Commitment == nil || !st.Commitment.Satisfies(lvl) {
		return id
	}
	if err := s.sink.Push(events.SignatureObserved{
		Signature:  sig,
		Commitment: *st.Commitment,
		Slot:       st.Slot,
		Err:        st.Err,
	}); err != nil {
		s.lggr.Debugw("failed to replay signature status", "signature", sig, "error", err)
	}
	return id
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.cache.Read(commitment.Confirmed); !ok {
		http.Error(w, "block information not initialized", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
