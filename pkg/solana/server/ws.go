package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/fanout"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/subscription"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

type wsConn struct {
	conn    *websocket.Conn
	session *subscription.Session
	server  *Server
	lggr    logger.Logger

	writeMu sync.Mutex
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.lggr.Debugw("websocket upgrade failed", "error", err)
		return
	}
	sess := subscription.NewSession(s.registry, s.stream, s.lggr)
	c := &wsConn{
		conn:    conn,
		session: sess,
		server:  s,
		lggr:    logger.Named(s.lggr, "WS").With("session", sess.ID().String(), "remote", r.RemoteAddr),
	}
	c.lggr.Debugw("websocket connected")

	// the writer drains until the stream closes so shutdown still delivers in-flight notifications
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
		// unblock the read loop
		_ = conn.Close()
	}()

	c.readLoop()
	cancel()
	sess.Close()
	wg.Wait()
	c.lggr.Debugw("websocket disconnected")
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.lggr.Debugw("websocket read failed", "error", err)
			}
			return
		}

		var req request
		c.writeMu.Lock()
		var resp response
		if err := json.Unmarshal(msg, &req); err != nil {
			resp = failure(req, &rpcError{Code: codeParseError, Message: "parse error"})
		} else {
			resp = c.handle(req)
		}
		// responses are written before any notification for a new subscription
		err = c.write(resp)
		c.writeMu.Unlock()
		if err != nil {
			c.lggr.Debugw("websocket write failed", "error", err)
			return
		}
	}
}

func (c *wsConn) writeLoop(ctx context.Context) {
	for {
		env, err := c.session.Next(ctx)
		if err != nil {
			var lagged *fanout.LaggedError
			switch {
			case errors.As(err, &lagged):
				// notifications are not replayable, the client must resubscribe
				c.lggr.Warnw("closing lagging websocket", "missed", lagged.Missed)
				c.closeWith(websocket.ClosePolicyViolation, "notification stream lagged")
			case errors.Is(err, fanout.ErrClosed):
				c.closeWith(websocket.CloseGoingAway, "server shutting down")
			}
			return
		}

		c.writeMu.Lock()
		err = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = c.conn.WriteMessage(websocket.TextMessage, env.Payload)
		}
		c.writeMu.Unlock()
		if err != nil {
			c.lggr.Debugw("failed to write notification", "subscription", env.SubscriptionID, "error", err)
			return
		}
	}
}

func (c *wsConn) write(resp response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) closeWith(code int, text string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (c *wsConn) handle(req request) response {
	if err := req.validate(); err != nil {
		return failure(req, err)
	}
	var (
		v   interface{}
		err *rpcError
	)
	switch req.Method {
	case "signatureSubscribe":
		v, err = c.signatureSubscribe(req)
	case "slotSubscribe":
		if err = req.params(); err == nil {
			v = c.session.Subscribe(subscription.SlotKey())
		}
	case "signatureUnsubscribe":
		v, err = c.unsubscribe(req, subscription.KindSignature)
	case "slotUnsubscribe":
		v, err = c.unsubscribe(req, subscription.KindSlot)
	default:
		err = &rpcError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	if err != nil {
		return failure(req, err)
	}
	return result(req, v)
}

func (c *wsConn) signatureSubscribe(req request) (interface{}, *rpcError) {
	var encoded string
	var cfg commitmentConfig
	if err := req.params(&encoded, &cfg); err != nil {
		return nil, err
	}
	sig, err := solana.SignatureFromBase58(encoded)
	if err != nil {
		return nil, invalidParams("invalid signature %q: %v", encoded, err)
	}
	lvl, rerr := cfg.level(c.server.commitment)
	if rerr != nil {
		return nil, rerr
	}
	return c.server.SubscribeSignature(c.session, sig, lvl), nil
}

func (c *wsConn) unsubscribe(req request, kind subscription.KeyKind) (interface{}, *rpcError) {
	var id subscription.ID
	if err := req.params(&id); err != nil {
		return nil, err
	}
	key, ok := c.server.registry.Key(id)
	if !ok || key.Kind() != kind || !c.session.Owns(id) {
		return nil, invalidParams("Invalid subscription id.")
	}
	return c.session.Unsubscribe(id), nil
}
