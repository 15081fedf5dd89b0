package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/internal/testutils"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/blockinfo"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/client/mocks"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/events"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/fanout"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/logger"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/sigstatus"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/subscription"
)

type staticAddrs struct{}

func (staticAddrs) HTTPListenAddr() string { return "127.0.0.1:0" }
func (staticAddrs) WSListenAddr() string   { return "127.0.0.1:0" }

type fixture struct {
	server     *Server
	cache      *blockinfo.Cache
	table      *sigstatus.Table
	registry   *subscription.Registry
	stream     *fanout.Broadcaster[subscription.Envelope]
	queue      *events.Queue
	dispatcher *subscription.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	lggr := logger.Test(t)
	f := &fixture{
		cache:    blockinfo.NewCache(mocks.NewReader(t)),
		table:    sigstatus.NewTable(),
		registry: subscription.NewRegistry(),
		stream:   fanout.New[subscription.Envelope](64),
		queue:    events.NewQueue(),
	}
	f.dispatcher = subscription.NewDispatcher(f.registry, f.queue, f.stream, lggr)
	f.server = New(staticAddrs{}, commitment.Confirmed, f.cache, f.table, f.registry, f.stream, f.queue, lggr)
	return f
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func post(t *testing.T, url, body string) rpcResponse {
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_HTTPQueries(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.HTTPHandler())
	defer srv.Close()

	// not initialized yet
	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	out := post(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"getSlot"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInternalError, out.Error.Code)

	require.NoError(t, f.cache.Update(commitment.Confirmed, blockinfo.BlockInformation{BlockHash: "confirmedHash", BlockHeight: 250, Slot: 100}))
	require.NoError(t, f.cache.Update(commitment.Finalized, blockinfo.BlockInformation{BlockHash: "finalizedHash", BlockHeight: 200, Slot: 68}))

	res, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	out = post(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"getSlot"}`)
	require.Nil(t, out.Error)
	assert.JSONEq(t, `100`, string(out.Result))
	assert.JSONEq(t, `1`, string(out.ID))

	out = post(t, srv.URL, `{"jsonrpc":"2.0","id":"a","method":"getSlot","params":[{"commitment":"finalized"}]}`)
	assert.JSONEq(t, `68`, string(out.Result))

	out = post(t, srv.URL, `{"jsonrpc":"2.0","id":2,"method":"getLatestBlockhash","params":[{"commitment":"processed"}]}`)
	assert.JSONEq(t, `{"context":{"slot":100},"value":{"blockhash":"confirmedHash","lastValidBlockHeight":250}}`, string(out.Result))

	out = post(t, srv.URL, `{"jsonrpc":"2.0","id":3,"method":"getSlot","params":[{"commitment":"bogus"}]}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidParams, out.Error.Code)

	out = post(t, srv.URL, `{"jsonrpc":"2.0","id":4,"method":"sendTransaction"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeMethodNotFound, out.Error.Code)

	out = post(t, srv.URL, `{"jsonrpc":"1.0","id":5,"method":"getSlot"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidRequest, out.Error.Code)

	out = post(t, srv.URL, `not json`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeParseError, out.Error.Code)

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_GetSignatureStatuses(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.HTTPHandler())
	defer srv.Close()
	require.NoError(t, f.cache.Update(commitment.Confirmed, blockinfo.BlockInformation{BlockHash: "h", BlockHeight: 1, Slot: 110}))

	known, tracked, unknown := testutils.RandomSignature(t), testutils.RandomSignature(t), testutils.RandomSignature(t)
	f.table.Observe(known, commitment.Finalized, 105, nil)
	f.table.Track(tracked)

	body := `{"jsonrpc":"2.0","id":1,"method":"getSignatureStatuses","params":[["` +
		known.String() + `","` + tracked.String() + `","` + unknown.String() + `"],{"searchTransactionHistory":true}]}`
	out := post(t, srv.URL, body)
	require.Nil(t, out.Error)
	assert.JSONEq(t,
		`{"context":{"slot":110},"value":[{"slot":105,"confirmations":null,"err":null,"confirmationStatus":"finalized"},null,null]}`,
		string(out.Result))

	out = post(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"getSignatureStatuses","params":[["not-a-signature"]]}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidParams, out.Error.Code)
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	return dialURL(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
}

func dialURL(t *testing.T, url string) *wsClient {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) call(body string) rpcResponse {
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(body)))
	var out rpcResponse
	require.NoError(c.t, json.Unmarshal(c.read(), &out))
	return out
}

func (c *wsClient) read() []byte {
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testutils.WaitTimeout(c.t))))
	_, msg, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	return msg
}

func (c *wsClient) subscribe(body string) subscription.ID {
	out := c.call(body)
	require.Nil(c.t, out.Error, "subscribe failed")
	var id subscription.ID
	require.NoError(c.t, json.Unmarshal(out.Result, &id))
	return id
}

func TestServer_SignatureSubscription(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.WSHandler())
	defer srv.Close()

	sig := testutils.RandomSignature(t)
	a, b := dial(t, srv), dial(t, srv)
	idA := a.subscribe(`{"jsonrpc":"2.0","id":1,"method":"signatureSubscribe","params":["` + sig.String() + `",{"commitment":"confirmed"}]}`)
	idB := b.subscribe(`{"jsonrpc":"2.0","id":1,"method":"signatureSubscribe","params":["` + sig.String() + `"]}`)
	assert.Equal(t, idA, idB, "default commitment is confirmed")
	_, tracked := f.table.Status(sig)
	assert.True(t, tracked)

	envs := f.dispatcher.Dispatch(events.SignatureObserved{Signature: sig, Commitment: commitment.Confirmed, Slot: 101})
	require.Len(t, envs, 1)

	want := `{"jsonrpc":"2.0","method":"signatureNotification","params":{"result":{"context":{"slot":101},"value":{"err":null}},"subscription":` +
		string(mustJSON(t, idA)) + `}}`
	assert.JSONEq(t, want, string(a.read()))
	assert.JSONEq(t, want, string(b.read()))
}

func TestServer_SignatureSubscribeReplaysKnownStatus(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.WSHandler())
	defer srv.Close()

	sig := testutils.RandomSignature(t)
	txErr := `{"InstructionError":[0,"Custom"]}`
	f.table.Observe(sig, commitment.Finalized, 105, &txErr)

	c := dial(t, srv)
	id := c.subscribe(`{"jsonrpc":"2.0","id":1,"method":"signatureSubscribe","params":["` + sig.String() + `",{"commitment":"confirmed"}]}`)
	require.Equal(t, 1, f.queue.Len())

	e, err := f.queue.Recv(testutils.Context(t))
	require.NoError(t, err)
	assert.Equal(t, events.SignatureObserved{Signature: sig, Commitment: commitment.Finalized, Slot: 105, Err: &txErr}, e)
	envs := f.dispatcher.Dispatch(e)
	require.Len(t, envs, 1)
	assert.True(t, envs[0].IsFinal)

	var n struct {
		Params struct {
			Result struct {
				Value struct {
					Err *string `json:"err"`
				} `json:"value"`
			} `json:"result"`
			Subscription subscription.ID `json:"subscription"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(c.read(), &n))
	assert.Equal(t, id, n.Params.Subscription)
	require.NotNil(t, n.Params.Result.Value.Err)
	assert.Equal(t, txErr, *n.Params.Result.Value.Err)

	// below the requested level nothing is replayed
	other := testutils.RandomSignature(t)
	f.table.Observe(other, commitment.Confirmed, 106, nil)
	c.subscribe(`{"jsonrpc":"2.0","id":2,"method":"signatureSubscribe","params":["` + other.String() + `",{"commitment":"finalized"}]}`)
	assert.Zero(t, f.queue.Len())
}

func TestServer_SlotSubscribeUnsubscribe(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.WSHandler())
	defer srv.Close()

	c := dial(t, srv)
	id := c.subscribe(`{"jsonrpc":"2.0","id":7,"method":"slotSubscribe"}`)

	f.dispatcher.Dispatch(events.SlotAdvanced{Slot: 12, Parent: 11, Root: 3})
	var n struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Slot uint64 `json:"slot"`
			} `json:"result"`
			Subscription subscription.ID `json:"subscription"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(c.read(), &n))
	assert.Equal(t, "slotNotification", n.Method)
	assert.Equal(t, uint64(12), n.Params.Result.Slot)
	assert.Equal(t, id, n.Params.Subscription)

	// wrong kind
	out := c.call(`{"jsonrpc":"2.0","id":8,"method":"signatureUnsubscribe","params":[` + string(mustJSON(t, id)) + `]}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidParams, out.Error.Code)

	out = c.call(`{"jsonrpc":"2.0","id":9,"method":"slotUnsubscribe","params":[` + string(mustJSON(t, id)) + `]}`)
	require.Nil(t, out.Error)
	assert.JSONEq(t, `true`, string(out.Result))
	_, ok := f.registry.Lookup(subscription.SlotKey())
	assert.False(t, ok)

	out = c.call(`{"jsonrpc":"2.0","id":10,"method":"slotUnsubscribe","params":[` + string(mustJSON(t, id)) + `]}`)
	require.NotNil(t, out.Error)
}

func TestServer_DisconnectReleasesSubscriptions(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.WSHandler())
	defer srv.Close()

	c := dial(t, srv)
	c.subscribe(`{"jsonrpc":"2.0","id":1,"method":"slotSubscribe"}`)
	c.subscribe(`{"jsonrpc":"2.0","id":2,"method":"signatureSubscribe","params":["` + solana.Signature{1}.String() + `"]}`)
	assert.Equal(t, 2, f.registry.Len())

	out := c.call(`{"jsonrpc":"2.0","id":3,"method":"signatureSubscribe","params":["bad"]}`)
	require.NotNil(t, out.Error)

	require.NoError(t, c.conn.Close())
	deadline := time.Now().Add(testutils.WaitTimeout(t))
	for f.registry.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(testutils.TestInterval)
	}
	assert.Zero(t, f.registry.Len())
	assert.Zero(t, f.stream.Receivers())
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.WSHandler())
	defer srv.Close()

	c := dial(t, srv)
	c.subscribe(`{"jsonrpc":"2.0","id":1,"method":"slotSubscribe"}`)
	f.stream.Close()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(testutils.WaitTimeout(t))))
	_, _, err := c.conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServer_ShutdownDrainsUntilStreamCloses(t *testing.T) {
	f := newFixture(t)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	wsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testutils.Context(t))
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, httpLn, wsLn) }()

	c := dialURL(t, "ws://"+wsLn.Addr().String())
	id := c.subscribe(`{"jsonrpc":"2.0","id":1,"method":"slotSubscribe"}`)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(testutils.WaitTimeout(t)):
		t.Fatal("server did not stop")
	}

	// notifications published while the bridge drains still reach open connections
	require.Len(t, f.dispatcher.Dispatch(events.SlotAdvanced{Slot: 20, Parent: 19, Root: 4}), 1)
	var n struct {
		Params struct {
			Subscription subscription.ID `json:"subscription"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(c.read(), &n))
	assert.Equal(t, id, n.Params.Subscription)

	f.stream.Close()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(testutils.WaitTimeout(t))))
	_, _, err = c.conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
