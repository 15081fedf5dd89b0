package testutils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// Context returns a context with the test's deadline, if available.
func Context(tb testing.TB) context.Context {
	ctx := context.Background()
	var cancel func()
	switch t := tb.(type) {
	case *testing.T:
		if d, ok := t.Deadline(); ok {
			ctx, cancel = context.WithDeadline(ctx, d)
		}
	}
	if cancel == nil {
		ctx, cancel = context.WithCancel(ctx)
	}
	tb.Cleanup(cancel)
	return ctx
}

// DefaultWaitTimeout is the default wait timeout. If you have a *testing.T, use WaitTimeout instead.
const DefaultWaitTimeout = 30 * time.Second

// WaitTimeout returns a timeout based on the test's Deadline, if available.
// Especially important to use in parallel tests, as their individual execution
// can get paused for arbitrary amounts of time.
func WaitTimeout(t *testing.T) time.Duration {
	if d, ok := t.Deadline(); ok {
		// 10% buffer for cleanup and scheduling delay
		return time.Until(d) * 9 / 10
	}
	return DefaultWaitTimeout
}

// TestInterval is just a sensible poll interval that gives fast tests without
// risk of spamming
const TestInterval = 100 * time.Millisecond

// RandomSignature returns a random transaction signature.
func RandomSignature(t testing.TB) solana.Signature {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	sig, err := key.Sign([]byte(t.Name()))
	require.NoError(t, err)
	return sig
}

// RPCHandler produces the "result" member for one JSON-RPC method.
type RPCHandler func(params json.RawMessage) (interface{}, error)

// FakeRPC is a minimal Solana JSON-RPC node served over httptest.
type FakeRPC struct {
	URL string

	mu       sync.RWMutex
	handlers map[string]RPCHandler
	calls    sync.Map // method -> *atomic.Int64
}

func NewFakeRPC(t testing.TB) *FakeRPC {
	f := &FakeRPC{handlers: map[string]RPCHandler{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// Handle registers (or replaces) the handler for method.
func (f *FakeRPC) Handle(method string, h RPCHandler) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

// Calls returns how many times method was requested.
func (f *FakeRPC) Calls(method string) int64 {
	v, ok := f.calls.Load(method)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (f *FakeRPC) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	counter, _ := f.calls.LoadOrStore(req.Method, new(atomic.Int64))
	counter.(*atomic.Int64).Add(1)

	f.mu.RLock()
	h, ok := f.handlers[req.Method]
	f.mu.RUnlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = rpcError{Code: -32601, Message: "Method not found"}
	} else if result, err := h(req.Params); err != nil {
		resp["error"] = rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// LatestBlockhashResult builds a getLatestBlockhash result body.
func LatestBlockhashResult(contextSlot uint64, hash solana.Hash, lastValidBlockHeight uint64) map[string]interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{"slot": contextSlot},
		"value": map[string]interface{}{
			"blockhash":            hash.String(),
			"lastValidBlockHeight": lastValidBlockHeight,
		},
	}
}
