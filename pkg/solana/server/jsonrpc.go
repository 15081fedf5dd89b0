package server

import (
	"encoding/json"
	"fmt"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

const jsonrpcVersion = "2.0"

// standard JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	ID     json.RawMessage
	Result interface{}
	Error  *rpcError
}

// MarshalJSON emits exactly one of result and error; a false or zero result is still present.
func (r response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *rpcError       `json:"error"`
		}{jsonrpcVersion, r.ID, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  interface{}     `json:"result"`
	}{jsonrpcVersion, r.ID, r.Result})
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func invalidParams(format string, args ...interface{}) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func result(req request, v interface{}) response {
	id := req.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return response{ID: id, Result: v}
}

func failure(req request, err *rpcError) response {
	id := req.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return response{ID: id, Error: err}
}

func (r request) validate() *rpcError {
	if r.JSONRPC != jsonrpcVersion {
		return &rpcError{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""}
	}
	if r.Method == "" {
		return &rpcError{Code: codeInvalidRequest, Message: "missing method"}
	}
	return nil
}

// params decodes positional params into dst. Missing trailing params keep their zero value.
func (r request) params(dst ...interface{}) *rpcError {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(r.Params, &raw); err != nil {
		return invalidParams("params must be an array")
	}
	if len(raw) > len(dst) {
		return invalidParams("expected at most %d params, got %d", len(dst), len(raw))
	}
	for i, p := range raw {
		if string(p) == "null" {
			continue
		}
		if err := json.Unmarshal(p, dst[i]); err != nil {
			return invalidParams("invalid param %d: %v", i, err)
		}
	}
	return nil
}

type commitmentConfig struct {
	Commitment string `json:"commitment"`
}

// level resolves the requested commitment, falling back to def.
func (c commitmentConfig) level(def commitment.Level) (commitment.Level, *rpcError) {
	if c.Commitment == "" {
		return def, nil
	}
	lvl, err := commitment.Parse(c.Commitment)
	if err != nil {
		return 0, invalidParams("%v", err)
	}
	return lvl, nil
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type contextResult struct {
	Context rpcContext  `json:"context"`
	Value   interface{} `json:"value"`
}

type latestBlockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type signatureStatus struct {
	Slot               uint64  `json:"slot"`
	Confirmations      *uint64 `json:"confirmations"`
	Err                *string `json:"err"`
	ConfirmationStatus string  `json:"confirmationStatus"`
}
