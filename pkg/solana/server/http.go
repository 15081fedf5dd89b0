package server

import (
	"encoding/json"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/blockinfo"
	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

// limit from the upstream getSignatureStatuses API
const maxSignatureStatuses = 256

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	var req request
	var resp response
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp = failure(req, &rpcError{Code: codeParseError, Message: "parse error"})
	} else {
		resp = s.handleQuery(req)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.lggr.Warnw("failed to write rpc response", "method", req.Method, "error", err)
	}
}

func (s *Server) handleQuery(req request) response {
	if err := req.validate(); err != nil {
		return failure(req, err)
	}
	var (
		v   interface{}
		err *rpcError
	)
	switch req.Method {
	case "getLatestBlockhash":
		v, err = s.getLatestBlockhash(req)
	case "getSlot":
		v, err = s.getSlot(req)
	case "getSignatureStatuses":
		v, err = s.getSignatureStatuses(req)
	default:
		err = &rpcError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	if err != nil {
		s.lggr.Debugw("rpc request failed", "method", req.Method, "error", err)
		return failure(req, err)
	}
	return result(req, v)
}

// The cache tracks confirmed and finalized only; processed reads are served from confirmed.
func cacheLevel(l commitment.Level) commitment.Level {
	if l == commitment.Finalized {
		return commitment.Finalized
	}
	return commitment.Confirmed
}

func (s *Server) readCache(req request) (blockinfo.BlockInformation, *rpcError) {
	var cfg commitmentConfig
	if err := req.params(&cfg); err != nil {
		return blockinfo.BlockInformation{}, err
	}
	lvl, err := cfg.level(s.commitment)
	if err != nil {
		return blockinfo.BlockInformation{}, err
	}
	info, ok := s.cache.Read(cacheLevel(lvl))
	if !ok {
		return blockinfo.BlockInformation{}, &rpcError{Code: codeInternalError, Message: "block information not available"}
	}
	return info, nil
}

func (s *Server) getLatestBlockhash(req request) (interface{}, *rpcError) {
	info, err := s.readCache(req)
	if err != nil {
		return nil, err
	}
	return contextResult{
		Context: rpcContext{Slot: info.Slot},
		Value:   latestBlockhash{Blockhash: info.BlockHash, LastValidBlockHeight: info.BlockHeight},
	}, nil
}

func (s *Server) getSlot(req request) (interface{}, *rpcError) {
	info, err := s.readCache(req)
	if err != nil {
		return nil, err
	}
	return info.Slot, nil
}

func (s *Server) getSignatureStatuses(req request) (interface{}, *rpcError) {
	var encoded []string
	var opts struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}
	if err := req.params(&encoded, &opts); err != nil {
		return nil, err
	}
	if len(encoded) > maxSignatureStatuses {
		return nil, invalidParams("too many signatures: %d > %d", len(encoded), maxSignatureStatuses)
	}

	values := make([]*signatureStatus, len(encoded))
	for i, str := range encoded {
		sig, err := solana.SignatureFromBase58(str)
		if err != nil {
			return nil, invalidParams("invalid signature %q: %v", str, err)
		}
		status, ok := s.table.Status(sig)
		if !ok || status.Commitment == nil {
			continue
		}
		values[i] = &signatureStatus{
			Slot:               status.Slot,
			Err:                status.Err,
			ConfirmationStatus: string(status.Commitment.ConfirmationStatus()),
		}
	}

	var slot uint64
	if bi, ok := s.cache.Read(commitment.Confirmed); ok {
		slot = bi.Slot
	}
	return contextResult{Context: rpcContext{Slot: slot}, Value: values}, nil
}
