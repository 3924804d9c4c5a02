package server

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/copyleftdev/optix/internal/errors"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type fitIDParams struct {
	FitID   string `json:"fit_id"`
	History bool   `json:"history,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := s.decodeBody(w, r, &request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "beam.propagate":
		var req propagateRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.propagate(req)
		}
	case "fit.start":
		var req fitRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startFit(req)
		}
	case "fit.status":
		var p fitIDParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.fitStatus(p.FitID, p.History)
		}
	case "fit.cancel":
		var p fitIDParams
		if err = decodeParams(request.Params, &p); err == nil {
			if err = s.cancelFit(p.FitID); err == nil {
				result = map[string]string{"fit_id": p.FitID, "status": statusCancelled}
			}
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

var errInvalidParams = stderrors.New("invalid params")

// decodeParams accepts params as an object or as an array holding one
// object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errInvalidParams
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
			return errInvalidParams
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidParams
	}
	return nil
}

func rpcCode(err error) int {
	switch {
	case stderrors.Is(err, errInvalidParams):
		return rpcInvalidParams
	case errors.KindOf(err) != errors.KindUnknown:
		return rpcInvalidParams
	default:
		return rpcServerError
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Debug("RPC error", zap.Int("code", code), zap.String("message", message))

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
