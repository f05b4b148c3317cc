// Package httptransport implements the HTTP Transport (C8): the
// streamable-HTTP binding of the Agent Protocol, with origin/host
// guards, CORS, rate limiting, OAuth bearer verification, and both
// stateless (server pool) and stateful (session store) request modes.
//
// Grounded on the teacher's internal/api package (response envelope,
// middleware chain, rate limiter), adapted from a REST-shaped JSON API
// to the Agent Protocol's JSON-RPC envelope over /mcp.
package httptransport

import (
	"encoding/json"
	"net/http"
)

// Response is the plain JSON envelope used by /health and /health/ready
// (the Agent Protocol's own JSON-RPC envelope governs /mcp itself).
type Response struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"-"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes an arbitrary JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// rpcError is the JSON-RPC error envelope the specification's error
// handling design mandates for transport-level failures: -32000 generic
// protocol, -32001 auth, -32603 internal.
type rpcError struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Error   rpcErrBody  `json:"error"`
}

type rpcErrBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	CodeGenericProtocol = -32000
	CodeAuth            = -32001
	CodeInternal        = -32603
)

// WriteRPCError writes a JSON-RPC error response at httpStatus with the
// given JSON-RPC error code and message. id is echoed back if the
// request could be parsed far enough to have one; pass nil otherwise.
func WriteRPCError(w http.ResponseWriter, httpStatus, code int, message string, id interface{}) {
	WriteJSON(w, httpStatus, rpcError{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErrBody{Code: code, Message: message},
	})
}

// WriteMethodNotAllowed writes a 405 with a plain text body, used for
// GET/DELETE /mcp in stateless mode.
func WriteMethodNotAllowed(w http.ResponseWriter, message string) {
	http.Error(w, message, http.StatusMethodNotAllowed)
}
