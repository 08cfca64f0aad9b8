// Package rpc implements a line-delimited JSON-RPC 2.0 server.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/vaultd/internal/apperr"
)

// Version is the only accepted value of the "jsonrpc" member.
const Version = "2.0"

// Error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
	CodeNotFound       = -32001
	CodeConflict       = -32002
)

var nullID = json.RawMessage("null")

// Request is an inbound call or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is a server-initiated message without an id.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Error is the error member of a Response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// NewError returns an Error with the given code.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidParams(err error) *Error {
	return NewError(CodeInvalidParams, "%s", err.Error())
}

// toError maps err to its wire form. Domain sentinels get their own codes;
// anything else is a generic server error.
func toError(err error) *Error {
	var rerr *Error
	switch {
	case errors.As(err, &rerr):
		return rerr
	case errors.Is(err, apperr.ErrNotFound):
		return NewError(CodeNotFound, "%s", err.Error())
	case errors.Is(err, apperr.ErrConflict):
		return NewError(CodeConflict, "%s", err.Error())
	case errors.Is(err, apperr.ErrInternal):
		return NewError(CodeInternalError, "%s", err.Error())
	default:
		return NewError(CodeServerError, "%s", err.Error())
	}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}
