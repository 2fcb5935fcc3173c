package protocol

import (
	"context"
	"encoding/json"
	"errors"

	sjson "github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"

	"github.com/LuKks/protobee/internal/core/domain"
)

// Application error codes, inside the JSON-RPC implementation-defined range.
const (
	CodeRateLimited       jsonrpc2.Code = -32029
	CodeProtocolViolation jsonrpc2.Code = -32030
	CodeUnsupportedOption jsonrpc2.Code = -32031
	CodeReadOnly          jsonrpc2.Code = -32032
	CodeNotBatch          jsonrpc2.Code = -32033
	CodeHandleClosed      jsonrpc2.Code = -32034
	CodeVersionOutOfRange jsonrpc2.Code = -32035
	CodeEngine            jsonrpc2.Code = -32050
	CodeEngineClosed      jsonrpc2.Code = -32051
)

var wireCodes = map[string]jsonrpc2.Code{
	domain.ErrInvalidRequest.Code:    jsonrpc2.InvalidParams,
	domain.ErrUnknownMethod.Code:     jsonrpc2.MethodNotFound,
	domain.ErrRateLimited.Code:       CodeRateLimited,
	domain.ErrProtocolViolation.Code: CodeProtocolViolation,
	domain.ErrUnsupportedOption.Code: CodeUnsupportedOption,
	domain.ErrReadOnly.Code:          CodeReadOnly,
	domain.ErrNotBatch.Code:          CodeNotBatch,
	domain.ErrHandleClosed.Code:      CodeHandleClosed,
	domain.ErrVersionOutOfRange.Code: CodeVersionOutOfRange,
	domain.ErrEngine.Code:            CodeEngine,
	domain.ErrEngineClosed.Code:      CodeEngineClosed,
}

// errorData travels in error.data so the client can rebuild the domain error.
type errorData struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Normalize maps any handler error onto a domain error. Unknown errors
// become ErrEngine with the original message as details.
func Normalize(err error) *domain.DomainError {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTransport.Wrap(err)
	}
	return domain.ErrEngine.Wrap(err)
}

// ToWire converts a handler error into a JSON-RPC error response.
func ToWire(err error) *jsonrpc2.Error {
	if err == nil {
		return nil
	}
	de := Normalize(err)

	code, ok := wireCodes[de.Code]
	if !ok {
		code = jsonrpc2.InternalError
	}
	out := jsonrpc2.NewError(code, de.Message)

	data, merr := json.Marshal(errorData{Code: de.Code, Details: de.Details})
	if merr == nil {
		raw := sjson.RawMessage(data)
		out.Data = &raw
	}
	return out
}

// FromWire rebuilds the domain error carried by a JSON-RPC error response.
// Errors that are not JSON-RPC errors are transport failures.
func FromWire(err error) error {
	if err == nil {
		return nil
	}

	var werr *jsonrpc2.Error
	if !errors.As(err, &werr) {
		return domain.ErrTransport.Wrap(err)
	}

	if werr.Data != nil {
		var data errorData
		if json.Unmarshal([]byte(*werr.Data), &data) == nil {
			if de, ok := domain.Lookup(data.Code); ok {
				if data.Details != "" {
					return de.WithDetails(data.Details)
				}
				return de
			}
		}
	}

	switch werr.Code {
	case jsonrpc2.MethodNotFound:
		return domain.ErrUnknownMethod.WithDetails(werr.Message)
	case jsonrpc2.InvalidParams, jsonrpc2.InvalidRequest, jsonrpc2.ParseError:
		return domain.ErrInvalidRequest.WithDetails(werr.Message)
	}
	return domain.ErrEngine.WithDetails(werr.Message)
}
