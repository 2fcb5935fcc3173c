package handler

import (
	"time"

	"github.com/LuKks/protobee/internal/infra/buildinfo"
)

// Response is the envelope of every JSON response.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Version     uint64         `json:"version"`
	Length      uint64         `json:"length"`
	Connections int            `json:"connections"`
	Instances   int            `json:"instances"`
	Streams     int            `json:"streams"`
	LogLevel    string         `json:"log_level"`
	Build       buildinfo.Info `json:"build"`
}

// LogLevelRequest is the body of PUT /log/level.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// GCResponse is the body of POST /gc.
type GCResponse struct {
	Rewrites int `json:"rewrites"`
}
